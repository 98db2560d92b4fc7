// Package session confines every client session to a dedicated worker
// goroutine. The worker is the only code that ever touches its session's
// context; everybody else talks to it through its inbox.
package session

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/wallera-computer/tagateway/protocol"
	"github.com/wallera-computer/tagateway/ta"
)

// inboxDepth is the number of requests that can be queued for a worker
// before Post blocks.
const inboxDepth = 8

// ErrWorkerClosed is returned when posting to a worker that already processed Close.
var ErrWorkerClosed = errors.New("session worker closed")

type requestKind int

const (
	requestInvoke requestKind = iota
	requestClose
)

// Request is a command for a worker. Build one with InvokeRequest or CloseRequest.
type Request struct {
	kind      requestKind
	commandID uint32
	params    protocol.Parameters
	reply     chan Reply
}

// InvokeRequest returns a request running cmdID with params.
func InvokeRequest(cmdID uint32, params protocol.Parameters) Request {
	return Request{
		kind:      requestInvoke,
		commandID: cmdID,
		params:    params,
	}
}

// CloseRequest returns a request closing the session.
func CloseRequest() Request {
	return Request{kind: requestClose}
}

// Reply is a worker's answer to a single Request.
type Reply struct {
	Status uint32
	Params protocol.Parameters
}

// Worker owns the context of a single session.
type Worker struct {
	id    uint32
	app   ta.TrustedApplication
	sctx  ta.SessionContext
	inbox chan Request
	done  chan struct{}
	l     *zap.Logger
}

// Spawn starts a worker goroutine owning sctx.
func Spawn(id uint32, app ta.TrustedApplication, sctx ta.SessionContext, l *zap.Logger) *Worker {
	w := &Worker{
		id:    id,
		app:   app,
		sctx:  sctx,
		inbox: make(chan Request, inboxDepth),
		done:  make(chan struct{}),
		l:     l.With(zap.Uint32("session_id", id)),
	}

	go w.run()

	return w
}

// ID returns the session id the worker serves.
func (w *Worker) ID() uint32 {
	return w.id
}

// Done is closed once the worker has processed Close and exited.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Post enqueues req and returns the channel its reply will be delivered on.
// Requests are processed in the order they are posted.
func (w *Worker) Post(ctx context.Context, req Request) (<-chan Reply, error) {
	req.reply = make(chan Reply, 1)

	select {
	case <-w.done:
		return nil, ErrWorkerClosed
	default:
	}

	select {
	case w.inbox <- req:
		// a worker that exited meanwhile never reads its inbox again
		select {
		case <-w.done:
			w.drain()
		default:
		}

		return req.reply, nil
	case <-w.done:
		return nil, ErrWorkerClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Call posts req and waits for its reply.
func (w *Worker) Call(ctx context.Context, req Request) (Reply, error) {
	replyCh, err := w.Post(ctx, req)
	if err != nil {
		return Reply{}, err
	}

	select {
	case r := <-replyCh:
		return r, nil
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	}
}

// Invoke runs cmdID on the session and returns the resulting reply.
func (w *Worker) Invoke(ctx context.Context, cmdID uint32, params protocol.Parameters) (Reply, error) {
	return w.Call(ctx, InvokeRequest(cmdID, params))
}

// Close closes the session. The worker exits after replying.
func (w *Worker) Close(ctx context.Context) (Reply, error) {
	return w.Call(ctx, CloseRequest())
}

func (w *Worker) run() {
	for req := range w.inbox {
		switch req.kind {
		case requestInvoke:
			params := req.params.Clone()
			status := w.guard("invoke command", func() error {
				return w.app.InvokeCommand(req.commandID, &params, w.sctx)
			})

			w.l.Debug("command invoked",
				zap.Uint32("command_id", req.commandID),
				zap.Stringer("status", ta.Code(status)),
			)

			req.reply <- Reply{
				Status: status,
				Params: params,
			}
		case requestClose:
			status := w.guard("close session", func() error {
				return w.app.CloseSession(w.sctx)
			})

			w.sctx = nil
			w.l.Debug("session worker exiting", zap.Stringer("status", ta.Code(status)))

			req.reply <- Reply{Status: status}
			w.exit()
			return
		}
	}
}

// exit marks the worker closed and answers requests still queued behind Close.
func (w *Worker) exit() {
	close(w.done)
	w.drain()
}

// drain answers every queued request with ItemNotFound. It must only run once
// done is closed.
func (w *Worker) drain() {
	for {
		select {
		case req := <-w.inbox:
			req.reply <- Reply{
				Status: uint32(ta.ItemNotFound),
				Params: req.params,
			}
		default:
			return
		}
	}
}

// guard runs fn, converting its error or panic into a status code.
func (w *Worker) guard(op string, fn func() error) uint32 {
	err := ta.Guard(fn)
	if err != nil {
		w.l.Info("trusted application returned an error", zap.String("operation", op), zap.Error(err))
	}

	return ta.StatusOf(err)
}
