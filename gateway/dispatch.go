package gateway

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/wallera-computer/tagateway/protocol"
	"github.com/wallera-computer/tagateway/session"
	"github.com/wallera-computer/tagateway/ta"
)

// dispatch routes req and returns the response to send back, or nil if req is
// not a request a client may send. The boolean reports whether the TA has been
// destroyed and serving must stop.
func (g *Gateway) dispatch(ctx context.Context, req protocol.Message) (protocol.Message, bool) {
	switch r := req.(type) {
	case *protocol.OpenSession:
		return g.openSession(r), false
	case *protocol.CloseSession:
		return g.closeSession(ctx, r), false
	case *protocol.InvokeCommand:
		return g.invokeCommand(ctx, r), false
	case *protocol.RequestCancellation:
		// cancellation is not supported
		g.l.Info("cancellation requested", zap.Uint32("session_id", r.SessionID))
		return &protocol.RequestCancellationResult{
			Status:    uint32(ta.NotSupported),
			SessionID: r.SessionID,
		}, false
	case *protocol.Destroy:
		return &protocol.DestroyResult{
			Status: g.destroy(),
		}, true
	default:
		return nil, false
	}
}

func (g *Gateway) openSession(req *protocol.OpenSession) *protocol.OpenSessionResult {
	if req.UUID != "" && !strings.EqualFold(req.UUID, g.cfg.UUID) {
		g.l.Info("open session for another TA", zap.String("requested", req.UUID))
		return &protocol.OpenSessionResult{Status: uint32(ta.ItemNotFound)}
	}

	if !protocol.ValidConnectionMethod(req.ConnectionMethod) {
		g.l.Info("open session with unknown connection method", zap.Uint32("method", req.ConnectionMethod))
		return &protocol.OpenSessionResult{Status: uint32(ta.BadParameters)}
	}

	var (
		params = req.Params.Clone()
		sctx   ta.SessionContext
	)

	err := ta.Guard(func() error {
		var err error
		sctx, err = g.app.OpenSession(&params)
		return err
	})
	if err != nil {
		g.l.Info("failed to open session", zap.Error(err))
		return &protocol.OpenSessionResult{Status: ta.StatusOf(err)}
	}

	id, err := g.sessions.Allocate()
	if err != nil {
		g.l.Error("cannot allocate session id", zap.Error(err))
		if err := ta.Guard(func() error { return g.app.CloseSession(sctx) }); err != nil {
			g.l.Warn("cannot release unregistered session", zap.Error(err))
		}
		return &protocol.OpenSessionResult{Status: uint32(ta.Overflow)}
	}

	g.sessions.Add(session.Spawn(id, g.app, sctx, g.l))
	g.l.Info("session opened", zap.Uint32("session_id", id), zap.Int("open_sessions", g.sessions.Len()))

	return &protocol.OpenSessionResult{
		Status:    uint32(ta.Success),
		SessionID: id,
	}
}

func (g *Gateway) closeSession(ctx context.Context, req *protocol.CloseSession) *protocol.CloseSessionResult {
	resp := &protocol.CloseSessionResult{SessionID: req.SessionID}

	w, ok := g.sessions.Lookup(req.SessionID)
	if !ok {
		g.l.Info("close of unknown session", zap.Uint32("session_id", req.SessionID))
		resp.Status = uint32(ta.ItemNotFound)
		return resp
	}

	cctx, cancel := g.callContext(ctx)
	defer cancel()

	r, err := w.Close(cctx)
	if err != nil {
		resp.Status = g.workerFailure(req.SessionID, err)
		return resp
	}

	g.sessions.Remove(req.SessionID)
	g.l.Info("session closed", zap.Uint32("session_id", req.SessionID), zap.Stringer("status", ta.Code(r.Status)))

	resp.Status = r.Status
	return resp
}

func (g *Gateway) invokeCommand(ctx context.Context, req *protocol.InvokeCommand) *protocol.InvokeCommandResult {
	resp := &protocol.InvokeCommandResult{
		SessionID: req.SessionID,
		CommandID: req.CommandID,
		Params:    req.Params,
	}

	w, ok := g.sessions.Lookup(req.SessionID)
	if !ok {
		g.l.Info("invoke on unknown session", zap.Uint32("session_id", req.SessionID), zap.Uint32("command_id", req.CommandID))
		resp.Status = uint32(ta.ItemNotFound)
		return resp
	}

	cctx, cancel := g.callContext(ctx)
	defer cancel()

	r, err := w.Invoke(cctx, req.CommandID, req.Params)
	if err != nil {
		resp.Status = g.workerFailure(req.SessionID, err)
		return resp
	}

	resp.Status = r.Status
	resp.Params = r.Params

	return resp
}

// workerFailure maps a failed exchange with a session worker to a status.
func (g *Gateway) workerFailure(id uint32, err error) uint32 {
	if errors.Is(err, session.ErrWorkerClosed) {
		g.sessions.Remove(id)
		return uint32(ta.ItemNotFound)
	}

	g.l.Warn("session worker did not answer", zap.Uint32("session_id", id), zap.Error(err))

	return uint32(ta.Busy)
}
