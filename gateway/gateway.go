// Package gateway serves a Trusted Application to client applications over a
// local unix socket.
//
// The dispatcher accepts one connection at a time and carries exactly one
// request per connection to completion before accepting the next one. Session
// state never lives in the dispatcher: every open session is owned by a
// session.Worker, and the dispatcher only relays commands to it.
package gateway

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/wallera-computer/tagateway/protocol"
	"github.com/wallera-computer/tagateway/session"
	"github.com/wallera-computer/tagateway/ta"
)

// Config holds what a Gateway needs to know about its environment.
type Config struct {
	// UUID identifies the served TA; it names the listening socket.
	UUID string

	// SocketDir is the directory holding the listening socket.
	SocketDir string

	// DirectorySocket is the well-known socket TAs register with.
	DirectorySocket string

	// Framing must match the one used by clients.
	Framing protocol.Framing

	// ReplyTimeout bounds how long the dispatcher waits on a session worker.
	// Zero waits forever.
	ReplyTimeout time.Duration

	// TeardownTimeout bounds the wait on each session worker while the TA is
	// destroyed. Zero means DefaultTeardownTimeout.
	TeardownTimeout time.Duration
}

// DefaultTeardownTimeout is used when Config.TeardownTimeout is zero.
const DefaultTeardownTimeout = 5 * time.Second

// SocketPath returns the path the gateway listens on.
func (c Config) SocketPath() string {
	return SocketPath(c.SocketDir, c.UUID)
}

// SocketPath returns the listening socket path of the TA identified by uuid.
func SocketPath(dir, uuid string) string {
	return filepath.Join(dir, uuid+".sock")
}

// Gateway multiplexes client sessions onto a single TrustedApplication.
type Gateway struct {
	cfg      Config
	app      ta.TrustedApplication
	sessions *session.Registry
	listener net.Listener
	l        *zap.Logger

	destroyed bool
}

// New returns a Gateway serving app. Nothing happens until Run, or Listen and Serve.
func New(cfg Config, app ta.TrustedApplication, l *zap.Logger) *Gateway {
	return &Gateway{
		cfg:      cfg,
		app:      app,
		sessions: session.NewRegistry(),
		l:        l.With(zap.String("ta", cfg.UUID)),
	}
}

// Run creates the TA, binds the listening socket, registers with the
// directory and serves until ctx is done or a client destroys the TA.
// Errors returned before serving starts are fatal startup errors.
func (g *Gateway) Run(ctx context.Context) error {
	if err := ta.Guard(g.app.Create); err != nil {
		return fmt.Errorf("cannot create trusted application, %w", err)
	}

	if err := g.Listen(); err != nil {
		g.destroy()
		return err
	}

	if err := Register(ctx, g.cfg.DirectorySocket, g.cfg.UUID); err != nil {
		g.listener.Close()
		g.removeSocket()
		g.destroy()
		return err
	}

	g.l.Info("registered with directory", zap.String("directory", g.cfg.DirectorySocket))

	return g.Serve(ctx)
}

// Listen removes any stale socket file and binds the listening socket.
func (g *Gateway) Listen() error {
	path := g.cfg.SocketPath()

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "removing stale socket %s", path)
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return errors.Wrapf(err, "listening on %s", path)
	}

	g.listener = ln
	g.l.Info("listening", zap.String("socket", path), zap.Stringer("framing", g.cfg.Framing))

	return nil
}

// Addr returns the listening address, or nil before Listen.
func (g *Gateway) Addr() net.Addr {
	if g.listener == nil {
		return nil
	}

	return g.listener.Addr()
}

// Serve runs the accept loop. It returns nil once ctx is done or a Destroy
// request has been answered; in the former case every open session is closed
// and the TA destroyed before returning.
func (g *Gateway) Serve(ctx context.Context) error {
	if g.listener == nil {
		return errors.New("gateway is not listening")
	}

	stop := make(chan struct{})
	defer close(stop)

	go func() {
		select {
		case <-ctx.Done():
			g.listener.Close()
		case <-stop:
		}
	}()

	for {
		conn, err := g.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				g.l.Info("shutting down", zap.Error(ctx.Err()))
				g.destroy()
				return nil
			}

			return errors.Wrap(err, "accepting connection")
		}

		if done := g.handleConn(ctx, conn); done {
			g.listener.Close()
			return nil
		}
	}
}

// handleConn serves the single request carried by conn. It reports whether the
// TA has been destroyed.
func (g *Gateway) handleConn(ctx context.Context, conn net.Conn) bool {
	defer conn.Close()

	g.l.Debug("received connection from client")

	req, err := protocol.ReadMessage(conn, g.cfg.Framing)
	if err != nil {
		g.l.Warn("cannot read request", zap.Error(err))
		return false
	}

	resp, done := g.dispatch(ctx, req)
	if resp == nil {
		g.l.Warn("unexpected message from client", zap.Stringer("kind", req.Kind()))
		return false
	}

	if err := protocol.WriteMessage(conn, g.cfg.Framing, resp); err != nil {
		g.l.Warn("cannot write response", zap.Stringer("kind", resp.Kind()), zap.Error(err))
	}

	return done
}

// callContext bounds a wait on a session worker by the configured reply timeout.
func (g *Gateway) callContext(parent context.Context) (context.Context, context.CancelFunc) {
	if g.cfg.ReplyTimeout > 0 {
		return context.WithTimeout(parent, g.cfg.ReplyTimeout)
	}

	return context.WithCancel(parent)
}

func (g *Gateway) teardownTimeout() time.Duration {
	if g.cfg.TeardownTimeout > 0 {
		return g.cfg.TeardownTimeout
	}

	return DefaultTeardownTimeout
}

// removeSocket unlinks the listening socket file, if still present.
func (g *Gateway) removeSocket() {
	path := g.cfg.SocketPath()
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		g.l.Warn("cannot remove socket", zap.String("socket", path), zap.Error(err))
	}
}

// destroy closes every open session and destroys the TA. A worker that does not
// answer within the teardown timeout is abandoned. It is a no-op the second
// time around.
func (g *Gateway) destroy() uint32 {
	if g.destroyed {
		return uint32(ta.BadState)
	}
	g.destroyed = true

	for _, id := range g.sessions.IDs() {
		w, _ := g.sessions.Lookup(id)

		ctx, cancel := context.WithTimeout(context.Background(), g.teardownTimeout())
		r, err := w.Close(ctx)
		cancel()

		if err != nil {
			g.l.Warn("cannot close session during teardown", zap.Uint32("session_id", id), zap.Error(err))
		} else {
			g.l.Info("session closed during teardown", zap.Uint32("session_id", id), zap.Stringer("status", ta.Code(r.Status)))
		}

		g.sessions.Remove(id)
	}

	err := ta.Guard(g.app.Destroy)
	if err != nil {
		g.l.Error("cannot destroy trusted application", zap.Error(err))
	} else {
		g.l.Info("trusted application destroyed")
	}

	return ta.StatusOf(err)
}
