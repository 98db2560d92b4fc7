package directory

import (
	"context"
	"net"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/wallera-computer/tagateway/protocol"
)

// Server accepts registrations on the well-known directory socket.
type Server struct {
	store     *Store
	socketDir string
	l         *zap.Logger
}

// NewServer returns a Server recording registrations in store. TAs are
// expected to listen under socketDir.
func NewServer(store *Store, socketDir string, l *zap.Logger) *Server {
	return &Server{
		store:     store,
		socketDir: socketDir,
		l:         l,
	}
}

// Listen binds path, replacing a stale socket file.
func Listen(path string) (net.Listener, error) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "removing stale socket %s", path)
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, errors.Wrapf(err, "listening on %s", path)
	}

	return ln, nil
}

// Serve handles registrations on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	stop := make(chan struct{})
	defer close(stop)

	go func() {
		select {
		case <-ctx.Done():
			ln.Close()
		case <-stop:
		}
	}()

	s.l.Info("directory listening", zap.Stringer("socket", ln.Addr()))

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			return errors.Wrap(err, "accepting registration")
		}

		if err := s.handle(conn); err != nil {
			s.l.Warn("rejected registration", zap.Error(err))
		}
	}
}

func (s *Server) handle(conn net.Conn) error {
	defer conn.Close()

	msg, err := protocol.ReadMessage(conn, protocol.ReadToEOF)
	if err != nil {
		return err
	}

	reg, ok := msg.(*protocol.Register)
	if !ok {
		return errors.Errorf("expected %s, got %s", protocol.KindRegister, msg.Kind())
	}

	return s.Register(reg.UUID)
}

// Register records the TA identified by id.
func (s *Server) Register(id string) error {
	u, err := uuid.Parse(id)
	if err != nil {
		return errors.Wrapf(err, "invalid uuid %q", id)
	}

	// the gateway names its socket after the uuid exactly as announced
	path := filepath.Join(s.socketDir, id+".sock")
	if err := s.store.Put(u.String(), path); err != nil {
		return errors.Wrapf(err, "storing %s", u)
	}

	s.l.Info("registered trusted application", zap.Stringer("uuid", u), zap.String("socket", path))

	return nil
}

// Lookup returns the socket path of a registered TA.
func (s *Server) Lookup(id string) (string, error) {
	u, err := uuid.Parse(id)
	if err != nil {
		return "", errors.Wrapf(err, "invalid uuid %q", id)
	}

	return s.store.Lookup(u.String())
}
