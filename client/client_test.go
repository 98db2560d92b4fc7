package client

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wallera-computer/tagateway/protocol"
)

// serveOnce answers the first request on a fresh socket with resp and hands
// the decoded request back.
func serveOnce(t *testing.T, framing protocol.Framing, resp protocol.Message) (string, <-chan protocol.Message) {
	t.Helper()

	dir, err := os.MkdirTemp("", "tacl")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	path := filepath.Join(dir, "ta.sock")
	ln, err := net.Listen("unix", path)
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	got := make(chan protocol.Message, 1)

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		req, err := protocol.ReadMessage(conn, framing)
		if err != nil {
			close(got)
			return
		}
		got <- req

		_ = protocol.WriteMessage(conn, framing, resp)
	}()

	return path, got
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestClient_OpenSession(t *testing.T) {
	for _, framing := range []protocol.Framing{protocol.LengthPrefixed, protocol.ReadToEOF} {
		t.Run(framing.String(), func(t *testing.T) {
			path, got := serveOnce(t, framing, &protocol.OpenSessionResult{SessionID: 5})

			params := protocol.Parameters{protocol.NewValue(protocol.ParamValueInput, 1, 2)}
			r, err := New(path, framing).OpenSession(testContext(t), "some-uuid", protocol.LoginUser, params)
			require.NoError(t, err)
			require.Equal(t, uint32(5), r.SessionID)

			require.Equal(t, &protocol.OpenSession{
				UUID:             "some-uuid",
				ConnectionMethod: protocol.LoginUser,
				Params:           params,
			}, <-got)
		})
	}
}

func TestClient_UnexpectedResponse(t *testing.T) {
	path, _ := serveOnce(t, protocol.LengthPrefixed, &protocol.CloseSessionResult{SessionID: 1})

	_, err := New(path, protocol.LengthPrefixed).InvokeCommand(testContext(t), 1, 2, protocol.Parameters{})
	require.ErrorIs(t, err, ErrUnexpectedResponse)
}

func TestClient_NoGateway(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing.sock"), protocol.LengthPrefixed).Destroy(testContext(t))
	require.Error(t, err)
}
