// Package client is the client application side of the gateway protocol.
package client

import (
	"context"
	"net"

	"github.com/pkg/errors"

	"github.com/wallera-computer/tagateway/protocol"
)

// ErrUnexpectedResponse is returned when the gateway answers with a message of
// the wrong kind.
var ErrUnexpectedResponse = errors.New("unexpected response")

// Client issues requests to a single TA gateway. Every request uses its own
// connection.
type Client struct {
	path    string
	framing protocol.Framing
}

// New returns a Client talking to the gateway listening on path.
func New(path string, framing protocol.Framing) *Client {
	return &Client{
		path:    path,
		framing: framing,
	}
}

// RoundTrip sends req on a fresh connection and returns the gateway's response.
func (c *Client) RoundTrip(ctx context.Context, req protocol.Message) (protocol.Message, error) {
	var d net.Dialer

	conn, err := d.DialContext(ctx, "unix", c.path)
	if err != nil {
		return nil, errors.Wrapf(err, "dialing %s", c.path)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return nil, errors.Wrap(err, "setting deadline")
		}
	}

	if err := protocol.WriteMessage(conn, c.framing, req); err != nil {
		return nil, errors.Wrapf(err, "sending %s", req.Kind())
	}

	if c.framing == protocol.ReadToEOF {
		uc, ok := conn.(*net.UnixConn)
		if !ok {
			return nil, errors.New("read-to-EOF framing needs a unix connection")
		}

		if err := uc.CloseWrite(); err != nil {
			return nil, errors.Wrap(err, "half-closing connection")
		}
	}

	resp, err := protocol.ReadMessage(conn, c.framing)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s response", req.Kind())
	}

	return resp, nil
}

// OpenSession opens a session on the TA identified by uuid.
func (c *Client) OpenSession(ctx context.Context, uuid string, method uint32, params protocol.Parameters) (*protocol.OpenSessionResult, error) {
	resp, err := c.RoundTrip(ctx, &protocol.OpenSession{
		UUID:             uuid,
		ConnectionMethod: method,
		Params:           params,
	})
	if err != nil {
		return nil, err
	}

	r, ok := resp.(*protocol.OpenSessionResult)
	if !ok {
		return nil, unexpected(resp)
	}

	return r, nil
}

// InvokeCommand runs cmdID on session sessionID.
func (c *Client) InvokeCommand(ctx context.Context, sessionID, cmdID uint32, params protocol.Parameters) (*protocol.InvokeCommandResult, error) {
	resp, err := c.RoundTrip(ctx, &protocol.InvokeCommand{
		SessionID: sessionID,
		CommandID: cmdID,
		Params:    params,
	})
	if err != nil {
		return nil, err
	}

	r, ok := resp.(*protocol.InvokeCommandResult)
	if !ok {
		return nil, unexpected(resp)
	}

	return r, nil
}

// CloseSession closes session sessionID.
func (c *Client) CloseSession(ctx context.Context, sessionID uint32) (*protocol.CloseSessionResult, error) {
	resp, err := c.RoundTrip(ctx, &protocol.CloseSession{SessionID: sessionID})
	if err != nil {
		return nil, err
	}

	r, ok := resp.(*protocol.CloseSessionResult)
	if !ok {
		return nil, unexpected(resp)
	}

	return r, nil
}

// RequestCancellation asks the gateway to cancel the pending operation of sessionID.
func (c *Client) RequestCancellation(ctx context.Context, sessionID uint32) (*protocol.RequestCancellationResult, error) {
	resp, err := c.RoundTrip(ctx, &protocol.RequestCancellation{SessionID: sessionID})
	if err != nil {
		return nil, err
	}

	r, ok := resp.(*protocol.RequestCancellationResult)
	if !ok {
		return nil, unexpected(resp)
	}

	return r, nil
}

// Destroy tears the TA down. The gateway stops serving afterwards.
func (c *Client) Destroy(ctx context.Context) (*protocol.DestroyResult, error) {
	resp, err := c.RoundTrip(ctx, &protocol.Destroy{})
	if err != nil {
		return nil, err
	}

	r, ok := resp.(*protocol.DestroyResult)
	if !ok {
		return nil, unexpected(resp)
	}

	return r, nil
}

func unexpected(m protocol.Message) error {
	return errors.Wrapf(ErrUnexpectedResponse, "got %s", m.Kind())
}
