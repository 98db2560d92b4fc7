package gateway

import (
	"context"
	"net"

	"github.com/pkg/errors"

	"github.com/wallera-computer/tagateway/protocol"
)

// Register announces uuid to the directory listening on directoryPath.
// The message is sent unframed and no answer is expected.
func Register(ctx context.Context, directoryPath, uuid string) error {
	var d net.Dialer

	conn, err := d.DialContext(ctx, "unix", directoryPath)
	if err != nil {
		return errors.Wrapf(err, "cannot reach directory at %s", directoryPath)
	}
	defer conn.Close()

	if err := protocol.WriteMessage(conn, protocol.ReadToEOF, &protocol.Register{UUID: uuid}); err != nil {
		return errors.Wrap(err, "cannot register with directory")
	}

	return nil
}
