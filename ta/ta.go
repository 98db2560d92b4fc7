// Package ta defines the contract between the gateway and the Trusted
// Application it serves, along with the TEE status codes exchanged with clients.
package ta

import "github.com/wallera-computer/tagateway/protocol"

// SessionContext is the opaque per-session state produced by OpenSession.
// The gateway never inspects it, and only the session's worker ever touches it.
type SessionContext interface{}

// TrustedApplication is implemented by the service logic hosted behind the gateway.
// A single instance serves every session; per-session state lives in the
// SessionContext values it returns.
type TrustedApplication interface {
	// Create is called once before any session is opened.
	Create() error

	// OpenSession builds the state of a new session. params may be modified.
	OpenSession(params *protocol.Parameters) (SessionContext, error)

	// CloseSession releases the state of a session.
	CloseSession(ctx SessionContext) error

	// InvokeCommand runs cmdID against a session. Output and inout slots of
	// params are sent back to the client.
	InvokeCommand(cmdID uint32, params *protocol.Parameters, ctx SessionContext) error

	// Destroy is called once, after the last session is closed.
	Destroy() error
}

// Guard runs fn, turning a panic raised by the service logic into an error
// carrying TargetDead.
func Guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = Errorf(TargetDead, "panic: %v", r)
		}
	}()

	return fn()
}
