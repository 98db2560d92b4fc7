// Package protocol implements the binary wire protocol spoken between client
// applications, the TA gateway and the TA directory.
//
// Every message is a member of a closed set, modeled by the sealed Message
// interface. Messages are encoded as a single protobuf field whose number is the
// message Kind, written with protowire so that no generated code is needed.
package protocol

// Kind identifies a message variant on the wire.
type Kind uint32

const (
	KindOpenSession         Kind = 1
	KindCloseSession        Kind = 2
	KindInvokeCommand       Kind = 3
	KindRequestCancellation Kind = 4
	KindDestroy             Kind = 5

	KindOpenSessionResult         Kind = 16
	KindCloseSessionResult        Kind = 17
	KindInvokeCommandResult       Kind = 18
	KindRequestCancellationResult Kind = 19
	KindDestroyResult             Kind = 20

	KindRegister Kind = 32
)

func (k Kind) String() string {
	switch k {
	case KindOpenSession:
		return "OpenSession"
	case KindCloseSession:
		return "CloseSession"
	case KindInvokeCommand:
		return "InvokeCommand"
	case KindRequestCancellation:
		return "RequestCancellation"
	case KindDestroy:
		return "Destroy"
	case KindOpenSessionResult:
		return "OpenSessionResult"
	case KindCloseSessionResult:
		return "CloseSessionResult"
	case KindInvokeCommandResult:
		return "InvokeCommandResult"
	case KindRequestCancellationResult:
		return "RequestCancellationResult"
	case KindDestroyResult:
		return "DestroyResult"
	case KindRegister:
		return "Register"
	default:
		return "Unknown"
	}
}

// Message is implemented by every protocol message.
type Message interface {
	Kind() Kind
	sealed()
}

// Connection methods a client may request a session with.
const (
	LoginPublic           uint32 = 0
	LoginUser             uint32 = 1
	LoginGroup            uint32 = 2
	LoginApplication      uint32 = 4
	LoginUserApplication  uint32 = 5
	LoginGroupApplication uint32 = 6
)

// ValidConnectionMethod reports whether m is a known login method.
func ValidConnectionMethod(m uint32) bool {
	switch m {
	case LoginPublic, LoginUser, LoginGroup, LoginApplication, LoginUserApplication, LoginGroupApplication:
		return true
	default:
		return false
	}
}

// OpenSession asks the TA identified by UUID for a new session.
type OpenSession struct {
	UUID             string
	ConnectionMethod uint32
	Params           Parameters
}

// CloseSession terminates a session.
type CloseSession struct {
	SessionID uint32
}

// InvokeCommand runs CommandID against a session.
type InvokeCommand struct {
	SessionID uint32
	CommandID uint32
	Params    Parameters
}

// RequestCancellation asks to cancel the pending operation of a session.
type RequestCancellation struct {
	SessionID uint32
}

// Destroy tears down the TA instance.
type Destroy struct{}

// OpenSessionResult carries the status of OpenSession and, on success, the new session id.
type OpenSessionResult struct {
	Status    uint32
	SessionID uint32
}

// CloseSessionResult answers CloseSession.
type CloseSessionResult struct {
	Status    uint32
	SessionID uint32
}

// InvokeCommandResult answers InvokeCommand with the parameters as left by the TA.
type InvokeCommandResult struct {
	Status    uint32
	SessionID uint32
	CommandID uint32
	Params    Parameters
}

// RequestCancellationResult answers RequestCancellation.
type RequestCancellationResult struct {
	Status    uint32
	SessionID uint32
}

// DestroyResult reports the status of the TA's Destroy entry point.
type DestroyResult struct {
	Status uint32
}

// Register announces a TA to the directory.
type Register struct {
	UUID string
}

func (*OpenSession) Kind() Kind { return KindOpenSession }
func (*CloseSession) Kind() Kind { return KindCloseSession }
func (*InvokeCommand) Kind() Kind { return KindInvokeCommand }
func (*RequestCancellation) Kind() Kind { return KindRequestCancellation }
func (*Destroy) Kind() Kind { return KindDestroy }
func (*OpenSessionResult) Kind() Kind { return KindOpenSessionResult }
func (*CloseSessionResult) Kind() Kind { return KindCloseSessionResult }
func (*InvokeCommandResult) Kind() Kind { return KindInvokeCommandResult }
func (*RequestCancellationResult) Kind() Kind { return KindRequestCancellationResult }
func (*DestroyResult) Kind() Kind { return KindDestroyResult }
func (*Register) Kind() Kind { return KindRegister }

func (*OpenSession) sealed() {}
func (*CloseSession) sealed() {}
func (*InvokeCommand) sealed() {}
func (*RequestCancellation) sealed() {}
func (*Destroy) sealed() {}
func (*OpenSessionResult) sealed() {}
func (*CloseSessionResult) sealed() {}
func (*InvokeCommandResult) sealed() {}
func (*RequestCancellationResult) sealed() {}
func (*DestroyResult) sealed() {}
func (*Register) sealed() {}
