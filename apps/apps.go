package apps

import (
	"errors"
	"fmt"

	"github.com/hsanjuan/go-nfctype4/apdu"
)

var (
	ErrAppNotSupported     = errors.New("app not supported")
	ErrCommandNotSupported = errors.New("command not supported")
)

// App represents an application, in charge of handling a given AppID and a set of commands.
// An App accepts a apdu.CAPDU packet in input, and returns an error (for log consumption),
// and a response for the host, as a byte slice.
// An App signals a failure to the host by returning a *CodeError.
type App interface {
	Name() string
	ID() byte
	Commands() (commandIDs []byte)
	Handle(command byte, data []byte) (response []byte, err error)
}

// CodeError carries the status word reported to the host along with the cause.
type CodeError struct {
	Code APDUCode
	Err  error
}

func (e *CodeError) Error() string {
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *CodeError) Unwrap() error {
	return e.Err
}

// Errorf returns a *CodeError reporting code.
func Errorf(code APDUCode, format string, args ...interface{}) error {
	return &CodeError{
		Code: code,
		Err:  fmt.Errorf(format, args...),
	}
}

type commandMapping struct {
	appID   byte
	command byte
}

// Handler keeps track of all the supported apps, and their commands.
type Handler struct {
	appMap        map[byte]App
	commandAppMap map[commandMapping]struct{}
}

func NewHandler() *Handler {
	return &Handler{
		appMap:        map[byte]App{},
		commandAppMap: map[commandMapping]struct{}{},
	}
}

func (h Handler) mappingExists(appID byte) bool {
	_, exists := h.appMap[appID]
	return exists
}

func (h Handler) commandAppMappingExists(appID, command byte) bool {
	_, exists := h.commandAppMap[commandMapping{
		appID:   appID,
		command: command,
	}]

	return exists
}

// Register registers apps into h.
// If an app was already registered, an error will be returned.
func (h *Handler) Register(apps ...App) error {
	for _, app := range apps {
		appID := app.ID()
		cmds := app.Commands()

		if h.mappingExists(appID) {
			return fmt.Errorf("mapping for %s already exists", app.Name())
		}

		h.appMap[appID] = app

		for _, cmd := range cmds {
			h.commandAppMap[commandMapping{
				appID:   appID,
				command: cmd,
			}] = struct{}{}
		}
	}

	return nil
}

// Handle routes packet to the appropriate app handler.
// It returns the response body, and an error which if present, should be logged.
func (h *Handler) Handle(packet apdu.CAPDU) ([]byte, error) {
	appID := packet.CLA
	command := packet.INS

	if !h.mappingExists(appID) {
		return nil, &CodeError{
			Code: APDUCLANotSupported,
			Err:  fmt.Errorf("%w: appID %v", ErrAppNotSupported, appID),
		}
	}

	if !h.commandAppMappingExists(appID, command) {
		return nil, &CodeError{
			Code: APDUINSNotSupported,
			Err:  fmt.Errorf("%w: command ID %v in app %v", ErrCommandNotSupported, command, appID),
		}
	}

	app := h.appMap[appID]

	return app.Handle(command, packet.Data)
}

// Exchange decodes a raw C-APDU, routes it and returns the raw R-APDU.
// The R-APDU is always valid, even when err is not nil.
func (h *Handler) Exchange(raw []byte) ([]byte, error) {
	var packet apdu.CAPDU
	if _, err := packet.Unmarshal(raw); err != nil {
		return PackageResponse(nil, APDUWrongLength), fmt.Errorf("cannot decode command, %w", err)
	}

	resp, err := h.Handle(packet)
	if err != nil {
		return PackageResponse(nil, CodeOf(err)), err
	}

	return PackageResponse(resp, APDUSuccess), nil
}

// CodeOf returns the status word reported for err.
func CodeOf(err error) APDUCode {
	if err == nil {
		return APDUSuccess
	}

	var ce *CodeError
	if errors.As(err, &ce) {
		return ce.Code
	}

	return APDUExecutionError
}

// PackageResponse builds an R-APDU out of data and code.
func PackageResponse(data []byte, code APDUCode) []byte {
	r := apdu.RAPDU{
		ResponseBody: data,
		SW1:          byte(code >> 8),
		SW2:          byte(code),
	}

	b, err := r.Marshal()
	if err != nil {
		return []byte{byte(APDUUnknown >> 8), byte(APDUUnknown & 0xff)}
	}

	return b
}
