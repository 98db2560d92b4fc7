package ta

import (
	"errors"
	"fmt"
)

// Code is a TEE status code, as carried in every response.
type Code uint32

const (
	Success        Code = 0x00000000 // Success
	Generic        Code = 0xFFFF0000 // Non-specific cause
	AccessDenied   Code = 0xFFFF0001 // Access privileges are not sufficient
	Cancel         Code = 0xFFFF0002 // The operation was cancelled
	BadFormat      Code = 0xFFFF0005 // Input data was of invalid format
	BadParameters  Code = 0xFFFF0006 // Input parameters were invalid
	BadState       Code = 0xFFFF0007 // Operation is not valid in the current state
	ItemNotFound   Code = 0xFFFF0008 // The requested data item is not found
	NotImplemented Code = 0xFFFF0009 // The requested operation should exist but is not yet implemented
	NotSupported   Code = 0xFFFF000A // The requested operation is valid but is not supported
	OutOfMemory    Code = 0xFFFF000C // System ran out of resources
	Busy           Code = 0xFFFF000D // The system is busy working on something else
	Communication  Code = 0xFFFF000E // Communication with a remote party failed
	ShortBuffer    Code = 0xFFFF0010 // The supplied buffer is too short for the generated output
	Overflow       Code = 0xFFFF300F // An arithmetic or identifier space overflowed
	TargetDead     Code = 0xFFFF3024 // The trusted application has panicked
)

var codeNames = map[Code]string{
	Success:        "success",
	Generic:        "generic error",
	AccessDenied:   "access denied",
	Cancel:         "cancelled",
	BadFormat:      "bad format",
	BadParameters:  "bad parameters",
	BadState:       "bad state",
	ItemNotFound:   "item not found",
	NotImplemented: "not implemented",
	NotSupported:   "not supported",
	OutOfMemory:    "out of memory",
	Busy:           "busy",
	Communication:  "communication error",
	ShortBuffer:    "short buffer",
	Overflow:       "overflow",
	TargetDead:     "target dead",
}

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}

	return fmt.Sprintf("status %#08x", uint32(c))
}

// Error is an error carrying a TEE status code.
type Error struct {
	Code Code
	Msg  string
	Err  error
}

// Errorf returns an *Error with the given code and formatted message.
func Errorf(code Code, format string, args ...interface{}) *Error {
	return &Error{
		Code: code,
		Msg:  fmt.Sprintf(format, args...),
	}
}

// Wrap returns an *Error with the given code, wrapping err.
func Wrap(code Code, err error) *Error {
	return &Error{
		Code: code,
		Err:  err,
	}
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s, %v", e.Code, e.Msg, e.Err)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Code, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	default:
		return e.Code.String()
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StatusOf maps err to the status code placed in a response.
// A nil error is Success, an *Error anywhere in the chain yields its code, and
// anything else is Generic.
func StatusOf(err error) uint32 {
	if err == nil {
		return uint32(Success)
	}

	var taErr *Error
	if errors.As(err, &taErr) {
		return uint32(taErr.Code)
	}

	return uint32(Generic)
}
