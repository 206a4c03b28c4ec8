package mtmsg

import (
	"errors"
	"fmt"

	"github.com/ehrlich-b/mtmsg/internal/registry"
)

// Code is the closed set of error kinds this package returns, each
// wrapped in an *Error. Errors from decoding a stored frame and from
// growing a Writer's or Reader's own staging buffer are returned
// unwrapped.
type Code string

const (
	CodeUnknownObject    Code = "unknown object"
	CodeAmbiguous        Code = "ambiguous name"
	CodeObjectClosed     Code = "object closed"
	CodeOperationAborted Code = "operation aborted"
	CodeMessageSize      Code = "message exceeds buffer capacity"
	CodeOutOfMemory      Code = "out of memory"
	CodeNoBuffers        Code = "listener has no attached buffers"
	CodeUnsupportedType  Code = "unsupported value type"
	CodeHasNotifier      Code = "notifier already registered"
	CodeFull             Code = "buffer full"
)

// Error is the single structured error type mtmsg operations return
// for every Code: an operation name, a closed error Code, a human-readable
// message, and an optional wrapped cause. ObjID/ObjName carry the id
// and name of the Buffer or Listener the failing call targeted (0 and
// "" when not applicable, e.g. a registry lookup that found nothing).
type Error struct {
	Op      string // method or function that failed, e.g. "addMsg", "nextMsg"
	ObjID   uint64 // 0 if not applicable
	ObjName string // "" if not applicable
	Code    Code
	Msg     string
	Inner   error
}

func (e *Error) Error() string {
	var parts []string
	if e.Op != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Op))
	}
	if e.ObjID != 0 {
		parts = append(parts, fmt.Sprintf("id=%d", e.ObjID))
	}
	if e.ObjName != "" {
		parts = append(parts, fmt.Sprintf("name=%s", e.ObjName))
	}

	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}

	if len(parts) > 0 {
		return fmt.Sprintf("mtmsg: %s (%s)", msg, parts[0])
	}
	return fmt.Sprintf("mtmsg: %s", msg)
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *Error) Unwrap() error { return e.Inner }

// Is lets errors.Is(err, &Error{Code: CodeFull}) match any *Error
// with the same Code, regardless of Op/ObjID/Msg.
func (e *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == te.Code
}

// newErr builds a bare *Error with no object context.
func newErr(op string, code Code, msg string) *Error {
	return &Error{Op: op, Code: code, Msg: msg}
}

// newObjErr builds an *Error carrying the failing object's id/name.
func newObjErr(op string, id uint64, name string, code Code, msg string) *Error {
	return &Error{Op: op, ObjID: id, ObjName: name, Code: code, Msg: msg}
}

// wrapRegistryErr maps a registry-package sentinel error onto the
// root package's closed Code set, so callers never see an
// internal/registry error type directly.
func wrapRegistryErr(op string, err error) *Error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, registry.ErrUnknownObject):
		return newErr(op, CodeUnknownObject, "no object with that name or id")
	case errors.Is(err, registry.ErrAmbiguous):
		return newErr(op, CodeAmbiguous, "more than one object shares that name")
	default:
		return newErr(op, CodeUnknownObject, err.Error())
	}
}

// IsCode reports whether err is an *Error with the given Code.
func IsCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
