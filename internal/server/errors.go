package server

import (
	"errors"
	"fmt"
)

type errorKind int

const (
	errKindValidation errorKind = iota
	errKindPermission
	errKindNotFound
	errKindCapacity
	errKindExternal
	errKindFatal
	errKindRoomClosed
)

// gameError is the single error type crossing the room session boundary.
// Validation, permission and not-found errors are expected traffic and are
// pushed to the acting client only; fatal errors tear the room down.
type gameError struct {
	kind    errorKind
	message string
	cause   error
}

func (e *gameError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

func (e *gameError) Unwrap() error { return e.cause }

func errValidation(format string, args ...any) error {
	return &gameError{kind: errKindValidation, message: fmt.Sprintf(format, args...)}
}

func errPermission(format string, args ...any) error {
	return &gameError{kind: errKindPermission, message: fmt.Sprintf(format, args...)}
}

func errNotFound(format string, args ...any) error {
	return &gameError{kind: errKindNotFound, message: fmt.Sprintf(format, args...)}
}

func errCapacity(format string, args ...any) error {
	return &gameError{kind: errKindCapacity, message: fmt.Sprintf(format, args...)}
}

func errExternal(message string, cause error) error {
	return &gameError{kind: errKindExternal, message: message, cause: cause}
}

func errFatal(format string, args ...any) error {
	return &gameError{kind: errKindFatal, message: fmt.Sprintf(format, args...)}
}

var errRoomClosed = &gameError{kind: errKindRoomClosed, message: "room has been closed"}

func kindOf(err error) (errorKind, bool) {
	var gerr *gameError
	if errors.As(err, &gerr) {
		return gerr.kind, true
	}
	return 0, false
}

func isFatal(err error) bool {
	kind, ok := kindOf(err)
	return ok && kind == errKindFatal
}

// userMessage is the text surfaced verbatim to clients. Unclassified errors
// stay generic so internals never leak onto the wire.
func userMessage(err error) string {
	var gerr *gameError
	if errors.As(err, &gerr) {
		return gerr.message
	}
	return "something went wrong"
}
