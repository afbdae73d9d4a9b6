package device

import (
	"errors"
	"fmt"
)

// ErrorKind is the closed set of failure categories an operation can report.
// The kind travels over the wire unchanged, so a caller sees the same kind
// whether it talks to a local device or to a remote one.
type ErrorKind string

const (
	KindValue            ErrorKind = "ValueError"       // argument outside the operation's domain
	KindIndex            ErrorKind = "IndexError"       // table index out of range
	KindType             ErrorKind = "TypeError"        // wrong argument count, name or shape
	KindUnknownOperation ErrorKind = "UnknownOperation" // operation not declared by the device
	KindRateLimited      ErrorKind = "RateLimited"      // server refused the call to protect the hardware
	KindInternal         ErrorKind = "InternalError"    // anything else, including recovered panics
)

var knownKinds = map[ErrorKind]struct{}{
	KindValue:            {},
	KindIndex:            {},
	KindType:             {},
	KindUnknownOperation: {},
	KindRateLimited:      {},
	KindInternal:         {},
}

// ParseKind maps a wire kind back to the closed set. Unrecognized kinds become KindInternal.
func ParseKind(s string) ErrorKind {
	k := ErrorKind(s)
	if _, ok := knownKinds[k]; ok {
		return k
	}
	return KindInternal
}

// Error is the single error type device operations return.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is reports a match when target is an *Error of the same kind with an empty
// message, which is how the Err* sentinels below are shaped.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

// Sentinels for errors.Is.
var (
	ErrValue            = &Error{Kind: KindValue}
	ErrIndex            = &Error{Kind: KindIndex}
	ErrType             = &Error{Kind: KindType}
	ErrUnknownOperation = &Error{Kind: KindUnknownOperation}
	ErrRateLimited      = &Error{Kind: KindRateLimited}
	ErrInternal         = &Error{Kind: KindInternal}
)

// Errorf builds an *Error of the given kind.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf classifies any error. Errors that are not (and do not wrap) an *Error
// are reported as KindInternal.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}
