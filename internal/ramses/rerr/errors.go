// Package rerr defines the error kinds of spec.md §7 as sentinel-wrapped
// values, so callers can use errors.Is/errors.As instead of string matching.
package rerr

import "fmt"

// Kind identifies one of the fixed error kinds of spec.md §7.
type Kind string

const (
	KindInvalidAddrSet   Kind = "InvalidAddrSet"
	KindInvalidPayload   Kind = "InvalidPayload"
	KindInvalidPacket    Kind = "InvalidPacket"
	KindCorruptState     Kind = "CorruptState"
	KindExpiredCallback  Kind = "ExpiredCallback"
	KindTransportError   Kind = "TransportError"
	KindUnsupportedCode  Kind = "UnsupportedCode"
)

// Error wraps one of the fixed kinds with a message and, optionally, a cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports equality by Kind, so errors.Is(err, rerr.InvalidAddrSet) works
// against any *Error sharing that kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func newf(k Kind, format string, args ...any) *Error {
	return &Error{Kind: k, Msg: fmt.Sprintf(format, args...)}
}

// Constructors, one per kind.

func InvalidAddrSet(format string, args ...any) *Error { return newf(KindInvalidAddrSet, format, args...) }
func InvalidPayload(format string, args ...any) *Error { return newf(KindInvalidPayload, format, args...) }
func InvalidPacket(format string, args ...any) *Error  { return newf(KindInvalidPacket, format, args...) }
func CorruptState(format string, args ...any) *Error   { return newf(KindCorruptState, format, args...) }
func ExpiredCallback(format string, args ...any) *Error {
	return newf(KindExpiredCallback, format, args...)
}
func TransportError(format string, args ...any) *Error { return newf(KindTransportError, format, args...) }
func UnsupportedCode(format string, args ...any) *Error { return newf(KindUnsupportedCode, format, args...) }

// Sentinels usable with errors.Is(err, rerr.ErrInvalidAddrSet) etc, matching
// purely on Kind (message/cause are ignored by Is above).
var (
	ErrInvalidAddrSet  = &Error{Kind: KindInvalidAddrSet}
	ErrInvalidPayload  = &Error{Kind: KindInvalidPayload}
	ErrInvalidPacket   = &Error{Kind: KindInvalidPacket}
	ErrCorruptState    = &Error{Kind: KindCorruptState}
	ErrExpiredCallback = &Error{Kind: KindExpiredCallback}
	ErrTransportError  = &Error{Kind: KindTransportError}
)
