// Package fault defines the failure taxonomy shared by the framing, rpc, backend
// and router layers.
//
// Transport faults (Framing, ChannelClosed, Timeout) are session fatal: the
// supervisor discards the session that produced them. RemoteError is domain
// information carried by a well formed response. Unreachable describes a downstream
// HTTP call that could not be completed.
package fault

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind string

const (
	Framing         Kind = "Framing"
	ChannelClosed   Kind = "ChannelClosed"
	Timeout         Kind = "Timeout"
	HandshakeFailed Kind = "HandshakeFailed"
	RemoteError     Kind = "RemoteError"
	Unreachable     Kind = "Unreachable"
	InvalidArgument Kind = "InvalidArgument"
	Internal        Kind = "Internal"
)

// Error is a classified failure.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Op == "" {
		return fmt.Sprintf("%s: %s", e.Kind, msg)
	}
	return fmt.Sprintf("%s %s: %s", e.Op, e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Newf creates a classified error with a formatted message.
func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err. A nil err yields nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the outermost kind found in err's chain. Context deadline and
// cancellation errors are reported as Timeout; anything else unclassified is
// Internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var fErr *Error
	if errors.As(err, &fErr) {
		return fErr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return Timeout
	}
	return Internal
}

// Is reports whether any error in err's chain has the given kind.
func Is(err error, kind Kind) bool {
	for err != nil {
		var fErr *Error
		if !errors.As(err, &fErr) {
			return false
		}
		if fErr.Kind == kind {
			return true
		}
		err = fErr.Err
	}
	return false
}

// SessionFatal reports whether err means the session that produced it can no
// longer be trusted.
func SessionFatal(err error) bool {
	switch KindOf(err) {
	case Framing, ChannelClosed, Timeout:
		return true
	}
	return false
}

// Advances reports whether a fallback chain should try its next tier after err.
// RemoteError and InvalidArgument are final answers.
func Advances(err error) bool {
	switch KindOf(err) {
	case RemoteError, InvalidArgument:
		return false
	}
	return true
}
