package player

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a control channel failure.
type ErrorKind string

const (
	// KindTimeout means the player did not answer within the op deadline.
	KindTimeout ErrorKind = "timeout"

	// KindChannelClosed means the control socket could not be reached,
	// typically because the player process died or is restarting.
	KindChannelClosed ErrorKind = "channel-closed"

	// KindProtocol means the player answered with something the channel
	// could not interpret, or rejected the command outright.
	KindProtocol ErrorKind = "protocol-error"
)

// Error is a typed control channel failure.
type Error struct {
	Kind  ErrorKind
	Op    string
	cause error
}

func (e *Error) Error() string {
	if e.cause == nil {
		return fmt.Sprintf("player: %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("player: %s: %s: %s", e.Op, e.Kind, e.cause)
}

func (e *Error) Unwrap() error {
	return e.cause
}

func newError(kind ErrorKind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, cause: cause}
}

// IsTimeout reports whether err is a channel timeout.
func IsTimeout(err error) bool {
	return kindOf(err) == KindTimeout
}

// IsChannelClosed reports whether err means the channel is unreachable.
func IsChannelClosed(err error) bool {
	return kindOf(err) == KindChannelClosed
}

// IsProtocol reports whether err is a protocol-level failure.
func IsProtocol(err error) bool {
	return kindOf(err) == KindProtocol
}

func kindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
