// Package smpperr defines the error taxonomy shared by the codec,
// session, client and server layers.
package smpperr

import (
	"errors"
	"fmt"

	"github.com/codcod/smppai/pdu"
)

// Kind identifies which branch of the taxonomy an error belongs to.
type Kind int

const (
	// KindProtocol covers malformed bytes, invalid enum values and
	// other wire-level violations that the codec rejects.
	KindProtocol Kind = iota
	// KindFrame covers command_length bounds violations and
	// truncated streams at the framing layer.
	KindFrame
	// KindInvalidState covers operations attempted in an
	// incompatible connection_state.
	KindInvalidState
	// KindBind covers a non-zero command_status on a response PDU,
	// bind_*_resp or otherwise.
	KindBind
	// KindTimeout covers response, bind or keep-alive deadlines
	// elapsing.
	KindTimeout
	// KindCancelled covers a waiter dropped by its caller.
	KindCancelled
	// KindConnection covers TCP failures at connect, read or write.
	KindConnection
	// KindAuthentication covers acceptor-side credential failures.
	KindAuthentication
	// KindCapacity covers a capacity limit being hit, such as a full
	// send window.
	KindCapacity
	// KindNoSuchPeer covers Server.DeliverSm targeting a system_id
	// with no bound, receive-capable session.
	KindNoSuchPeer
)

func (k Kind) String() string {
	switch k {
	case KindProtocol:
		return "protocol"
	case KindFrame:
		return "frame"
	case KindInvalidState:
		return "invalid_state"
	case KindBind:
		return "bind"
	case KindTimeout:
		return "timeout"
	case KindCancelled:
		return "cancelled"
	case KindConnection:
		return "connection"
	case KindAuthentication:
		return "authentication"
	case KindCapacity:
		return "capacity"
	case KindNoSuchPeer:
		return "no_such_peer"
	}
	return "unknown"
}

// Error implements the error and Temporary interfaces for every kind
// in the taxonomy. Temporary errors leave the session usable; the
// caller may retry the operation or issue another one.
type Error struct {
	Kind   Kind
	Msg    string
	Status pdu.Status
	Temp   bool
	Cause  error
}

func (e *Error) Error() string {
	if e.Status != 0 || e.Kind == KindBind {
		return fmt.Sprintf("smpp: %s: %s (status=0x%08X)", e.Kind, e.Msg, uint32(e.Status))
	}
	if e.Cause != nil {
		return fmt.Sprintf("smpp: %s: %s: %s", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("smpp: %s: %s", e.Kind, e.Msg)
}

// Temporary reports whether the session remains usable after this
// error. InvalidState, Timeout, Cancelled and NoSuchPeer errors are
// temporary; every other kind is not.
func (e *Error) Temporary() bool {
	return e.Temp
}

// Unwrap supports errors.Is/errors.As against Cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same Kind, so
// errors.Is(err, smpperr.Timeout(...)) style checks can use a
// zero-value sentinel.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

func newErr(kind Kind, temp bool, msg string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(msg, args...), Temp: temp}
}

// Protocol wraps a malformed-PDU condition. Always fatal to the
// session (Temp=false): the peer's framing can no longer be trusted.
func Protocol(cause error, msg string, args ...interface{}) *Error {
	e := newErr(KindProtocol, false, msg, args...)
	e.Cause = cause
	return e
}

// Frame wraps a command_length bound violation or truncated read.
// Always fatal to the session.
func Frame(cause error, msg string, args ...interface{}) *Error {
	e := newErr(KindFrame, false, msg, args...)
	e.Cause = cause
	return e
}

// InvalidState reports an operation attempted outside the states that
// permit it. Non-fatal: the session remains usable.
func InvalidState(msg string, args ...interface{}) *Error {
	return newErr(KindInvalidState, true, msg, args...)
}

// Bind reports a non-zero command_status on a response PDU. Session
// returns it for every rejected response, bind_*_resp or otherwise.
func Bind(status pdu.Status) *Error {
	e := newErr(KindBind, false, "bind rejected by peer")
	e.Status = status
	return e
}

// Timeout reports a response, bind or keep-alive deadline elapsing.
// Non-fatal except when produced by keep-alive expiry, which the
// caller tears the session down for separately.
func Timeout(msg string, args ...interface{}) *Error {
	return newErr(KindTimeout, true, msg, args...)
}

// Cancelled reports a waiter dropped by its caller's context.
func Cancelled() *Error {
	return newErr(KindCancelled, true, "request cancelled by caller")
}

// Connection wraps a TCP failure at connect, read or write. Always
// fatal to the session.
func Connection(cause error, msg string, args ...interface{}) *Error {
	e := newErr(KindConnection, false, msg, args...)
	e.Cause = cause
	return e
}

// Authentication reports an acceptor-side credential check failure;
// manifests on the wire as ESME_RINVPASWD.
func Authentication(msg string, args ...interface{}) *Error {
	return newErr(KindAuthentication, false, msg, args...)
}

// Capacity reports a capacity limit being hit; Session.Send returns it
// when its send window is full.
func Capacity(msg string, args ...interface{}) *Error {
	return newErr(KindCapacity, false, msg, args...)
}

// NoSuchPeer reports Server.DeliverSm targeting an unbound system_id.
func NoSuchPeer(systemID string) *Error {
	return newErr(KindNoSuchPeer, true, "no bound receive-capable session for system_id %q", systemID)
}
