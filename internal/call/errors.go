package call

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a call could not be started or was terminated
type ErrorKind string

const (
	KindConfigurationMissing    ErrorKind = "configuration_missing"
	KindCredentialRequestFailed ErrorKind = "credential_request_failed"
	KindCredentialMissing       ErrorKind = "credential_missing"
	KindTransportStartFailed    ErrorKind = "transport_start_failed"
	KindTransportRuntimeError   ErrorKind = "transport_runtime_error"
)

var (
	// ErrAttemptInFlight is returned by Start when an earlier attempt has not settled yet
	ErrAttemptInFlight = errors.New("a call start attempt is already in flight")

	// ErrStaleAttempt is returned by Start when the attempt was superseded by a
	// stop, an ended event or an error before it completed
	ErrStaleAttempt = errors.New("call start attempt was superseded")

	// ErrClosed is returned once the controller has been closed
	ErrClosed = errors.New("call controller is closed")
)

// Error is the annotation attached to an idle session after a failure
type Error struct {
	Kind ErrorKind
	// Status is the HTTP status of a failed credential request, 0 when the
	// request never produced a response
	Status int
	// Message carries the transport supplied description for runtime errors
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Status != 0 && e.Err != nil:
		return fmt.Sprintf("%s (status %d): %v", e.Kind, e.Status, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("%s (status %d)", e.Kind, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by kind, so errors.Is(err, &Error{Kind: k}) works
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of a call error, or "" when err is not one
func KindOf(err error) ErrorKind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}
