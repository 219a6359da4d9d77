package usage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Kind classifies why a lookup failed.
type Kind string

const (
	// KindAuthorization means the caller lacks permission for the service.
	KindAuthorization Kind = "authorization"
	// KindTransient covers timeouts, throttling and connectivity faults.
	KindTransient Kind = "transient"
	// KindMalformedResponse means the API answered with an unexpected shape.
	KindMalformedResponse Kind = "malformed_response"
	// KindUnsupported means the service or operation is not available in the region.
	KindUnsupported Kind = "unsupported_operation"
	// KindCancelled means the scan was cancelled or timed out before the lookup finished.
	KindCancelled Kind = "cancelled"
	// KindUnknown covers everything that could not be classified.
	KindUnknown Kind = "unknown"
)

// Sentinels for errors.Is checks against a kind.
var (
	ErrAuthorization     = &Error{Kind: KindAuthorization}
	ErrTransient         = &Error{Kind: KindTransient}
	ErrMalformedResponse = &Error{Kind: KindMalformedResponse}
	ErrUnsupported       = &Error{Kind: KindUnsupported}
	ErrCancelled         = &Error{Kind: KindCancelled}
)

// Error is a classified lookup failure.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Kind == KindCancelled {
		return "cancelled"
	}
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches sentinels (an *Error without a cause) by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Err != nil {
		return false
	}
	return t.Kind == e.Kind
}

// Message returns the failure text without the kind prefix.
func (e *Error) Message() string {
	if e.Kind == KindCancelled || e.Err == nil {
		return string(e.Kind)
	}
	return e.Err.Error()
}

// MarshalJSON renders the error as {"kind": ..., "message": ...}.
func (e *Error) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Kind    Kind   `json:"kind"`
		Message string `json:"message"`
	}{e.Kind, e.Message()})
}

// MarshalYAML renders the error as a kind/message mapping.
func (e *Error) MarshalYAML() (interface{}, error) {
	return map[string]string{"kind": string(e.Kind), "message": e.Message()}, nil
}

// Wrap classifies err with the given kind. A nil err stays nil.
func Wrap(kind Kind, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}

// Authorization wraps err as an authorization failure.
func Authorization(err error) *Error { return Wrap(KindAuthorization, err) }

// Transient wraps err as a transient fault.
func Transient(err error) *Error { return Wrap(KindTransient, err) }

// Unsupported wraps err as an unsupported operation.
func Unsupported(err error) *Error { return Wrap(KindUnsupported, err) }

// Malformed reports an unexpected API response shape.
func Malformed(format string, args ...interface{}) *Error {
	return &Error{Kind: KindMalformedResponse, Err: fmt.Errorf(format, args...)}
}

// Cancelled marks a lookup that never completed because the scan ended.
func Cancelled(cause error) *Error {
	return &Error{Kind: KindCancelled, Err: cause}
}

// AsError returns err as a classified *Error. Already classified errors pass
// through; bare context errors map to cancelled and transient; anything else is unknown.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		return e
	}

	switch {
	case errors.Is(err, context.Canceled):
		return Cancelled(err)
	case errors.Is(err, context.DeadlineExceeded):
		return Transient(err)
	default:
		return Wrap(KindUnknown, err)
	}
}

// KindOf returns the kind of err: KindUnknown for unclassified errors and an
// empty Kind for a nil err.
func KindOf(err error) Kind {
	if e := AsError(err); e != nil {
		return e.Kind
	}
	return ""
}
