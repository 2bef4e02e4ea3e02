package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures reported by the discussion service.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindNotFound   ErrorKind = "not_found"
	KindGone       ErrorKind = "gone"
	KindConflict   ErrorKind = "conflict"
	KindForbidden  ErrorKind = "forbidden"
	KindTransport  ErrorKind = "transport"
	KindServer     ErrorKind = "server"
)

// RemoteError is a classified service failure.
type RemoteError struct {
	Kind   ErrorKind
	Status int
	Detail string
	Err    error
}

func (e *RemoteError) Error() string {
	detail := e.Detail
	if detail == "" && e.Err != nil {
		detail = e.Err.Error()
	}
	if e.Status > 0 {
		return fmt.Sprintf("HTTP %d: %s", e.Status, detail)
	}
	return detail
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of a classified failure. Unclassified errors are
// treated as transport failures.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var remote *RemoteError
	if errors.As(err, &remote) {
		return remote.Kind
	}
	return KindTransport
}

// IsSessionGone reports whether err means the server no longer knows the session.
func IsSessionGone(err error) bool {
	kind := KindOf(err)
	return kind == KindNotFound || kind == KindGone
}

// ValidationError rejects bad start parameters before any state change.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}
