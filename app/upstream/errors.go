package upstream

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindRateLimited Kind = "rate_limited"
	KindForbidden   Kind = "forbidden"
	KindServerError Kind = "server_error"
	KindClientError Kind = "client_error"
	KindTimeout     Kind = "timeout"
	KindNetwork     Kind = "network"
	KindDecode      Kind = "decode"
)

// Error is the classified failure of a single upstream call.
type Error struct {
	Kind     Kind
	Status   int
	Endpoint string
	Err      error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("upstream %s %s: HTTP %d", e.Endpoint, e.Kind, e.Status)
	}
	if e.Err != nil {
		return fmt.Sprintf("upstream %s %s: %v", e.Endpoint, e.Kind, e.Err)
	}
	return fmt.Sprintf("upstream %s %s", e.Endpoint, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Rejected reports throttling or authorization rejection (HTTP 429 / 403).
func (e *Error) Rejected() bool {
	return e.Kind == KindRateLimited || e.Kind == KindForbidden
}

// KindOf returns the classification of err, or "" when err is not an upstream error.
func KindOf(err error) Kind {
	var upErr *Error
	if errors.As(err, &upErr) {
		return upErr.Kind
	}
	return ""
}

func IsRejected(err error) bool {
	var upErr *Error
	return errors.As(err, &upErr) && upErr.Rejected()
}
