package remote

import (
	"errors"
	"fmt"
)

// ErrAlreadyExists is returned by create operations when the resource is
// already there. The reconciler treats it as already satisfied.
var ErrAlreadyExists = errors.New("resource already exists")

// ErrorKind classifies adapter failures for the retry policy.
type ErrorKind string

const (
	// KindTransient failures (rate limits, timeouts, 5xx) are retry-eligible.
	KindTransient ErrorKind = "transient"
	// KindPermanent failures (auth, permission, not found, bad input) are not.
	KindPermanent ErrorKind = "permanent"
)

// AdapterError is a classified failure from a Client call.
type AdapterError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}

// Transient wraps err as a retry-eligible failure of op.
func Transient(op string, err error) error {
	return &AdapterError{Kind: KindTransient, Op: op, Err: err}
}

// Permanent wraps err as a non-retryable failure of op.
func Permanent(op string, err error) error {
	return &AdapterError{Kind: KindPermanent, Op: op, Err: err}
}

// IsTransient reports whether err is a retry-eligible adapter failure.
// Unclassified errors are treated as permanent.
func IsTransient(err error) bool {
	var ae *AdapterError
	if errors.As(err, &ae) {
		return ae.Kind == KindTransient
	}
	return false
}
