package github

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	gh "github.com/google/go-github/v69/github"

	"github.com/felixgeelhaar/orgsync/pkg/domain/remote"
)

// classify wraps a go-github error as a transient or permanent adapter error.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var rateErr *gh.RateLimitError
	if errors.As(err, &rateErr) {
		return remote.Transient(op, err)
	}
	var abuseErr *gh.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return remote.Transient(op, err)
	}

	var respErr *gh.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		code := respErr.Response.StatusCode
		switch {
		case code == http.StatusUnprocessableEntity && alreadyExists(respErr):
			return remote.Permanent(op, fmt.Errorf("%w: %s", remote.ErrAlreadyExists, respErr.Message))
		case code >= 500, code == http.StatusRequestTimeout, code == http.StatusTooManyRequests:
			return remote.Transient(op, err)
		default:
			return remote.Permanent(op, err)
		}
	}

	if errors.Is(err, context.Canceled) {
		return remote.Permanent(op, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return remote.Transient(op, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return remote.Transient(op, err)
	}

	// Anything else never reached the API (bad input, decoding).
	return remote.Permanent(op, err)
}

func alreadyExists(e *gh.ErrorResponse) bool {
	if strings.Contains(strings.ToLower(e.Message), "already exists") {
		return true
	}
	for _, detail := range e.Errors {
		if detail.Code == "already_exists" || strings.Contains(strings.ToLower(detail.Message), "already exists") {
			return true
		}
	}
	return false
}

func isNotFound(err error) bool {
	var respErr *gh.ErrorResponse
	return errors.As(err, &respErr) && respErr.Response != nil && respErr.Response.StatusCode == http.StatusNotFound
}
