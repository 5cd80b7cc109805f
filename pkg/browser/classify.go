package browser

import (
	"context"
	"errors"
	"strings"

	"github.com/entrhq/scout/pkg/types"
)

// networkMarkers are substrings of Chromium network error codes that mean the
// host could not be reached at all.
var networkMarkers = []string{
	"net::ERR_NAME_NOT_RESOLVED",
	"net::ERR_NAME_RESOLUTION_FAILED",
	"net::ERR_CONNECTION_",
	"net::ERR_ADDRESS_UNREACHABLE",
	"net::ERR_INTERNET_DISCONNECTED",
	"net::ERR_NETWORK_CHANGED",
	"net::ERR_TUNNEL_CONNECTION_FAILED",
	"net::ERR_SSL_",
	"net::ERR_CERT_",
	"net::ERR_EMPTY_RESPONSE",
	"net::ERR_TIMED_OUT",
	"NS_ERROR_UNKNOWN_HOST",
	"NS_ERROR_CONNECTION_REFUSED",
}

// IsNetworkError reports whether err looks like a DNS or connection failure.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, m := range networkMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// ClassifyNavigation maps a driver error from a navigation or wait into the
// scout error taxonomy. Caller cancellation is returned unchanged.
func ClassifyNavigation(op, url string, err error) error {
	if err == nil {
		return nil
	}

	var typed *types.Error
	if errors.As(err, &typed) {
		return types.WithOp(err, op)
	}

	switch {
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, ErrDriverTimeout):
		return types.NewTimeoutError(op, url, err)
	default:
		// Anything else the driver reports for a navigation is a failure
		// to load the page.
		return types.NewNavigationError(op, url, err)
	}
}

// ClassifyRead maps a driver error from a DOM read. Deadline expiry becomes a
// TimeoutError; other errors are returned as is.
func ClassifyRead(op, url string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrDriverTimeout) {
		return types.NewTimeoutError(op, url, err)
	}
	return err
}
