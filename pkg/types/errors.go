package types

import (
	"errors"
	"fmt"
)

// ErrorKind classifies engine failures so callers can tell retryable
// failures apart from fatal ones.
type ErrorKind string

const (
	KindEnvironment ErrorKind = "environment" // KindEnvironment indicates a missing or broken browser installation.
	KindTimeout     ErrorKind = "timeout"     // KindTimeout indicates an operation exceeded its deadline.
	KindBlocked     ErrorKind = "blocked"     // KindBlocked indicates the provider served a block or challenge page.
	KindNavigation  ErrorKind = "navigation"  // KindNavigation indicates a DNS or connection failure.
	KindHTTPStatus  ErrorKind = "http_status" // KindHTTPStatus indicates a 4xx/5xx response on fetch.
)

// Sentinels for errors.Is comparisons. An *Error matches the sentinel of its kind.
var (
	ErrEnvironment = errors.New("scout: environment error")
	ErrTimeout     = errors.New("scout: timeout")
	ErrBlocked     = errors.New("scout: blocked by provider")
	ErrNavigation  = errors.New("scout: navigation failed")
	ErrHTTPStatus  = errors.New("scout: http status error")
)

var sentinels = map[ErrorKind]error{
	KindEnvironment: ErrEnvironment,
	KindTimeout:     ErrTimeout,
	KindBlocked:     ErrBlocked,
	KindNavigation:  ErrNavigation,
	KindHTTPStatus:  ErrHTTPStatus,
}

// Error is the error type returned by every browser-session operation.
type Error struct {
	// Kind is the failure class.
	Kind ErrorKind

	// Op names the operation that failed (e.g. "search", "fetch", "launch").
	Op string

	// URL is the page involved, if any.
	URL string

	// StatusCode is set for KindHTTPStatus.
	StatusCode int

	// Reason carries extra detail, such as which block marker matched.
	Reason string

	// Err is the underlying cause.
	Err error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s", e.Op, e.Kind)
	if e.URL != "" {
		msg += " (" + e.URL + ")"
	}
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(": status %d", e.StatusCode)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for this error's kind.
func (e *Error) Is(target error) bool {
	s, ok := sentinels[e.Kind]
	return ok && s == target
}

// Retryable reports whether a caller may retry the operation with backoff.
func (e *Error) Retryable() bool {
	return e.Kind == KindTimeout || e.Kind == KindNavigation
}

// NewEnvironmentError reports a setup or installation failure.
func NewEnvironmentError(op string, err error) *Error {
	return &Error{Kind: KindEnvironment, Op: op, Err: err}
}

// NewTimeoutError reports an operation that exceeded its deadline.
func NewTimeoutError(op, url string, err error) *Error {
	return &Error{Kind: KindTimeout, Op: op, URL: url, Err: err}
}

// NewBlockedError reports a provider block or challenge page.
func NewBlockedError(op, url, reason string) *Error {
	return &Error{Kind: KindBlocked, Op: op, URL: url, Reason: reason}
}

// NewNavigationError reports a DNS or connection failure.
func NewNavigationError(op, url string, err error) *Error {
	return &Error{Kind: KindNavigation, Op: op, URL: url, Err: err}
}

// NewHTTPStatusError reports a non-success response status.
func NewHTTPStatusError(op, url string, status int) *Error {
	return &Error{Kind: KindHTTPStatus, Op: op, URL: url, StatusCode: status}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsRetryable reports whether err is a timeout or navigation failure.
func IsRetryable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Retryable()
}

// WithOp returns a copy of err (if it is an *Error) relabelled with op.
// Other errors are returned unchanged.
func WithOp(err error, op string) error {
	var e *Error
	if !errors.As(err, &e) {
		return err
	}
	cp := *e
	cp.Op = op
	return &cp
}
