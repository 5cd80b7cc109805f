package search

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// MaxLimit is the largest page size the provider serves.
const MaxLimit = 100

// Query validation errors.
var (
	ErrEmptyQuery   = errors.New("search: query text is empty")
	ErrInvalidLimit = errors.New("search: limit out of range")
	ErrInvalidTime  = errors.New("search: timeout must be positive")
)

// Query is a validated search request. The zero value is not valid; use
// NewQuery.
type Query struct {
	text    string
	limit   int
	timeout time.Duration
}

// NewQuery validates and builds a Query. The text is trimmed.
func NewQuery(text string, limit int, timeout time.Duration) (Query, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Query{}, ErrEmptyQuery
	}
	if limit < 1 || limit > MaxLimit {
		return Query{}, fmt.Errorf("%w: %d (must be 1-%d)", ErrInvalidLimit, limit, MaxLimit)
	}
	if timeout <= 0 {
		return Query{}, fmt.Errorf("%w: %s", ErrInvalidTime, timeout)
	}
	return Query{text: text, limit: limit, timeout: timeout}, nil
}

// Text returns the query string.
func (q Query) Text() string { return q.text }

// Limit returns the maximum number of results.
func (q Query) Limit() int { return q.limit }

// Timeout returns the deadline for navigation and the readiness wait.
func (q Query) Timeout() time.Duration { return q.timeout }
