package browser

import (
	"context"
	"errors"
	"time"
)

// Driver is the controllable-browser capability scout drives. The production
// implementation is PlaywrightDriver; tests use browsertest.Driver.
//
// Every blocking method takes a context. Implementations must return promptly
// once the context is done, even if the browser-side work keeps running.
type Driver interface {
	// Launch starts a new browser process.
	Launch(ctx context.Context, opts LaunchOptions) (Browser, error)

	// Stop releases the driver and any processes it still owns.
	Stop() error
}

// Browser is one running browser process.
type Browser interface {
	// NewContext creates an isolated context (cookies, storage, cache).
	NewContext(ctx context.Context, opts ContextOptions) (BrowserContext, error)

	// IsConnected reports whether the process is still usable.
	IsConnected() bool

	Close() error
}

// BrowserContext is an isolated browsing session inside a Browser.
type BrowserContext interface {
	NewPage(ctx context.Context) (Page, error)

	// StorageState serializes cookies and per-origin storage. The blob is
	// opaque to scout and is handed back through ContextOptions.StorageState.
	StorageState(ctx context.Context) ([]byte, error)

	Close() error
}

// Page is a single tab.
type Page interface {
	// Goto navigates and waits for opts.WaitUntil. The returned response may
	// be nil when the driver reports none (same-document navigation).
	Goto(ctx context.Context, url string, opts GotoOptions) (*Response, error)

	// WaitForSelector waits until selector is attached to the DOM.
	WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error

	// Content returns the serialized DOM.
	Content(ctx context.Context) (string, error)

	Title(ctx context.Context) (string, error)

	// URL returns the current page URL.
	URL() string

	// Screenshot writes a PNG of the page to path.
	Screenshot(ctx context.Context, path string, fullPage bool) error

	Close() error
}

// LaunchOptions configures a browser process.
type LaunchOptions struct {
	Headless bool

	// Args are extra command-line flags.
	Args []string

	// Timeout bounds process start-up. Zero means the driver default.
	Timeout time.Duration
}

// ContextOptions configures a new browser context.
type ContextOptions struct {
	Viewport Viewport

	// StorageState is a blob previously returned by BrowserContext.StorageState.
	StorageState []byte

	// DeviceName selects a device descriptor (user agent etc.) if the driver knows it.
	DeviceName    string
	Locale        string
	TimezoneID    string
	ColorScheme   string
	ReducedMotion string
	ForcedColors  string

	// InitScript runs in every document before page scripts.
	InitScript string
}

// GotoOptions configures a navigation.
type GotoOptions struct {
	// WaitUntil is "load", "domcontentloaded", "networkidle" or "commit".
	WaitUntil string

	Timeout time.Duration
}

// Response is the main-resource response of a navigation.
type Response struct {
	Status int
	URL    string
}

// Viewport represents the browser viewport dimensions.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Wait states accepted by GotoOptions.WaitUntil.
const (
	WaitLoad             = "load"
	WaitDOMContentLoaded = "domcontentloaded"
	WaitNetworkIdle      = "networkidle"
	WaitCommit           = "commit"
)

// ErrDriverTimeout is wrapped by driver errors caused by a driver-side timeout.
var ErrDriverTimeout = errors.New("browser: driver timeout")

// ErrInvalidState is returned by NewContext when ContextOptions.StorageState
// cannot be applied.
var ErrInvalidState = errors.New("browser: invalid storage state")

// await runs fn on its own goroutine and waits for it or for ctx, whichever
// comes first. When ctx wins, fn keeps running and its result is dropped.
func await[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
