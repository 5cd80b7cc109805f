package browser

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// SessionConfig configures one acquisition.
type SessionConfig struct {
	// Headless controls whether the browser runs without a visible window
	Headless bool

	// StateFile optionally points at a state blob loaded before any
	// navigation and, with SaveState, overwritten on release.
	StateFile string
	SaveState bool

	// Viewport sets the viewport size. Zero means 1920x1080.
	Viewport Viewport

	Locale   string
	Timezone string

	// SearchDomains are candidate provider origins for identities that have
	// not picked one yet.
	SearchDomains []string
}

// Default values for session configuration
const (
	DefaultViewportWidth  = 1920
	DefaultViewportHeight = 1080
	DefaultLocale         = "en-US"
	DefaultTimezone       = "America/New_York"
)

// DefaultSessionConfig returns headless mode with state persistence enabled
// and no state file.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Headless:  true,
		SaveState: true,
		Viewport:  Viewport{Width: DefaultViewportWidth, Height: DefaultViewportHeight},
		Locale:    DefaultLocale,
		Timezone:  DefaultTimezone,
	}
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.Viewport.Width <= 0 || c.Viewport.Height <= 0 {
		c.Viewport = Viewport{Width: DefaultViewportWidth, Height: DefaultViewportHeight}
	}
	if c.Locale == "" {
		c.Locale = DefaultLocale
	}
	if c.Timezone == "" {
		c.Timezone = DefaultTimezone
	}
	return c
}

// Session is one live browser context owned by a SessionManager. Page
// operations on a session are serialized: two navigations never run on the
// same context at once.
type Session struct {
	id        string
	cfg       SessionConfig
	browser   Browser
	bctx      BrowserContext
	store     *SessionStore
	identity  *SavedIdentity
	createdAt time.Time

	// mu serializes page work and guards released.
	mu       sync.Mutex
	released bool

	// lastURL is read by ListSessions without waiting for page work.
	lastURL atomic.Pointer[string]
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string {
	return s.id
}

// Config returns the effective configuration.
func (s *Session) Config() SessionConfig {
	return s.cfg
}

// Fingerprint returns the identity applied to the context.
func (s *Session) Fingerprint() Fingerprint {
	return *s.identity.Fingerprint
}

// SearchDomain returns the provider origin remembered for this identity.
func (s *Session) SearchDomain() string {
	return s.identity.SearchDomain
}

// CurrentURL returns the URL of the last page used in this session.
func (s *Session) CurrentURL() string {
	if u := s.lastURL.Load(); u != nil {
		return *u
	}
	return "about:blank"
}

// WithPage opens a scoped page, runs fn and closes the page on every exit
// path. Calls on one session run one at a time.
func (s *Session) WithPage(ctx context.Context, fn func(Page) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released {
		return fmt.Errorf("session %s already released", s.id)
	}

	page, err := s.bctx.NewPage(ctx)
	if err != nil {
		return ClassifyRead("open page", "", err)
	}
	defer func() {
		u := page.URL()
		s.lastURL.Store(&u)
		_ = page.Close()
	}()

	return fn(page)
}
