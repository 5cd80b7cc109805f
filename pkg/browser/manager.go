package browser

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/entrhq/scout/pkg/logging"
	"github.com/entrhq/scout/pkg/types"
)

// persistTimeout bounds state serialization on release. It runs on a context
// detached from the caller's so an expired operation still saves state.
const persistTimeout = 10 * time.Second

// SessionManager acquires and releases browser sessions. Each acquisition
// gets its own browser context over a pooled browser process.
type SessionManager struct {
	pool   *Pool
	driver Driver
	logger *logging.Logger
	now    func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewSessionManager creates a manager that checks browsers out of pool.
// driver is stopped by Shutdown and may be nil if the caller owns it.
func NewSessionManager(pool *Pool, driver Driver, logger *logging.Logger) *SessionManager {
	if logger == nil {
		logger = logging.Discard()
	}
	return &SessionManager{
		pool:     pool,
		driver:   driver,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Acquire launches or reuses a browser and creates a context for cfg. Saved
// state and the fingerprint are applied before any navigation. Callers must
// Release the session; WithSession does so automatically.
func (m *SessionManager) Acquire(ctx context.Context, cfg SessionConfig) (*Session, error) {
	cfg = cfg.withDefaults()

	var (
		store    *SessionStore
		state    []byte
		identity = &SavedIdentity{}
	)
	if cfg.StateFile != "" {
		store = NewSessionStore(cfg.StateFile)

		var err error
		if state, err = store.Load(); err != nil {
			m.logger.Warnf("Ignoring saved session state: %v", err)
			state = nil
		}
		if identity, err = store.LoadIdentity(); err != nil {
			m.logger.Warnf("Ignoring saved fingerprint: %v", err)
			identity = &SavedIdentity{}
		}
	}
	if identity.Fingerprint == nil {
		identity.Fingerprint = NewFingerprint(cfg.Locale, cfg.Timezone, m.now())
	}
	if identity.SearchDomain == "" {
		identity.SearchDomain = pickDomain(cfg.SearchDomains)
	}

	b, err := m.pool.Checkout(ctx, cfg.Headless)
	if err != nil {
		return nil, err
	}

	fp := identity.Fingerprint
	opts := ContextOptions{
		Viewport:      cfg.Viewport,
		StorageState:  state,
		DeviceName:    fp.DeviceName,
		Locale:        fp.Locale,
		TimezoneID:    fp.TimezoneID,
		ColorScheme:   fp.ColorScheme,
		ReducedMotion: fp.ReducedMotion,
		ForcedColors:  fp.ForcedColors,
		InitScript:    StealthScript,
	}
	bctx, err := b.NewContext(ctx, opts)
	if err != nil && errors.Is(err, ErrInvalidState) {
		m.logger.Warnf("Ignoring saved session state: %v", err)
		opts.StorageState = nil
		bctx, err = b.NewContext(ctx, opts)
	}
	if err != nil {
		m.pool.Return(b, cfg.Headless, true)
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, types.NewTimeoutError("acquire", "", err)
		}
		return nil, types.NewEnvironmentError("acquire", err)
	}

	s := &Session{
		id:        uuid.New().String(),
		cfg:       cfg,
		browser:   b,
		bctx:      bctx,
		store:     store,
		identity:  identity,
		createdAt: m.now(),
	}

	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()

	m.logger.Debugf("Acquired session %s (headless=%t, state=%q, restored=%t)",
		s.id[:8], cfg.Headless, cfg.StateFile, state != nil)
	return s, nil
}

// Release persists state if configured, then closes the context and returns
// the browser to the pool. Persistence errors are returned but never prevent
// the close. Releasing twice is a no-op.
func (m *SessionManager) Release(ctx context.Context, s *Session) error {
	// Waits for any page work still running on s.
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return nil
	}
	s.released = true
	s.mu.Unlock()

	var errs []error
	if s.cfg.SaveState && s.store != nil {
		if err := m.persist(ctx, s); err != nil {
			m.logger.Warnf("Failed to persist session %s: %v", s.id[:8], err)
			errs = append(errs, err)
		}
	}

	if err := s.bctx.Close(); err != nil {
		m.logger.Debugf("Closing context for session %s: %v", s.id[:8], err)
	}
	m.pool.Return(s.browser, s.cfg.Headless, false)

	m.mu.Lock()
	delete(m.sessions, s.id)
	m.mu.Unlock()

	m.logger.Debugf("Released session %s after %s", s.id[:8], m.now().Sub(s.createdAt).Round(time.Millisecond))
	return errors.Join(errs...)
}

func (m *SessionManager) persist(ctx context.Context, s *Session) error {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	state, err := s.bctx.StorageState(pctx)
	if err != nil {
		return fmt.Errorf("failed to capture session state: %w", err)
	}
	if err := s.store.Save(state); err != nil {
		return err
	}
	if err := s.store.SaveIdentity(s.identity); err != nil {
		return err
	}
	m.logger.Debugf("Saved session state to %s", s.store.Path())
	return nil
}

// WithSession acquires a session, runs fn and releases the session on every
// exit path, including a panic in fn, which is re-raised after release.
// Release errors are logged; fn's error is returned unchanged.
func (m *SessionManager) WithSession(ctx context.Context, cfg SessionConfig, fn func(*Session) error) error {
	s, err := m.Acquire(ctx, cfg)
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			_ = m.Release(ctx, s)
			panic(r)
		}
	}()

	err = fn(s)
	if relErr := m.Release(ctx, s); relErr != nil {
		m.logger.Warnf("Release of session %s failed: %v", s.id[:8], relErr)
	}
	return err
}

// SessionInfo contains metadata about a live session.
type SessionInfo struct {
	ID         string
	CurrentURL string
	Headless   bool
	StateFile  string
	CreatedAt  time.Time
}

// ListSessions returns live sessions ordered by creation time.
func (m *SessionManager) ListSessions() []SessionInfo {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	infos := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, SessionInfo{
			ID:         s.id,
			CurrentURL: s.CurrentURL(),
			Headless:   s.cfg.Headless,
			StateFile:  s.cfg.StateFile,
			CreatedAt:  s.createdAt,
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})
	return infos
}

// Shutdown releases live sessions, closes the pool and stops the driver.
func (m *SessionManager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	live := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		live = append(live, s)
	}
	m.mu.Unlock()

	var errs []error
	for _, s := range live {
		if err := m.Release(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}
	if err := m.pool.Close(); err != nil {
		errs = append(errs, err)
	}
	if m.driver != nil {
		if err := m.driver.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
