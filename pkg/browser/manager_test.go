package browser_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/scout/pkg/browser"
	"github.com/entrhq/scout/pkg/browser/browsertest"
	"github.com/entrhq/scout/pkg/types"
)

const siteURL = "https://site.test/"

func newManager(t *testing.T) (*browser.SessionManager, *browsertest.Driver) {
	t.Helper()
	driver := browsertest.NewDriver()
	driver.Handle(siteURL, &browsertest.Route{
		HTML:       "<html><head><title>Site</title></head><body><p>hi</p></body></html>",
		SetCookies: map[string]string{"NID": "visited"},
	})
	pool := browser.NewPool(driver, browser.PoolOptions{MaxBrowsers: 4})
	mgr := browser.NewSessionManager(pool, driver, nil)
	t.Cleanup(func() { _ = mgr.Shutdown(context.Background()) })
	return mgr, driver
}

func stateConfig(t *testing.T) browser.SessionConfig {
	cfg := browser.DefaultSessionConfig()
	cfg.StateFile = filepath.Join(t.TempDir(), "browser-state.json")
	cfg.SearchDomains = []string{"https://www.google.ca"}
	return cfg
}

func visit(ctx context.Context, s *browser.Session) error {
	return s.WithPage(ctx, func(p browser.Page) error {
		_, err := p.Goto(ctx, siteURL, browser.GotoOptions{WaitUntil: browser.WaitLoad})
		return err
	})
}

func TestWithSessionPersistsState(t *testing.T) {
	mgr, driver := newManager(t)
	cfg := stateConfig(t)
	ctx := context.Background()

	require.NoError(t, mgr.WithSession(ctx, cfg, func(s *browser.Session) error {
		return visit(ctx, s)
	}))

	raw, err := os.ReadFile(cfg.StateFile)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"visited"`)

	sidecar, err := os.ReadFile(cfg.StateFile + "-fingerprint.json")
	require.NoError(t, err)
	assert.Contains(t, string(sidecar), `"googleDomain": "https://www.google.ca"`)
	assert.Contains(t, string(sidecar), `"deviceName": "Desktop Chrome"`)

	contexts := driver.Contexts()
	require.Len(t, contexts, 1)
	assert.True(t, contexts[0].Closed())
	assert.Zero(t, contexts[0].OpenPages())
	assert.Empty(t, mgr.ListSessions())
}

func TestStateRoundTrip(t *testing.T) {
	mgr, driver := newManager(t)
	cfg := stateConfig(t)
	ctx := context.Background()

	require.NoError(t, mgr.WithSession(ctx, cfg, func(s *browser.Session) error {
		return visit(ctx, s)
	}))

	var first, second browser.Fingerprint
	require.NoError(t, mgr.WithSession(ctx, cfg, func(s *browser.Session) error {
		second = s.Fingerprint()
		assert.Equal(t, "https://www.google.ca", s.SearchDomain())
		return nil
	}))

	contexts := driver.Contexts()
	require.Len(t, contexts, 2)
	assert.Equal(t, map[string]string{"NID": "visited"}, contexts[1].Cookies())
	assert.NotEmpty(t, contexts[1].Options.StorageState)
	assert.Empty(t, contexts[0].Options.StorageState)

	first = browser.Fingerprint{
		DeviceName:    contexts[0].Options.DeviceName,
		Locale:        contexts[0].Options.Locale,
		TimezoneID:    contexts[0].Options.TimezoneID,
		ColorScheme:   contexts[0].Options.ColorScheme,
		ReducedMotion: contexts[0].Options.ReducedMotion,
		ForcedColors:  contexts[0].Options.ForcedColors,
	}
	assert.Equal(t, first, second)
	assert.Equal(t, browser.StealthScript, contexts[1].Options.InitScript)
	assert.Equal(t, browser.Viewport{Width: 1920, Height: 1080}, contexts[1].Options.Viewport)
}

func TestSaveStateDisabled(t *testing.T) {
	mgr, _ := newManager(t)
	cfg := stateConfig(t)
	cfg.SaveState = false
	ctx := context.Background()

	require.NoError(t, mgr.WithSession(ctx, cfg, func(s *browser.Session) error {
		return visit(ctx, s)
	}))

	_, err := os.Stat(cfg.StateFile)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestWithSessionReleasesOnError(t *testing.T) {
	mgr, driver := newManager(t)
	cfg := stateConfig(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := mgr.WithSession(ctx, cfg, func(s *browser.Session) error {
		if err := visit(ctx, s); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, statErr := os.Stat(cfg.StateFile)
	assert.NoError(t, statErr)
	assert.True(t, driver.Contexts()[0].Closed())
}

func TestWithSessionReleasesOnPanic(t *testing.T) {
	mgr, driver := newManager(t)
	cfg := stateConfig(t)
	ctx := context.Background()

	assert.PanicsWithValue(t, "kaboom", func() {
		_ = mgr.WithSession(ctx, cfg, func(s *browser.Session) error {
			_ = visit(ctx, s)
			panic("kaboom")
		})
	})

	_, err := os.Stat(cfg.StateFile)
	assert.NoError(t, err)
	assert.True(t, driver.Contexts()[0].Closed())
	assert.Empty(t, mgr.ListSessions())
}

func TestReleaseAfterCallerTimeoutStillPersists(t *testing.T) {
	mgr, _ := newManager(t)
	cfg := stateConfig(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	s, err := mgr.Acquire(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, visit(ctx, s))
	<-ctx.Done()

	require.NoError(t, mgr.Release(ctx, s))
	raw, err := os.ReadFile(cfg.StateFile)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "visited")

	// Second release is a no-op.
	assert.NoError(t, mgr.Release(ctx, s))
}

func TestAcquireLaunchFailure(t *testing.T) {
	mgr, driver := newManager(t)
	driver.LaunchErr = errors.New("browserType.launch: Executable doesn't exist")

	err := mgr.WithSession(context.Background(), stateConfig(t), func(*browser.Session) error {
		t.Fatal("fn must not run")
		return nil
	})
	assert.ErrorIs(t, err, types.ErrEnvironment)
}

func TestAcquireIgnoresCorruptState(t *testing.T) {
	tests := []struct {
		name  string
		state string
	}{
		{"malformed json", "{broken"},
		{"json array", "[]"},
		{"json null", "null"},
		{"cookies of the wrong type", `{"cookies":[{"name":5,"value":true}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mgr, driver := newManager(t)
			cfg := stateConfig(t)
			cfg.SaveState = false
			require.NoError(t, os.WriteFile(cfg.StateFile, []byte(tt.state), 0600))
			require.NoError(t, os.WriteFile(cfg.StateFile+"-fingerprint.json", []byte("[]"), 0600))

			for i := 0; i < 2; i++ {
				require.NoError(t, mgr.WithSession(context.Background(), cfg, func(s *browser.Session) error {
					assert.Equal(t, browser.DefaultDeviceName, s.Fingerprint().DeviceName)
					return nil
				}))
			}
			contexts := driver.Contexts()
			require.Len(t, contexts, 2)
			for _, c := range contexts {
				assert.Empty(t, c.Options.StorageState)
			}
			assert.Equal(t, 1, driver.Launches(), "the browser is kept after a bad state file")
		})
	}
}

func TestSessionSerializesPages(t *testing.T) {
	mgr, driver := newManager(t)
	driver.Handle("https://slow.test/", &browsertest.Route{HTML: "<p>slow</p>", Delay: 10 * time.Millisecond})
	ctx := context.Background()

	s, err := mgr.Acquire(ctx, browser.DefaultSessionConfig())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.WithPage(ctx, func(p browser.Page) error {
				_, err := p.Goto(ctx, "https://slow.test/", browser.GotoOptions{})
				return err
			}))
		}()
	}
	wg.Wait()
	require.NoError(t, mgr.Release(ctx, s))

	c := driver.Contexts()[0]
	assert.Equal(t, 1, c.MaxConcurrentNavigations())
	assert.Zero(t, c.OpenPages())
	assert.Equal(t, "https://slow.test/", s.CurrentURL())

	err = s.WithPage(ctx, func(browser.Page) error { return nil })
	assert.ErrorContains(t, err, "already released")
}

func TestConcurrentSessionsGetIndependentContexts(t *testing.T) {
	mgr, driver := newManager(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, mgr.WithSession(ctx, browser.DefaultSessionConfig(), func(s *browser.Session) error {
				return visit(ctx, s)
			}))
		}()
	}
	wg.Wait()

	contexts := driver.Contexts()
	assert.Len(t, contexts, 3)
	for _, c := range contexts {
		assert.True(t, c.Closed())
		assert.Equal(t, 1, c.MaxConcurrentNavigations())
	}
}

func TestListSessionsDuringPageWork(t *testing.T) {
	mgr, driver := newManager(t)
	driver.Handle("https://site.test/", &browsertest.Route{HTML: "<p>hi</p>"})
	ctx := context.Background()

	s, err := mgr.Acquire(ctx, browser.DefaultSessionConfig())
	require.NoError(t, err)
	defer func() { _ = mgr.Release(ctx, s) }()

	require.NoError(t, s.WithPage(ctx, func(p browser.Page) error {
		_, err := p.Goto(ctx, "https://site.test/", browser.GotoOptions{})
		return err
	}))

	inPage := make(chan struct{})
	done := make(chan struct{})
	defer close(done)
	go func() {
		_ = s.WithPage(ctx, func(browser.Page) error {
			close(inPage)
			<-done
			return nil
		})
	}()
	<-inPage

	listed := make(chan []browser.SessionInfo, 1)
	go func() { listed <- mgr.ListSessions() }()

	select {
	case infos := <-listed:
		require.Len(t, infos, 1)
		assert.Equal(t, "https://site.test/", infos[0].CurrentURL)
	case <-time.After(time.Second):
		t.Fatal("ListSessions waited for page work")
	}
}

func TestShutdownReleasesLiveSessions(t *testing.T) {
	driver := browsertest.NewDriver()
	pool := browser.NewPool(driver, browser.PoolOptions{MaxBrowsers: 2})
	mgr := browser.NewSessionManager(pool, driver, nil)
	ctx := context.Background()

	_, err := mgr.Acquire(ctx, browser.DefaultSessionConfig())
	require.NoError(t, err)
	_, err = mgr.Acquire(ctx, browser.DefaultSessionConfig())
	require.NoError(t, err)

	infos := mgr.ListSessions()
	require.Len(t, infos, 2)
	assert.Equal(t, "about:blank", infos[0].CurrentURL)
	assert.True(t, infos[0].Headless)

	require.NoError(t, mgr.Shutdown(ctx))
	assert.Empty(t, mgr.ListSessions())
	assert.True(t, driver.Stopped())
	for _, b := range driver.Browsers() {
		assert.True(t, b.Closed())
	}
}
