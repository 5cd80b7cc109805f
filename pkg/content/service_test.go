package content

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/scout/pkg/browser"
	"github.com/entrhq/scout/pkg/browser/browsertest"
	"github.com/entrhq/scout/pkg/config"
	"github.com/entrhq/scout/pkg/types"
)

const articleURL = "https://site.test/article"

type fixture struct {
	svc     *Service
	driver  *browsertest.Driver
	session browser.SessionConfig
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	driver := browsertest.NewDriver()
	pool := browser.NewPool(driver, browser.PoolOptions{MaxBrowsers: 2})
	mgr := browser.NewSessionManager(pool, driver, nil)
	t.Cleanup(func() { _ = mgr.Shutdown(context.Background()) })

	session := browser.DefaultSessionConfig()
	session.StateFile = filepath.Join(t.TempDir(), "browser-state.json")

	return &fixture{
		svc:     NewServiceFromConfig(mgr, config.DefaultConfig().Fetch, nil),
		driver:  driver,
		session: session,
	}
}

func (f *fixture) request(url string, timeout time.Duration, maxChars int) Request {
	return Request{URL: url, Timeout: timeout, MaxChars: maxChars, Session: f.session}
}

func TestFetchMarkdown(t *testing.T) {
	f := newFixture(t)
	f.driver.Handle(articleURL, &browsertest.Route{
		HTML:       `<html><head><title>An Article</title></head><body><h2>Heading</h2><p>Body with <a href="/next">next</a>.</p></body></html>`,
		SetCookies: map[string]string{"session": "abc"},
	})

	doc, err := f.svc.FetchMarkdown(context.Background(), f.request(articleURL, 5*time.Second, 1000))
	require.NoError(t, err)

	assert.Equal(t, "## Heading\n\nBody with [next](https://site.test/next).", doc.Content)
	assert.Equal(t, "An Article", doc.Title)
	assert.Equal(t, articleURL, doc.URL)
	assert.False(t, doc.Truncated)

	raw, err := os.ReadFile(f.session.StateFile)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "abc")
}

func TestFetchMarkdownTruncates(t *testing.T) {
	f := newFixture(t)
	f.driver.Handle(articleURL, &browsertest.Route{
		HTML: "<html><body><p>" + strings.Repeat("x", 300000) + "</p></body></html>",
	})

	doc, err := f.svc.FetchMarkdown(context.Background(), f.request(articleURL, 5*time.Second, config.DefaultMaxChars))
	require.NoError(t, err)
	assert.Equal(t, 250000, utf8.RuneCountInString(doc.Content))
	assert.True(t, doc.Truncated)
}

func TestFetchMarkdownHTTPStatus(t *testing.T) {
	f := newFixture(t)
	f.driver.Handle(articleURL, &browsertest.Route{
		Status:     404,
		HTML:       "<html><body><h1>Not found</h1></body></html>",
		SetCookies: map[string]string{"seen": "1"},
	})

	_, err := f.svc.FetchMarkdown(context.Background(), f.request(articleURL, 5*time.Second, 1000))
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrHTTPStatus)

	var te *types.Error
	require.True(t, errors.As(err, &te))
	assert.Equal(t, 404, te.StatusCode)
	assert.False(t, types.IsRetryable(err))

	// The session is released and persisted before the error surfaces.
	assert.FileExists(t, f.session.StateFile)
	assert.True(t, f.driver.Contexts()[0].Closed())
}

func TestFetchMarkdownNavigationError(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.FetchMarkdown(context.Background(), f.request("https://unknown.test/", 5*time.Second, 1000))
	assert.ErrorIs(t, err, types.ErrNavigation)
	assert.Len(t, f.driver.Navigations(), 1, "fetch is never retried")
}

func TestFetchMarkdownTimeout(t *testing.T) {
	f := newFixture(t)
	f.driver.Handle(articleURL, &browsertest.Route{Hang: true})

	timeout := 80 * time.Millisecond
	start := time.Now()
	_, err := f.svc.FetchMarkdown(context.Background(), f.request(articleURL, timeout, 1000))

	assert.ErrorIs(t, err, types.ErrTimeout)
	assert.Less(t, time.Since(start), timeout+time.Second)
}

func TestFetchMarkdownCancelled(t *testing.T) {
	f := newFixture(t)
	f.driver.Handle(articleURL, &browsertest.Route{Hang: true})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := f.svc.FetchMarkdown(ctx, f.request(articleURL, 5*time.Second, 1000))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRequestValidate(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		want error
	}{
		{"valid", Request{URL: "https://x.test/", Timeout: time.Second, MaxChars: 1}, nil},
		{"relative url", Request{URL: "/path", Timeout: time.Second, MaxChars: 1}, ErrInvalidURL},
		{"unsupported scheme", Request{URL: "ftp://x.test/", Timeout: time.Second, MaxChars: 1}, ErrInvalidURL},
		{"zero timeout", Request{URL: "https://x.test/", MaxChars: 1}, ErrInvalidTimeout},
		{"zero max chars", Request{URL: "https://x.test/", Timeout: time.Second}, ErrInvalidLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestFetchMarkdownRejectsInvalidRequest(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.FetchMarkdown(context.Background(), f.request("not a url", time.Second, 1000))
	assert.ErrorIs(t, err, ErrInvalidURL)
	assert.Zero(t, f.driver.Launches())
}
