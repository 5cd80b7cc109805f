package content

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/entrhq/scout/pkg/browser"
	"github.com/entrhq/scout/pkg/config"
	"github.com/entrhq/scout/pkg/logging"
	"github.com/entrhq/scout/pkg/types"
)

const opFetch = "fetch"

// Request validation errors.
var (
	ErrInvalidURL     = errors.New("url must be an absolute http(s) URL")
	ErrInvalidTimeout = errors.New("timeout must be positive")
	ErrInvalidLimit   = errors.New("max chars must be positive")
)

// Request describes one page retrieval.
type Request struct {
	URL      string
	Timeout  time.Duration
	MaxChars int

	// Session configures the browser session the page is loaded in.
	Session browser.SessionConfig
}

// Validate checks the request.
func (r Request) Validate() error {
	u, err := url.Parse(r.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidURL, r.URL)
	}
	if r.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if r.MaxChars <= 0 {
		return ErrInvalidLimit
	}
	return nil
}

// RawPage is a rendered page.
type RawPage struct {
	HTML   string
	URL    string
	Title  string
	Status int
}

// Fetcher loads arbitrary pages in a scoped browser page.
type Fetcher struct {
	waitUntil string
	logger    *logging.Logger
}

// NewFetcher creates a fetcher that considers a page loaded on waitUntil
// (load, domcontentloaded, networkidle or commit). Empty means networkidle.
func NewFetcher(waitUntil string, logger *logging.Logger) *Fetcher {
	if waitUntil == "" {
		waitUntil = browser.WaitNetworkIdle
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Fetcher{waitUntil: waitUntil, logger: logger}
}

// NewFetcherFromConfig creates a fetcher from the fetch section.
func NewFetcherFromConfig(cfg config.FetchConfig, logger *logging.Logger) *Fetcher {
	return NewFetcher(cfg.WaitUntil, logger)
}

// Fetch navigates to req.URL and returns the rendered DOM. Failures are
// classified as timeout, navigation or HTTP status errors and never retried.
func (f *Fetcher) Fetch(ctx context.Context, req Request, s *browser.Session) (*RawPage, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var raw *RawPage
	err := s.WithPage(ctx, func(page browser.Page) error {
		ctx, cancel := context.WithTimeout(ctx, req.Timeout)
		defer cancel()

		f.logger.Infof("Fetching %s", req.URL)
		resp, err := page.Goto(ctx, req.URL, browser.GotoOptions{
			WaitUntil: f.waitUntil,
			Timeout:   req.Timeout,
		})
		if err != nil {
			return browser.ClassifyNavigation(opFetch, req.URL, err)
		}

		status := 0
		if resp != nil {
			status = resp.Status
		}
		if status >= 400 {
			return types.NewHTTPStatusError(opFetch, page.URL(), status)
		}

		html, err := page.Content(ctx)
		if err != nil {
			return browser.ClassifyRead(opFetch, req.URL, err)
		}
		title, err := page.Title(ctx)
		if err != nil {
			f.logger.Debugf("Failed to read title of %s: %v", req.URL, err)
		}

		raw = &RawPage{HTML: html, URL: page.URL(), Title: title, Status: status}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return raw, nil
}
