package search

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/entrhq/scout/pkg/browser"
	"github.com/entrhq/scout/pkg/logging"
	"github.com/entrhq/scout/pkg/types"
)

const opSearch = "search"

// blockRecheckTimeout bounds the DOM read used to tell a block page from a
// slow one after the readiness wait has failed.
const blockRecheckTimeout = 2 * time.Second

// RawResults is the rendered results page.
type RawResults struct {
	Query string
	URL   string
	HTML  string
}

// ExecutorOptions configures an Executor.
type ExecutorOptions struct {
	// Detector recognises block and challenge pages. Required.
	Detector BlockDetector

	// Pacer is shared between executors; nil disables pacing.
	Pacer *Pacer

	// ReadySelectors signal a rendered results container. Any one suffices.
	ReadySelectors []string

	// Language is sent as the hl parameter.
	Language string

	// DefaultDomain is used when the session has no remembered domain.
	DefaultDomain string

	Logger *logging.Logger
}

// Executor submits queries to the provider inside a scoped page.
type Executor struct {
	opts   ExecutorOptions
	ready  string
	logger *logging.Logger
}

// NewExecutor creates an Executor.
func NewExecutor(opts ExecutorOptions) *Executor {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Executor{
		opts:   opts,
		ready:  strings.Join(opts.ReadySelectors, ", "),
		logger: logger,
	}
}

// Execute navigates to the results page for q and returns its DOM once a
// results container is present.
//
// A NavigationError caused by a connection failure is retried once. Other
// navigation failures, timeouts and block pages are never retried.
func (e *Executor) Execute(ctx context.Context, q Query, s *browser.Session) (*RawResults, error) {
	return e.execute(ctx, q, s, nil)
}

// ExecuteAndCapture is Execute followed by capture on the same page, before
// the page is closed. A capture error is returned as is.
func (e *Executor) ExecuteAndCapture(ctx context.Context, q Query, s *browser.Session, capture func(context.Context, browser.Page) error) (*RawResults, error) {
	return e.execute(ctx, q, s, capture)
}

func (e *Executor) execute(ctx context.Context, q Query, s *browser.Session, capture func(context.Context, browser.Page) error) (*RawResults, error) {
	domain := s.SearchDomain()
	if domain == "" {
		domain = e.opts.DefaultDomain
	}
	target := BuildURL(domain, q, e.opts.Language)

	var raw *RawResults
	err := s.WithPage(ctx, func(page browser.Page) error {
		for attempt := 1; ; attempt++ {
			r, err := e.attempt(ctx, q, page, target)
			if err == nil {
				raw = r
				break
			}
			if attempt > 1 || !browser.IsNetworkError(err) {
				return err
			}
			e.logger.Warnf("Navigation to %s failed, retrying once: %v", domain, err)
		}

		if capture != nil {
			return capture(ctx, page)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func (e *Executor) attempt(ctx context.Context, q Query, page browser.Page, target string) (*RawResults, error) {
	// The query timeout covers pacing as well as the page work.
	ctx, cancel := context.WithTimeout(ctx, q.Timeout())
	defer cancel()

	if e.opts.Pacer != nil {
		if err := e.opts.Pacer.Wait(ctx); err != nil {
			return nil, browser.ClassifyNavigation(opSearch, target, err)
		}
	}

	e.logger.Infof("Searching %q (limit %d)", q.Text(), q.Limit())
	resp, err := page.Goto(ctx, target, browser.GotoOptions{
		WaitUntil: browser.WaitDOMContentLoaded,
		Timeout:   remaining(ctx, q.Timeout()),
	})
	if err != nil {
		return nil, browser.ClassifyNavigation(opSearch, target, err)
	}

	html, err := page.Content(ctx)
	if err != nil {
		return nil, browser.ClassifyNavigation(opSearch, target, err)
	}
	if err := e.checkBlocked(page.URL(), html, resp, false); err != nil {
		return nil, err
	}

	if err := page.WaitForSelector(ctx, e.ready, remaining(ctx, q.Timeout())); err != nil {
		// A challenge can replace the page after the first check.
		rctx, rcancel := context.WithTimeout(context.WithoutCancel(ctx), blockRecheckTimeout)
		defer rcancel()
		if html, cerr := page.Content(rctx); cerr == nil {
			if berr := e.checkBlocked(page.URL(), html, nil, true); berr != nil {
				return nil, berr
			}
		}
		e.logger.Warnf("Results container did not appear for %q: %v", q.Text(), err)
		return nil, browser.ClassifyNavigation(opSearch, page.URL(), err)
	}

	html, err = page.Content(ctx)
	if err != nil {
		return nil, browser.ClassifyNavigation(opSearch, target, err)
	}
	return &RawResults{Query: q.Text(), URL: page.URL(), HTML: html}, nil
}

func (e *Executor) checkBlocked(pageURL, html string, resp *browser.Response, resultsMissing bool) error {
	if resp != nil && resp.Status == http.StatusTooManyRequests {
		e.logger.Warnf("Provider answered 429 at %s", pageURL)
		return types.NewBlockedError(opSearch, pageURL, "status 429")
	}
	if d, ok := e.opts.Detector.Detect(pageURL, html, resultsMissing); ok {
		e.logger.Warnf("Block page detected at %s (%s)", pageURL, d)
		return types.NewBlockedError(opSearch, pageURL, d.String())
	}
	return nil
}

// remaining is the time left before ctx's deadline, or fallback without one.
func remaining(ctx context.Context, fallback time.Duration) time.Duration {
	if dl, ok := ctx.Deadline(); ok {
		if d := time.Until(dl); d > 0 {
			return d
		}
		return time.Millisecond
	}
	return fallback
}
