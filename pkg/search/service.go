package search

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/entrhq/scout/pkg/browser"
	"github.com/entrhq/scout/pkg/config"
	"github.com/entrhq/scout/pkg/logging"
	"github.com/entrhq/scout/pkg/types"
)

// DefaultHTMLDir is where raw results pages are saved when no path is given.
const DefaultHTMLDir = "./search-html"

// SessionRunner runs fn inside an acquired browser session.
// *browser.SessionManager implements it.
type SessionRunner interface {
	WithSession(ctx context.Context, cfg browser.SessionConfig, fn func(*browser.Session) error) error
}

// Options describes one search call.
type Options struct {
	Query   string
	Limit   int
	Timeout time.Duration
	Session browser.SessionConfig
}

// HTMLOptions controls raw-HTML mode.
type HTMLOptions struct {
	// Save writes the cleaned HTML to OutputPath and a full-page screenshot
	// next to it.
	Save bool

	// OutputPath defaults to DefaultHTMLDir/<query>-<timestamp>.html.
	OutputPath string
}

// Service runs searches end to end: acquire a session, execute, extract.
type Service struct {
	sessions  SessionRunner
	executor  *Executor
	extractor *Extractor
	logger    *logging.Logger
	now       func() time.Time
}

// NewService wires a search service.
func NewService(sessions SessionRunner, executor *Executor, extractor *Extractor, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	if extractor == nil {
		extractor = NewExtractor()
	}
	return &Service{
		sessions:  sessions,
		executor:  executor,
		extractor: extractor,
		logger:    logger,
		now:       time.Now,
	}
}

// NewServiceFromConfig builds the executor, detector and pacer from cfg.
func NewServiceFromConfig(sessions SessionRunner, cfg config.SearchConfig, logger *logging.Logger) (*Service, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	detector, err := NewMarkerDetector(cfg.Block)
	if err != nil {
		return nil, err
	}
	defaultDomain := ""
	if len(cfg.Domains) > 0 {
		defaultDomain = cfg.Domains[0]
	}
	executor := NewExecutor(ExecutorOptions{
		Detector:       detector,
		Pacer:          NewPacer(cfg.Pacing),
		ReadySelectors: cfg.ReadySelectors,
		Language:       cfg.Language,
		DefaultDomain:  defaultDomain,
		Logger:         logger.Named("executor"),
	})
	return NewService(sessions, executor, NewExtractor(), logger), nil
}

// Search returns up to opts.Limit structured results for opts.Query.
func (s *Service) Search(ctx context.Context, opts Options) (*types.SearchResponse, error) {
	q, err := NewQuery(opts.Query, opts.Limit, opts.Timeout)
	if err != nil {
		return nil, err
	}

	var resp *types.SearchResponse
	err = s.sessions.WithSession(ctx, opts.Session, func(sess *browser.Session) error {
		raw, err := s.executor.Execute(ctx, q, sess)
		if err != nil {
			return err
		}
		results := s.extractor.Extract(raw.HTML, raw.URL, q.Limit())
		if len(results) == 0 {
			s.logger.Warnf("No results extracted for %q from %s", q.Text(), raw.URL)
		}
		resp = &types.SearchResponse{Query: q.Text(), Results: results, URL: raw.URL}
		return nil
	})
	if err != nil {
		s.logger.Errorf("Search %q failed: %v", q.Text(), err)
		return nil, err
	}
	s.logger.Infof("Search %q returned %d results", q.Text(), len(resp.Results))
	return resp, nil
}

// SearchHTML returns the results page itself with scripts and styles removed,
// bypassing extraction.
func (s *Service) SearchHTML(ctx context.Context, opts Options, htmlOpts HTMLOptions) (*types.HTMLResponse, error) {
	q, err := NewQuery(opts.Query, opts.Limit, opts.Timeout)
	if err != nil {
		return nil, err
	}

	var resp *types.HTMLResponse
	err = s.sessions.WithSession(ctx, opts.Session, func(sess *browser.Session) error {
		var capture func(context.Context, browser.Page) error
		var savedPath, shotPath string
		if htmlOpts.Save {
			savedPath = htmlOpts.OutputPath
			if savedPath == "" {
				savedPath = filepath.Join(DefaultHTMLDir, fmt.Sprintf("%s-%s.html", sanitizeQuery(q.Text()), s.now().Format("20060102_150405")))
			}
			shotPath = strings.TrimSuffix(savedPath, filepath.Ext(savedPath)) + ".png"
			if err := os.MkdirAll(filepath.Dir(savedPath), 0750); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
			capture = func(ctx context.Context, page browser.Page) error {
				if err := page.Screenshot(ctx, shotPath, true); err != nil {
					return fmt.Errorf("failed to capture screenshot: %w", err)
				}
				return nil
			}
		}

		raw, err := s.executor.ExecuteAndCapture(ctx, q, sess, capture)
		if err != nil {
			return err
		}

		cleaned := StripScripts(raw.HTML)
		resp = &types.HTMLResponse{
			Query:              q.Text(),
			HTML:               cleaned,
			URL:                raw.URL,
			OriginalHTMLLength: len(raw.HTML),
		}
		if htmlOpts.Save {
			if err := os.WriteFile(savedPath, []byte(cleaned), 0644); err != nil {
				return fmt.Errorf("failed to save html: %w", err)
			}
			resp.SavedPath = savedPath
			resp.ScreenshotPath = shotPath
			s.logger.Infof("Saved results page to %s", savedPath)
		}
		return nil
	})
	if err != nil {
		s.logger.Errorf("Search HTML %q failed: %v", q.Text(), err)
		return nil, err
	}
	return resp, nil
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9]`)

// sanitizeQuery makes a query safe for use as a file name.
func sanitizeQuery(q string) string {
	s := unsafeChars.ReplaceAllString(q, "_")
	if len(s) > 50 {
		s = s[:50]
	}
	return s
}

// StripScripts removes script and style elements. Unparseable input is
// returned unchanged.
func StripScripts(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}
	doc.Find("script, style").Remove()
	out, err := doc.Html()
	if err != nil {
		return html
	}
	return out
}
