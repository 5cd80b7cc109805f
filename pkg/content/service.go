package content

import (
	"context"
	"unicode/utf8"

	"github.com/entrhq/scout/pkg/browser"
	"github.com/entrhq/scout/pkg/config"
	"github.com/entrhq/scout/pkg/logging"
	"github.com/entrhq/scout/pkg/types"
)

// SessionRunner runs fn inside an acquired browser session.
// *browser.SessionManager implements it.
type SessionRunner interface {
	WithSession(ctx context.Context, cfg browser.SessionConfig, fn func(*browser.Session) error) error
}

// Service fetches pages and converts them to Markdown.
type Service struct {
	sessions  SessionRunner
	fetcher   *Fetcher
	converter *Converter
	logger    *logging.Logger
}

// NewService wires a fetch service.
func NewService(sessions SessionRunner, fetcher *Fetcher, converter *Converter, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	if fetcher == nil {
		fetcher = NewFetcher("", logger.Named("fetcher"))
	}
	if converter == nil {
		converter = NewConverter()
	}
	return &Service{sessions: sessions, fetcher: fetcher, converter: converter, logger: logger}
}

// NewServiceFromConfig builds the fetcher from cfg.
func NewServiceFromConfig(sessions SessionRunner, cfg config.FetchConfig, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	return NewService(sessions, NewFetcherFromConfig(cfg, logger.Named("fetcher")), NewConverter(), logger)
}

// FetchMarkdown loads req.URL in a fresh session and returns it as Markdown.
// The session is released, and its state persisted if configured, before
// any error is returned.
func (s *Service) FetchMarkdown(ctx context.Context, req Request) (*types.MarkdownDocument, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var raw *RawPage
	err := s.sessions.WithSession(ctx, req.Session, func(sess *browser.Session) error {
		var err error
		raw, err = s.fetcher.Fetch(ctx, req, sess)
		return err
	})
	if err != nil {
		s.logger.Errorf("Fetch %s failed: %v", req.URL, err)
		return nil, err
	}

	doc := s.converter.Convert(raw.HTML, raw.URL, req.MaxChars)
	if raw.Title != "" {
		doc.Title = raw.Title
	}
	if doc.Degraded {
		s.logger.Warnf("Converted %s with degraded output: %v", raw.URL, doc.Warnings)
	}
	s.logger.Infof("Fetched %s (%d chars, truncated=%t)", raw.URL, utf8.RuneCountInString(doc.Content), doc.Truncated)
	return &doc, nil
}
