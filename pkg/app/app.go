// Package app wires configuration, logging, the browser stack and the
// search and fetch services for the scout binaries.
package app

import (
	"context"
	"fmt"
	"os"

	"github.com/entrhq/scout/pkg/browser"
	"github.com/entrhq/scout/pkg/config"
	"github.com/entrhq/scout/pkg/content"
	"github.com/entrhq/scout/pkg/logging"
	"github.com/entrhq/scout/pkg/search"
)

// App holds the long-lived components shared by every command.
type App struct {
	Config  *config.Config
	Logger  *logging.Logger
	Manager *browser.SessionManager
	Search  *search.Service
	Content *content.Service
}

// LoadConfig reads path (empty for defaults), applies environment overrides
// and validates the result.
func LoadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// New configures logging and builds the app on a Playwright driver.
func New(cfg *config.Config) (*App, error) {
	if err := logging.Configure(cfg.LoggingOptions()); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to configure logging: %v\n", err)
	}
	logger, err := logging.NewLogger("scout")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: logging to stderr: %v\n", err)
	}

	driver := browser.NewPlaywrightDriver(browser.PlaywrightOptions{
		Install: cfg.Browser.Install,
		Logger:  logger.Named("playwright"),
	})
	return NewWithDriver(cfg, driver, logger)
}

// NewWithDriver builds the app on driver. A nil logger discards output.
func NewWithDriver(cfg *config.Config, driver browser.Driver, logger *logging.Logger) (*App, error) {
	if logger == nil {
		logger = logging.Discard()
	}

	pool := browser.NewPool(driver, browser.PoolOptions{
		MaxBrowsers: cfg.Browser.MaxBrowsers,
		Launch: browser.LaunchOptions{
			Args:    cfg.Browser.LaunchArgs,
			Timeout: cfg.Browser.LaunchTimeout,
		},
		Logger: logger.Named("pool"),
	})
	mgr := browser.NewSessionManager(pool, driver, logger.Named("sessions"))

	searchSvc, err := search.NewServiceFromConfig(mgr, cfg.Search, logger.Named("search"))
	if err != nil {
		_ = mgr.Shutdown(context.Background())
		return nil, fmt.Errorf("failed to create search service: %w", err)
	}

	return &App{
		Config:  cfg,
		Logger:  logger,
		Manager: mgr,
		Search:  searchSvc,
		Content: content.NewServiceFromConfig(mgr, cfg.Fetch, logger.Named("content")),
	}, nil
}

// SessionConfig returns the session settings from the browser section.
func (a *App) SessionConfig() browser.SessionConfig {
	b := a.Config.Browser
	return browser.SessionConfig{
		Headless:      b.Headless,
		StateFile:     b.StateFile,
		SaveState:     b.SaveState,
		Viewport:      browser.Viewport{Width: b.Viewport.Width, Height: b.Viewport.Height},
		Locale:        b.Locale,
		Timezone:      b.Timezone,
		SearchDomains: a.Config.Search.Domains,
	}
}

// Close releases every live session, stops the browsers and flushes logs.
func (a *App) Close(ctx context.Context) error {
	err := a.Manager.Shutdown(ctx)
	if cerr := logging.Close(); err == nil {
		err = cerr
	}
	return err
}
