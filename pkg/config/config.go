// Package config loads scout's YAML configuration.
//
// Values come from three layers, later layers winning: DefaultConfig, the
// YAML file passed to Load, and environment variables applied by ApplyEnv.
// Command-line flags are applied on top by the binaries.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/entrhq/scout/pkg/logging"
)

// Config is the root configuration document.
type Config struct {
	Browser BrowserConfig `yaml:"browser" json:"browser"`
	Search  SearchConfig  `yaml:"search" json:"search"`
	Fetch   FetchConfig   `yaml:"fetch" json:"fetch"`
	Logging LoggingConfig `yaml:"logging" json:"logging"`

	// FilePath is the file this config was loaded from, if any.
	FilePath string `yaml:"-" json:"-"`
}

// BrowserConfig controls browser launch and session persistence.
type BrowserConfig struct {
	Headless  bool           `yaml:"headless" json:"headless"`
	StateFile string         `yaml:"state_file" json:"state_file"`
	SaveState bool           `yaml:"save_state" json:"save_state"`
	Viewport  ViewportConfig `yaml:"viewport" json:"viewport"`
	Locale    string         `yaml:"locale" json:"locale"`
	Timezone  string         `yaml:"timezone" json:"timezone"`

	// Install downloads the browser build before first launch.
	Install bool `yaml:"install" json:"install"`

	// MaxBrowsers bounds concurrently checked-out browser processes.
	MaxBrowsers int `yaml:"max_browsers" json:"max_browsers"`

	// LaunchArgs are appended to the built-in Chromium flags.
	LaunchArgs    []string      `yaml:"launch_args" json:"launch_args"`
	LaunchTimeout time.Duration `yaml:"launch_timeout" json:"launch_timeout"`
}

// ViewportConfig is the page viewport in CSS pixels.
type ViewportConfig struct {
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`
}

// SearchConfig controls query submission against the provider.
type SearchConfig struct {
	// Domains are candidate provider origins; one is picked per identity.
	Domains  []string `yaml:"domains" json:"domains"`
	Language string   `yaml:"language" json:"language"`

	DefaultLimit int           `yaml:"default_limit" json:"default_limit"`
	Timeout      time.Duration `yaml:"timeout" json:"timeout"`

	// ReadySelectors signal that the results container has rendered.
	ReadySelectors []string `yaml:"ready_selectors" json:"ready_selectors"`

	Pacing PacingConfig `yaml:"pacing" json:"pacing"`
	Block  BlockConfig  `yaml:"block" json:"block"`
}

// PacingConfig spaces out provider navigations.
type PacingConfig struct {
	RequestsPerMinute float64       `yaml:"requests_per_minute" json:"requests_per_minute"`
	Burst             int           `yaml:"burst" json:"burst"`
	MinDelay          time.Duration `yaml:"min_delay" json:"min_delay"`
	MaxDelay          time.Duration `yaml:"max_delay" json:"max_delay"`
}

// BlockConfig holds the markers used to recognise block and challenge pages.
type BlockConfig struct {
	URLPatterns []string `yaml:"url_patterns" json:"url_patterns"`
	TextMarkers []string `yaml:"text_markers" json:"text_markers"`
	Selectors   []string `yaml:"selectors" json:"selectors"`
}

// FetchConfig controls arbitrary page retrieval.
type FetchConfig struct {
	Timeout  time.Duration `yaml:"timeout" json:"timeout"`
	MaxChars int           `yaml:"max_chars" json:"max_chars"`

	// WaitUntil is the load signal: load, domcontentloaded or networkidle.
	WaitUntil string `yaml:"wait_until" json:"wait_until"`
}

// LoggingConfig configures the rotated log file.
type LoggingConfig struct {
	Level      string `yaml:"level" json:"level"`
	Dir        string `yaml:"dir" json:"dir"`
	MaxSizeMB  int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	Stderr     bool   `yaml:"stderr" json:"stderr"`
}

// Default values
const (
	DefaultStateFile      = "./browser-state.json"
	DefaultLimit          = 10
	DefaultSearchTimeout  = 60 * time.Second
	DefaultFetchTimeout   = 60 * time.Second
	DefaultMaxChars       = 250000
	DefaultViewportWidth  = 1920
	DefaultViewportHeight = 1080
	DefaultMaxBrowsers    = 4
)

// DefaultConfig returns a configuration suitable for most use cases
func DefaultConfig() *Config {
	return &Config{
		Browser: BrowserConfig{
			Headless:  true,
			StateFile: DefaultStateFile,
			SaveState: true,
			Viewport: ViewportConfig{
				Width:  DefaultViewportWidth,
				Height: DefaultViewportHeight,
			},
			Locale:        "en-US",
			Timezone:      "America/New_York",
			MaxBrowsers:   DefaultMaxBrowsers,
			LaunchTimeout: 60 * time.Second,
		},
		Search: SearchConfig{
			Domains: []string{
				"https://www.google.com",
				"https://www.google.co.uk",
				"https://www.google.ca",
				"https://www.google.com.au",
			},
			Language:     "en",
			DefaultLimit: DefaultLimit,
			Timeout:      DefaultSearchTimeout,
			ReadySelectors: []string{
				"#search",
				"#rso",
				".g",
				"[data-sokoban-container]",
				"div[role='main']",
			},
			Pacing: PacingConfig{
				RequestsPerMinute: 6,
				Burst:             1,
				MinDelay:          100 * time.Millisecond,
				MaxDelay:          300 * time.Millisecond,
			},
			Block: BlockConfig{
				URLPatterns: []string{
					"*://*google.*/sorry*",
					"*recaptcha*",
					"*://consent.google.*",
				},
				TextMarkers: []string{
					"unusual traffic from your computer network",
					"our systems have detected unusual traffic",
					"detected unusual traffic",
					"not a robot",
				},
				Selectors: []string{
					"#captcha-form",
					"form[action*='/sorry/']",
					"iframe[src*='recaptcha']",
					"form[action*='consent.google']",
					"div.g-recaptcha",
				},
			},
		},
		Fetch: FetchConfig{
			Timeout:   DefaultFetchTimeout,
			MaxChars:  DefaultMaxChars,
			WaitUntil: "networkidle",
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// Load reads a YAML file over DefaultConfig. An empty path returns the
// defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.FilePath = path
	return cfg, nil
}

// ApplyEnv overrides values from environment variables. lookup is usually
// os.LookupEnv.
//
//	SCOUT_HEADLESS   true/false
//	HEADLESS         any value starting with "t" enables headless mode
//	SCOUT_STATE_FILE path to the session state file
//	SCOUT_LOG_LEVEL  debug, info, warn or error
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("HEADLESS"); ok {
		c.Browser.Headless = strings.HasPrefix(strings.ToLower(v), "t")
	}
	if v, ok := lookup("SCOUT_HEADLESS"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid SCOUT_HEADLESS %q: %w", v, err)
		}
		c.Browser.Headless = b
	}
	if v, ok := lookup("SCOUT_STATE_FILE"); ok {
		c.Browser.StateFile = v
	}
	if v, ok := lookup("SCOUT_LOG_LEVEL"); ok {
		c.Logging.Level = v
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	vp := c.Browser.Viewport
	if vp.Width < 100 || vp.Width > 5000 {
		return fmt.Errorf("viewport width must be between 100 and 5000 pixels")
	}
	if vp.Height < 100 || vp.Height > 5000 {
		return fmt.Errorf("viewport height must be between 100 and 5000 pixels")
	}
	if c.Browser.MaxBrowsers <= 0 {
		return fmt.Errorf("max_browsers must be positive")
	}
	if c.Browser.LaunchTimeout < 0 {
		return fmt.Errorf("launch_timeout cannot be negative")
	}

	if len(c.Search.Domains) == 0 {
		return fmt.Errorf("at least one search domain is required")
	}
	for _, d := range c.Search.Domains {
		u, err := url.Parse(d)
		if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
			return fmt.Errorf("invalid search domain %q (must be an absolute http(s) URL)", d)
		}
	}
	if c.Search.DefaultLimit <= 0 {
		return fmt.Errorf("search default_limit must be positive")
	}
	if c.Search.Timeout <= 0 {
		return fmt.Errorf("search timeout must be positive")
	}
	if len(c.Search.ReadySelectors) == 0 {
		return fmt.Errorf("at least one search ready selector is required")
	}

	p := c.Search.Pacing
	if p.RequestsPerMinute < 0 {
		return fmt.Errorf("pacing requests_per_minute cannot be negative")
	}
	if p.MinDelay < 0 || p.MaxDelay < 0 {
		return fmt.Errorf("pacing delays cannot be negative")
	}
	if p.MaxDelay < p.MinDelay {
		return fmt.Errorf("pacing max_delay must not be less than min_delay")
	}

	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("fetch timeout must be positive")
	}
	if c.Fetch.MaxChars <= 0 {
		return fmt.Errorf("fetch max_chars must be positive")
	}
	switch c.Fetch.WaitUntil {
	case "load", "domcontentloaded", "networkidle", "commit":
	default:
		return fmt.Errorf("invalid fetch wait_until: %s (must be 'load', 'domcontentloaded', 'networkidle' or 'commit')", c.Fetch.WaitUntil)
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	return nil
}

// LoggingOptions converts the logging section for logging.Configure.
func (c *Config) LoggingOptions() logging.Options {
	level, _ := logging.ParseLevel(c.Logging.Level)
	return logging.Options{
		Dir:        c.Logging.Dir,
		Level:      level,
		MaxSizeMB:  c.Logging.MaxSizeMB,
		MaxBackups: c.Logging.MaxBackups,
		Stderr:     c.Logging.Stderr,
	}
}
