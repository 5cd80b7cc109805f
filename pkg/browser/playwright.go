package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/scout/pkg/logging"
)

// PlaywrightOptions configures PlaywrightDriver.
type PlaywrightOptions struct {
	// Install downloads the driver and Chromium before the first launch.
	Install bool

	Logger *logging.Logger
}

// PlaywrightDriver implements Driver on top of playwright-go. The Playwright
// server is started lazily on the first Launch.
type PlaywrightDriver struct {
	mu      sync.Mutex
	opts    PlaywrightOptions
	pw      *playwright.Playwright
	started bool
	logger  *logging.Logger
}

// NewPlaywrightDriver creates a driver. No process is started until Launch.
func NewPlaywrightDriver(opts PlaywrightOptions) *PlaywrightDriver {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &PlaywrightDriver{opts: opts, logger: logger}
}

func (d *PlaywrightDriver) start() (*playwright.Playwright, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		return d.pw, nil
	}

	// Discard driver output so it cannot interleave with JSON on stdout.
	runOpts := &playwright.RunOptions{
		Browsers: []string{"chromium"},
		Verbose:  false,
		Stdout:   io.Discard,
		Stderr:   io.Discard,
	}

	if d.opts.Install {
		d.logger.Infof("Installing Playwright driver and Chromium")
		if err := playwright.Install(runOpts); err != nil {
			return nil, fmt.Errorf("failed to install playwright: %w", err)
		}
	}

	pw, err := playwright.Run(runOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	d.pw = pw
	d.started = true
	return pw, nil
}

// Launch starts Chromium with ChromiumArgs plus opts.Args.
func (d *PlaywrightDriver) Launch(ctx context.Context, opts LaunchOptions) (Browser, error) {
	pw, err := d.start()
	if err != nil {
		return nil, err
	}

	args := make([]string, 0, len(ChromiumArgs)+len(opts.Args))
	args = append(args, ChromiumArgs...)
	args = append(args, opts.Args...)

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless:          playwright.Bool(opts.Headless),
		Args:              args,
		IgnoreDefaultArgs: IgnoredDefaultArgs,
	}
	if opts.Timeout > 0 {
		launchOpts.Timeout = playwright.Float(millis(opts.Timeout))
	}

	mode := "headless"
	if !opts.Headless {
		mode = "headed"
	}
	d.logger.Infof("Launching Chromium in %s mode", mode)

	b, err := await(ctx, func() (playwright.Browser, error) {
		return pw.Chromium.Launch(launchOpts)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", translate(err))
	}
	return &pwBrowser{pw: pw, browser: b}, nil
}

// Stop shuts the Playwright server down.
func (d *PlaywrightDriver) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.started || d.pw == nil {
		return nil
	}
	d.started = false
	if err := d.pw.Stop(); err != nil {
		return fmt.Errorf("failed to stop playwright: %w", err)
	}
	return nil
}

type pwBrowser struct {
	pw      *playwright.Playwright
	browser playwright.Browser
}

func (b *pwBrowser) NewContext(ctx context.Context, opts ContextOptions) (BrowserContext, error) {
	contextOpts := playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  opts.Viewport.Width,
			Height: opts.Viewport.Height,
		},
		Permissions:       []string{"geolocation", "notifications"},
		AcceptDownloads:   playwright.Bool(true),
		IsMobile:          playwright.Bool(false),
		HasTouch:          playwright.Bool(false),
		JavaScriptEnabled: playwright.Bool(true),
	}

	if device, ok := b.pw.Devices[opts.DeviceName]; ok && device != nil {
		contextOpts.UserAgent = playwright.String(device.UserAgent)
		if device.DeviceScaleFactor > 0 {
			contextOpts.DeviceScaleFactor = playwright.Float(device.DeviceScaleFactor)
		}
	}
	if opts.Locale != "" {
		contextOpts.Locale = playwright.String(opts.Locale)
	}
	if opts.TimezoneID != "" {
		contextOpts.TimezoneId = playwright.String(opts.TimezoneID)
	}
	if opts.ColorScheme != "" {
		cs := playwright.ColorScheme(opts.ColorScheme)
		contextOpts.ColorScheme = &cs
	}
	if opts.ReducedMotion != "" {
		rm := playwright.ReducedMotion(opts.ReducedMotion)
		contextOpts.ReducedMotion = &rm
	}
	if opts.ForcedColors != "" {
		fc := playwright.ForcedColors(opts.ForcedColors)
		contextOpts.ForcedColors = &fc
	}
	if len(opts.StorageState) > 0 {
		var state playwright.OptionalStorageState
		if err := json.Unmarshal(opts.StorageState, &state); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidState, err)
		}
		contextOpts.StorageState = &state
	}

	bctx, err := await(ctx, func() (playwright.BrowserContext, error) {
		return b.browser.NewContext(contextOpts)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create context: %w", translate(err))
	}

	if opts.InitScript != "" {
		if err := bctx.AddInitScript(playwright.Script{Content: playwright.String(opts.InitScript)}); err != nil {
			_ = bctx.Close()
			return nil, fmt.Errorf("failed to add init script: %w", err)
		}
	}
	return &pwContext{ctx: bctx}, nil
}

func (b *pwBrowser) IsConnected() bool {
	return b.browser.IsConnected()
}

func (b *pwBrowser) Close() error {
	return b.browser.Close()
}

type pwContext struct {
	ctx playwright.BrowserContext
}

func (c *pwContext) NewPage(ctx context.Context) (Page, error) {
	p, err := await(ctx, func() (playwright.Page, error) {
		return c.ctx.NewPage()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", translate(err))
	}
	return &pwPage{page: p}, nil
}

func (c *pwContext) StorageState(ctx context.Context) ([]byte, error) {
	state, err := await(ctx, func() (*playwright.StorageState, error) {
		return c.ctx.StorageState()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read storage state: %w", translate(err))
	}
	return json.Marshal(state)
}

func (c *pwContext) Close() error {
	return c.ctx.Close()
}

type pwPage struct {
	page playwright.Page
}

func (p *pwPage) Goto(ctx context.Context, url string, opts GotoOptions) (*Response, error) {
	gotoOpts := playwright.PageGotoOptions{}
	if opts.WaitUntil != "" {
		waitUntil := playwright.WaitUntilState(opts.WaitUntil)
		gotoOpts.WaitUntil = &waitUntil
	}
	if opts.Timeout > 0 {
		gotoOpts.Timeout = playwright.Float(millis(opts.Timeout))
	}

	resp, err := await(ctx, func() (playwright.Response, error) {
		return p.page.Goto(url, gotoOpts)
	})
	if err != nil {
		return nil, translate(err)
	}
	if resp == nil {
		return nil, nil
	}
	return &Response{Status: resp.Status(), URL: resp.URL()}, nil
}

func (p *pwPage) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	waitOpts := playwright.PageWaitForSelectorOptions{
		State: playwright.WaitForSelectorStateAttached,
	}
	if timeout > 0 {
		waitOpts.Timeout = playwright.Float(millis(timeout))
	}
	_, err := await(ctx, func() (playwright.ElementHandle, error) {
		return p.page.WaitForSelector(selector, waitOpts)
	})
	return translate(err)
}

func (p *pwPage) Content(ctx context.Context) (string, error) {
	html, err := await(ctx, p.page.Content)
	return html, translate(err)
}

func (p *pwPage) Title(ctx context.Context) (string, error) {
	title, err := await(ctx, p.page.Title)
	return title, translate(err)
}

func (p *pwPage) URL() string {
	return p.page.URL()
}

func (p *pwPage) Screenshot(ctx context.Context, path string, fullPage bool) error {
	_, err := await(ctx, func() ([]byte, error) {
		return p.page.Screenshot(playwright.PageScreenshotOptions{
			Path:     playwright.String(path),
			FullPage: playwright.Bool(fullPage),
		})
	})
	return translate(err)
}

func (p *pwPage) Close() error {
	return p.page.Close()
}

// translate marks Playwright timeouts with ErrDriverTimeout.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, playwright.ErrTimeout) {
		return fmt.Errorf("%w: %w", ErrDriverTimeout, err)
	}
	return err
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
