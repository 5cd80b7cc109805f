// Package browsertest provides an in-memory browser.Driver for tests.
//
// Pages are served from Routes keyed by URL. The fake understands enough of
// the DOM (through goquery) to answer WaitForSelector and Title, keeps a
// per-context cookie jar that round-trips through StorageState, and records
// every navigation so tests can assert on retries.
package browsertest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/entrhq/scout/pkg/browser"
)

// Route is the scripted response for one URL.
type Route struct {
	// Status defaults to 200.
	Status int
	HTML   string

	// FinalURL is the URL after redirects. Defaults to the requested URL.
	FinalURL string

	// Err is returned by Goto. ErrSequence, if set, is consumed first, one
	// error per navigation, and a nil entry means success.
	Err         error
	ErrSequence []error

	// Hang makes Goto block until its context is done.
	Hang bool

	// Delay is spent inside Goto before responding.
	Delay time.Duration

	// SetCookies are added to the context's jar on navigation.
	SetCookies map[string]string
}

// Driver is a fake browser.Driver.
type Driver struct {
	mu sync.Mutex

	// Routes maps a URL, or a URL prefix ending in "*", to its response.
	Routes map[string]*Route

	// LaunchErr fails every Launch.
	LaunchErr error

	launches    int
	stopped     bool
	browsers    []*Browser
	contexts    []*Context
	navigations []string
}

// NewDriver creates a driver with no routes.
func NewDriver() *Driver {
	return &Driver{Routes: make(map[string]*Route)}
}

// Handle registers a route.
func (d *Driver) Handle(url string, r *Route) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Routes[url] = r
}

func (d *Driver) route(url string) *Route {
	d.mu.Lock()
	defer d.mu.Unlock()
	if r, ok := d.Routes[url]; ok {
		return r
	}
	// Longest matching prefix wins.
	var best string
	for k := range d.Routes {
		if p, ok := strings.CutSuffix(k, "*"); ok && strings.HasPrefix(url, p) && len(p) > len(best) {
			best = k
		}
	}
	if best != "" {
		return d.Routes[best]
	}
	return nil
}

func (d *Driver) nextErr(r *Route) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(r.ErrSequence) > 0 {
		err := r.ErrSequence[0]
		r.ErrSequence = r.ErrSequence[1:]
		return err
	}
	return r.Err
}

// Launch implements browser.Driver.
func (d *Driver) Launch(ctx context.Context, opts browser.LaunchOptions) (browser.Browser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.LaunchErr != nil {
		return nil, d.LaunchErr
	}
	d.launches++
	b := &Browser{driver: d, Headless: opts.Headless, connected: true}
	d.browsers = append(d.browsers, b)
	return b, nil
}

// Stop implements browser.Driver.
func (d *Driver) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	return nil
}

// Launches returns the number of successful launches.
func (d *Driver) Launches() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.launches
}

// Stopped reports whether Stop was called.
func (d *Driver) Stopped() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stopped
}

// Navigations returns every URL passed to Goto, in order.
func (d *Driver) Navigations() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.navigations...)
}

// Contexts returns every context created so far.
func (d *Driver) Contexts() []*Context {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Context(nil), d.contexts...)
}

// Browsers returns every browser launched so far.
func (d *Driver) Browsers() []*Browser {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Browser(nil), d.browsers...)
}

// Browser is a fake browser process.
type Browser struct {
	driver   *Driver
	Headless bool

	mu        sync.Mutex
	connected bool
	closed    bool
}

// NewContext implements browser.Browser.
func (b *Browser) NewContext(ctx context.Context, opts browser.ContextOptions) (browser.BrowserContext, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	jar := make(map[string]string)
	if len(opts.StorageState) > 0 {
		var st storageState
		if err := json.Unmarshal(opts.StorageState, &st); err != nil {
			return nil, fmt.Errorf("%w: %v", browser.ErrInvalidState, err)
		}
		for _, c := range st.Cookies {
			jar[c.Name] = c.Value
		}
	}
	c := &Context{driver: b.driver, Options: opts, jar: jar}

	b.driver.mu.Lock()
	b.driver.contexts = append(b.driver.contexts, c)
	b.driver.mu.Unlock()
	return c, nil
}

// IsConnected implements browser.Browser.
func (b *Browser) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

// Disconnect simulates a crashed browser process.
func (b *Browser) Disconnect() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = false
}

// Close implements browser.Browser.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = false
	b.closed = true
	return nil
}

// Closed reports whether Close was called.
func (b *Browser) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

type cookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type storageState struct {
	Cookies []cookie          `json:"cookies"`
	Origins []json.RawMessage `json:"origins"`
}

// Context is a fake browser context.
type Context struct {
	driver *Driver

	// Options are the options the context was created with.
	Options browser.ContextOptions

	mu            sync.Mutex
	jar           map[string]string
	closed        bool
	pages         int
	openPages     int
	active        int
	maxConcurrent int
}

// NewPage implements browser.BrowserContext.
func (c *Context) NewPage(ctx context.Context) (browser.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, errors.New("context closed")
	}
	c.pages++
	c.openPages++
	return &Page{ctx: c, url: "about:blank"}, nil
}

// StorageState implements browser.BrowserContext.
func (c *Context) StorageState(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	st := storageState{Cookies: []cookie{}, Origins: []json.RawMessage{}}
	for name, value := range c.jar {
		st.Cookies = append(st.Cookies, cookie{Name: name, Value: value})
	}
	sort.Slice(st.Cookies, func(i, j int) bool { return st.Cookies[i].Name < st.Cookies[j].Name })
	return json.Marshal(st)
}

// Close implements browser.BrowserContext.
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Closed reports whether Close was called.
func (c *Context) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Cookies returns a copy of the cookie jar.
func (c *Context) Cookies() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]string, len(c.jar))
	for k, v := range c.jar {
		out[k] = v
	}
	return out
}

// OpenPages returns the number of pages not yet closed.
func (c *Context) OpenPages() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.openPages
}

// MaxConcurrentNavigations returns the highest number of Goto calls seen
// running at once on this context.
func (c *Context) MaxConcurrentNavigations() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maxConcurrent
}

// Page is a fake tab.
type Page struct {
	ctx *Context

	mu     sync.Mutex
	url    string
	html   string
	closed bool
}

// Goto implements browser.Page.
func (p *Page) Goto(ctx context.Context, url string, opts browser.GotoOptions) (*browser.Response, error) {
	d := p.ctx.driver
	d.mu.Lock()
	d.navigations = append(d.navigations, url)
	d.mu.Unlock()

	p.ctx.mu.Lock()
	p.ctx.active++
	if p.ctx.active > p.ctx.maxConcurrent {
		p.ctx.maxConcurrent = p.ctx.active
	}
	p.ctx.mu.Unlock()
	defer func() {
		p.ctx.mu.Lock()
		p.ctx.active--
		p.ctx.mu.Unlock()
	}()

	r := d.route(url)
	if r == nil {
		return nil, fmt.Errorf("page.goto: net::ERR_NAME_NOT_RESOLVED at %s", url)
	}

	if r.Hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if r.Delay > 0 {
		select {
		case <-time.After(r.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := d.nextErr(r); err != nil {
		return nil, err
	}

	final := r.FinalURL
	if final == "" {
		final = url
	}
	status := r.Status
	if status == 0 {
		status = 200
	}

	p.mu.Lock()
	p.url = final
	p.html = r.HTML
	p.mu.Unlock()

	if len(r.SetCookies) > 0 {
		p.ctx.mu.Lock()
		for k, v := range r.SetCookies {
			p.ctx.jar[k] = v
		}
		p.ctx.mu.Unlock()
	}
	return &browser.Response{Status: status, URL: final}, nil
}

func (p *Page) document() (*goquery.Document, error) {
	p.mu.Lock()
	html := p.html
	p.mu.Unlock()
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

// WaitForSelector implements browser.Page. A selector that is absent waits
// out the full timeout and then fails with browser.ErrDriverTimeout.
func (p *Page) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	doc, err := p.document()
	if err != nil {
		return err
	}
	if doc.Find(selector).Length() > 0 {
		return nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-timer.C:
		return fmt.Errorf("%w: waiting for %q", browser.ErrDriverTimeout, selector)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Content implements browser.Page.
func (p *Page) Content(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.html, nil
}

// Title implements browser.Page.
func (p *Page) Title(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	doc, err := p.document()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(doc.Find("title").First().Text()), nil
}

// URL implements browser.Page.
func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

// Screenshot implements browser.Page by writing a placeholder file.
func (p *Page) Screenshot(ctx context.Context, path string, fullPage bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return os.WriteFile(path, []byte("\x89PNG fake"), 0600)
}

// Close implements browser.Page.
func (p *Page) Close() error {
	p.mu.Lock()
	wasClosed := p.closed
	p.closed = true
	p.mu.Unlock()

	if !wasClosed {
		p.ctx.mu.Lock()
		p.ctx.openPages--
		p.ctx.mu.Unlock()
	}
	return nil
}

var (
	_ browser.Driver         = (*Driver)(nil)
	_ browser.Browser        = (*Browser)(nil)
	_ browser.BrowserContext = (*Context)(nil)
	_ browser.Page           = (*Page)(nil)
)
