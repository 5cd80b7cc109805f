package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/entrhq/scout/pkg/logging"
	"github.com/entrhq/scout/pkg/types"
)

// ErrPoolClosed is returned by Checkout after Close.
var ErrPoolClosed = errors.New("browser: pool closed")

// PoolOptions configures a Pool.
type PoolOptions struct {
	// MaxBrowsers bounds browsers checked out at once. Defaults to 1.
	MaxBrowsers int

	// Launch is the template for new processes; Headless is set per checkout.
	Launch LaunchOptions

	Logger *logging.Logger
}

// Pool hands out browser processes with checkout/return semantics. Idle
// processes are kept per headless mode and reused; a process is used by one
// checkout at a time.
type Pool struct {
	driver Driver
	opts   PoolOptions
	sem    *semaphore.Weighted
	logger *logging.Logger

	mu     sync.Mutex
	idle   map[bool][]Browser
	out    int
	closed bool
}

// NewPool creates a pool over driver.
func NewPool(driver Driver, opts PoolOptions) *Pool {
	if opts.MaxBrowsers <= 0 {
		opts.MaxBrowsers = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Pool{
		driver: driver,
		opts:   opts,
		sem:    semaphore.NewWeighted(int64(opts.MaxBrowsers)),
		logger: logger,
		idle:   make(map[bool][]Browser),
	}
}

// Checkout returns a connected browser in the requested mode, launching one if
// none is idle. It blocks while MaxBrowsers are checked out. Launch failures
// are EnvironmentErrors.
func (p *Pool) Checkout(ctx context.Context, headless bool) (Browser, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	b, err := p.takeIdle(headless)
	if err != nil {
		p.sem.Release(1)
		return nil, err
	}
	if b != nil {
		return b, nil
	}

	launch := p.opts.Launch
	launch.Headless = headless
	b, err = p.driver.Launch(ctx, launch)
	if err != nil {
		p.sem.Release(1)
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, types.NewEnvironmentError("launch", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		_ = b.Close()
		p.sem.Release(1)
		return nil, ErrPoolClosed
	}
	p.out++
	return b, nil
}

func (p *Pool) takeIdle(headless bool) (Browser, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrPoolClosed
	}
	for len(p.idle[headless]) > 0 {
		list := p.idle[headless]
		b := list[len(list)-1]
		p.idle[headless] = list[:len(list)-1]
		if b.IsConnected() {
			p.out++
			return b, nil
		}
		p.logger.Warnf("Discarding disconnected idle browser")
		_ = b.Close()
	}
	return nil, nil
}

// Return gives a browser back. Disconnected browsers, browsers returned with
// discard set, and anything returned after Close are closed instead of kept.
func (p *Pool) Return(b Browser, headless, discard bool) {
	p.mu.Lock()
	p.out--
	keep := !p.closed && !discard && b.IsConnected()
	if keep {
		p.idle[headless] = append(p.idle[headless], b)
	}
	p.mu.Unlock()

	if !keep {
		if err := b.Close(); err != nil {
			p.logger.Debugf("Closing returned browser: %v", err)
		}
	}
	p.sem.Release(1)
}

// Stats returns the number of idle and checked-out browsers.
func (p *Pool) Stats() (idle, out int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, list := range p.idle {
		idle += len(list)
	}
	return idle, p.out
}

// Close closes idle browsers and rejects further checkouts. Browsers still
// checked out are closed when returned.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	idle := p.idle
	p.idle = make(map[bool][]Browser)
	p.mu.Unlock()

	var errs []error
	for _, list := range idle {
		for _, b := range list {
			if err := b.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors closing browsers: %w", errors.Join(errs...))
	}
	return nil
}
