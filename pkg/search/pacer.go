package search

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/entrhq/scout/pkg/config"
)

// Pacer spaces out provider navigations: a token bucket bounds the rate and a
// random jitter keeps the spacing irregular. One Pacer should be shared by
// every executor talking to the same provider.
type Pacer struct {
	limiter  *rate.Limiter
	minDelay time.Duration
	maxDelay time.Duration

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewPacer creates a pacer. A zero rate disables the token bucket.
func NewPacer(cfg config.PacingConfig) *Pacer {
	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Limit(cfg.RequestsPerMinute / 60)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Pacer{
		limiter:  rate.NewLimiter(limit, burst),
		minDelay: cfg.MinDelay,
		maxDelay: cfg.MaxDelay,
		rnd:      rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x5c07)),
	}
}

// Wait blocks until the next navigation may start or ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	if err := p.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		// The limiter refuses waits that would outlast the deadline.
		return context.DeadlineExceeded
	}

	d := p.jitter()
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pacer) jitter() time.Duration {
	if p.maxDelay <= p.minDelay {
		return p.minDelay
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.minDelay + time.Duration(p.rnd.Int64N(int64(p.maxDelay-p.minDelay)+1))
}
