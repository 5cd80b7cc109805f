package search

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/entrhq/scout/pkg/config"
)

func TestPacerJitterBounds(t *testing.T) {
	p := NewPacer(config.PacingConfig{MinDelay: 10 * time.Millisecond, MaxDelay: 20 * time.Millisecond})
	for i := 0; i < 100; i++ {
		d := p.jitter()
		assert.GreaterOrEqual(t, d, 10*time.Millisecond)
		assert.LessOrEqual(t, d, 20*time.Millisecond)
	}

	fixed := NewPacer(config.PacingConfig{MinDelay: 5 * time.Millisecond, MaxDelay: 5 * time.Millisecond})
	assert.Equal(t, 5*time.Millisecond, fixed.jitter())
}

func TestPacerDisabled(t *testing.T) {
	p := NewPacer(config.PacingConfig{})
	start := time.Now()
	for i := 0; i < 5; i++ {
		assert.NoError(t, p.Wait(context.Background()))
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestPacerRateLimits(t *testing.T) {
	// 1200 per minute is one every 50ms.
	p := NewPacer(config.PacingConfig{RequestsPerMinute: 1200, Burst: 1})
	ctx := context.Background()

	start := time.Now()
	assert.NoError(t, p.Wait(ctx))
	assert.NoError(t, p.Wait(ctx))
	assert.NoError(t, p.Wait(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestPacerRespectsContext(t *testing.T) {
	p := NewPacer(config.PacingConfig{RequestsPerMinute: 1, Burst: 1})
	assert.NoError(t, p.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := p.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	cancelled, cancelNow := context.WithCancel(context.Background())
	cancelNow()
	jittery := NewPacer(config.PacingConfig{MinDelay: time.Second, MaxDelay: time.Second})
	assert.ErrorIs(t, jittery.Wait(cancelled), context.Canceled)
}
