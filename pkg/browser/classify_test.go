package browser

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/entrhq/scout/pkg/types"
)

func TestClassifyNavigation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want types.ErrorKind
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: types.KindTimeout},
		{name: "driver timeout", err: fmt.Errorf("%w: goto", ErrDriverTimeout), want: types.KindTimeout},
		{name: "dns", err: errors.New("page.goto: net::ERR_NAME_NOT_RESOLVED at https://nope.invalid"), want: types.KindNavigation},
		{name: "reset", err: errors.New("net::ERR_CONNECTION_RESET"), want: types.KindNavigation},
		{name: "other driver error", err: errors.New("target closed"), want: types.KindNavigation},
		{name: "already typed", err: types.NewBlockedError("navigate", "u", "captcha"), want: types.KindBlocked},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ClassifyNavigation("search", "https://x.test", tt.err)
			assert.Equal(t, tt.want, types.KindOf(err))
			var e *types.Error
			if assert.ErrorAs(t, err, &e) {
				assert.Equal(t, "search", e.Op)
			}
		})
	}

	assert.NoError(t, ClassifyNavigation("search", "", nil))
	assert.ErrorIs(t, ClassifyNavigation("search", "", context.Canceled), context.Canceled)
	assert.Equal(t, types.ErrorKind(""), types.KindOf(ClassifyNavigation("search", "", context.Canceled)))
}

func TestClassifyRead(t *testing.T) {
	assert.Equal(t, types.KindTimeout, types.KindOf(ClassifyRead("content", "u", context.DeadlineExceeded)))
	plain := errors.New("boom")
	assert.Equal(t, plain, ClassifyRead("content", "u", plain))
	assert.NoError(t, ClassifyRead("content", "u", nil))
}

func TestIsNetworkError(t *testing.T) {
	assert.True(t, IsNetworkError(errors.New("net::ERR_CONNECTION_REFUSED at http://localhost:1")))
	assert.False(t, IsNetworkError(errors.New("Timeout 30000ms exceeded")))
	assert.False(t, IsNetworkError(errors.New("net::ERR_ABORTED at https://x.test")))
	assert.False(t, IsNetworkError(errors.New("Target page, context or browser has been closed")))
	assert.True(t, IsNetworkError(types.NewNavigationError("search", "https://x.test", errors.New("net::ERR_NAME_NOT_RESOLVED"))))
	assert.False(t, IsNetworkError(nil))
}

func TestAwaitReturnsOnContextDone(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := await(ctx, func() (int, error) {
		<-release
		return 1, nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestAwaitPassesResult(t *testing.T) {
	v, err := await(context.Background(), func() (string, error) { return "ok", nil })
	assert.NoError(t, err)
	assert.Equal(t, "ok", v)
}
