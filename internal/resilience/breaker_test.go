package resilience

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{Name: "model", MaxFailures: 2, Cooldown: time.Hour}, quiet())
	boom := errors.New("boom")
	calls := 0
	fail := func(context.Context) error { calls++; return boom }

	ctx := context.Background()
	assert.ErrorIs(t, b.Execute(ctx, fail), boom)
	assert.Equal(t, "closed", b.State())
	assert.ErrorIs(t, b.Execute(ctx, fail), boom)
	assert.Equal(t, "open", b.State())

	err := b.Execute(ctx, fail)
	assert.ErrorIs(t, err, ErrOpen)
	assert.Equal(t, 2, calls)
}

func TestBreakerIgnoresCancellation(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{MaxFailures: 1, Cooldown: time.Hour}, quiet())
	err := b.Execute(context.Background(), func(context.Context) error { return context.Canceled })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "closed", b.State())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	assert.ErrorIs(t, b.Execute(ctx, func(context.Context) error { called = true; return nil }), context.Canceled)
	assert.False(t, called)
}

func TestBreakerRecoversAfterCooldown(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{MaxFailures: 1, Cooldown: 20 * time.Millisecond}, quiet())
	ctx := context.Background()
	_ = b.Execute(ctx, func(context.Context) error { return errors.New("down") })
	require.Equal(t, "open", b.State())

	time.Sleep(40 * time.Millisecond)
	require.NoError(t, b.Execute(ctx, func(context.Context) error { return nil }))
	assert.Equal(t, "closed", b.State())
}
