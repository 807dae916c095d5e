package bot

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/edgard/chanwatch/internal/bot/tasks"
	"github.com/edgard/chanwatch/internal/config"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type blockingListener struct{ started atomic.Bool }

func (l *blockingListener) Start(ctx context.Context) {
	l.started.Store(true)
	<-ctx.Done()
}

type returningListener struct{}

func (returningListener) Start(context.Context) {}

type fakeCloser struct{ closed atomic.Int32 }

func (c *fakeCloser) Close(context.Context) error {
	c.closed.Add(1)
	return nil
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestRunStopsOnCancel(t *testing.T) {
	sched, err := NewScheduler(discard(), &config.SchedulerConfig{}, nil)
	require.NoError(t, err)

	listener := &blockingListener{}
	closer := &fakeCloser{}
	b := NewBot(discard(), listener, sched, closer)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	require.Eventually(t, listener.started.Load, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.EqualValues(t, 1, closer.closed.Load())
}

func TestRunListenerExitIsError(t *testing.T) {
	closer := &fakeCloser{}
	b := NewBot(discard(), returningListener{}, nil, closer)
	assert.Error(t, b.Run(context.Background()))
	assert.EqualValues(t, 1, closer.closed.Load())
}

func TestSchedulerRunsEnabledTasks(t *testing.T) {
	var runs atomic.Int32
	cfg := &config.SchedulerConfig{Tasks: map[string]config.TaskConfig{
		"every_second": {Enabled: true, Schedule: "* * * * * *"},
		"disabled":     {Enabled: false, Schedule: "* * * * * *"},
		"unknown":      {Enabled: true, Schedule: "* * * * * *"},
	}}
	taskMap := map[string]tasks.ScheduledTaskFunc{
		"every_second": func(context.Context) error { runs.Add(1); return nil },
		"disabled":     func(context.Context) error { t.Error("disabled task ran"); return nil },
	}

	sched, err := NewScheduler(discard(), cfg, taskMap)
	require.NoError(t, err)
	require.NoError(t, sched.Start())
	assert.Error(t, sched.Start())

	require.Eventually(t, func() bool { return runs.Load() > 0 }, 3*time.Second, 20*time.Millisecond)
	require.NoError(t, sched.Stop())
	require.NoError(t, sched.Stop())
}
