package coalesce

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestDoCoalescesConcurrentCalls(t *testing.T) {
	cache := New[int64, string]()
	release := make(chan struct{})
	var calls atomic.Int32

	lookup := func(ctx context.Context) (string, error) {
		calls.Add(1)
		<-release
		return "channel-42", nil
	}

	const callers = 16
	var wg sync.WaitGroup
	results := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = cache.Do(context.Background(), 42, lookup)
		}(i)
	}

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "channel-42", results[i])
	}
}

func TestDoMemoizesSuccess(t *testing.T) {
	cache := New[string, int]()
	var calls atomic.Int32
	lookup := func(ctx context.Context) (int, error) {
		calls.Add(1)
		return 7, nil
	}

	for i := 0; i < 3; i++ {
		v, err := cache.Do(context.Background(), "durov", lookup)
		require.NoError(t, err)
		assert.Equal(t, 7, v)
	}
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, cache.Len())
}

func TestDoEvictsFailure(t *testing.T) {
	cache := New[string, int]()
	var calls atomic.Int32
	boom := errors.New("flood wait")

	failing := func(ctx context.Context) (int, error) {
		calls.Add(1)
		return 0, boom
	}
	_, err := cache.Do(context.Background(), "durov", failing)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, cache.Len())

	v, err := cache.Do(context.Background(), "durov", func(ctx context.Context) (int, error) {
		calls.Add(1)
		return 9, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 9, v)
	assert.Equal(t, int32(2), calls.Load())
}

func TestDoWaiterCancellationDoesNotCancelLookup(t *testing.T) {
	cache := New[int, int]()
	release := make(chan struct{})
	started := make(chan struct{})
	var lookupErr atomic.Value

	lookup := func(ctx context.Context) (int, error) {
		close(started)
		<-release
		if err := ctx.Err(); err != nil {
			lookupErr.Store(err)
		}
		return 1, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := cache.Do(ctx, 1, lookup)
		done <- err
	}()

	<-started
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	close(release)
	v, err := cache.Do(context.Background(), 1, lookup)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.Nil(t, lookupErr.Load())
}

func TestForget(t *testing.T) {
	cache := New[int, int]()
	var calls atomic.Int32
	lookup := func(ctx context.Context) (int, error) {
		return int(calls.Add(1)), nil
	}

	v, err := cache.Do(context.Background(), 1, lookup)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	cache.Forget(1)
	v, err = cache.Do(context.Background(), 1, lookup)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}
