package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCollectsResultsInInputOrder(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	results := Run(context.Background(), items, 2, func(_ context.Context, n int) (int, error) {
		return n * 10, nil
	})

	require.Len(t, results, len(items))
	for i, r := range results {
		assert.NoError(t, r.Err)
		assert.Equal(t, i, r.Index)
		assert.Equal(t, items[i]*10, r.Value)
	}
}

func TestRunIsolatesFailures(t *testing.T) {
	boom := errors.New("boom")
	items := []string{"a", "b", "c"}
	results := Run(context.Background(), items, 5, func(_ context.Context, s string) (string, error) {
		if s == "b" {
			return "", boom
		}
		return s + "!", nil
	})

	assert.NoError(t, results[0].Err)
	assert.Equal(t, "a!", results[0].Value)
	assert.ErrorIs(t, results[1].Err, boom)
	assert.NoError(t, results[2].Err)
	assert.Equal(t, "c!", results[2].Value)
}

func TestRunRespectsConcurrencyBound(t *testing.T) {
	const limit = 3
	var current, peak int64
	var mu sync.Mutex

	items := make([]int, 20)
	Run(context.Background(), items, limit, func(_ context.Context, _ int) (struct{}, error) {
		n := atomic.AddInt64(&current, 1)
		mu.Lock()
		if n > peak {
			peak = n
		}
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt64(&current, -1)
		return struct{}{}, nil
	})

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, peak, int64(limit))
	assert.Greater(t, peak, int64(0))
}

func TestRunCanceledContextFailsRemaining(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := Run(ctx, []int{1, 2}, 1, func(_ context.Context, n int) (int, error) {
		return n, nil
	})
	for _, r := range results {
		assert.Error(t, r.Err)
	}
}

func TestRunEmptyInput(t *testing.T) {
	results := Run(context.Background(), nil, 5, func(_ context.Context, _ int) (int, error) {
		return 0, nil
	})
	assert.Empty(t, results)
}
