package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeJob simulates a fetch that takes delay and fails for the listed indices.
type fakeJob struct {
	fail      map[int]bool
	delay     time.Duration
	callCount atomic.Int32
	running   atomic.Int32
	peak      atomic.Int32
}

func (f *fakeJob) run(ctx context.Context, i int) (string, error) {
	f.callCount.Add(1)
	now := f.running.Add(1)
	defer f.running.Add(-1)
	for {
		p := f.peak.Load()
		if now <= p || f.peak.CompareAndSwap(p, now) {
			break
		}
	}

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(f.delay):
	}

	if f.fail[i] {
		return "", fmt.Errorf("job %d: simulated failure", i)
	}
	return fmt.Sprintf("tile-%d", i), nil
}

func TestPool_BasicExecution(t *testing.T) {
	job := &fakeJob{delay: 10 * time.Millisecond}
	pool := New(Config{Workers: 2})

	results, err := Run(context.Background(), pool, 3, job.run)
	require.NoError(t, err)
	require.Len(t, results, 3)

	for i, r := range results {
		require.NoError(t, r.Err)
		require.Equal(t, i, r.Index)
		require.Equal(t, fmt.Sprintf("tile-%d", i), r.Value)
	}
	require.Equal(t, int32(3), job.callCount.Load())
}

func TestPool_DefaultIsSequential(t *testing.T) {
	var (
		mu    sync.Mutex
		order []int
	)
	pool := New(Config{})
	require.Equal(t, 1, pool.Workers())

	_, err := Run(context.Background(), pool, 5, func(_ context.Context, i int) (int, error) {
		mu.Lock()
		order = append(order, i)
		mu.Unlock()
		time.Sleep(time.Millisecond)
		return i, nil
	})
	require.NoError(t, err)
	require.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestPool_Parallelism(t *testing.T) {
	job := &fakeJob{delay: 50 * time.Millisecond}
	pool := New(Config{Workers: 4})

	start := time.Now()
	results, err := Run(context.Background(), pool, 8, job.run)
	elapsed := time.Since(start)
	require.NoError(t, err)
	require.Len(t, results, 8)

	// 8 jobs at 50ms on 4 workers take about two rounds.
	if elapsed > 300*time.Millisecond {
		t.Errorf("Expected parallel execution in ~100ms, took %v", elapsed)
	}
	require.LessOrEqual(t, job.peak.Load(), int32(4))
}

func TestPool_ErrorHandling(t *testing.T) {
	job := &fakeJob{delay: 5 * time.Millisecond, fail: map[int]bool{1: true}}
	pool := New(Config{Workers: 2})

	results, err := Run(context.Background(), pool, 3, job.run)
	require.Error(t, err)
	require.Contains(t, err.Error(), "job 1")
	require.Len(t, results, 3)

	require.NoError(t, results[0].Err)
	require.Error(t, results[1].Err)
	require.NoError(t, results[2].Err)
}

func TestPool_FailFast(t *testing.T) {
	job := &fakeJob{delay: 5 * time.Millisecond, fail: map[int]bool{0: true}}
	pool := New(Config{Workers: 1, FailFast: true})

	results, err := Run(context.Background(), pool, 10, job.run)
	require.Error(t, err)
	require.Contains(t, err.Error(), "job 0")
	require.Len(t, results, 10)

	// Nothing after the failure was attempted.
	require.Less(t, job.callCount.Load(), int32(10))
	require.True(t, errors.Is(results[9].Err, context.Canceled))
}

func TestPool_Cancellation(t *testing.T) {
	job := &fakeJob{delay: 100 * time.Millisecond}
	pool := New(Config{Workers: 2})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	results, err := Run(ctx, pool, 10, job.run)
	elapsed := time.Since(start)

	if elapsed > 300*time.Millisecond {
		t.Errorf("Expected early cancellation, took %v", elapsed)
	}
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, results, 10)

	var cancelled int
	for _, r := range results {
		if errors.Is(r.Err, context.Canceled) {
			cancelled++
		}
	}
	require.Positive(t, cancelled)
}

func TestPool_ProgressCallback(t *testing.T) {
	job := &fakeJob{delay: 5 * time.Millisecond, fail: map[int]bool{2: true}}

	var calls []int
	var lastTotal, lastFailed int
	pool := New(Config{
		Workers: 2,
		OnProgress: func(completed, total, failed int) {
			calls = append(calls, completed)
			lastTotal = total
			lastFailed = failed
		},
	})

	_, _ = Run(context.Background(), pool, 3, job.run)

	require.Equal(t, []int{1, 2, 3}, calls)
	require.Equal(t, 3, lastTotal)
	require.Equal(t, 1, lastFailed)
}

func TestPool_EmptyTasks(t *testing.T) {
	job := &fakeJob{}
	pool := New(Config{Workers: 2})

	results, err := Run(context.Background(), pool, 0, job.run)
	require.NoError(t, err)
	require.Empty(t, results)
	require.Equal(t, int32(0), job.callCount.Load())
}
