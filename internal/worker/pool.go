// Package worker runs indexed jobs on a bounded number of goroutines.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Func produces the value for job i.
type Func[T any] func(ctx context.Context, i int) (T, error)

// Result is the outcome of one job.
type Result[T any] struct {
	Value   T
	Err     error
	Index   int
	Elapsed time.Duration
}

// ProgressFunc is called after each job completes, from a single goroutine.
type ProgressFunc func(completed, total, failed int)

// Config configures the worker pool.
type Config struct {
	OnProgress ProgressFunc
	// Workers is the concurrency limit. Values below 1 mean 1.
	Workers int
	// FailFast stops handing out jobs after the first failure. Jobs that were
	// never started report context.Canceled.
	FailFast bool
}

// Pool bounds how many jobs run at once.
type Pool struct {
	onProgress ProgressFunc
	workers    int
	failFast   bool
}

// New creates a new worker pool.
func New(cfg Config) *Pool {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	return &Pool{
		workers:    workers,
		onProgress: cfg.OnProgress,
		failFast:   cfg.FailFast,
	}
}

// Workers returns the concurrency limit.
func (p *Pool) Workers() int {
	return p.workers
}

// Run executes fn for every index in [0, n). Results are placed by index, so
// their order does not depend on the concurrency limit. The returned error is
// the first failure observed in completion order, or nil; cancellations
// rank behind real failures.
//
// With a single worker jobs run strictly one after another in index order.
func Run[T any](ctx context.Context, p *Pool, n int, fn Func[T]) ([]Result[T], error) {
	if n <= 0 {
		return nil, nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan int)
	done := make(chan Result[T], n)

	workers := p.workers
	if workers > n {
		workers = n
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if runCtx.Err() != nil {
					continue
				}
				start := time.Now()
				v, err := fn(runCtx, i)
				if err != nil && p.failFast {
					cancel()
				}
				done <- Result[T]{Index: i, Value: v, Err: err, Elapsed: time.Since(start)}
			}
		}()
	}

	results := make([]Result[T], n)
	started := make([]bool, n)

	// Feed jobs. A job is only handed out while the run context is live.
	go func() {
		defer close(jobs)
		for i := 0; i < n; i++ {
			select {
			case <-runCtx.Done():
				return
			default:
			}
			select {
			case jobs <- i:
			case <-runCtx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(done)
	}()

	var (
		completed int
		failed    int
		firstErr  error
	)
	for r := range done {
		results[r.Index] = r
		started[r.Index] = true
		completed++
		if r.Err != nil {
			failed++
			// A job cut short by fail-fast cancellation may report before
			// the failure that caused it.
			if firstErr == nil || (errors.Is(firstErr, context.Canceled) && !errors.Is(r.Err, context.Canceled)) {
				firstErr = r.Err
			}
		}
		if p.onProgress != nil {
			p.onProgress(completed, n, failed)
		}
	}

	for i := range results {
		if !started[i] {
			err := ctx.Err()
			if err == nil {
				err = context.Canceled
			}
			results[i] = Result[T]{Index: i, Err: err}
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return results, firstErr
}
