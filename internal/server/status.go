package server

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// StitchStatus is the JSON body of /api/status.
type StitchStatus struct {
	Current       []string `json:"current"`
	Queued        []string `json:"queued"`
	TotalDone     int64    `json:"total_done"`
	TotalFailed   int64    `json:"total_failed"`
	Active        int      `json:"active"`
	QueuedCount   int      `json:"queued_count"`
	MaxConcurrent int      `json:"max_concurrent"`
}

// stitchTracker bounds concurrent stitch runs and records what is running.
type stitchTracker struct {
	sem       *semaphore.Weighted
	limit     int
	current   sync.Map // key -> start time
	queued    sync.Map // key -> queue time
	active    atomic.Int32
	waiting   atomic.Int32
	done      atomic.Int64
	failed    atomic.Int64
	nextRunID atomic.Int64
}

func newStitchTracker(maxConcurrent int) *stitchTracker {
	return &stitchTracker{sem: semaphore.NewWeighted(int64(maxConcurrent)), limit: maxConcurrent}
}

// acquire waits for a free slot. The returned release func records the
// outcome of the run.
func (t *stitchTracker) acquire(ctx context.Context, label string) (func(err error), error) {
	key := label + "#" + strconv.FormatInt(t.nextRunID.Add(1), 10)

	t.waiting.Add(1)
	t.queued.Store(key, time.Now())

	err := t.sem.Acquire(ctx, 1)
	t.waiting.Add(-1)
	t.queued.Delete(key)
	if err != nil {
		return nil, err
	}

	t.active.Add(1)
	t.current.Store(key, time.Now())

	var once sync.Once
	return func(err error) {
		once.Do(func() {
			t.current.Delete(key)
			t.active.Add(-1)
			if err != nil {
				t.failed.Add(1)
			} else {
				t.done.Add(1)
			}
			t.sem.Release(1)
		})
	}, nil
}

func (t *stitchTracker) status() StitchStatus {
	return StitchStatus{
		Active:        int(t.active.Load()),
		QueuedCount:   int(t.waiting.Load()),
		TotalDone:     t.done.Load(),
		TotalFailed:   t.failed.Load(),
		MaxConcurrent: t.limit,
		Current:       keys(&t.current),
		Queued:        keys(&t.queued),
	}
}

func keys(m *sync.Map) []string {
	out := []string{}
	m.Range(func(k, _ any) bool {
		out = append(out, k.(string))
		return true
	})
	sort.Strings(out)
	return out
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	s.respondJSON(w, http.StatusOK, s.stitches.status())
}
