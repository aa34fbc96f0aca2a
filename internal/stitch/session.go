package stitch

import (
	"context"
	"fmt"
	"sync"

	"github.com/MeKo-Tech/mapfactory/internal/metrics"
)

// State is the lifecycle state of a Session.
type State int

const (
	StateReady State = iota
	StateDownloading
	StateGenerating
	StateLoaded
	StateError
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateDownloading:
		return "downloading"
	case StateGenerating:
		return "generating"
	case StateLoaded:
		return "loaded"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Busy reports whether a run is in flight in this state.
func (s State) Busy() bool {
	return s == StateDownloading || s == StateGenerating
}

// Observers are called from the goroutine executing the run, never while
// the session lock is held. Any of them may be nil.
type Observers struct {
	OnStateChanged func(State)
	OnProgress     ProgressFunc
	OnResult       func(*Result)
	OnError        func(error)
}

// Session owns at most one stitch run at a time. A request made while a run
// is in flight is remembered (only the newest one) and compared against the
// finished run's parameters afterwards; in-flight runs are never cancelled.
type Session struct {
	ctx       context.Context
	stitcher  *Stitcher
	observers Observers

	mu      sync.Mutex
	state   State
	running bool
	last    *Params
	pending *Params
	result  *Result
	err     error
	idle    *sync.Cond
}

// NewSession creates a session in StateReady. ctx bounds every run started
// through Request.
func NewSession(ctx context.Context, st *Stitcher, obs Observers) *Session {
	s := &Session{ctx: ctx, stitcher: st, observers: obs}
	s.idle = sync.NewCond(&s.mu)
	return s
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Result returns the last successful result, if any.
func (s *Session) Result() *Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Err returns the error of the last run, or nil when it succeeded.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// UpdateRequired reports whether p differs from the parameters of the last
// started run.
func (s *Session) UpdateRequired(p Params) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateRequiredLocked(p)
}

func (s *Session) updateRequiredLocked(p Params) bool {
	return s.last == nil || *s.last != p
}

// Request asks for a run with p. It starts one in the background and reports
// true when the session is idle and p differs from the last run. While busy
// p replaces any earlier pending request and false is returned.
func (s *Session) Request(p Params) bool {
	s.mu.Lock()
	if s.running {
		pp := p
		s.pending = &pp
		s.mu.Unlock()
		return false
	}
	if !s.updateRequiredLocked(p) {
		s.mu.Unlock()
		return false
	}
	s.begin(p)
	s.mu.Unlock()

	go s.loop(p)
	return true
}

// Run executes a run with p synchronously and returns its outcome. It fails
// with ErrBusy when a run is already in flight. Unlike Request it runs even
// when p equals the last parameters.
func (s *Session) Run(ctx context.Context, p Params) (*Result, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil, ErrBusy
	}
	s.begin(p)
	s.mu.Unlock()

	res, err := s.execute(ctx, p)
	s.finish()
	return res, err
}

// Wait blocks until no run is in flight and no request is pending.
func (s *Session) Wait() {
	s.mu.Lock()
	for s.running {
		s.idle.Wait()
	}
	s.mu.Unlock()
}

// begin must be called with s.mu held.
func (s *Session) begin(p Params) {
	s.running = true
	pp := p
	s.last = &pp
}

// loop runs p and then any pending request that still differs from the
// parameters just used.
func (s *Session) loop(p Params) {
	for {
		_, _ = s.execute(s.ctx, p)

		s.mu.Lock()
		next, ok := s.nextLocked()
		s.mu.Unlock()
		if !ok {
			return
		}
		p = next
	}
}

// finish ends a synchronous run. A request queued during the run is picked
// up in the background.
func (s *Session) finish() {
	s.mu.Lock()
	next, ok := s.nextLocked()
	s.mu.Unlock()
	if ok {
		go s.loop(next)
	}
}

// nextLocked takes the pending request. When it still needs a run the
// session stays busy with it; otherwise the session goes idle.
func (s *Session) nextLocked() (Params, bool) {
	next := s.pending
	s.pending = nil
	if next == nil || !s.updateRequiredLocked(*next) {
		s.running = false
		s.idle.Broadcast()
		return Params{}, false
	}
	s.begin(*next)
	return *next, true
}

func (s *Session) execute(ctx context.Context, p Params) (*Result, error) {
	s.setState(StateDownloading)

	res, err := s.stages(ctx, p)

	s.mu.Lock()
	s.err = err
	if err == nil {
		s.result = res
	}
	s.mu.Unlock()

	if err != nil {
		metrics.StitchRuns.WithLabelValues(StateError.String()).Inc()
		if s.observers.OnError != nil {
			s.observers.OnError(err)
		}
		s.setState(StateError)
		return nil, err
	}

	metrics.StitchRuns.WithLabelValues(StateLoaded.String()).Inc()
	s.setState(StateLoaded)
	if s.observers.OnResult != nil {
		s.observers.OnResult(res)
	}
	return res, nil
}

func (s *Session) stages(ctx context.Context, p Params) (*Result, error) {
	plan, err := s.stitcher.Plan(p)
	if err != nil {
		return nil, err
	}
	data, err := s.stitcher.Fetch(ctx, plan, s.observers.OnProgress)
	if err != nil {
		return nil, err
	}
	s.setState(StateGenerating)
	return s.stitcher.Compose(plan, data)
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	if s.observers.OnStateChanged != nil {
		s.observers.OnStateChanged(st)
	}
}
