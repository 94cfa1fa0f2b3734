// Package supervisor runs named background jobs on fixed intervals.
// Jobs never take the process down: panics are recovered, errors are
// counted and logged, and overlapping runs of the same job are skipped.
package supervisor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"forest/internal/logging"
)

// Func is one supervised job body.
type Func func(ctx context.Context) error

type job struct {
	name     string
	fn       Func
	interval time.Duration

	running atomic.Bool
	kick    chan struct{}
	cancel  context.CancelFunc
}

// Supervisor owns a set of periodic jobs. Safe for concurrent use.
type Supervisor struct {
	mu      sync.Mutex
	jobs    map[string]*job
	errs    map[string]int
	started bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New() *Supervisor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		jobs:   make(map[string]*job),
		errs:   make(map[string]int),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Add registers a job. Replacing an existing name stops the old loop
// first. If the supervisor is already started the new job begins
// ticking immediately.
func (s *Supervisor) Add(name string, fn Func, interval time.Duration) error {
	if name == "" {
		return fmt.Errorf("job name is required")
	}
	if fn == nil {
		return fmt.Errorf("job %q has no body", name)
	}
	if interval <= 0 {
		return fmt.Errorf("job %q needs a positive interval, got %s", name, interval)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.jobs[name]; ok && old.cancel != nil {
		old.cancel()
	}
	j := &job{name: name, fn: fn, interval: interval, kick: make(chan struct{}, 1)}
	s.jobs[name] = j
	if s.started {
		s.launch(j)
	}
	return nil
}

// Remove stops and forgets a job. Unknown names are a no-op.
func (s *Supervisor) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[name]; ok {
		if j.cancel != nil {
			j.cancel()
		}
		delete(s.jobs, name)
	}
}

// Start launches the tick loops. Idempotent.
func (s *Supervisor) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	for _, j := range s.jobs {
		s.launch(j)
	}
	logging.Supervisor("started with %d jobs", len(s.jobs))
}

// Stop cancels all loops and waits for in-flight runs to finish.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	logging.Supervisor("stopped")
}

// CheckNow schedules an immediate run of a job without waiting for its
// next tick. A run already pending or in flight absorbs the request.
func (s *Supervisor) CheckNow(name string) {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return
	}
	select {
	case j.kick <- struct{}{}:
	default:
	}
}

// ErrorCount reports how many runs of a job have failed or panicked.
func (s *Supervisor) ErrorCount(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errs[name]
}

// launch starts a job loop. Caller holds s.mu.
func (s *Supervisor) launch(j *job) {
	ctx, cancel := context.WithCancel(s.ctx)
	j.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runOnce(ctx, j)
			case <-j.kick:
				s.runOnce(ctx, j)
			}
		}
	}()
}

// runOnce executes one guarded run. A run still in flight for the same
// job makes this a no-op.
func (s *Supervisor) runOnce(ctx context.Context, j *job) {
	if !j.running.CompareAndSwap(false, true) {
		logging.Supervisor("skipping %q: previous run still in flight", j.name)
		return
	}
	defer j.running.Store(false)

	defer func() {
		if r := recover(); r != nil {
			s.recordError(j.name)
			logging.Supervisor("job %q panicked: %v", j.name, r)
		}
	}()

	if err := j.fn(ctx); err != nil {
		s.recordError(j.name)
		logging.Supervisor("job %q failed: %v", j.name, err)
	}
}

func (s *Supervisor) recordError(name string) {
	s.mu.Lock()
	s.errs[name]++
	s.mu.Unlock()
}
