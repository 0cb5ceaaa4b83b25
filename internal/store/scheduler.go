package store

import (
	"context"
	"sync"
	"time"
)

// Timer is the cancellable handle returned by an AfterFunc
type Timer interface {
	Stop() bool
}

// AfterFunc arms a timer that calls f after d
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Scheduler coalesces persistence requests into deferred flushes.
// Each Schedule call re-arms the debounce timer; the flush function reads
// the latest state when it runs, so mutations made while a flush is pending
// are written by that same flush.
type Scheduler struct {
	interval  time.Duration
	flush     func(ctx context.Context) error
	afterFunc AfterFunc

	mu         sync.Mutex
	timer      Timer
	generation uint64
	dirty      bool
	stopped    bool

	// serialises writes so an older snapshot never lands after a newer one
	flushMu sync.Mutex
}

// NewScheduler creates a scheduler. A nil afterFunc uses time.AfterFunc.
func NewScheduler(interval time.Duration, flush func(ctx context.Context) error, afterFunc AfterFunc) *Scheduler {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	if afterFunc == nil {
		afterFunc = realAfterFunc
	}
	return &Scheduler{
		interval:  interval,
		flush:     flush,
		afterFunc: afterFunc,
	}
}

// Schedule marks state dirty and (re)arms the debounce timer
func (s *Scheduler) Schedule() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	s.dirty = true
	s.armLocked()
}

// Pending returns true if there are changes not yet flushed
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// FlushNow cancels any pending timer and writes the current state immediately
func (s *Scheduler) FlushNow(ctx context.Context) error {
	s.mu.Lock()
	s.cancelLocked()
	s.dirty = false
	s.mu.Unlock()

	return s.run(ctx)
}

// Stop cancels the timer, waits for a flush already writing and flushes
// outstanding changes, including those of an in-flight flush that failed.
// Later Schedule calls are ignored.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	s.cancelLocked()
	s.mu.Unlock()

	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.Lock()
	dirty := s.dirty
	s.dirty = false
	s.mu.Unlock()

	if !dirty {
		return nil
	}
	return s.runLocked(ctx)
}

func (s *Scheduler) armLocked() {
	s.cancelLocked()
	gen := s.generation
	s.timer = s.afterFunc(s.interval, func() { s.fire(gen) })
}

func (s *Scheduler) cancelLocked() {
	s.generation++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	if gen != s.generation || !s.dirty {
		// superseded by a later Schedule or a forced flush
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.dirty = false
	s.mu.Unlock()

	_ = s.run(context.Background())
}

func (s *Scheduler) run(ctx context.Context) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()
	return s.runLocked(ctx)
}

// runLocked writes with flushMu held
func (s *Scheduler) runLocked(ctx context.Context) error {
	err := s.flush(ctx)
	if err != nil {
		// keep the state dirty so the next flush retries with current data
		s.mu.Lock()
		s.dirty = true
		if !s.stopped {
			s.armLocked()
		}
		s.mu.Unlock()
	}
	return err
}
