// Package store owns every Investigation. Mutations are serialised per
// application id; the whole store is persisted as one JSON document through
// a debounced Scheduler.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/banking/verification-service/internal/domain"
	"github.com/banking/verification-service/internal/metrics"
	"github.com/banking/verification-service/internal/pkg/logger"
)

// Options configures a Store
type Options struct {
	DebounceInterval time.Duration
	AfterFunc        AfterFunc // nil uses time.AfterFunc
}

// Store is the keyed collection of investigations
type Store struct {
	backend   Backend
	scheduler *Scheduler
	log       *logger.Logger

	mu      sync.RWMutex
	entries map[string]*entry
}

// entry is the single logical owner of one investigation
type entry struct {
	mu  sync.Mutex
	inv *domain.Investigation
}

// New creates an empty store persisting through backend
func New(backend Backend, opts Options, log *logger.Logger) *Store {
	s := &Store{
		backend: backend,
		log:     log.Named("investigation_store"),
		entries: make(map[string]*entry),
	}
	s.scheduler = NewScheduler(opts.DebounceInterval, s.flush, opts.AfterFunc)
	return s
}

// Restore replaces in-memory state with the persisted document. It is
// meant to run once at startup before any mutation.
func (s *Store) Restore(ctx context.Context) (int, error) {
	data, err := s.backend.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("restore: %w", err)
	}
	if len(data) == 0 {
		return 0, nil
	}

	var doc map[string]*domain.Investigation
	if err := json.Unmarshal(data, &doc); err != nil {
		return 0, fmt.Errorf("restore: decode: %w", err)
	}

	entries := make(map[string]*entry, len(doc))
	for id, inv := range doc {
		if inv == nil {
			continue
		}
		if inv.ApplicationID == "" {
			inv.ApplicationID = id
		}
		if inv.Diffs == nil {
			inv.Diffs = make(map[string]domain.DetectedDifference)
		}
		entries[id] = &entry{inv: inv}
	}

	s.mu.Lock()
	s.entries = entries
	s.mu.Unlock()

	s.log.Info("store restored", logger.IntField("investigations", len(entries)))
	return len(entries), nil
}

// Create stores the investigation built by build unless one already exists
// for applicationID. It returns a copy of the stored investigation and
// whether it was created by this call.
func (s *Store) Create(applicationID string, build func() *domain.Investigation) (*domain.Investigation, bool) {
	s.mu.Lock()
	if e, ok := s.entries[applicationID]; ok {
		s.mu.Unlock()
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.inv.Clone(), false
	}
	e := &entry{inv: build()}
	s.entries[applicationID] = e
	e.mu.Lock()
	s.mu.Unlock()

	out := e.inv.Clone()
	e.mu.Unlock()

	s.scheduler.Schedule()
	return out, true
}

// Update runs fn with exclusive access to the investigation. A nil error
// from fn schedules a flush; a non-nil error is returned unchanged and
// nothing is persisted.
func (s *Store) Update(applicationID string, fn func(inv *domain.Investigation) error) error {
	e, ok := s.lookup(applicationID)
	if !ok {
		return domain.ErrNotFound
	}

	e.mu.Lock()
	err := fn(e.inv)
	e.mu.Unlock()

	if err != nil {
		return err
	}
	s.scheduler.Schedule()
	return nil
}

// View runs fn with read access to the investigation. fn must not retain
// or modify inv.
func (s *Store) View(applicationID string, fn func(inv *domain.Investigation)) error {
	e, ok := s.lookup(applicationID)
	if !ok {
		return domain.ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e.inv)
	return nil
}

// Get returns a copy of the investigation
func (s *Store) Get(applicationID string) (*domain.Investigation, bool) {
	var out *domain.Investigation
	if err := s.View(applicationID, func(inv *domain.Investigation) {
		out = inv.Clone()
	}); err != nil {
		return nil, false
	}
	return out, true
}

// Range calls fn for every investigation with exclusive access, without
// scheduling a flush
func (s *Store) Range(fn func(inv *domain.Investigation)) {
	for _, id := range s.IDs() {
		if e, ok := s.lookup(id); ok {
			e.mu.Lock()
			fn(e.inv)
			e.mu.Unlock()
		}
	}
}

// IDs returns the application ids in sorted order
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// FlushNow writes the current state immediately, bypassing the debounce
func (s *Store) FlushNow(ctx context.Context) error {
	return s.scheduler.FlushNow(ctx)
}

// Pending returns true if changes are waiting for a debounced flush
func (s *Store) Pending() bool {
	return s.scheduler.Pending()
}

// Close flushes outstanding changes and closes the backend
func (s *Store) Close(ctx context.Context) error {
	flushErr := s.scheduler.Stop(ctx)
	closeErr := s.backend.Close()
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

// Snapshot serialises the whole store. Each investigation is copied under
// its own lock.
func (s *Store) Snapshot() ([]byte, int, error) {
	s.mu.RLock()
	entries := make(map[string]*entry, len(s.entries))
	for id, e := range s.entries {
		entries[id] = e
	}
	s.mu.RUnlock()

	doc := make(map[string]*domain.Investigation, len(entries))
	for id, e := range entries {
		e.mu.Lock()
		doc[id] = e.inv.Clone()
		e.mu.Unlock()
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, 0, fmt.Errorf("snapshot: %w", err)
	}
	return data, len(doc), nil
}

func (s *Store) lookup(applicationID string) (*entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[applicationID]
	return e, ok
}

func (s *Store) flush(ctx context.Context) error {
	start := time.Now()

	data, count, err := s.Snapshot()
	if err == nil {
		err = s.backend.Save(ctx, data)
	}

	duration := time.Since(start)
	metrics.ObserveFlush(duration, err)
	if err != nil {
		s.log.FlushFailed(err, duration.Milliseconds())
		return err
	}
	s.log.FlushCompleted(count, len(data), duration.Milliseconds())
	return nil
}
