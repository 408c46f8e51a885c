package status

import (
	"context"
	"sync"

	"github.com/alertsync/alertsync/internal/pipeline"
)

// Store is a thread-safe, bounded, in-memory history of run results.
// Once full, recording a run drops the oldest one.
type Store struct {
	mu   sync.RWMutex
	runs []*pipeline.Result // oldest first
	max  int
}

// NewStore creates a Store that keeps the last max runs.
func NewStore(max int) *Store {
	if max < 1 {
		max = 1
	}
	return &Store{max: max}
}

// Put records res. Callers must not modify res after calling Put.
func (s *Store) Put(res *pipeline.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, res)
	if over := len(s.runs) - s.max; over > 0 {
		// Copy down so the backing array does not grow without bound.
		s.runs = append(s.runs[:0], s.runs[over:]...)
	}
}

// Observe implements pipeline.Observer.
func (s *Store) Observe(_ context.Context, res *pipeline.Result) {
	s.Put(res)
}

// Get returns the run with the given ID and whether it is still held.
func (s *Store) Get(runID string) (*pipeline.Result, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.runs {
		if r.RunID == runID {
			return r, true
		}
	}
	return nil, false
}

// List returns the held runs, newest first.
func (s *Store) List() []*pipeline.Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*pipeline.Result, 0, len(s.runs))
	for i := len(s.runs) - 1; i >= 0; i-- {
		out = append(out, s.runs[i])
	}
	return out
}

// Last returns the most recent run, or nil before the first one.
func (s *Store) Last() *pipeline.Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.runs) == 0 {
		return nil
	}
	return s.runs[len(s.runs)-1]
}

// Count returns the number of runs currently held.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.runs)
}
