package dedup

import (
	"context"
	"sync"
)

// Set records offer ids that have already been announced.
type Set interface {
	// Add inserts id and reports whether it was absent. The test and the
	// insert are one atomic step. added may be true alongside an error when
	// the id was stored but a follow-up step failed.
	Add(ctx context.Context, id string) (bool, error)

	// Contains reports whether id was added before.
	Contains(ctx context.Context, id string) (bool, error)

	// Len returns the number of ids recorded.
	Len(ctx context.Context) (int64, error)
}

// MemorySet is an in-process Set. It never evicts.
type MemorySet struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

var _ Set = (*MemorySet)(nil)

// NewMemorySet returns an empty in-process set.
func NewMemorySet() *MemorySet {
	return &MemorySet{ids: make(map[string]struct{})}
}

func (s *MemorySet) Add(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[id]; ok {
		return false, nil
	}
	s.ids[id] = struct{}{}
	return true, nil
}

func (s *MemorySet) Contains(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	return ok, nil
}

func (s *MemorySet) Len(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.ids)), nil
}
