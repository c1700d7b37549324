// Package staging carries the current dataset from the view that produced
// it (upload or history) to the dashboard. It lives for the process only.
package staging

import (
	"errors"
	"sync"

	"chemviz/internal/types"
)

// ErrEmpty means nothing has been staged; consumers redirect to upload.
var ErrEmpty = errors.New("staging: no dataset staged")

// Store is a single slot; every Put replaces the previous dataset.
type Store struct {
	mu      sync.RWMutex
	dataset types.StagedDataset
	staged  bool
}

func NewStore() *Store {
	return &Store{}
}

// Put stores a deep copy of dataset as given; Get returns it unchanged.
func (s *Store) Put(dataset types.StagedDataset) {
	c := dataset.Clone()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dataset = c
	s.staged = true
}

func (s *Store) Get() (types.StagedDataset, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.staged {
		return types.StagedDataset{}, false
	}
	return s.dataset.Clone(), true
}

// Load is Get with ErrEmpty in place of the boolean.
func (s *Store) Load() (types.StagedDataset, error) {
	d, ok := s.Get()
	if !ok {
		return types.StagedDataset{}, ErrEmpty
	}
	return d, nil
}

func (s *Store) Has() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.staged
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dataset = types.StagedDataset{}
	s.staged = false
}
