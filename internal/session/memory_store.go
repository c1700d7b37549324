package session

import "sync"

type MemoryStore struct {
	mu    sync.RWMutex
	cred  Credential
	valid bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Get() (Credential, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cred, s.valid
}

func (s *MemoryStore) Put(cred Credential) error {
	if err := validate(cred); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = cred
	s.valid = true
	return nil
}

func (s *MemoryStore) Erase() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = Credential{}
	s.valid = false
	return nil
}
