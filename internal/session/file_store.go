package session

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"chemviz/internal/utils"
)

// fileState is the on-disk layout: one credential per API base URL, so
// pointing the client at another backend never reuses a foreign token.
type fileState struct {
	Profiles map[string]Credential `json:"profiles"`
}

// FileStore persists the credential to a JSON file and serves reads from
// an in-memory snapshot.
type FileStore struct {
	mu      sync.RWMutex
	path    string
	profile string
	state   fileState
}

func OpenFileStore(path, profile string) (*FileStore, error) {
	s := &FileStore{path: path, profile: profile, state: fileState{Profiles: map[string]Credential{}}}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read session file: %w", err)
	}
	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s.state); err != nil {
		return nil, fmt.Errorf("parse session file %s: %w", path, err)
	}
	if s.state.Profiles == nil {
		s.state.Profiles = map[string]Credential{}
	}
	return s, nil
}

func (s *FileStore) Get() (Credential, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cred, ok := s.state.Profiles[s.profile]
	if !ok || cred.Token == "" {
		return Credential{}, false
	}
	return cred, true
}

func (s *FileStore) Put(cred Credential) error {
	if err := validate(cred); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.copyProfiles()
	next[s.profile] = cred
	return s.persistLocked(next)
}

// Erase drops the credential from memory first, so the store reads as
// empty even when rewriting the file fails. The write error is returned.
func (s *FileStore) Erase() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.state.Profiles[s.profile]; !ok {
		return nil
	}
	next := s.copyProfiles()
	delete(next, s.profile)
	s.state = fileState{Profiles: next}
	return s.writeLocked(s.state)
}

func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) copyProfiles() map[string]Credential {
	out := make(map[string]Credential, len(s.state.Profiles)+1)
	for k, v := range s.state.Profiles {
		out[k] = v
	}
	return out
}

// persistLocked swaps the snapshot only after the file write succeeded.
func (s *FileStore) persistLocked(profiles map[string]Credential) error {
	next := fileState{Profiles: profiles}
	if err := s.writeLocked(next); err != nil {
		return err
	}
	s.state = next
	return nil
}

func (s *FileStore) writeLocked(state fileState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := utils.WriteFileAtomic(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	return nil
}
