package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"chemviz/internal/config"
)

// exerciseStore runs the shared contract every backend must honour.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()

	if _, ok := s.Get(); ok {
		t.Fatalf("new store should be empty")
	}
	if err := s.Erase(); err != nil {
		t.Fatalf("erase on empty store: %v", err)
	}
	if err := s.Put(Credential{Username: "nobody"}); !errors.Is(err, ErrEmptyToken) {
		t.Fatalf("expected ErrEmptyToken, got %v", err)
	}
	if _, ok := s.Get(); ok {
		t.Fatalf("rejected put must not populate the store")
	}

	want := Credential{Token: "test-token", Username: "testuser", UserID: 1}
	if err := s.Put(want); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, ok := s.Get()
	if !ok || got != want {
		t.Fatalf("expected %+v, got %+v (ok=%v)", want, got, ok)
	}

	next := Credential{Token: "second", Username: "other"}
	if err := s.Put(next); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if got, _ := s.Get(); got != next {
		t.Fatalf("put must replace whole record, got %+v", got)
	}

	if err := s.Erase(); err != nil {
		t.Fatalf("erase: %v", err)
	}
	if got, ok := s.Get(); ok || got != (Credential{}) {
		t.Fatalf("expected empty after erase, got %+v", got)
	}
	if err := s.Erase(); err != nil {
		t.Fatalf("second erase: %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	s, err := OpenFileStore(path, "http://localhost:8000/api")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	exerciseStore(t, s)
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	s, err := OpenFileStore(path, "http://a/api")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Put(Credential{Token: "tok", Username: "alice"}); err != nil {
		t.Fatalf("put: %v", err)
	}

	again, err := OpenFileStore(path, "http://a/api")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	cred, ok := again.Get()
	if !ok || cred.Token != "tok" || cred.Username != "alice" {
		t.Fatalf("credential not restored: %+v", cred)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("session file should be 0600, got %v", info.Mode().Perm())
	}
}

func TestFileStoreProfilesAreIsolated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	a, _ := OpenFileStore(path, "http://a/api")
	if err := a.Put(Credential{Token: "tok-a", Username: "alice"}); err != nil {
		t.Fatalf("put: %v", err)
	}

	b, err := OpenFileStore(path, "http://b/api")
	if err != nil {
		t.Fatalf("open b: %v", err)
	}
	if _, ok := b.Get(); ok {
		t.Fatalf("profile b must not see profile a's token")
	}
	if err := b.Put(Credential{Token: "tok-b", Username: "bob"}); err != nil {
		t.Fatalf("put b: %v", err)
	}
	if err := b.Erase(); err != nil {
		t.Fatalf("erase b: %v", err)
	}

	reopened, _ := OpenFileStore(path, "http://a/api")
	if cred, ok := reopened.Get(); !ok || cred.Token != "tok-a" {
		t.Fatalf("profile a lost after erasing b: %+v", cred)
	}
}

func TestFileStoreRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := OpenFileStore(path, "x"); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestRedisKeyIsPerBaseURL(t *testing.T) {
	a := RedisKey("http://a/api")
	b := RedisKey("http://b/api")
	if a == b {
		t.Fatalf("keys should differ per base url")
	}
	if !strings.HasPrefix(a, "chemviz:session:") {
		t.Fatalf("unexpected key %q", a)
	}
}

func TestOpenRedisStoreUnreachable(t *testing.T) {
	_, err := OpenRedisStore(context.Background(), RedisOptions{
		Addr:    "127.0.0.1:1",
		BaseURL: "http://a/api",
		Timeout: 500 * time.Millisecond,
	})
	if err == nil {
		t.Fatalf("expected ping failure")
	}
}

func TestOpenSelectsBackend(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()

	cfg.Session.Backend = config.BackendMemory
	s, err := Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("open memory: %v", err)
	}
	if _, ok := s.(*MemoryStore); !ok {
		t.Fatalf("expected MemoryStore, got %T", s)
	}

	cfg.Session.Backend = config.BackendFile
	s, err = Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("open file: %v", err)
	}
	fs, ok := s.(*FileStore)
	if !ok {
		t.Fatalf("expected FileStore, got %T", s)
	}
	if fs.Path() != cfg.SessionPath() {
		t.Fatalf("unexpected path %q", fs.Path())
	}

	cfg.Session.Backend = "bogus"
	if _, err := Open(context.Background(), cfg); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}

// blockSessionFile replaces the file at path with a non-empty directory so
// the next atomic rename onto it fails.
func blockSessionFile(t *testing.T, path string) {
	t.Helper()
	if err := os.Remove(path); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(path, "keep"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
}

func TestFileStoreEraseClearsMemoryWhenWriteFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	s, err := OpenFileStore(path, "http://localhost:8000/api")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Put(Credential{Token: "tok", Username: "u"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	blockSessionFile(t, path)

	if err := s.Erase(); err == nil {
		t.Fatalf("expected the write error to be reported")
	}
	if _, ok := s.Get(); ok {
		t.Fatalf("credential must be gone from memory after erase")
	}
}

func TestFileStorePutKeepsStateWhenWriteFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	s, err := OpenFileStore(path, "http://localhost:8000/api")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Put(Credential{Token: "old", Username: "u"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	blockSessionFile(t, path)

	if err := s.Put(Credential{Token: "new", Username: "u"}); err == nil {
		t.Fatalf("expected put to fail")
	}
	if got, _ := s.Get(); got.Token != "old" {
		t.Fatalf("failed put must leave the previous credential, got %+v", got)
	}
}
