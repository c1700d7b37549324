package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"chemviz/internal/utils"
)

const defaultRedisTimeout = 3 * time.Second

type RedisOptions struct {
	Addr    string
	DB      int
	BaseURL string
	Timeout time.Duration
}

// RedisStore keeps the credential under one key per API base URL. Reads
// come from the snapshot taken at open time and refreshed on every write.
type RedisStore struct {
	mu      sync.RWMutex
	client  *redis.Client
	key     string
	timeout time.Duration
	cred    Credential
	valid   bool
}

func OpenRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultRedisTimeout
	}
	client := redis.NewClient(&redis.Options{Addr: opts.Addr, DB: opts.DB})

	loadCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(loadCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	s := &RedisStore{client: client, key: RedisKey(opts.BaseURL), timeout: timeout}
	raw, err := client.Get(loadCtx, s.key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
	case err != nil:
		_ = client.Close()
		return nil, fmt.Errorf("redis get session: %w", err)
	default:
		var cred Credential
		if err := json.Unmarshal(raw, &cred); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("parse redis session: %w", err)
		}
		if cred.Token != "" {
			s.cred, s.valid = cred, true
		}
	}
	return s, nil
}

// RedisKey derives the storage key from the API base URL.
func RedisKey(baseURL string) string {
	return "chemviz:session:" + utils.Fingerprint(baseURL)
}

func (s *RedisStore) Get() (Credential, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cred, s.valid
}

func (s *RedisStore) Put(cred Credential) error {
	if err := validate(cred); err != nil {
		return err
	}
	data, err := json.Marshal(cred)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set session: %w", err)
	}
	s.cred, s.valid = cred, true
	return nil
}

func (s *RedisStore) Erase() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.valid {
		return nil
	}
	// The cached copy goes regardless of whether the delete reaches redis.
	s.cred, s.valid = Credential{}, false
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("redis del session: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
