// Package session holds the client's durable credential: the bearer token
// and the identity it was issued for. Writes replace the whole record.
package session

import (
	"context"
	"errors"
	"fmt"

	"chemviz/internal/config"
)

var ErrEmptyToken = errors.New("session: empty token")

// Credential is the single live login of this client.
type Credential struct {
	Token    string `json:"token"`
	Username string `json:"username"`
	UserID   int    `json:"user_id,omitempty"`
}

// Store is a single-slot credential container.
type Store interface {
	// Get reports the stored credential and whether one is present.
	Get() (Credential, bool)
	Put(cred Credential) error
	// Erase removes the credential; erasing an empty store is a no-op.
	Erase() error
}

// Open returns the store selected by cfg.Session.Backend.
func Open(ctx context.Context, cfg config.Config) (Store, error) {
	switch cfg.Session.Backend {
	case config.BackendMemory:
		return NewMemoryStore(), nil
	case config.BackendFile, "":
		return OpenFileStore(cfg.SessionPath(), cfg.API.BaseURL)
	case config.BackendRedis:
		return OpenRedisStore(ctx, RedisOptions{
			Addr:    cfg.Session.RedisAddr,
			DB:      cfg.Session.RedisDB,
			BaseURL: cfg.API.BaseURL,
		})
	default:
		return nil, fmt.Errorf("session: unknown backend %q", cfg.Session.Backend)
	}
}

func validate(cred Credential) error {
	if cred.Token == "" {
		return ErrEmptyToken
	}
	return nil
}
