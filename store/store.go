// Package store persists the session token pair under the keys "token" and
// "refresh_token". Every implementation writes and deletes both keys together.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jrsteele09/as2-portal-session/internal/config"
)

// Keys the token pair is stored under.
const (
	KeyAccessToken  = "token"
	KeyRefreshToken = "refresh_token"
)

// ErrNoTokens is returned by Load when nothing, or only half a pair, is stored.
var ErrNoTokens = errors.New("no stored tokens")

type Tokens struct {
	AccessToken  string `json:"token"`
	RefreshToken string `json:"refresh_token"`
}

// Complete reports whether both tokens are present.
func (t Tokens) Complete() bool {
	return t.AccessToken != "" && t.RefreshToken != ""
}

// Empty reports whether neither token is present.
func (t Tokens) Empty() bool {
	return t.AccessToken == "" && t.RefreshToken == ""
}

type Store interface {
	Load(ctx context.Context) (Tokens, error)
	Save(ctx context.Context, tokens Tokens) error
	Clear(ctx context.Context) error
}

type EventType string

const (
	EventSaved   EventType = "saved"
	EventCleared EventType = "cleared"
)

// Event tells watchers the stored pair changed. Watchers reload the store
// to learn the current pair, so events may be coalesced.
type Event struct {
	Type EventType
}

// Watcher is implemented by stores shared between processes or managers.
type Watcher interface {
	// Watch delivers change events until ctx is done, then closes the channel.
	Watch(ctx context.Context) (<-chan Event, error)
}

// Open builds the store selected by cfg.
func Open(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.GetStorageBackend() {
	case "", "file":
		path := cfg.GetTokenFile()
		if path == "" {
			path = DefaultFilePath()
		}
		return NewFileStore(path), nil
	case "redis":
		return NewRedisStore(ctx, cfg.GetRedisURL(), cfg.GetRedisPrefix())
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.GetStorageBackend())
	}
}

func validatePair(tokens Tokens) error {
	if !tokens.Complete() {
		return errors.New("refusing to store a partial token pair")
	}
	return nil
}
