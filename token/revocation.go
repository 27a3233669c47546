package token

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// RevokedTokenCache remembers logged out access tokens by jti until they would
// have expired on their own.
type RevokedTokenCache interface {
	Add(jti string, exp time.Time) error
	IsRevoked(jti string) bool
	Cleanup() // Remove expired entries
}

// InMemoryRevokedTokenCache serves a single backend process.
type InMemoryRevokedTokenCache struct {
	revoked map[string]time.Time
	mu      sync.RWMutex
}

func NewInMemoryRevokedTokenCache() RevokedTokenCache {
	return &InMemoryRevokedTokenCache{
		revoked: make(map[string]time.Time),
	}
}

func (c *InMemoryRevokedTokenCache) Add(jti string, exp time.Time) error {
	if !exp.After(NowTimeFunc()) {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.revoked[jti] = exp
	return nil
}

func (c *InMemoryRevokedTokenCache) IsRevoked(jti string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, exists := c.revoked[jti]
	return exists
}

func (c *InMemoryRevokedTokenCache) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := NowTimeFunc()
	for jti, exp := range c.revoked {
		if now.After(exp) {
			delete(c.revoked, jti)
		}
	}
}

const redisRevocationTimeout = 2 * time.Second

// RedisRevokedTokenCache shares revocations between backend replicas. Entries
// carry a TTL matching the token's remaining lifetime, so Cleanup has nothing to do.
type RedisRevokedTokenCache struct {
	client *redis.Client
	prefix string
}

func NewRedisRevokedTokenCache(client *redis.Client, prefix string) *RedisRevokedTokenCache {
	return &RedisRevokedTokenCache{client: client, prefix: prefix + "revoked:"}
}

func (c *RedisRevokedTokenCache) Add(jti string, exp time.Time) error {
	ttl := exp.Sub(NowTimeFunc())
	if ttl <= 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisRevocationTimeout)
	defer cancel()
	if err := c.client.Set(ctx, c.prefix+jti, exp.Unix(), ttl).Err(); err != nil {
		return fmt.Errorf("failed to record revoked token: %w", err)
	}
	return nil
}

// IsRevoked fails closed: a token whose status cannot be read counts as revoked.
func (c *RedisRevokedTokenCache) IsRevoked(jti string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), redisRevocationTimeout)
	defer cancel()
	n, err := c.client.Exists(ctx, c.prefix+jti).Result()
	if err != nil {
		log.Error().Err(err).Str("jti", jti).Msg("revocation lookup failed")
		return true
	}
	return n > 0
}

func (c *RedisRevokedTokenCache) Cleanup() {}

func (c *RedisRevokedTokenCache) Close() error {
	return c.client.Close()
}
