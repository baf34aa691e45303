package redis

// Package redis provides Redis-based adapters for the fundwell BFF.

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	domainauth "github.com/fundwell/fundwell-web/internal/domain/auth"
	"github.com/fundwell/fundwell-web/internal/ports"
	"github.com/redis/go-redis/v9"
)

// DefaultSessionPrefix namespaces session cache keys.
const DefaultSessionPrefix = "fundwell:session:"

// SessionCache is a Redis-backed ports.SessionCache.
// Keys are SHA-256 digests of the access token; raw tokens never reach Redis.
type SessionCache struct {
	client redis.UniversalClient
	prefix string
}

var _ ports.SessionCache = (*SessionCache)(nil)

// NewSessionCache creates a new Redis-based session cache.
func NewSessionCache(client redis.UniversalClient) *SessionCache {
	return NewSessionCacheWithPrefix(client, DefaultSessionPrefix)
}

// NewSessionCacheWithPrefix creates a Redis session cache with a custom key prefix.
func NewSessionCacheWithPrefix(client redis.UniversalClient, prefix string) *SessionCache {
	return &SessionCache{client: client, prefix: prefix}
}

func (c *SessionCache) key(accessToken string) string {
	sum := sha256.Sum256([]byte(accessToken))
	return c.prefix + hex.EncodeToString(sum[:])
}

// Get returns the cached user for accessToken. A miss is (zero, false, nil).
func (c *SessionCache) Get(ctx context.Context, accessToken string) (domainauth.NormalizedUser, bool, error) {
	if accessToken == "" {
		return domainauth.NormalizedUser{}, false, nil
	}

	data, err := c.client.Get(ctx, c.key(accessToken)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domainauth.NormalizedUser{}, false, nil
		}
		return domainauth.NormalizedUser{}, false, fmt.Errorf("redis get: %w", err)
	}

	var user domainauth.NormalizedUser
	if unmarshalErr := json.Unmarshal(data, &user); unmarshalErr != nil {
		// Drop entries we cannot read so the next request repopulates them.
		if delErr := c.client.Del(ctx, c.key(accessToken)).Err(); delErr != nil {
			return domainauth.NormalizedUser{}, false, errors.Join(
				fmt.Errorf("unmarshal cached user: %w", unmarshalErr),
				fmt.Errorf("redis del: %w", delErr))
		}
		return domainauth.NormalizedUser{}, false, fmt.Errorf("unmarshal cached user: %w", unmarshalErr)
	}
	return user, true, nil
}

// Put stores user under accessToken for ttl.
func (c *SessionCache) Put(ctx context.Context, accessToken string, user domainauth.NormalizedUser, ttl time.Duration) error {
	if accessToken == "" {
		return errors.New("access token cannot be empty")
	}
	if ttl <= 0 {
		return errors.New("ttl must be positive")
	}

	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}
	return c.client.Set(ctx, c.key(accessToken), data, ttl).Err()
}

// Delete removes the cached user for accessToken.
func (c *SessionCache) Delete(ctx context.Context, accessToken string) error {
	if accessToken == "" {
		return nil // Nothing to delete
	}
	return c.client.Del(ctx, c.key(accessToken)).Err()
}
