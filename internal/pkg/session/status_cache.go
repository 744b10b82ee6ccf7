// internal/pkg/session/status_cache.go
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	domain "sessiongate-service/internal/domain/session"

	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss is returned when no status entry exists for a token.
var ErrCacheMiss = errors.New("session status not cached")

// StatusCache keeps per-token session status in Redis so liveness polls
// rarely touch Postgres. The database stays authoritative: active entries
// carry a short TTL bounding how stale a poll can be, terminal entries a
// long one because they never change again.
type StatusCache struct {
	client    *redis.Client
	activeTTL time.Duration
	endedTTL  time.Duration
}

func NewStatusCache(client *redis.Client, activeTTL, endedTTL time.Duration) *StatusCache {
	return &StatusCache{
		client:    client,
		activeTTL: activeTTL,
		endedTTL:  endedTTL,
	}
}

// Get retrieves the cached status for a token.
func (c *StatusCache) Get(ctx context.Context, token string) (*domain.Status, error) {
	data, err := c.client.Get(ctx, c.key(token)).Bytes()
	if err == redis.Nil {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session status: %w", err)
	}

	var status domain.Status
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session status: %w", err)
	}

	return &status, nil
}

// SetActive records a token as active.
func (c *StatusCache) SetActive(ctx context.Context, token string) error {
	return c.set(ctx, token, &domain.Status{IsActive: true}, c.activeTTL)
}

// SetEnded records the terminal status for a token. Terminal entries
// overwrite any cached active entry, so a displaced session is visible to
// its poller immediately instead of after the active TTL runs out.
func (c *StatusCache) SetEnded(ctx context.Context, token string, reason domain.EndReason) error {
	return c.set(ctx, token, &domain.Status{IsActive: false, EndedReason: reason}, c.endedTTL)
}

func (c *StatusCache) set(ctx context.Context, token string, status *domain.Status, ttl time.Duration) error {
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal session status: %w", err)
	}

	if err := c.client.Set(ctx, c.key(token), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store session status: %w", err)
	}

	return nil
}

func (c *StatusCache) key(token string) string {
	return fmt.Sprintf("session:status:%s", token)
}
