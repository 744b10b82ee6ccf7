// internal/pkg/session/rate_limiter.go
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RateLimiter struct {
	client *redis.Client
}

func NewRateLimiter(client *redis.Client) *RateLimiter {
	return &RateLimiter{client: client}
}

// CheckSessionCreate checks if another session-create attempt is allowed
// for this (ip, user) pair.
func (r *RateLimiter) CheckSessionCreate(ctx context.Context, ip string, userID int64) (bool, error) {
	key := fmt.Sprintf("ratelimit:session_create:%s:%d", ip, userID)

	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment session create attempt: %w", err)
	}

	// Set expiration on first attempt
	if count == 1 {
		r.client.Expire(ctx, key, 1*time.Minute)
	}

	// Allow up to 10 session creates per minute
	return count <= 10, nil
}

// ResetSessionCreate resets the attempt counter.
func (r *RateLimiter) ResetSessionCreate(ctx context.Context, ip string, userID int64) error {
	key := fmt.Sprintf("ratelimit:session_create:%s:%d", ip, userID)
	return r.client.Del(ctx, key).Err()
}
