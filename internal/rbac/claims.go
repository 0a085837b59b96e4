package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/shepherd-cms/shepherd/internal/shared"
)

// Claims is the denormalized copy of a principal's role kept in Redis.
// The persisted record stays authoritative; claims exist only to spare a
// database read per authorization check and are invalidated synchronously
// by every role assignment.
type Claims struct {
	RoleLevel RoleLevel  `json:"role_level"`
	RoleName  string     `json:"role_name"`
	Context   ContextMap `json:"context,omitempty"`
	Version   int64      `json:"version"`
}

// ClaimsCache stores role claims per principal id.
type ClaimsCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewClaimsCache constructs a ClaimsCache.
func NewClaimsCache(client *redis.Client, ttl time.Duration) *ClaimsCache {
	return &ClaimsCache{client: client, ttl: ttl}
}

// Get returns the cached claims, or nil on a miss.
func (c *ClaimsCache) Get(ctx context.Context, id uuid.UUID) (*Claims, error) {
	if c == nil || c.client == nil {
		return nil, nil
	}
	payload, err := c.client.Get(ctx, claimsKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("rbac: claims get: %w: %v", shared.ErrStoreUnavailable, err)
	}
	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		// A corrupt entry behaves like a miss; the record is authoritative.
		return nil, nil
	}
	return &claims, nil
}

// Set writes the claims with the configured TTL.
func (c *ClaimsCache) Set(ctx context.Context, id uuid.UUID, claims Claims) error {
	if c == nil || c.client == nil {
		return nil
	}
	payload, err := json.Marshal(claims)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, claimsKey(id), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("rbac: claims set: %w: %v", shared.ErrStoreUnavailable, err)
	}
	return nil
}

// Invalidate drops the cached claims so the next check rereads the record.
func (c *ClaimsCache) Invalidate(ctx context.Context, id uuid.UUID) error {
	if c == nil || c.client == nil {
		return nil
	}
	if err := c.client.Del(ctx, claimsKey(id)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("rbac: claims invalidate: %w: %v", shared.ErrStoreUnavailable, err)
	}
	return nil
}

func claimsKey(id uuid.UUID) string {
	return "rbac:claims:" + id.String()
}
