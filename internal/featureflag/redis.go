package featureflag

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "featureflag:"

// Scopes stored as members of a flag's Redis set.
const (
	ScopeEveryone = "*"
)

func ScopeUser(id string) string        { return "user:" + id }
func ScopeOrg(id string) string         { return "org:" + id }
func ScopeApplication(id string) string { return "app:" + id }

// RedisSource keeps each flag as a Redis set of scopes it is enabled for.
// Set contents are cached locally for ttl, so a flip takes up to ttl to
// reach every process.
type RedisSource struct {
	client redis.Cmdable
	cache  *cache.Cache
}

func NewRedisSource(client redis.Cmdable, ttl time.Duration) *RedisSource {
	return &RedisSource{
		client: client,
		cache:  cache.New(ttl, 2*ttl),
	}
}

func (r *RedisSource) Enabled(ctx context.Context, flag Flag, target Target) (bool, error) {
	scopes, err := r.scopes(ctx, flag)
	if err != nil {
		return false, err
	}
	if scopes[ScopeEveryone] {
		return true, nil
	}
	return (target.UserID != "" && scopes[ScopeUser(target.UserID)]) ||
		(target.OrgID != "" && scopes[ScopeOrg(target.OrgID)]) ||
		(target.PlatformApplicationID != "" && scopes[ScopeApplication(target.PlatformApplicationID)]), nil
}

func (r *RedisSource) scopes(ctx context.Context, flag Flag) (map[string]bool, error) {
	if v, ok := r.cache.Get(string(flag)); ok {
		return v.(map[string]bool), nil
	}

	members, err := r.client.SMembers(ctx, keyPrefix+string(flag)).Result()
	if err != nil {
		return nil, fmt.Errorf("read flag %s: %w", flag, err)
	}
	scopes := make(map[string]bool, len(members))
	for _, m := range members {
		scopes[m] = true
	}
	r.cache.SetDefault(string(flag), scopes)
	return scopes, nil
}

// Enable turns flag on for scope and drops the local cache entry.
func (r *RedisSource) Enable(ctx context.Context, flag Flag, scope string) error {
	if err := r.client.SAdd(ctx, keyPrefix+string(flag), scope).Err(); err != nil {
		return fmt.Errorf("enable flag %s: %w", flag, err)
	}
	r.cache.Delete(string(flag))
	return nil
}

// Disable turns flag off for scope and drops the local cache entry.
func (r *RedisSource) Disable(ctx context.Context, flag Flag, scope string) error {
	if err := r.client.SRem(ctx, keyPrefix+string(flag), scope).Err(); err != nil {
		return fmt.Errorf("disable flag %s: %w", flag, err)
	}
	r.cache.Delete(string(flag))
	return nil
}
