package featureflag

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisSource(t *testing.T, ttl time.Duration) (*RedisSource, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisSource(client, ttl), mr
}

func TestStatic(t *testing.T) {
	s := NewStatic(string(SkipPublishUserIdentityUpdate))
	ctx := context.Background()

	on, err := s.Enabled(ctx, SkipPublishUserIdentityUpdate, Target{})
	require.NoError(t, err)
	assert.True(t, on)

	on, err = s.Enabled(ctx, "other", Target{})
	require.NoError(t, err)
	assert.False(t, on)
}

func TestRedisSource_Scopes(t *testing.T) {
	src, _ := newRedisSource(t, time.Minute)
	ctx := context.Background()
	flag := SkipPublishUserIdentityUpdate

	require.NoError(t, src.Enable(ctx, flag, ScopeOrg("o1")))

	tests := []struct {
		name   string
		target Target
		want   bool
	}{
		{"matching org", Target{UserID: "u1", OrgID: "o1"}, true},
		{"other org", Target{UserID: "u1", OrgID: "o2"}, false},
		{"no org", Target{UserID: "u1"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			on, err := src.Enabled(ctx, flag, tt.target)
			require.NoError(t, err)
			assert.Equal(t, tt.want, on)
		})
	}

	require.NoError(t, src.Enable(ctx, flag, ScopeEveryone))
	on, err := src.Enabled(ctx, flag, Target{UserID: "anyone"})
	require.NoError(t, err)
	assert.True(t, on)
}

func TestRedisSource_CachesUntilLocalFlip(t *testing.T) {
	src, mr := newRedisSource(t, time.Hour)
	ctx := context.Background()
	flag := SkipPublishUserIdentityUpdate
	target := Target{PlatformApplicationID: "app"}

	on, err := src.Enabled(ctx, flag, target)
	require.NoError(t, err)
	assert.False(t, on)

	// A write from another process is not seen until the cache expires.
	_, err = mr.SAdd(keyPrefix+string(flag), ScopeApplication("app"))
	require.NoError(t, err)
	on, _ = src.Enabled(ctx, flag, target)
	assert.False(t, on)

	// A write through this source invalidates immediately.
	require.NoError(t, src.Disable(ctx, flag, ScopeApplication("nothing")))
	on, _ = src.Enabled(ctx, flag, target)
	assert.True(t, on)
}

func TestRedisSource_Error(t *testing.T) {
	src, mr := newRedisSource(t, time.Minute)
	mr.Close()

	_, err := src.Enabled(context.Background(), SkipPublishUserIdentityUpdate, Target{})
	assert.Error(t, err)
}

type brokenSource struct{}

func (brokenSource) Enabled(context.Context, Flag, Target) (bool, error) {
	return false, errors.New("unavailable")
}

func TestAny(t *testing.T) {
	ctx := context.Background()

	on, err := Any{brokenSource{}, NewStatic(string(SkipPublishUserIdentityUpdate))}.Enabled(ctx, SkipPublishUserIdentityUpdate, Target{})
	require.NoError(t, err)
	assert.True(t, on)

	on, err = Any{brokenSource{}, NewStatic()}.Enabled(ctx, SkipPublishUserIdentityUpdate, Target{})
	assert.Error(t, err)
	assert.False(t, on)
}
