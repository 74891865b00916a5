package admission

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	errs "github.com/vaultmesh/backup-sentinel/internal/domain/errors"
	"github.com/vaultmesh/backup-sentinel/internal/infrastructure/config"
)

func testRateLimitConfig() config.RateLimitConfig {
	return config.RateLimitConfig{
		Enabled:                  true,
		PerIPPerMinute:           3,
		PerIPPerHour:             100,
		PerIPPerDay:              1000,
		PerUserPerMinute:         2,
		AuthEndpointPerMinute:    2,
		AdminEndpointPerMinute:   30,
		BackupEndpointPerHour:    20,
		GeneralEndpointPerMinute: 100,
		ViolationThreshold:       2,
		ViolationPeriod:          time.Hour,
		BlockDuration:            15 * time.Minute,
	}
}

func setupTestLimiter(t *testing.T, cfg config.RateLimitConfig) (*Limiter, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewLimiter(NewStore(client), cfg, zaptest.NewLogger(t)), mr
}

func TestLimiterAllowsWithinLimit(t *testing.T) {
	limiter, _ := setupTestLimiter(t, testRateLimitConfig())
	ctx := context.Background()

	req := Request{RemoteIP: "203.0.113.10", Class: ClassGeneral}
	for i := 0; i < 3; i++ {
		d := limiter.Admit(ctx, req)
		assert.True(t, d.Allowed, "request %d should be allowed", i+1)
	}
}

func TestLimiterDeniesOverPerMinuteLimit(t *testing.T) {
	limiter, _ := setupTestLimiter(t, testRateLimitConfig())
	ctx := context.Background()

	req := Request{RemoteIP: "203.0.113.11", Class: ClassGeneral}
	for i := 0; i < 3; i++ {
		require.True(t, limiter.Admit(ctx, req).Allowed)
	}

	d := limiter.Admit(ctx, req)
	require.False(t, d.Allowed)
	assert.Equal(t, ScopeIPMinute, d.Scope)
	assert.Equal(t, ReasonPerMinute, d.Reason)
	assert.Greater(t, d.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, d.RetryAfter, time.Minute)
}

func TestLimiterCounterExpiry(t *testing.T) {
	limiter, mr := setupTestLimiter(t, testRateLimitConfig())
	ctx := context.Background()

	req := Request{RemoteIP: "203.0.113.12", Class: ClassGeneral}
	for i := 0; i < 3; i++ {
		require.True(t, limiter.Admit(ctx, req).Allowed)
	}
	require.False(t, limiter.Admit(ctx, req).Allowed)

	// Counters expire with their window, so the budget refills.
	mr.FastForward(61 * time.Second)
	assert.True(t, limiter.Admit(ctx, req).Allowed)
}

func TestLimiterBlocksAfterRepeatedViolations(t *testing.T) {
	limiter, _ := setupTestLimiter(t, testRateLimitConfig())
	ctx := context.Background()

	req := Request{RemoteIP: "203.0.113.13", Class: ClassGeneral}
	for i := 0; i < 3; i++ {
		require.True(t, limiter.Admit(ctx, req).Allowed)
	}

	// Two denials cross the violation threshold.
	require.False(t, limiter.Admit(ctx, req).Allowed)
	require.False(t, limiter.Admit(ctx, req).Allowed)

	d := limiter.Admit(ctx, req)
	require.False(t, d.Allowed)
	assert.Equal(t, ScopeBlocked, d.Scope)
	assert.Equal(t, ReasonBlocked, d.Reason)
	assert.Greater(t, d.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, d.RetryAfter, 15*time.Minute)
}

func TestLimiterBlockExpires(t *testing.T) {
	limiter, mr := setupTestLimiter(t, testRateLimitConfig())
	ctx := context.Background()

	req := Request{RemoteIP: "203.0.113.14", Class: ClassGeneral}
	for i := 0; i < 5; i++ {
		limiter.Admit(ctx, req)
	}
	require.Equal(t, ScopeBlocked, limiter.Admit(ctx, req).Scope)

	// Past the block duration everything has expired, including the
	// violation tally and the window counters.
	mr.FastForward(16 * time.Minute)
	assert.True(t, limiter.Admit(ctx, req).Allowed)
}

func TestLimiterUnblock(t *testing.T) {
	limiter, mr := setupTestLimiter(t, testRateLimitConfig())
	ctx := context.Background()

	req := Request{RemoteIP: "203.0.113.15", Class: ClassGeneral}
	for i := 0; i < 5; i++ {
		limiter.Admit(ctx, req)
	}
	require.Equal(t, ScopeBlocked, limiter.Admit(ctx, req).Scope)

	require.NoError(t, limiter.Unblock(ctx, "ip:203.0.113.15"))

	// The minute counter is still full, so refill the window before
	// checking that the block itself is gone.
	mr.FastForward(61 * time.Second)
	assert.True(t, limiter.Admit(ctx, req).Allowed)
}

func TestLimiterUserLimit(t *testing.T) {
	cfg := testRateLimitConfig()
	cfg.PerIPPerMinute = 100
	limiter, _ := setupTestLimiter(t, cfg)
	ctx := context.Background()

	req := Request{RemoteIP: "203.0.113.16", UserID: "alice", Class: ClassGeneral}
	require.True(t, limiter.Admit(ctx, req).Allowed)
	require.True(t, limiter.Admit(ctx, req).Allowed)

	d := limiter.Admit(ctx, req)
	require.False(t, d.Allowed)
	assert.Equal(t, ScopeUserMinute, d.Scope)
}

func TestLimiterEndpointClassLimit(t *testing.T) {
	limiter, _ := setupTestLimiter(t, testRateLimitConfig())
	ctx := context.Background()

	req := Request{RemoteIP: "203.0.113.17", Class: ClassAuth}
	require.True(t, limiter.Admit(ctx, req).Allowed)
	require.True(t, limiter.Admit(ctx, req).Allowed)

	// Third request is still within the IP budget but over the auth
	// endpoint budget.
	d := limiter.Admit(ctx, req)
	require.False(t, d.Allowed)
	assert.Equal(t, ScopeEndpoint, d.Scope)
}

func TestLimiterWhitelistBypass(t *testing.T) {
	limiter, _ := setupTestLimiter(t, testRateLimitConfig())
	ctx := context.Background()

	req := Request{RemoteIP: "127.0.0.1", Class: ClassGeneral}
	for i := 0; i < 20; i++ {
		assert.True(t, limiter.Admit(ctx, req).Allowed)
	}
}

func TestLimiterFailsClosedOnBlockLookupError(t *testing.T) {
	limiter, mr := setupTestLimiter(t, testRateLimitConfig())
	ctx := context.Background()

	mr.Close()

	d := limiter.Admit(ctx, Request{RemoteIP: "203.0.113.18", Class: ClassGeneral})
	require.False(t, d.Allowed)
	assert.Equal(t, ScopeBlocked, d.Scope)
}

func TestWhitelist(t *testing.T) {
	w := NewWhitelist([]string{"198.51.100.0/24", "not-a-cidr"})

	tests := []struct {
		ip   string
		want bool
	}{
		{"127.0.0.1", true},
		{"10.1.2.3", true},
		{"192.168.0.10", true},
		{"::1", true},
		{"198.51.100.42", true},
		{"203.0.113.1", false},
		{"garbage", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			assert.Equal(t, tt.want, w.Contains(tt.ip))
		})
	}
}

func TestDisabledLimiterAdmitsEverything(t *testing.T) {
	cfg := testRateLimitConfig()
	cfg.Enabled = false
	cfg.PerIPPerMinute = 1
	l, _ := setupTestLimiter(t, cfg)

	for i := 0; i < 10; i++ {
		d := l.Admit(context.Background(), Request{RemoteIP: "203.0.113.40", Class: ClassGeneral})
		require.True(t, d.Allowed)
	}
}

func TestStoreWindowCounterCarriesTTL(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	store := NewStore(client)
	ctx := context.Background()

	count, _, err := store.IncrWindow(ctx, "ip:203.0.113.30:m", time.Minute)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)

	bucket := time.Now().Truncate(time.Minute).Unix()
	key := fmt.Sprintf("rl:ip:203.0.113.30:m:%d", bucket)
	require.True(t, mr.Exists(key))
	assert.Greater(t, mr.TTL(key), time.Duration(0))

	violations, err := store.IncrViolation(ctx, "ip:203.0.113.30", time.Hour)
	require.NoError(t, err)
	require.Equal(t, int64(1), violations)
	assert.Greater(t, mr.TTL("rlv:ip:203.0.113.30"), time.Duration(0))
}

func TestStoreBlockRoundTrip(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	store := NewStore(client)
	ctx := context.Background()

	_, _, found, err := store.GetBlock(ctx, "ip:203.0.113.20")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.SetBlock(ctx, "ip:203.0.113.20", "too many requests per minute", 15*time.Minute))

	reason, remaining, found, err := store.GetBlock(ctx, "ip:203.0.113.20")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "too many requests per minute", reason)
	assert.Greater(t, remaining, time.Duration(0))

	require.NoError(t, store.RemoveBlock(ctx, "ip:203.0.113.20"))
	_, _, found, err = store.GetBlock(ctx, "ip:203.0.113.20")
	require.NoError(t, err)
	assert.False(t, found)

	assert.ErrorIs(t, store.RemoveBlock(ctx, "ip:203.0.113.20"), errs.ErrBlockNotFound)
}
