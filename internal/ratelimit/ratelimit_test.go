// File: internal/ratelimit/ratelimit_test.go
package ratelimit

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *Config {
	return &Config{
		WindowSize:    time.Minute,
		MaxRequests:   3,
		CleanupPeriod: time.Hour,
		Cooldown:      5 * time.Minute,
	}
}

func TestMemoryRateLimiter_AllowsWithinWindow(t *testing.T) {
	rl := NewMemoryRateLimiter(testConfig())
	defer rl.Close()

	for i, wantRemaining := range []int{2, 1, 0} {
		allowed, decision := rl.Allow("client-a")
		require.True(t, allowed, "request %d should be allowed", i+1)
		assert.Equal(t, wantRemaining, decision.Remaining)
		assert.False(t, decision.InCooldown)
	}
}

func TestMemoryRateLimiter_ExceedingWindowStartsCooldown(t *testing.T) {
	rl := NewMemoryRateLimiter(testConfig())
	defer rl.Close()

	for i := 0; i < 3; i++ {
		allowed, _ := rl.Allow("client-a")
		require.True(t, allowed)
	}

	allowed, decision := rl.Allow("client-a")
	assert.False(t, allowed)
	assert.True(t, decision.InCooldown)
	assert.Equal(t, 5*time.Minute, decision.RetryAfter)

	// still denied while the cooldown runs
	allowed, decision = rl.Allow("client-a")
	assert.False(t, allowed)
	assert.True(t, decision.InCooldown)
	assert.LessOrEqual(t, decision.RetryAfter, 5*time.Minute)
}

func TestMemoryRateLimiter_CooldownExpiryAllowsAgain(t *testing.T) {
	rl := NewMemoryRateLimiter(&Config{
		WindowSize:    50 * time.Millisecond,
		MaxRequests:   1,
		CleanupPeriod: time.Hour,
		Cooldown:      20 * time.Millisecond,
	})
	defer rl.Close()

	allowed, _ := rl.Allow("client-a")
	require.True(t, allowed)
	allowed, decision := rl.Allow("client-a")
	require.False(t, allowed)
	require.True(t, decision.InCooldown)

	time.Sleep(30 * time.Millisecond)

	allowed, decision = rl.Allow("client-a")
	assert.True(t, allowed)
	assert.False(t, decision.InCooldown)
}

func TestMemoryRateLimiter_WindowExpiryResets(t *testing.T) {
	rl := NewMemoryRateLimiter(&Config{
		WindowSize:    10 * time.Millisecond,
		MaxRequests:   2,
		CleanupPeriod: time.Hour,
		Cooldown:      time.Minute,
	})
	defer rl.Close()

	allowed, _ := rl.Allow("client-a")
	require.True(t, allowed)
	allowed, _ = rl.Allow("client-a")
	require.True(t, allowed)

	time.Sleep(15 * time.Millisecond)

	allowed, decision := rl.Allow("client-a")
	assert.True(t, allowed)
	assert.Equal(t, 1, decision.Remaining) // fresh window
}

func TestMemoryRateLimiter_ClientsAreIndependent(t *testing.T) {
	rl := NewMemoryRateLimiter(testConfig())
	defer rl.Close()

	for i := 0; i < 4; i++ {
		rl.Allow("client-a")
	}
	allowed, _ := rl.Allow("client-b")
	assert.True(t, allowed)
}

func TestClientIP(t *testing.T) {
	newRequest := func(remoteAddr string, headers map[string]string) *http.Request {
		r, err := http.NewRequest(http.MethodGet, "/", nil)
		require.NoError(t, err)
		r.RemoteAddr = remoteAddr
		for k, v := range headers {
			r.Header.Set(k, v)
		}
		return r
	}

	t.Run("forwarded header wins", func(t *testing.T) {
		r := newRequest("10.0.0.1:443", map[string]string{"X-Forwarded-For": "203.0.113.5, 10.0.0.1"})
		assert.Equal(t, "203.0.113.5", ClientIP(r))
	})

	t.Run("invalid forwarded entry ignored", func(t *testing.T) {
		r := newRequest("10.0.0.1:443", map[string]string{
			"X-Forwarded-For": "not-an-ip",
			"X-Real-IP":       "198.51.100.7",
		})
		assert.Equal(t, "198.51.100.7", ClientIP(r))
	})

	t.Run("remote addr fallback", func(t *testing.T) {
		r := newRequest("192.0.2.10:52341", nil)
		assert.Equal(t, "192.0.2.10", ClientIP(r))
	})

	t.Run("remote addr without port", func(t *testing.T) {
		r := newRequest("192.0.2.10", nil)
		assert.Equal(t, "192.0.2.10", ClientIP(r))
	})
}
