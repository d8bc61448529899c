// File: internal/ratelimit/ratelimit.go
package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Config holds the limiter's window parameters.
type Config struct {
	WindowSize    time.Duration
	MaxRequests   int
	CleanupPeriod time.Duration
	Cooldown      time.Duration
}

// UploadConfig limits knowledge-base uploads. Embedding every chunk of a
// document is expensive, so the window is deliberately tight.
func UploadConfig() *Config {
	return &Config{
		WindowSize:    time.Minute,
		MaxRequests:   20,
		CleanupPeriod: 10 * time.Minute,
		Cooldown:      5 * time.Minute,
	}
}

// GenerationConfig limits protocol generation runs, each of which fans out
// into many LLM calls.
func GenerationConfig() *Config {
	return &Config{
		WindowSize:    time.Minute,
		MaxRequests:   10,
		CleanupPeriod: 10 * time.Minute,
		Cooldown:      5 * time.Minute,
	}
}

type window struct {
	Count      int
	OpenedAt   time.Time
	CooldownAt *time.Time
}

// Decision reports the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Remaining  int
	ResetTime  time.Time
	RetryAfter time.Duration
	InCooldown bool
}

// MemoryRateLimiter tracks request windows per client in memory. Exceeding
// the window puts the client into a cooldown period.
type MemoryRateLimiter struct {
	config  *Config
	windows map[string]*window
	mu      sync.Mutex
	stopCh  chan struct{}
}

func NewMemoryRateLimiter(config *Config) *MemoryRateLimiter {
	rl := &MemoryRateLimiter{
		config:  config,
		windows: make(map[string]*window),
		stopCh:  make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

// Allow records one request for the identifier and decides whether it may
// proceed.
func (rl *MemoryRateLimiter) Allow(identifier string) (bool, *Decision) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	w, ok := rl.windows[identifier]
	if !ok || (now.Sub(w.OpenedAt) > rl.config.WindowSize && w.CooldownAt == nil) {
		rl.windows[identifier] = &window{Count: 1, OpenedAt: now}
		return true, &Decision{
			Allowed:   true,
			Remaining: rl.config.MaxRequests - 1,
			ResetTime: now.Add(rl.config.WindowSize),
		}
	}

	if w.CooldownAt != nil {
		if since := now.Sub(*w.CooldownAt); since < rl.config.Cooldown {
			return false, &Decision{
				Allowed:    false,
				ResetTime:  w.CooldownAt.Add(rl.config.Cooldown),
				RetryAfter: rl.config.Cooldown - since,
				InCooldown: true,
			}
		}
		// cooldown over, start a fresh window
		rl.windows[identifier] = &window{Count: 1, OpenedAt: now}
		return true, &Decision{
			Allowed:   true,
			Remaining: rl.config.MaxRequests - 1,
			ResetTime: now.Add(rl.config.WindowSize),
		}
	}

	w.Count++
	if w.Count > rl.config.MaxRequests {
		start := now
		w.CooldownAt = &start
		return false, &Decision{
			Allowed:    false,
			ResetTime:  now.Add(rl.config.Cooldown),
			RetryAfter: rl.config.Cooldown,
			InCooldown: true,
		}
	}

	return true, &Decision{
		Allowed:   true,
		Remaining: rl.config.MaxRequests - w.Count,
		ResetTime: w.OpenedAt.Add(rl.config.WindowSize),
	}
}

func (rl *MemoryRateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

func (rl *MemoryRateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for id, w := range rl.windows {
		windowExpired := now.Sub(w.OpenedAt) > rl.config.WindowSize && w.CooldownAt == nil
		cooldownExpired := w.CooldownAt != nil && now.Sub(*w.CooldownAt) > rl.config.Cooldown
		if windowExpired || cooldownExpired {
			delete(rl.windows, id)
		}
	}
}

// Close stops the cleanup goroutine.
func (rl *MemoryRateLimiter) Close() {
	close(rl.stopCh)
}

// ClientIP extracts the originating client address, honoring proxy headers.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first := strings.TrimSpace(strings.Split(forwarded, ",")[0])
		if net.ParseIP(first) != nil {
			return first
		}
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
