package api

import (
	"context"
	"net/http"
	"testing"
	"time"
)

func TestRateLimiterAllowDeny(t *testing.T) {
	rl := NewRateLimiter()

	// Should allow up to the limit
	for i := 0; i < 5; i++ {
		if !rl.Allow("k1", 5) {
			t.Fatalf("expected allow on request %d", i+1)
		}
	}

	// Should deny at the limit
	if rl.Allow("k1", 5) {
		t.Fatal("expected deny after limit reached")
	}
}

func TestRateLimiterWindowReset(t *testing.T) {
	now := time.Now()
	rl := NewRateLimiter()
	rl.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		rl.Allow("k1", 3)
	}
	if rl.Allow("k1", 3) {
		t.Fatal("expected deny after limit")
	}

	now = now.Add(61 * time.Second)
	if !rl.Allow("k1", 3) {
		t.Fatal("expected allow after window reset")
	}
}

func TestRateLimiterKeyIsolation(t *testing.T) {
	rl := NewRateLimiter()
	for i := 0; i < 2; i++ {
		rl.Allow("key1", 2)
	}
	if rl.Allow("key1", 2) {
		t.Fatal("key1 should be denied")
	}
	if !rl.Allow("key2", 2) {
		t.Fatal("key2 should be allowed")
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	now := time.Now()
	rl := NewRateLimiter()
	rl.now = func() time.Time { return now }
	rl.Allow("old", 1)
	now = now.Add(3 * time.Minute)
	rl.Allow("fresh", 1)

	rl.cleanup()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if _, ok := rl.buckets["old"]; ok {
		t.Fatal("expired bucket not removed")
	}
	if _, ok := rl.buckets["fresh"]; !ok {
		t.Fatal("fresh bucket removed")
	}
}

func TestRateLimiterRunStops(t *testing.T) {
	rl := NewRateLimiter()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		rl.Run(ctx, time.Millisecond)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestWriteRateLimited(t *testing.T) {
	h := newTestHarness(t, func(c *Config) { c.RateLimitWrite = 2 })
	h.PutDoc("alice", `{}`, nil)
	h.PutDoc("alice", `{}`, nil)

	resp := h.Do("PUT", "/v1/docs/alice", []byte(`{}`), nil)
	if got := resp.Header.Get("Retry-After"); got != "60" {
		t.Fatalf("Retry-After: got %q, want 60", got)
	}
	AssertErrorResponse(t, resp, http.StatusTooManyRequests, ErrCodeRateLimited)

	// other documents have their own window
	h.PutDoc("bob", `{}`, nil)
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name   string
		xff    string
		remote string
		want   string
	}{
		{"remote addr", "", "10.0.0.1:1234", "10.0.0.1"},
		{"xff single", "1.2.3.4", "10.0.0.1:1234", "1.2.3.4"},
		{"xff chain", "1.2.3.4, 5.6.7.8", "10.0.0.1:1234", "1.2.3.4"},
		{"no port", "", "10.0.0.1", "10.0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := http.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remote
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if got := clientIP(r); got != tt.want {
				t.Fatalf("clientIP: got %q, want %q", got, tt.want)
			}
		})
	}
}
