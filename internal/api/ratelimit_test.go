package api

import (
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimiterWindow(t *testing.T) {
	now := time.Unix(0, 0)
	rl := NewRateLimiter(2, time.Minute)
	defer rl.Close()
	rl.now = func() time.Time { return now }

	if !rl.Allow("a") || !rl.Allow("a") {
		t.Fatal("first two requests should pass")
	}
	if rl.Allow("a") {
		t.Fatal("third request in window should be limited")
	}
	if !rl.Allow("b") {
		t.Error("limits must be per client")
	}
	if ra := rl.RetryAfter("a"); ra != 61 {
		t.Errorf("RetryAfter = %d, want 61", ra)
	}
	if rl.RetryAfter("unknown") != 0 {
		t.Error("RetryAfter for unknown client should be 0")
	}

	now = now.Add(time.Minute)
	if !rl.Allow("a") {
		t.Error("window did not reset")
	}

	now = now.Add(3 * time.Minute)
	rl.cleanup()
	rl.mu.Lock()
	n := len(rl.buckets)
	rl.mu.Unlock()
	if n != 0 {
		t.Errorf("%d stale buckets survived cleanup", n)
	}
	rl.Close() // idempotent with the deferred Close
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		remote string
		xff    string
		want   string
	}{
		{"10.0.0.1:5555", "", "10.0.0.1"},
		{"[::1]:80", "", "::1"},
		{"10.0.0.1:5555", "203.0.113.9, 10.0.0.2", "203.0.113.9"},
		{"unix-socket", "", "unix-socket"},
	}
	for _, tt := range tests {
		r := httptest.NewRequest("GET", "/", nil)
		r.RemoteAddr = tt.remote
		if tt.xff != "" {
			r.Header.Set("X-Forwarded-For", tt.xff)
		}
		if got := clientIP(r); got != tt.want {
			t.Errorf("clientIP(%q, %q) = %q, want %q", tt.remote, tt.xff, got, tt.want)
		}
	}
}
