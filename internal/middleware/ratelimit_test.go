package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLimiter(t *testing.T, rate int, window time.Duration, whitelist ...string) *RateLimiter {
	t.Helper()
	rl := NewRateLimiter(rate, window, whitelist, slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(rl.Close)
	return rl
}

func TestRateLimiter_AllowWindow(t *testing.T) {
	rl := newLimiter(t, 2, time.Minute)
	now := time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)

	assert.True(t, rl.take("10.0.0.1", 1, now).Allowed)
	d := rl.take("10.0.0.1", 1, now.Add(time.Second))
	assert.True(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.Equal(t, now.Add(time.Minute), d.ResetAt)

	assert.False(t, rl.take("10.0.0.1", 1, now.Add(2*time.Second)).Allowed)
	assert.True(t, rl.take("10.0.0.2", 1, now.Add(2*time.Second)).Allowed, "budgets are per IP")

	assert.True(t, rl.take("10.0.0.1", 1, now.Add(61*time.Second)).Allowed)
}

func TestRateLimiter_WeightedCost(t *testing.T) {
	rl := newLimiter(t, 10, time.Minute)
	now := time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)

	d := rl.take("10.0.0.1", 4, now)
	require.True(t, d.Allowed)
	assert.Equal(t, 6, d.Remaining)

	assert.True(t, rl.take("10.0.0.1", 4, now).Allowed)
	d = rl.take("10.0.0.1", 4, now)
	assert.False(t, d.Allowed, "only two units left")
	assert.Equal(t, 2, d.Remaining)
	assert.True(t, rl.take("10.0.0.1", 2, now).Allowed)

	assert.True(t, rl.take("10.0.0.3", 50, now).Allowed, "cost is capped at the budget")
	assert.False(t, rl.take("10.0.0.3", 0, now).Allowed)
}

func TestRateLimiter_EvictIdle(t *testing.T) {
	rl := newLimiter(t, 5, time.Minute)
	now := time.Now()
	rl.take("10.0.0.1", 1, now.Add(-3*time.Minute))
	rl.take("10.0.0.2", 1, now)

	rl.evictIdle(now)
	assert.Equal(t, 1, rl.Stats().TrackedIPs)
}

func TestRateLimiter_Middleware(t *testing.T) {
	rl := newLimiter(t, 3, time.Minute, "192.168.1.9")
	blocked := 0
	rl.OnBlocked(func() { blocked++ })
	rl.SetCost(func(r *http.Request) int {
		if r.URL.Path == "/v1/journeys" {
			return 3
		}
		return 1
	})

	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	do := func(remote, xff string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/v1/journeys", nil)
		req.RemoteAddr = remote
		if xff != "" {
			req.Header.Set("X-Forwarded-For", xff)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	rec := do("10.0.0.1:5000", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "3", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	rec = do("10.0.0.1:5001", "")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, []string{"59", "60"}, rec.Header().Get("Retry-After"))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"rate limit exceeded"}`, rec.Body.String())
	assert.Equal(t, 1, blocked)

	assert.Equal(t, http.StatusNoContent, do("10.0.0.1:5002", "203.0.113.7, 10.0.0.1").Code)

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusNoContent, do("192.168.1.9:4000", "").Code)
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name   string
		remote string
		xff    string
		xri    string
		want   string
	}{
		{"remote addr", "10.1.1.1:443", "", "", "10.1.1.1"},
		{"forwarded first hop", "10.1.1.1:443", "203.0.113.5, 10.0.0.1", "", "203.0.113.5"},
		{"forwarded with port", "10.1.1.1:443", "203.0.113.5:8080", "", "203.0.113.5"},
		{"real ip", "10.1.1.1:443", "", "198.51.100.2", "198.51.100.2"},
		{"no port", "10.1.1.1", "", "", "10.1.1.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				req.Header.Set("X-Real-IP", tt.xri)
			}
			assert.Equal(t, tt.want, getClientIP(req))
		})
	}
}
