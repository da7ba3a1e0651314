package middleware

import (
	"encoding/json"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// CostFunc prices a request in budget units.
type CostFunc func(*http.Request) int

// RateLimiter gives every client IP a budget of units per fixed window.
// Cheap lookups cost one unit; expensive endpoints can be priced higher
// with SetCost.
type RateLimiter struct {
	mu        sync.RWMutex
	clients   map[string]*bucket
	rate      int           // units per window
	window    time.Duration // window length
	idle      time.Duration // buckets untouched this long are evicted
	whitelist map[string]struct{}
	cost      CostFunc
	onBlocked func()
	logger    *slog.Logger

	stop     chan struct{}
	stopOnce sync.Once
}

type bucket struct {
	remaining int
	resetAt   time.Time
}

// Decision is the outcome of charging a request against a budget.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

type LimiterStats struct {
	TrackedIPs       int     `json:"tracked_ips"`
	RatePerWindow    int     `json:"rate_per_window"`
	WindowSeconds    float64 `json:"window_seconds"`
	WhitelistEntries int     `json:"whitelist_entries"`
}

// NewRateLimiter creates a limiter allowing rate units per window.
// IPs in whitelist bypass the limiter. Call Close to stop the cleanup loop.
func NewRateLimiter(rate int, window time.Duration, whitelist []string, logger *slog.Logger) *RateLimiter {
	wl := make(map[string]struct{}, len(whitelist))
	for _, ip := range whitelist {
		ip = strings.TrimSpace(ip)
		if ip != "" {
			wl[ip] = struct{}{}
		}
	}
	if rate < 1 {
		rate = 1
	}

	rl := &RateLimiter{
		clients:   make(map[string]*bucket),
		rate:      rate,
		window:    window,
		idle:      window * 2,
		whitelist: wl,
		logger:    logger.With("component", "rate_limiter"),
		stop:      make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// SetCost installs the pricing used by Middleware.
func (rl *RateLimiter) SetCost(fn CostFunc) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.cost = fn
}

// OnBlocked registers fn to run for every rejected request.
func (rl *RateLimiter) OnBlocked(fn func()) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.onBlocked = fn
}

func (rl *RateLimiter) Close() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.idle)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.evictIdle(time.Now())
		}
	}
}

func (rl *RateLimiter) evictIdle(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for ip, b := range rl.clients {
		if now.Sub(b.resetAt) > rl.idle-rl.window {
			delete(rl.clients, ip)
		}
	}
}

func (rl *RateLimiter) IsWhitelisted(ip string) bool {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	_, ok := rl.whitelist[ip]
	return ok
}

// Allow charges one unit to ip.
func (rl *RateLimiter) Allow(ip string) bool {
	return rl.take(ip, 1, time.Now()).Allowed
}

// take charges cost units to ip. A cost above the whole budget is capped
// so that such a request can still pass on a fresh window.
func (rl *RateLimiter) take(ip string, cost int, now time.Time) Decision {
	if cost < 1 {
		cost = 1
	}
	if cost > rl.rate {
		cost = rl.rate
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.clients[ip]
	if !ok || !now.Before(b.resetAt) {
		b = &bucket{remaining: rl.rate, resetAt: now.Add(rl.window)}
		rl.clients[ip] = b
	}

	if b.remaining < cost {
		return Decision{Allowed: false, Remaining: b.remaining, ResetAt: b.resetAt}
	}
	b.remaining -= cost
	return Decision{Allowed: true, Remaining: b.remaining, ResetAt: b.resetAt}
}

// Middleware charges each request its cost and answers 429 with a JSON
// error once the budget is spent. Quota headers are set on every
// limited response.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := getClientIP(r)
		if rl.IsWhitelisted(ip) {
			next.ServeHTTP(w, r)
			return
		}

		rl.mu.RLock()
		costFn, onBlocked := rl.cost, rl.onBlocked
		rl.mu.RUnlock()

		cost := 1
		if costFn != nil {
			cost = costFn(r)
		}

		now := time.Now()
		d := rl.take(ip, cost, now)

		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(rl.rate))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))

		if !d.Allowed {
			rl.logger.Warn("rate limit exceeded", "ip", ip, "path", r.URL.Path, "cost", cost)
			if onBlocked != nil {
				onBlocked()
			}
			retry := int(math.Ceil(d.ResetAt.Sub(now).Seconds()))
			if retry < 1 {
				retry = 1
			}
			h.Set("Retry-After", strconv.Itoa(retry))
			h.Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]string{"error": "rate limit exceeded"})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func getClientIP(r *http.Request) string {
	// X-Forwarded-For from a reverse proxy: "client, proxy1, proxy2"
	if xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if host, _, err := net.SplitHostPort(first); err == nil {
			return host
		}
		return first
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

func (rl *RateLimiter) Stats() LimiterStats {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	return LimiterStats{
		TrackedIPs:       len(rl.clients),
		RatePerWindow:    rl.rate,
		WindowSeconds:    rl.window.Seconds(),
		WhitelistEntries: len(rl.whitelist),
	}
}
