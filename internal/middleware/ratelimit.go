package middleware

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/finbot/finbot/internal/models"
	"golang.org/x/time/rate"
)

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter hands each caller a token bucket refilled at limit per minute.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*client
	limit   int
}

func NewRateLimiter(limitPerMinute int) *RateLimiter {
	return &RateLimiter{
		clients: make(map[string]*client),
		limit:   limitPerMinute,
	}
}

func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	c, ok := rl.clients[key]
	if !ok {
		c = &client{limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(rl.limit)), rl.limit)}
		rl.clients[key] = c
	}
	c.lastSeen = time.Now()
	return c.limiter
}

// Prune drops callers idle for longer than idle.
func (rl *RateLimiter) Prune(idle time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := time.Now().Add(-idle)
	n := 0
	for key, c := range rl.clients {
		if c.lastSeen.Before(cutoff) {
			delete(rl.clients, key)
			n++
		}
	}
	return n
}

// Middleware keys on the API key, falling back to the client IP.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-API-Key")
		if key == "" {
			key = clientIP(r)
		}

		lim := rl.limiter(key)
		ok := lim.Allow()

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(max(0, int(lim.Tokens()))))

		if !ok {
			w.Header().Set("Retry-After", "60")
			models.WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RateLimit is the standalone form used by the router. It prunes idle callers in the background.
func RateLimit(limitPerMinute int) func(http.Handler) http.Handler {
	if limitPerMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	rl := NewRateLimiter(limitPerMinute)
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			rl.Prune(10 * time.Minute)
		}
	}()
	return rl.Middleware
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
