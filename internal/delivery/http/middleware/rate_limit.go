package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"storefront-core/pkg/metrics"
	"storefront-core/pkg/utils"

	"golang.org/x/time/rate"
)

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a per-IP token bucket. Checkout and webhook routes sit
// behind it so a single client cannot flood the gateways.
type RateLimiter struct {
	clients       map[string]*client
	mu            sync.Mutex
	limit         rate.Limit
	burst         int
	cleanupPeriod time.Duration
	clientTTL     time.Duration
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewRateLimiter starts a limiter allowing rps requests per second with the
// given burst. Stale clients are dropped every cleanupPeriod.
func NewRateLimiter(ctx context.Context, rps float64, burst int, cleanupPeriod, clientTTL time.Duration) *RateLimiter {
	rl := &RateLimiter{
		clients:       make(map[string]*client),
		limit:         rate.Limit(rps),
		burst:         burst,
		cleanupPeriod: cleanupPeriod,
		clientTTL:     clientTTL,
	}
	rl.ctx, rl.cancel = context.WithCancel(ctx)
	go rl.cleanupLoop()
	return rl
}

func (rl *RateLimiter) Middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			limiter := rl.getVisitor(getClientIP(r))
			if !limiter.Allow() {
				retry := time.Duration(float64(time.Second) / float64(rl.limit))
				if retry < time.Second {
					retry = time.Second
				}
				w.Header().Set("Retry-After", strconv.Itoa(int(retry.Seconds())))
				metrics.RateLimited()
				utils.WriteErrorBody(w, http.StatusTooManyRequests, utils.ErrorBody{Error: "too many requests", Code: "rate_limited"})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (rl *RateLimiter) getVisitor(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, exists := rl.clients[ip]
	if !exists {
		limiter := rate.NewLimiter(rl.limit, rl.burst)
		rl.clients[ip] = &client{limiter: limiter, lastSeen: time.Now()}
		return limiter
	}

	v.lastSeen = time.Now()
	return v.limiter
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.cleanupPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.ctx.Done():
			return
		}
	}
}

func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for ip, v := range rl.clients {
		if time.Since(v.lastSeen) > rl.clientTTL {
			delete(rl.clients, ip)
		}
	}
}

// Shutdown stops the cleanup goroutine.
func (rl *RateLimiter) Shutdown() {
	rl.cancel()
}

// getClientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then
// the socket address without its port.
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
