package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"screencast/pkg/config"
	apperrors "screencast/pkg/errors"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// rateLimiterStore stores per-key (for example, per IP) rate limiters.
type rateLimiterStore struct {
	mu        sync.Mutex
	limiters  map[string]*rate.Limiter
	rate      rate.Limit
	burstSize int
}

func newRateLimiterStore(r rate.Limit, burst int) *rateLimiterStore {
	return &rateLimiterStore{
		limiters:  make(map[string]*rate.Limiter),
		rate:      r,
		burstSize: burst,
	}
}

func (s *rateLimiterStore) getLimiter(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	limiter, exists := s.limiters[key]
	if !exists {
		limiter = rate.NewLimiter(s.rate, s.burstSize)
		s.limiters[key] = limiter
	}
	return limiter
}

// clientIP prefers the first X-Forwarded-For hop, then the remote address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
			return ip.String()
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func abortWith(c *gin.Context, appErr *apperrors.AppError) {
	c.AbortWithStatusJSON(appErr.HTTPStatus, appErr.Body())
}

func passThrough(c *gin.Context) {
	c.Next()
}

// concurrencyGate bounds in-flight requests. A nil gate admits everything.
type concurrencyGate chan struct{}

func newConcurrencyGate(limit int) concurrencyGate {
	if limit <= 0 {
		return nil
	}
	return make(concurrencyGate, limit)
}

func (g concurrencyGate) enter() bool {
	if g == nil {
		return true
	}
	select {
	case g <- struct{}{}:
		return true
	default:
		return false
	}
}

func (g concurrencyGate) leave() {
	if g != nil {
		<-g
	}
}

// NewHTTPRateLimitMiddleware returns Gin middleware that applies simple IP-based rate limiting.
func NewHTTPRateLimitMiddleware(cfg *config.Config) gin.HandlerFunc {
	if !cfg.RateLimiting.Enabled {
		return passThrough
	}

	store := newRateLimiterStore(
		rate.Limit(cfg.RateLimiting.HTTP.RequestsPerSecond),
		cfg.RateLimiting.HTTP.Burst,
	)
	gate := newConcurrencyGate(cfg.RateLimiting.HTTP.MaxConcurrent)

	return func(c *gin.Context) {
		if !gate.enter() {
			abortWith(c, apperrors.NewServiceUnavailableError("too many concurrent requests"))
			return
		}
		defer gate.leave()

		if !store.getLimiter(clientIP(c.Request)).Allow() {
			c.Header("Retry-After", "1")
			abortWith(c, apperrors.NewRateLimitError())
			return
		}
		c.Next()
	}
}

// NewWebSocketRateLimitMiddleware limits notification feed connections per IP
// per minute and in total. The gate is held for the connection's lifetime.
func NewWebSocketRateLimitMiddleware(cfg *config.Config) gin.HandlerFunc {
	if !cfg.RateLimiting.Enabled {
		return passThrough
	}

	perMinute := cfg.RateLimiting.WebSocket.ConnectionsPerMinute
	var store *rateLimiterStore
	if perMinute > 0 {
		store = newRateLimiterStore(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
	}
	gate := newConcurrencyGate(cfg.RateLimiting.WebSocket.MaxConcurrent)

	return func(c *gin.Context) {
		if store != nil && !store.getLimiter(clientIP(c.Request)).Allow() {
			c.Header("Retry-After", "60")
			abortWith(c, apperrors.NewAppError(apperrors.ErrCodeRateLimit, "too many connection attempts", http.StatusTooManyRequests))
			return
		}
		if !gate.enter() {
			abortWith(c, apperrors.NewServiceUnavailableError("too many open connections"))
			return
		}
		defer gate.leave()

		c.Next()
	}
}
