package server

import (
	"log/slog"
	"net"
	"net/http"
	"sync"

	"commentdm/internal/security"

	"golang.org/x/time/rate"
)

const (
	// AdminPasswordHeader carries the admin password as an alternative to
	// the password query parameter.
	AdminPasswordHeader = "X-Admin-Password"
)

// RateLimiter implements a simple token bucket rate limiter per IP address
type RateLimiter struct {
	limiters  map[string]*rate.Limiter
	mu        sync.Mutex
	rateLimit rate.Limit // Requests per second
	burstSize int        // Maximum burst size
}

// NewRateLimiter creates a new rate limiter
// rateLimit: requests per second
// burstSize: maximum number of requests allowed in a burst
func NewRateLimiter(rateLimit rate.Limit, burstSize int) *RateLimiter {
	return &RateLimiter{
		limiters:  make(map[string]*rate.Limiter),
		rateLimit: rateLimit,
		burstSize: burstSize,
	}
}

// GetLimiter returns the rate limiter for a given IP address
// Creates a new limiter for the IP if one doesn't exist
func (rl *RateLimiter) GetLimiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limiter, exists := rl.limiters[ip]
	if !exists {
		limiter = rate.NewLimiter(rl.rateLimit, rl.burstSize)
		rl.limiters[ip] = limiter
	}

	return limiter
}

// NewRateLimitMiddleware creates middleware for global rate limiting
// limit: requests per minute
func NewRateLimitMiddleware(limit int, logger *slog.Logger) func(http.Handler) http.Handler {
	return newPerMinuteLimit(limit, "Rate limit exceeded", logger)
}

// NewAdminRateLimitMiddleware creates middleware for admin route rate limiting
// limit: requests per minute
func NewAdminRateLimitMiddleware(limit int, logger *slog.Logger) func(http.Handler) http.Handler {
	return newPerMinuteLimit(limit, "Admin rate limit exceeded", logger)
}

func newPerMinuteLimit(limit int, logMsg string, logger *slog.Logger) func(http.Handler) http.Handler {
	// Convert to requests per second
	rps := rate.Limit(float64(limit) / 60.0)
	limiter := NewRateLimiter(rps, limit)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)

			if !limiter.GetLimiter(ip).Allow() {
				logger.Warn(logMsg, "ip", ip, "path", r.URL.Path)
				http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP strips the port from RemoteAddr so every connection from one
// host shares a bucket.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// adminPassword returns the credential supplied with the request
func adminPassword(r *http.Request) string {
	if pw := r.URL.Query().Get("password"); pw != "" {
		return pw
	}
	return r.Header.Get(AdminPasswordHeader)
}

// RequireAdmin rejects requests that do not carry the configured admin
// password. Rejected requests never reach the handler.
func (s *Server) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Config.AdminPassword == "" {
			s.respondText(w, http.StatusUnauthorized,
				"Admin is disabled. Set ADMIN_PASSWORD and restart the server to enable it.\n")
			return
		}

		if !security.SecretEqual(adminPassword(r), s.Config.AdminPassword) {
			s.Logger.Warn("Admin authentication failed", "ip", clientIP(r), "path", r.URL.Path)
			s.respondText(w, http.StatusUnauthorized,
				"Unauthorized. Open /admin?password=YOUR_ADMIN_PASSWORD or send the X-Admin-Password header.\n")
			return
		}

		next.ServeHTTP(w, r)
	})
}
