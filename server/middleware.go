// Package server provides middleware for authentication, rate limiting and
// request logging.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"companion-backend/chat"
)

type contextKey int

const userContextKey contextKey = iota

// userFrom returns the authenticated user placed on the request context by
// the auth middleware.
func userFrom(ctx context.Context) (chat.User, bool) {
	user, ok := ctx.Value(userContextKey).(chat.User)
	return user, ok
}

// claims is the verified token payload. Identity comes from the standard
// subject claim; tier and language ride alongside.
type claims struct {
	Premium  bool   `json:"premium"`
	Language string `json:"lang"`
	jwt.RegisteredClaims
}

// authMiddleware verifies the bearer token and attaches the caller identity
// to the request context.
func (s *Server) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing bearer token")
			return
		}
		tokenString := strings.TrimPrefix(header, "Bearer ")

		var c claims
		token, err := jwt.ParseWithClaims(tokenString, &c, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return s.jwtSecret, nil
		})
		if err != nil || !token.Valid || c.Subject == "" {
			log.Printf("[AUTH] Rejected token: %v", err)
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or expired token")
			return
		}

		user := chat.User{ID: c.Subject, Premium: c.Premium, Language: c.Language}
		next(w, r.WithContext(context.WithValue(r.Context(), userContextKey, user)))
	}
}

// RateLimiter implements rate limiting per user
type RateLimiter struct {
	mu        sync.Mutex
	lastSeen  map[string]time.Time
	threshold time.Duration
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(threshold time.Duration) *RateLimiter {
	return &RateLimiter{
		lastSeen:  make(map[string]time.Time),
		threshold: threshold,
	}
}

// Allow checks if user is within rate limit. A non-positive threshold
// disables limiting.
func (rl *RateLimiter) Allow(userID string) bool {
	if rl.threshold <= 0 {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	lastTime, exists := rl.lastSeen[userID]

	if !exists || now.Sub(lastTime) > rl.threshold {
		rl.lastSeen[userID] = now
		return true
	}

	log.Printf("[AUTH] Rate limit triggered for user %s", userID)
	return false
}

// rateLimitMiddleware rejects callers sending messages faster than the
// configured interval. Applied to the send endpoint only.
func (s *Server) rateLimitMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := userFrom(r.Context())
		if ok && !s.limiter.Allow(user.ID) {
			writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many messages, slow down")
			return
		}
		next(w, r)
	}
}

// loggingMiddleware logs all incoming requests
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("[HTTP] %s %s (%s)", r.Method, r.URL.Path, time.Since(start))
	})
}
