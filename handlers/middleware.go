package handlers

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/solarboard/solarboard/board"
	"github.com/solarboard/solarboard/database"
	"github.com/solarboard/solarboard/services"
)

type contextKey string

const claimsContextKey contextKey = "claims"

type AuthMiddleware struct {
	authService *services.AuthService
}

func NewAuthMiddleware(authService *services.AuthService) *AuthMiddleware {
	return &AuthMiddleware{
		authService: authService,
	}
}

// Auth rejects requests without a valid token and stores the caller's
// claims in the request context.
func (m *AuthMiddleware) Auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString, err := tokenFromRequest(r)
		if err != nil {
			writeError(w, r, err)
			return
		}

		claims, err := m.authService.VerifyJWT(tokenString)
		if err != nil {
			writeError(w, r, fmt.Errorf("invalid token: %w", errUnauthorized))
			return
		}

		ctx := context.WithValue(r.Context(), claimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// tokenFromRequest reads a Bearer token, falling back to the token query
// parameter browsers use for websocket upgrades.
func tokenFromRequest(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		if t := r.URL.Query().Get("token"); t != "" {
			return t, nil
		}
		return "", fmt.Errorf("missing authorization header: %w", errUnauthorized)
	}

	authParts := strings.Split(authHeader, " ")
	if len(authParts) != 2 || authParts[0] != "Bearer" {
		return "", fmt.Errorf("invalid authorization format: %w", errUnauthorized)
	}
	return authParts[1], nil
}

func claimsFrom(ctx context.Context) (*services.Claims, error) {
	claims, ok := ctx.Value(claimsContextKey).(*services.Claims)
	if !ok {
		return nil, fmt.Errorf("user not found: %w", errUnauthorized)
	}
	return claims, nil
}

// canRead reports whether role may see b.
func canRead(role string, b board.Board) bool {
	return b.AccessRights.Public || b.AccessRights.Allows(role)
}

// canWrite reports whether role may change b. Viewers never write.
func canWrite(role string, b board.Board) bool {
	return role != database.RoleViewer && b.AccessRights.Allows(role)
}

// RateLimiter throttles requests per client IP with a token bucket.
type RateLimiter struct {
	rate  rate.Limit
	burst int

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const bucketTTL = 10 * time.Minute

// NewRateLimiter allows perMinute requests per minute per IP, with bursts
// of the same size.
func NewRateLimiter(perMinute int) *RateLimiter {
	if perMinute <= 0 {
		perMinute = 1
	}
	return &RateLimiter{
		rate:    rate.Limit(float64(perMinute) / time.Minute.Seconds()),
		burst:   perMinute,
		buckets: make(map[string]*bucket),
	}
}

// Allow reports whether a request from key may proceed now.
func (l *RateLimiter) Allow(key string) bool {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok {
		l.prune(now)
		b = &bucket{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

// prune drops idle buckets. l.mu is held.
func (l *RateLimiter) prune(now time.Time) {
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > bucketTTL {
			delete(l.buckets, key)
		}
	}
}

// Limit wraps next, answering 429 once the caller's bucket is empty.
func (l *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(clientIP(r)) {
			retry := time.Duration(float64(time.Second) / float64(l.rate))
			w.Header().Set("Retry-After", strconv.Itoa(max(int(retry.Seconds()), 1)))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprintf(w, `{"status":"error","code":%d,"message":"too many requests"}`+"\n", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
