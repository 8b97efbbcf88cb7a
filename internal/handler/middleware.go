package handler

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"portal-auth/internal/config"
	"portal-auth/internal/models"
	"portal-auth/internal/service"
	"portal-auth/internal/util"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type ctxKey int

const (
	sessionIDKey ctxKey = iota
	sessionKey
)

func sessionIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(sessionIDKey).(string)
	return id
}

func sessionFrom(ctx context.Context) *models.Session {
	sess, _ := ctx.Value(sessionKey).(*models.Session)
	return sess
}

// requireHTTPS rejects any request that wasn't made over TLS. Behind a trusted
// proxy X-Forwarded-Proto counts as well.
func requireHTTPS(trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			secure := r.TLS != nil ||
				(trustProxy && strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https"))
			if !secure {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUpgradeRequired)
				_, _ = w.Write([]byte(`{"success":false,"error":"validation","message":"https required"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// LoggerMiddleware creates a middleware that logs HTTP requests
func LoggerMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			defer func() {
				logger.Info("HTTP request",
					util.String("method", r.Method),
					util.String("path", r.URL.Path),
					util.String("remote_addr", r.RemoteAddr),
					util.Int("status", ww.Status()),
					util.Duration("duration", time.Since(start)),
					util.String("request_id", middleware.GetReqID(r.Context())),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

type sessionEnsurer interface {
	EnsureSession(ctx context.Context, id string) (string, error)
}

// SessionMiddleware binds every request to a server-side session, issuing the
// cookie on first contact or after the old session expired.
func SessionMiddleware(sessions sessionEnsurer, cookieName string, secure bool, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var current string
			if c, err := r.Cookie(cookieName); err == nil {
				current = c.Value
			}

			id, err := sessions.EnsureSession(r.Context(), current)
			if err != nil {
				logger.Error("Failed to establish session", util.ErrorField(err))
				respondWithKind(logger, w, models.KindUpstream, "The service is temporarily unavailable. Please try again.", nil)
				return
			}
			if id != current {
				http.SetCookie(w, &http.Cookie{
					Name:     cookieName,
					Value:    id,
					Path:     "/",
					HttpOnly: true,
					Secure:   secure,
					SameSite: http.SameSiteStrictMode,
				})
			}

			ctx := context.WithValue(r.Context(), sessionIDKey, id)
			ctx = service.WithClientIP(ctx, clientIP(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type authenticator interface {
	Authenticate(ctx context.Context, sessionID, token string) (*models.Session, error)
}

// RequireAuth accepts only a bearer token that belongs to the request's session.
func RequireAuth(auth authenticator, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				respondWithKind(logger, w, models.KindMismatch, "Authentication required.", nil)
				return
			}

			sess, err := auth.Authenticate(r.Context(), sessionIDFrom(r.Context()), strings.TrimSpace(token))
			if err != nil {
				kind := models.KindOf(err)
				if kind == models.KindUpstream {
					respondWithKind(logger, w, kind, "The service is temporarily unavailable. Please try again.", nil)
					return
				}
				respondWithKind(logger, w, models.KindMismatch, "Authentication required.", nil)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey, sess)))
		})
	}
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter throttles requests per client IP. Idle entries are evicted by Run.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	idle     time.Duration
	now      func() time.Time
}

func NewRateLimiter(cfg config.RateLimitConfig) *RateLimiter {
	rl := &RateLimiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Limit(cfg.RequestsPerSecond),
		burst:    max(cfg.Burst, 1),
		idle:     cfg.IdleEviction,
		now:      time.Now,
	}
	if rl.limit <= 0 {
		rl.limit = rate.Every(500 * time.Millisecond)
	}
	if rl.idle <= 0 {
		rl.idle = 10 * time.Minute
	}
	return rl
}

// Run evicts idle visitors until ctx is done.
func (rl *RateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(rl.idle)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.sweep()
		}
	}
}

func (rl *RateLimiter) sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := rl.now().Add(-rl.idle)
	for ip, v := range rl.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(rl.visitors, ip)
		}
	}
}

func (rl *RateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	v, ok := rl.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.visitors[ip] = v
	}
	v.lastSeen = rl.now()
	return v.limiter.Allow()
}

func (rl *RateLimiter) Middleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			if !rl.allow(ip) {
				logger.Warn("Rate limit exceeded", util.String("ip", ip))
				w.Header().Set("Retry-After", "1")
				respondWithKind(logger, w, models.KindRateLimit, "Too many requests. Please slow down.", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
