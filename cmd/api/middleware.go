package main

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"
)

type ctxKey int

const ctxKeyUserID ctxKey = iota

func userIDFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKeyUserID).(string)
	return id, ok && id != ""
}

func (s *Server) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Printf("panic serving %s %s: %v", r.Method, r.URL.Path, rec)
				respond(w, http.StatusInternalServerError, "Internal server error", nil)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := s.corsOrigin
		if origin == "" {
			origin = "*"
		}
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Cron-Token")
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// rateLimit applies a request budget keyed by client address. Limiter
// failures allow the request through so a Redis outage does not take
// the API down with it.
func (s *Server) rateLimit(limiter RequestLimiter, next http.HandlerFunc) http.HandlerFunc {
	if limiter == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		key := clientAddr(r)
		ok, err := limiter.Allow(r.Context(), key)
		if err != nil {
			log.Printf("rate limit check: %v", err)
		}
		if !ok {
			if retry := limiter.RetryAfter(r.Context(), key); retry > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(int(retry/time.Second)+1))
			}
			respond(w, http.StatusTooManyRequests, "Too many requests, please try again later", nil)
			return
		}
		next(w, r)
	}
}

func clientAddr(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i > 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host := r.RemoteAddr
	if i := strings.LastIndexByte(host, ':'); i > 0 {
		host = host[:i]
	}
	return host
}

// requireAuth rejects requests without a valid access token and stores
// the authenticated user id on the request context.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			respond(w, http.StatusUnauthorized, "Authentication required", nil)
			return
		}
		userID, err := s.auth.VerifyToken(token)
		if err != nil {
			respond(w, http.StatusUnauthorized, "Invalid or expired token", nil)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), ctxKeyUserID, userID)))
	}
}

// optionalAuth attaches the user id when a valid token is present but
// never rejects the request. Shared and public endpoints use this so
// owners keep their identity while anonymous visitors pass through.
func (s *Server) optionalAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if token := bearerToken(r); token != "" {
			if userID, err := s.auth.VerifyToken(token); err == nil {
				r = r.WithContext(context.WithValue(r.Context(), ctxKeyUserID, userID))
			}
		}
		next(w, r)
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(header[len("Bearer "):])
	}
	if c, err := r.Cookie("token"); err == nil {
		return c.Value
	}
	return ""
}

// requireCronToken guards the scheduled-job trigger endpoints.
func (s *Server) requireCronToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cronToken == "" || r.Header.Get("X-Cron-Token") != s.cronToken {
			respond(w, http.StatusUnauthorized, "Invalid cron token", nil)
			return
		}
		next(w, r)
	}
}
