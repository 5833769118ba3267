package main

import (
	"context"
	"io"
	"net/http"
	"time"

	"agreeproof/agreement"
	"agreeproof/auth"
)

// AgreementService is the slice of the agreement lifecycle the HTTP
// layer depends on.
type AgreementService interface {
	Create(ctx context.Context, params agreement.CreateParams) (agreement.Agreement, error)
	Get(ctx context.Context, agreementID string) (agreement.Agreement, error)
	GetShared(ctx context.Context, token string) (agreement.Agreement, error)
	Confirm(ctx context.Context, agreementID string) (agreement.Agreement, error)
	MarkPaid(ctx context.Context, agreementID, ownerID string, params agreement.MarkPaidParams) (agreement.Agreement, error)
	Update(ctx context.Context, agreementID, ownerID string, params agreement.UpdateParams) (agreement.Agreement, error)
	Cancel(ctx context.Context, agreementID, ownerID string) (agreement.Agreement, error)
	Delete(ctx context.Context, agreementID, ownerID string) error
	List(ctx context.Context, ownerID string, filters agreement.ListFilters) ([]agreement.Agreement, int, error)
	Stats(ctx context.Context, ownerID string) (agreement.Stats, error)
}

// AuthService covers registration, login, and token verification.
type AuthService interface {
	Register(ctx context.Context, req auth.RegisterRequest) (auth.LoginResult, error)
	Login(ctx context.Context, req auth.LoginRequest) (auth.LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (auth.LoginResult, error)
	VerifyToken(token string) (string, error)
}

// ProofStore persists uploaded payment-proof files.
type ProofStore interface {
	Put(ctx context.Context, agreementID, filename, contentType string, r io.Reader, size int64) (string, error)
	PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
	Remove(ctx context.Context, key string) error
}

// SweepRunner exposes the scheduled sweeps for manual triggering.
type SweepRunner interface {
	RunReminders(ctx context.Context) (int, error)
	RunOverdue(ctx context.Context) (int, error)
}

// RequestLimiter is the per-client request budget.
type RequestLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	RetryAfter(ctx context.Context, key string) time.Duration
}

// Server wires the domain services to HTTP routes.
type Server struct {
	agreements AgreementService
	auth       AuthService
	proofs     ProofStore
	sweeper    SweepRunner

	limiter     RequestLimiter
	authLimiter RequestLimiter

	corsOrigin string
	cronToken  string
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", s.handleHealth)

	mux.HandleFunc("POST /api/auth/register", s.rateLimit(s.authLimiter, s.handleRegister))
	mux.HandleFunc("POST /api/auth/login", s.rateLimit(s.authLimiter, s.handleLogin))
	mux.HandleFunc("POST /api/auth/refresh-token", s.rateLimit(s.authLimiter, s.handleRefreshToken))

	mux.HandleFunc("POST /api/agreements", s.rateLimit(s.limiter, s.optionalAuth(s.handleCreateAgreement)))
	mux.HandleFunc("GET /api/agreements", s.rateLimit(s.limiter, s.requireAuth(s.handleListAgreements)))
	mux.HandleFunc("GET /api/agreements/stats", s.rateLimit(s.limiter, s.requireAuth(s.handleStats)))
	mux.HandleFunc("GET /api/agreements/shared/{shareToken}", s.rateLimit(s.limiter, s.handleSharedAgreement))
	mux.HandleFunc("GET /api/agreements/{id}", s.rateLimit(s.limiter, s.optionalAuth(s.handleGetAgreement)))
	mux.HandleFunc("GET /api/agreements/{id}/status", s.rateLimit(s.limiter, s.handleAgreementStatus))
	mux.HandleFunc("POST /api/agreements/{id}/confirm", s.rateLimit(s.limiter, s.handleConfirmAgreement))
	mux.HandleFunc("POST /api/agreements/{id}/mark-paid", s.rateLimit(s.limiter, s.requireAuth(s.handleMarkPaid)))
	mux.HandleFunc("POST /api/agreements/{id}/cancel", s.rateLimit(s.limiter, s.requireAuth(s.handleCancelAgreement)))
	mux.HandleFunc("POST /api/agreements/{id}/proof", s.rateLimit(s.limiter, s.requireAuth(s.handleUploadProof)))
	mux.HandleFunc("PUT /api/agreements/{id}", s.rateLimit(s.limiter, s.requireAuth(s.handleUpdateAgreement)))
	mux.HandleFunc("DELETE /api/agreements/{id}", s.rateLimit(s.limiter, s.requireAuth(s.handleDeleteAgreement)))

	mux.HandleFunc("POST /api/cron/reminders", s.requireCronToken(s.handleCronReminders))
	mux.HandleFunc("POST /api/cron/overdue", s.requireCronToken(s.handleCronOverdue))

	return s.recoverPanics(s.cors(mux))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, "OK", map[string]any{
		"service":   "agreeproof-api",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
