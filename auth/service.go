package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials signals wrong email or password.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrWeakPassword signals password doesn't meet requirements.
	ErrWeakPassword = errors.New("auth: password must be at least 8 characters")
	// ErrAccountDeactivated signals a login attempt on a disabled account.
	ErrAccountDeactivated = errors.New("auth: account is deactivated")
	// ErrInvalidToken signals an unparsable, tampered, or expired token.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrSessionNotFound signals an unknown or revoked refresh token.
	ErrSessionNotFound = errors.New("auth: refresh session not found")
)

// SessionStore persists refresh-token sessions, keyed by the SHA-256
// hash of the token so a store dump never leaks usable tokens.
type SessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (string, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

// Service handles authentication business logic.
type Service struct {
	repo       Repository
	sessions   SessionStore
	jwtSecret  []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewService creates a new authentication service.
func NewService(repo Repository, sessions SessionStore, jwtSecret string, accessTTL, refreshTTL time.Duration) *Service {
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = 30 * 24 * time.Hour
	}
	return &Service{
		repo:       repo,
		sessions:   sessions,
		jwtSecret:  []byte(jwtSecret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Register creates a new user account and logs it in.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (LoginResult, error) {
	if len(req.Password) < 8 {
		return LoginResult{}, ErrWeakPassword
	}

	name := strings.TrimSpace(req.Name)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if name == "" || email == "" {
		return LoginResult{}, fmt.Errorf("auth: name and email are required")
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return LoginResult{}, fmt.Errorf("auth: hash password: %w", err)
	}

	user, err := s.repo.CreateUser(ctx, CreateUserParams{
		Name:         name,
		Email:        email,
		PasswordHash: string(passwordHash),
	})
	if err != nil {
		return LoginResult{}, err
	}

	tokens, err := s.issueTokens(ctx, user.ID)
	if err != nil {
		return LoginResult{}, err
	}

	return LoginResult{Tokens: tokens, User: user}, nil
}

// Login authenticates a user and returns a fresh token pair.
func (s *Service) Login(ctx context.Context, req LoginRequest) (LoginResult, error) {
	user, err := s.repo.GetUserByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}

	if !user.IsActive {
		return LoginResult{}, ErrAccountDeactivated
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}

	now := s.now().UTC()
	if err := s.repo.TouchLastLogin(ctx, user.ID, now); err != nil {
		return LoginResult{}, err
	}
	user.LastLogin = &now

	tokens, err := s.issueTokens(ctx, user.ID)
	if err != nil {
		return LoginResult{}, err
	}

	return LoginResult{Tokens: tokens, User: user}, nil
}

// Refresh rotates a refresh token: the presented token is revoked and a
// new pair issued, so a replayed token fails on second use.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (LoginResult, error) {
	if refreshToken == "" {
		return LoginResult{}, ErrSessionNotFound
	}

	hash := hashToken(refreshToken)
	userID, err := s.sessions.LookupRefreshSession(ctx, hash)
	if err != nil {
		return LoginResult{}, ErrSessionNotFound
	}

	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return LoginResult{}, err
	}
	if !user.IsActive {
		return LoginResult{}, ErrAccountDeactivated
	}

	if err := s.sessions.RevokeRefreshSession(ctx, hash); err != nil {
		return LoginResult{}, err
	}

	tokens, err := s.issueTokens(ctx, user.ID)
	if err != nil {
		return LoginResult{}, err
	}

	return LoginResult{Tokens: tokens, User: user}, nil
}

// GetUserByID retrieves user information by ID.
func (s *Service) GetUserByID(ctx context.Context, userID string) (*User, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// VerifyToken validates an access token and returns the user ID.
func (s *Service) VerifyToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", ErrInvalidToken
	}
	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return "", ErrInvalidToken
	}
	return userID, nil
}

func (s *Service) issueTokens(ctx context.Context, userID string) (TokenPair, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"user_id": userID,
		"exp":     now.Add(s.accessTTL).Unix(),
		"iat":     now.Unix(),
	}

	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return TokenPair{}, fmt.Errorf("auth: sign access token: %w", err)
	}

	refresh := newRefreshToken()
	if s.sessions != nil {
		if err := s.sessions.SaveRefreshSession(ctx, hashToken(refresh), userID, now.Add(s.refreshTTL)); err != nil {
			return TokenPair{}, fmt.Errorf("auth: save refresh session: %w", err)
		}
	}

	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func newRefreshToken() string {
	buf := make([]byte, 32)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
