package auth

import "time"

// User is the domain representation of an account holder. It mirrors the
// users table and carries no JSON annotations so it can be reused by
// different presentation layers.
type User struct {
	ID             string
	Name           string
	Email          string
	PasswordHash   string
	IsActive       bool
	EmailVerified  bool
	LastLogin      *time.Time
	AgreementCount int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// RegisterRequest contains user registration data supplied by callers.
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest contains user login credentials.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenPair bundles the short-lived access token with its rotating
// refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// LoginResult bundles the tokens and domain user returned after a
// successful login or registration.
type LoginResult struct {
	Tokens TokenPair
	User   User
}
