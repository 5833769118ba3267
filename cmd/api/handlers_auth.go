package main

import (
	"encoding/json"
	"net/http"
	"time"

	"agreeproof/auth"
)

type userResponse struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Email          string  `json:"email"`
	EmailVerified  bool    `json:"emailVerified"`
	AgreementCount int     `json:"agreementCount"`
	LastLogin      *string `json:"lastLogin,omitempty"`
	CreatedAt      string  `json:"createdAt"`
}

type loginResponse struct {
	Token        string       `json:"token"`
	RefreshToken string       `json:"refreshToken"`
	User         userResponse `json:"user"`
}

func loginView(res auth.LoginResult) loginResponse {
	return loginResponse{
		Token:        res.Tokens.AccessToken,
		RefreshToken: res.Tokens.RefreshToken,
		User: userResponse{
			ID:             res.User.ID,
			Name:           res.User.Name,
			Email:          res.User.Email,
			EmailVerified:  res.User.EmailVerified,
			AgreementCount: res.User.AgreementCount,
			LastLogin:      timePtr(res.User.LastLogin),
			CreatedAt:      res.User.CreatedAt.UTC().Format(time.RFC3339),
		},
	}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondErrors(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if req.Name == "" || req.Email == "" || req.Password == "" {
		respondErrors(w, http.StatusBadRequest, "Validation failed", "name, email and password are required")
		return
	}

	res, err := s.auth.Register(r.Context(), req)
	if err != nil {
		respondAuthError(w, err)
		return
	}
	respond(w, http.StatusCreated, "Account created successfully", loginView(res))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondErrors(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if req.Email == "" || req.Password == "" {
		respondErrors(w, http.StatusBadRequest, "Validation failed", "email and password are required")
		return
	}

	res, err := s.auth.Login(r.Context(), req)
	if err != nil {
		respondAuthError(w, err)
		return
	}
	respond(w, http.StatusOK, "Login successful", loginView(res))
}

func (s *Server) handleRefreshToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondErrors(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	res, err := s.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		respondAuthError(w, err)
		return
	}
	respond(w, http.StatusOK, "Token refreshed", loginView(res))
}
