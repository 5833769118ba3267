package main

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"agreeproof/agreement"
	"agreeproof/auth"
)

// envelope is the uniform response shape for every endpoint.
type envelope struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Data    any      `json:"data,omitempty"`
	Errors  []string `json:"errors,omitempty"`
}

func respond(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, envelope{Success: status < 400, Message: message, Data: data})
}

func respondErrors(w http.ResponseWriter, status int, message string, errs ...string) {
	writeJSON(w, status, envelope{Success: false, Message: message, Errors: errs})
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("write response: %v", err)
	}
}

// respondServiceError maps domain sentinels onto HTTP statuses. The
// already-confirmed case is special: the envelope carries the original
// confirmation data so clients see when the agreement was locked.
func respondServiceError(w http.ResponseWriter, err error, rec agreement.Agreement) {
	var vErr *agreement.ValidationError
	switch {
	case errors.As(err, &vErr):
		respondErrors(w, http.StatusBadRequest, "Validation failed", vErr.Error())
	case errors.Is(err, agreement.ErrNotFound):
		respond(w, http.StatusNotFound, "Agreement not found", nil)
	case errors.Is(err, agreement.ErrForbidden):
		respond(w, http.StatusForbidden, "You do not have access to this agreement", nil)
	case errors.Is(err, agreement.ErrAlreadyConfirmed):
		respond(w, http.StatusBadRequest, "Agreement is already confirmed", map[string]any{
			"status":      rec.Status,
			"confirmedAt": rec.ConfirmedAt,
		})
	case errors.Is(err, agreement.ErrAlreadyPaid):
		respond(w, http.StatusBadRequest, "Agreement is already marked as paid", nil)
	case errors.Is(err, agreement.ErrOverdue):
		respond(w, http.StatusBadRequest, "Agreement is overdue and can only be settled by payment", nil)
	case errors.Is(err, agreement.ErrCancelled):
		respond(w, http.StatusBadRequest, "Agreement has been cancelled", nil)
	case errors.Is(err, agreement.ErrImmutable):
		respond(w, http.StatusBadRequest, "Agreement cannot be modified", nil)
	case errors.Is(err, agreement.ErrNotUpdatable):
		respond(w, http.StatusBadRequest, "Cannot update confirmed or paid agreements", nil)
	case errors.Is(err, agreement.ErrNotDeletable):
		respond(w, http.StatusBadRequest, "Cannot delete confirmed or paid agreements", nil)
	case errors.Is(err, agreement.ErrDuplicateID):
		respond(w, http.StatusConflict, "Duplicate agreement identifier generated, please retry", nil)
	default:
		log.Printf("internal error: %v", err)
		respond(w, http.StatusInternalServerError, "Internal server error", nil)
	}
}

func respondAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrWeakPassword):
		respond(w, http.StatusBadRequest, "Password must be at least 8 characters", nil)
	case errors.Is(err, auth.ErrDuplicateEmail):
		respond(w, http.StatusConflict, "User with this email already exists", nil)
	case errors.Is(err, auth.ErrInvalidCredentials):
		respond(w, http.StatusUnauthorized, "Invalid email or password", nil)
	case errors.Is(err, auth.ErrAccountDeactivated):
		respond(w, http.StatusUnauthorized, "Account is deactivated", nil)
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrSessionNotFound):
		respond(w, http.StatusUnauthorized, "Invalid or expired token", nil)
	case errors.Is(err, auth.ErrUserNotFound):
		respond(w, http.StatusUnauthorized, "User not found or inactive", nil)
	default:
		log.Printf("internal error: %v", err)
		respond(w, http.StatusInternalServerError, "Internal server error", nil)
	}
}
