package main

import (
	"net/http"

	"agreeproof/agreement"
)

// The sweeps run on the in-process schedule; these endpoints exist so an
// external scheduler can trigger them as well.

func (s *Server) handleCronReminders(w http.ResponseWriter, r *http.Request) {
	sent, err := s.sweeper.RunReminders(r.Context())
	if err != nil {
		respondServiceError(w, err, agreement.Agreement{})
		return
	}
	respond(w, http.StatusOK, "Reminder sweep completed", map[string]any{"sent": sent})
}

func (s *Server) handleCronOverdue(w http.ResponseWriter, r *http.Request) {
	moved, err := s.sweeper.RunOverdue(r.Context())
	if err != nil {
		respondServiceError(w, err, agreement.Agreement{})
		return
	}
	respond(w, http.StatusOK, "Overdue sweep completed", map[string]any{"moved": moved})
}
