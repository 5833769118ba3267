package main

import (
	"errors"
	"log"
	"net/http"
	"time"

	"agreeproof/agreement"
)

const maxProofSize = 5 << 20

var allowedProofTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/webp":      true,
	"application/pdf": true,
}

// handleUploadProof stores a payment-proof file for the agreement and
// records its object key by marking the agreement paid.
func (s *Server) handleUploadProof(w http.ResponseWriter, r *http.Request) {
	if s.proofs == nil {
		respond(w, http.StatusServiceUnavailable, "Proof storage is not configured", nil)
		return
	}

	userID, _ := userIDFrom(r.Context())
	agreementID := r.PathValue("id")

	r.Body = http.MaxBytesReader(w, r.Body, maxProofSize)
	if err := r.ParseMultipartForm(maxProofSize); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respond(w, http.StatusRequestEntityTooLarge, "File exceeds the 5MB limit", nil)
			return
		}
		respondErrors(w, http.StatusBadRequest, "Invalid multipart request", err.Error())
		return
	}

	file, header, err := r.FormFile("proof")
	if err != nil {
		respondErrors(w, http.StatusBadRequest, "Missing proof file", err.Error())
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if !allowedProofTypes[contentType] {
		respond(w, http.StatusBadRequest, "Only JPEG, PNG, WebP and PDF files are accepted", nil)
		return
	}

	key, err := s.proofs.Put(r.Context(), agreementID, header.Filename, contentType, file, header.Size)
	if err != nil {
		respondServiceError(w, err, agreement.Agreement{})
		return
	}

	rec, err := s.agreements.MarkPaid(r.Context(), agreementID, userID, agreement.MarkPaidParams{
		Notes:    r.FormValue("notes"),
		ProofKey: key,
	})
	if err != nil {
		// The upload already happened; drop the object so a rejected
		// transition does not leave it orphaned in the bucket.
		if rmErr := s.proofs.Remove(r.Context(), key); rmErr != nil {
			log.Printf("proof upload: remove %s: %v", key, rmErr)
		}
		respondServiceError(w, err, rec)
		return
	}

	view := agreementView(rec, false)
	if url, err := s.proofs.PresignedURL(r.Context(), key, 15*time.Minute); err == nil {
		view.Payment.ProofURL = url
	}
	respond(w, http.StatusOK, "Payment proof uploaded", view)
}
