package main

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"agreeproof/agreement"
)

type partyJSON struct {
	Name    string `json:"name"`
	Contact string `json:"contact"`
}

type paymentJSON struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
	Type     string  `json:"type"`
	Status   string  `json:"status"`
	Date     *string `json:"date,omitempty"`
	ProofURL string  `json:"proofUrl,omitempty"`
	Notes    string  `json:"notes,omitempty"`
}

type reminderJSON struct {
	Enabled    bool   `json:"enabled"`
	Frequency  string `json:"frequency"`
	DaysBefore int    `json:"daysBefore"`
	LastSent   *string `json:"lastSent,omitempty"`
}

type agreementResponse struct {
	AgreementID string       `json:"agreementId"`
	Title       string       `json:"title"`
	Content     string       `json:"content"`
	PartyA      partyJSON    `json:"partyA"`
	PartyB      partyJSON    `json:"partyB"`
	ProofHash   string       `json:"proofHash"`
	Status      string       `json:"status"`
	IsImmutable bool         `json:"isImmutable"`
	ConfirmedAt *string      `json:"confirmedAt,omitempty"`
	ShareToken  string       `json:"shareToken,omitempty"`
	DueDate     *string      `json:"dueDate,omitempty"`
	Payment     paymentJSON  `json:"payment"`
	Reminders   *reminderJSON `json:"reminderSettings,omitempty"`
	CreatedAt   string       `json:"createdAt"`
	UpdatedAt   string       `json:"updatedAt"`
}

// agreementView shapes the domain record for a response. The shared,
// read-only view omits the share token and reminder configuration.
func agreementView(a agreement.Agreement, shared bool) agreementResponse {
	resp := agreementResponse{
		AgreementID: a.AgreementID,
		Title:       a.Title,
		Content:     a.Content,
		PartyA:      partyJSON{Name: a.PartyA.Name, Contact: a.PartyA.Contact},
		PartyB:      partyJSON{Name: a.PartyB.Name, Contact: a.PartyB.Contact},
		ProofHash:   a.ProofHash,
		Status:      string(a.Status),
		IsImmutable: a.IsImmutable,
		ConfirmedAt: timePtr(a.ConfirmedAt),
		DueDate:     timePtr(a.DueDate),
		Payment: paymentJSON{
			Amount:   a.Payment.Amount,
			Currency: a.Payment.Currency,
			Type:     string(a.Payment.Type),
			Status:   string(a.Payment.Status),
			Date:     timePtr(a.Payment.Date),
			Notes:    a.Payment.Notes,
		},
		CreatedAt: a.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: a.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if !shared {
		resp.ShareToken = a.ShareToken
		resp.Reminders = &reminderJSON{
			Enabled:    a.Reminder.Enabled,
			Frequency:  string(a.Reminder.Frequency),
			DaysBefore: a.Reminder.DaysBefore,
			LastSent:   timePtr(a.Reminder.LastSent),
		}
	}
	return resp
}

func timePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

type createAgreementRequest struct {
	Title       string     `json:"title"`
	Content     string     `json:"content"`
	PartyA      partyJSON  `json:"partyA"`
	PartyB      partyJSON  `json:"partyB"`
	Amount      float64    `json:"amount"`
	Currency    string     `json:"currency"`
	DueDate     *time.Time `json:"dueDate"`
	PaymentType string     `json:"paymentType"`
	Reminders   *struct {
		Enabled    bool   `json:"enabled"`
		Frequency  string `json:"frequency"`
		DaysBefore int    `json:"daysBefore"`
	} `json:"reminderSettings"`
}

func (s *Server) handleCreateAgreement(w http.ResponseWriter, r *http.Request) {
	var req createAgreementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondErrors(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	params := agreement.CreateParams{
		Title:       req.Title,
		Content:     req.Content,
		PartyA:      agreement.Party{Name: req.PartyA.Name, Contact: req.PartyA.Contact},
		PartyB:      agreement.Party{Name: req.PartyB.Name, Contact: req.PartyB.Contact},
		Amount:      req.Amount,
		Currency:    req.Currency,
		DueDate:     req.DueDate,
		PaymentType: agreement.PaymentType(req.PaymentType),
	}
	if userID, ok := userIDFrom(r.Context()); ok {
		params.OwnerID = &userID
	}
	if req.Reminders != nil {
		params.Reminder = &agreement.ReminderParams{
			Enabled:    req.Reminders.Enabled,
			Frequency:  agreement.ReminderFrequency(req.Reminders.Frequency),
			DaysBefore: req.Reminders.DaysBefore,
		}
	}

	rec, err := s.agreements.Create(r.Context(), params)
	if err != nil {
		respondServiceError(w, err, rec)
		return
	}
	respond(w, http.StatusCreated, "Agreement created successfully", agreementView(rec, false))
}

func (s *Server) handleGetAgreement(w http.ResponseWriter, r *http.Request) {
	rec, err := s.agreements.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		respondServiceError(w, err, rec)
		return
	}

	// Owners see the full record, everyone else the shared view.
	shared := true
	if userID, ok := userIDFrom(r.Context()); ok && rec.OwnerID != nil && *rec.OwnerID == userID {
		shared = false
	}
	if rec.OwnerID == nil {
		shared = false
	}
	respond(w, http.StatusOK, "Agreement retrieved", agreementView(rec, shared))
}

func (s *Server) handleAgreementStatus(w http.ResponseWriter, r *http.Request) {
	rec, err := s.agreements.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		respondServiceError(w, err, rec)
		return
	}
	respond(w, http.StatusOK, "Status retrieved", map[string]any{
		"agreementId": rec.AgreementID,
		"status":      rec.Status,
		"isImmutable": rec.IsImmutable,
		"confirmedAt": timePtr(rec.ConfirmedAt),
	})
}

func (s *Server) handleSharedAgreement(w http.ResponseWriter, r *http.Request) {
	rec, err := s.agreements.GetShared(r.Context(), r.PathValue("shareToken"))
	if err != nil {
		respondServiceError(w, err, rec)
		return
	}
	respond(w, http.StatusOK, "Agreement retrieved", agreementView(rec, true))
}

func (s *Server) handleConfirmAgreement(w http.ResponseWriter, r *http.Request) {
	rec, err := s.agreements.Confirm(r.Context(), r.PathValue("id"))
	if err != nil {
		respondServiceError(w, err, rec)
		return
	}
	respond(w, http.StatusOK, "Agreement confirmed successfully", agreementView(rec, true))
}

type markPaidRequest struct {
	PaymentDate *time.Time `json:"paymentDate"`
	Notes       string     `json:"notes"`
}

func (s *Server) handleMarkPaid(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFrom(r.Context())

	var req markPaidRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondErrors(w, http.StatusBadRequest, "Invalid request body", err.Error())
			return
		}
	}

	rec, err := s.agreements.MarkPaid(r.Context(), r.PathValue("id"), userID, agreement.MarkPaidParams{
		PaymentDate: req.PaymentDate,
		Notes:       req.Notes,
	})
	if err != nil {
		respondServiceError(w, err, rec)
		return
	}
	respond(w, http.StatusOK, "Agreement marked as paid", agreementView(rec, false))
}

type updateAgreementRequest struct {
	Title     *string    `json:"title"`
	Content   *string    `json:"content"`
	DueDate   *time.Time `json:"dueDate"`
	Reminders *struct {
		Enabled    bool   `json:"enabled"`
		Frequency  string `json:"frequency"`
		DaysBefore int    `json:"daysBefore"`
	} `json:"reminderSettings"`
}

func (s *Server) handleUpdateAgreement(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFrom(r.Context())

	var req updateAgreementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondErrors(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	params := agreement.UpdateParams{
		Title:   req.Title,
		Content: req.Content,
		DueDate: req.DueDate,
	}
	if req.Reminders != nil {
		params.Reminder = &agreement.ReminderParams{
			Enabled:    req.Reminders.Enabled,
			Frequency:  agreement.ReminderFrequency(req.Reminders.Frequency),
			DaysBefore: req.Reminders.DaysBefore,
		}
	}

	rec, err := s.agreements.Update(r.Context(), r.PathValue("id"), userID, params)
	if err != nil {
		respondServiceError(w, err, rec)
		return
	}
	respond(w, http.StatusOK, "Agreement updated successfully", agreementView(rec, false))
}

func (s *Server) handleCancelAgreement(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFrom(r.Context())

	rec, err := s.agreements.Cancel(r.Context(), r.PathValue("id"), userID)
	if err != nil {
		respondServiceError(w, err, rec)
		return
	}
	respond(w, http.StatusOK, "Agreement cancelled", agreementView(rec, false))
}

func (s *Server) handleDeleteAgreement(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFrom(r.Context())

	if err := s.agreements.Delete(r.Context(), r.PathValue("id"), userID); err != nil {
		respondServiceError(w, err, agreement.Agreement{})
		return
	}
	respond(w, http.StatusOK, "Agreement deleted successfully", nil)
}

func (s *Server) handleListAgreements(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFrom(r.Context())

	filters := agreement.ListFilters{
		Status: agreement.Status(r.URL.Query().Get("status")),
	}
	if v := r.URL.Query().Get("page"); v != "" {
		if page, err := strconv.Atoi(v); err == nil {
			filters.Page = page
		}
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if size, err := strconv.Atoi(v); err == nil {
			filters.PageSize = size
		}
	}

	items, total, err := s.agreements.List(r.Context(), userID, filters)
	if err != nil {
		respondServiceError(w, err, agreement.Agreement{})
		return
	}

	views := make([]agreementResponse, len(items))
	for i, a := range items {
		views[i] = agreementView(a, false)
	}
	respond(w, http.StatusOK, "Agreements retrieved", map[string]any{
		"items": views,
		"total": total,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFrom(r.Context())

	stats, err := s.agreements.Stats(r.Context(), userID)
	if err != nil {
		respondServiceError(w, err, agreement.Agreement{})
		return
	}
	respond(w, http.StatusOK, "Stats retrieved", map[string]any{
		"total":     stats.Total,
		"pending":   stats.Pending,
		"confirmed": stats.Confirmed,
		"paid":      stats.Paid,
		"overdue":   stats.Overdue,
		"cancelled": stats.Cancelled,
		"paidValue": stats.PaidValue,
	})
}
