package agreement

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"
)

const (
	maxTitleLen   = 200
	maxContentLen = 2000
	maxNotesLen   = 1000

	defaultCurrency          = "INR"
	defaultReminderFrequency = ReminderWeekly
	defaultReminderDays      = 3
)

// ValidationError reports which input field failed validation so the
// boundary can surface it to the caller.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("agreement: invalid %s: %s", e.Field, e.Reason)
}

// Notifier delivers lifecycle emails. Sends are best-effort: the service
// dispatches them after the state change commits and only logs failures.
type Notifier interface {
	AgreementConfirmed(ctx context.Context, a Agreement) error
	PaymentReceived(ctx context.Context, a Agreement) error
}

// Service is the agreement lifecycle manager. It owns input validation,
// identifier and proof-hash generation, and the status state machine;
// persistence and notification are injected.
type Service struct {
	repo     Repository
	notifier Notifier
	newID    func(time.Time) string
	newToken func() string
	now      func() time.Time
}

func NewService(repo Repository, notifier Notifier) *Service {
	return &Service{
		repo:     repo,
		notifier: notifier,
		newID:    NewAgreementID,
		newToken: NewShareToken,
		now:      time.Now,
	}
}

// WithIDGenerator overrides identifier generation, for tests.
func (s *Service) WithIDGenerator(gen func(time.Time) string) *Service {
	s.newID = gen
	return s
}

// WithClock overrides the time source, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// CreateParams carries already-decoded create input. OwnerID is nil for
// the unauthenticated flow.
type CreateParams struct {
	OwnerID     *string
	Title       string
	Content     string
	PartyA      Party
	PartyB      Party
	Amount      float64
	Currency    string
	DueDate     *time.Time
	PaymentType PaymentType
	Reminder    *ReminderParams
}

// ReminderParams overrides the default reminder configuration.
type ReminderParams struct {
	Enabled    bool
	Frequency  ReminderFrequency
	DaysBefore int
}

// Create validates the input, mints the identifier, share token, and
// proof hash, and persists the agreement in the PENDING state.
func (s *Service) Create(ctx context.Context, params CreateParams) (Agreement, error) {
	title := strings.TrimSpace(params.Title)
	content := strings.TrimSpace(params.Content)
	partyA, err := normalizeParty("partyA", params.PartyA)
	if err != nil {
		return Agreement{}, err
	}
	partyB, err := normalizeParty("partyB", params.PartyB)
	if err != nil {
		return Agreement{}, err
	}

	switch {
	case title == "":
		return Agreement{}, &ValidationError{Field: "title", Reason: "must be a non-empty string"}
	case len(title) > maxTitleLen:
		return Agreement{}, &ValidationError{Field: "title", Reason: fmt.Sprintf("cannot exceed %d characters", maxTitleLen)}
	case content == "":
		return Agreement{}, &ValidationError{Field: "content", Reason: "must be a non-empty string"}
	case len(content) > maxContentLen:
		return Agreement{}, &ValidationError{Field: "content", Reason: fmt.Sprintf("cannot exceed %d characters", maxContentLen)}
	case partyA.Contact == partyB.Contact:
		return Agreement{}, &ValidationError{Field: "partyB.contact", Reason: "party A and party B cannot be the same"}
	case params.Amount < 0:
		return Agreement{}, &ValidationError{Field: "amount", Reason: "cannot be negative"}
	}

	currency := params.Currency
	if currency == "" {
		currency = defaultCurrency
	}
	if !validCurrency(currency) {
		return Agreement{}, &ValidationError{Field: "currency", Reason: "unsupported currency"}
	}

	paymentType := params.PaymentType
	if paymentType == "" {
		paymentType = PaymentOffline
	}
	if !validPaymentType(paymentType) {
		return Agreement{}, &ValidationError{Field: "paymentType", Reason: "unsupported payment type"}
	}

	reminder := Reminders{
		Enabled:    true,
		Frequency:  defaultReminderFrequency,
		DaysBefore: defaultReminderDays,
	}
	if params.Reminder != nil {
		reminder.Enabled = params.Reminder.Enabled
		if params.Reminder.Frequency != "" {
			reminder.Frequency = params.Reminder.Frequency
		}
		if params.Reminder.DaysBefore > 0 {
			reminder.DaysBefore = params.Reminder.DaysBefore
		}
		if !validFrequency(reminder.Frequency) {
			return Agreement{}, &ValidationError{Field: "reminderSettings.frequency", Reason: "unsupported frequency"}
		}
	}

	createdAt := s.now().UTC()
	nonce := createdAt.Format(time.RFC3339Nano)
	id := s.newID(createdAt)

	a := Agreement{
		AgreementID: id,
		OwnerID:     params.OwnerID,
		Title:       title,
		Content:     content,
		PartyA:      partyA,
		PartyB:      partyB,
		ProofHash:   ProofHash(id, title, content, partyA.Contact, partyB.Contact, nonce),
		ProofNonce:  nonce,
		Status:      StatusPending,
		ShareToken:  s.newToken(),
		DueDate:     params.DueDate,
		Payment: Payment{
			Amount:   params.Amount,
			Currency: currency,
			Type:     paymentType,
			Status:   PaymentStatusPending,
		},
		Reminder: reminder,
	}

	return s.repo.Create(ctx, a)
}

// Get fetches an agreement by its public identifier.
func (s *Service) Get(ctx context.Context, agreementID string) (Agreement, error) {
	if strings.TrimSpace(agreementID) == "" {
		return Agreement{}, &ValidationError{Field: "agreementId", Reason: "must be a non-empty string"}
	}
	return s.repo.GetByID(ctx, agreementID)
}

// GetShared fetches an agreement by share token for the public read-only
// view. The boundary is responsible for stripping owner fields.
func (s *Service) GetShared(ctx context.Context, token string) (Agreement, error) {
	if strings.TrimSpace(token) == "" {
		return Agreement{}, &ValidationError{Field: "shareToken", Reason: "must be a non-empty string"}
	}
	return s.repo.GetByShareToken(ctx, token)
}

// Confirm transitions PENDING -> CONFIRMED, freezes the record, and
// fires the confirmation email to party B. Re-confirmation returns
// ErrAlreadyConfirmed together with the existing record so the caller
// can report the original timestamp.
func (s *Service) Confirm(ctx context.Context, agreementID string) (Agreement, error) {
	if strings.TrimSpace(agreementID) == "" {
		return Agreement{}, &ValidationError{Field: "agreementId", Reason: "must be a non-empty string"}
	}

	rec, err := s.repo.Confirm(ctx, agreementID, s.now().UTC())
	if err != nil {
		return rec, err
	}

	s.dispatch("confirmation", rec, s.notifierConfirmed)
	return rec, nil
}

// MarkPaidParams carries the optional payment details for MarkPaid.
type MarkPaidParams struct {
	PaymentDate *time.Time
	Notes       string
	ProofKey    string
}

// MarkPaid transitions any live state to PAID on behalf of the owner and
// fires the payment-received email.
func (s *Service) MarkPaid(ctx context.Context, agreementID, ownerID string, params MarkPaidParams) (Agreement, error) {
	if ownerID == "" {
		return Agreement{}, ErrForbidden
	}
	if len(params.Notes) > maxNotesLen {
		return Agreement{}, &ValidationError{Field: "notes", Reason: fmt.Sprintf("cannot exceed %d characters", maxNotesLen)}
	}

	now := s.now().UTC()
	date := params.PaymentDate
	if date == nil {
		date = &now
	}

	rec, err := s.repo.MarkPaid(ctx, agreementID, ownerID, Payment{
		Date:     date,
		Notes:    params.Notes,
		ProofKey: params.ProofKey,
	}, now)
	if err != nil {
		return rec, err
	}

	s.dispatch("payment received", rec, s.notifierPaid)
	return rec, nil
}

// UpdateParams lists the fields an owner may change while the agreement
// is PENDING. Parties and amount are fixed at creation.
type UpdateParams struct {
	Title    *string
	Content  *string
	DueDate  *time.Time
	Reminder *ReminderParams
}

// Update applies the allowed changes and recomputes the proof hash with
// the stored nonce, so the hash moves exactly when a hashed field does.
func (s *Service) Update(ctx context.Context, agreementID, ownerID string, params UpdateParams) (Agreement, error) {
	if ownerID == "" {
		return Agreement{}, ErrForbidden
	}

	current, err := s.repo.GetByID(ctx, agreementID)
	if err != nil {
		return Agreement{}, err
	}
	if current.OwnerID == nil || *current.OwnerID != ownerID {
		return Agreement{}, ErrForbidden
	}
	if current.IsImmutable || current.Status != StatusPending {
		return Agreement{}, ErrNotUpdatable
	}

	next := current
	if params.Title != nil {
		title := strings.TrimSpace(*params.Title)
		if title == "" {
			return Agreement{}, &ValidationError{Field: "title", Reason: "must be a non-empty string"}
		}
		if len(title) > maxTitleLen {
			return Agreement{}, &ValidationError{Field: "title", Reason: fmt.Sprintf("cannot exceed %d characters", maxTitleLen)}
		}
		next.Title = title
	}
	if params.Content != nil {
		content := strings.TrimSpace(*params.Content)
		if content == "" {
			return Agreement{}, &ValidationError{Field: "content", Reason: "must be a non-empty string"}
		}
		if len(content) > maxContentLen {
			return Agreement{}, &ValidationError{Field: "content", Reason: fmt.Sprintf("cannot exceed %d characters", maxContentLen)}
		}
		next.Content = content
	}
	if params.DueDate != nil {
		next.DueDate = params.DueDate
	}
	if params.Reminder != nil {
		if params.Reminder.Frequency != "" && !validFrequency(params.Reminder.Frequency) {
			return Agreement{}, &ValidationError{Field: "reminderSettings.frequency", Reason: "unsupported frequency"}
		}
		next.Reminder.Enabled = params.Reminder.Enabled
		if params.Reminder.Frequency != "" {
			next.Reminder.Frequency = params.Reminder.Frequency
		}
		if params.Reminder.DaysBefore > 0 {
			next.Reminder.DaysBefore = params.Reminder.DaysBefore
		}
	}

	next.ProofHash = ProofHash(next.AgreementID, next.Title, next.Content,
		next.PartyA.Contact, next.PartyB.Contact, next.ProofNonce)

	return s.repo.Update(ctx, next)
}

// Cancel moves a PENDING agreement to CANCELLED on behalf of the owner.
func (s *Service) Cancel(ctx context.Context, agreementID, ownerID string) (Agreement, error) {
	if ownerID == "" {
		return Agreement{}, ErrForbidden
	}
	return s.repo.Cancel(ctx, agreementID, ownerID)
}

// Delete removes a PENDING agreement on behalf of the owner.
func (s *Service) Delete(ctx context.Context, agreementID, ownerID string) error {
	if ownerID == "" {
		return ErrForbidden
	}
	return s.repo.Delete(ctx, agreementID, ownerID)
}

// List returns the owner's agreements with the given filters.
func (s *Service) List(ctx context.Context, ownerID string, filters ListFilters) ([]Agreement, int, error) {
	if ownerID == "" {
		return nil, 0, ErrForbidden
	}
	if filters.Status != "" && !validStatus(filters.Status) {
		return nil, 0, &ValidationError{Field: "status", Reason: "unknown status"}
	}
	return s.repo.List(ctx, ownerID, filters)
}

// Stats aggregates the owner's agreements by status.
func (s *Service) Stats(ctx context.Context, ownerID string) (Stats, error) {
	if ownerID == "" {
		return Stats{}, ErrForbidden
	}
	return s.repo.Stats(ctx, ownerID)
}

func (s *Service) notifierConfirmed(ctx context.Context, a Agreement) error {
	return s.notifier.AgreementConfirmed(ctx, a)
}

func (s *Service) notifierPaid(ctx context.Context, a Agreement) error {
	return s.notifier.PaymentReceived(ctx, a)
}

// dispatch fires a notification without blocking the caller. The state
// change has already committed; a failed send is logged and dropped.
func (s *Service) dispatch(label string, a Agreement, send func(context.Context, Agreement) error) {
	if s.notifier == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := send(ctx, a); err != nil {
			log.Printf("agreement %s: %s notification failed: %v", a.AgreementID, label, err)
		}
	}()
}

func normalizeParty(field string, p Party) (Party, error) {
	name := strings.TrimSpace(p.Name)
	contact := strings.ToLower(strings.TrimSpace(p.Contact))
	if name == "" {
		return Party{}, &ValidationError{Field: field + ".name", Reason: "is required"}
	}
	if contact == "" {
		return Party{}, &ValidationError{Field: field + ".contact", Reason: "is required"}
	}
	if !ValidContact(contact) {
		return Party{}, &ValidationError{Field: field + ".contact", Reason: "is not a valid address"}
	}
	return Party{Name: name, Contact: contact}, nil
}

func validCurrency(c string) bool {
	switch c {
	case "INR", "USD", "EUR", "GBP":
		return true
	}
	return false
}

func validPaymentType(t PaymentType) bool {
	switch t {
	case PaymentUPI, PaymentCash, PaymentCheque, PaymentBankTransfer, PaymentOffline:
		return true
	}
	return false
}

func validFrequency(f ReminderFrequency) bool {
	switch f {
	case ReminderDaily, ReminderWeekly, ReminderCustom:
		return true
	}
	return false
}

func validStatus(s Status) bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusPaid, StatusOverdue, StatusCancelled:
		return true
	}
	return false
}
