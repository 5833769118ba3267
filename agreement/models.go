package agreement

import "time"

// Status enumerates the agreement lifecycle states.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusPaid      Status = "PAID"
	StatusOverdue   Status = "OVERDUE"
	StatusCancelled Status = "CANCELLED"
)

// PaymentType enumerates how a payment is expected to be settled.
type PaymentType string

const (
	PaymentUPI          PaymentType = "UPI"
	PaymentCash         PaymentType = "CASH"
	PaymentCheque       PaymentType = "CHEQUE"
	PaymentBankTransfer PaymentType = "BANK_TRANSFER"
	PaymentOffline      PaymentType = "OFFLINE"
)

// PaymentStatus tracks the payment sub-record independently of the
// agreement status.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusFailed  PaymentStatus = "failed"
)

// ReminderFrequency controls how often payment reminders go out.
type ReminderFrequency string

const (
	ReminderDaily  ReminderFrequency = "daily"
	ReminderWeekly ReminderFrequency = "weekly"
	ReminderCustom ReminderFrequency = "custom"
)

// Party identifies one side of an agreement. Contact is an email-like
// address, stored trimmed and lowercased.
type Party struct {
	Name    string
	Contact string
}

// Payment is the optional payment sub-record. It stays mutable after the
// agreement body is frozen.
type Payment struct {
	Amount   float64
	Currency string
	Type     PaymentType
	Status   PaymentStatus
	Date     *time.Time
	ProofKey string
	Notes    string
}

// Reminders holds the reminder configuration for an agreement.
type Reminders struct {
	Enabled    bool
	Frequency  ReminderFrequency
	DaysBefore int
	LastSent   *time.Time
}

// Agreement mirrors the agreements table. The domain type carries no JSON
// annotations; the HTTP layer shapes its own responses.
type Agreement struct {
	AgreementID string
	OwnerID     *string
	Title       string
	Content     string
	PartyA      Party
	PartyB      Party

	// ProofHash is the SHA-256 fingerprint over the canonical field join;
	// ProofNonce is the creation-time discriminator it incorporates.
	ProofHash  string
	ProofNonce string

	Status      Status
	IsImmutable bool
	ConfirmedAt *time.Time
	ShareToken  string

	DueDate  *time.Time
	Payment  Payment
	Reminder Reminders

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Stats aggregates an owner's agreements by status.
type Stats struct {
	Total     int
	Pending   int
	Confirmed int
	Paid      int
	Overdue   int
	Cancelled int
	PaidValue float64
}
