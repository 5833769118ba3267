package agreement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound is returned when no agreement matches the identifier.
	ErrNotFound = errors.New("agreement: not found")
	// ErrDuplicateID signals a unique-key collision on insert; the caller
	// should regenerate identifiers and retry.
	ErrDuplicateID = errors.New("agreement: duplicate identifier")
	// ErrForbidden signals the caller does not own the agreement.
	ErrForbidden = errors.New("agreement: forbidden")
	// ErrAlreadyConfirmed signals a repeated confirm call. The original
	// confirmation timestamp is preserved on the record.
	ErrAlreadyConfirmed = errors.New("agreement: already confirmed")
	// ErrAlreadyPaid signals a repeated mark-paid call.
	ErrAlreadyPaid = errors.New("agreement: already paid")
	// ErrCancelled signals a transition attempted on a cancelled agreement.
	ErrCancelled = errors.New("agreement: cancelled")
	// ErrOverdue signals a confirm attempt on an overdue agreement. Only a
	// payment moves an overdue record forward.
	ErrOverdue = errors.New("agreement: overdue")
	// ErrImmutable signals a mutation attempt on a frozen record. Should be
	// unreachable while transitions are enforced, kept as a guardrail.
	ErrImmutable = errors.New("agreement: immutable")
	// ErrNotUpdatable signals an update outside the PENDING state.
	ErrNotUpdatable = errors.New("agreement: only pending agreements can be updated")
	// ErrNotDeletable signals a delete outside the PENDING state.
	ErrNotDeletable = errors.New("agreement: only pending agreements can be deleted")
)

// ListFilters narrows and pages an owner's agreement listing.
type ListFilters struct {
	Status   Status
	Page     int
	PageSize int
}

// Repository is the persistence contract the lifecycle service depends
// on. Every status transition must be an atomic conditional update: the
// implementation may never overwrite a status it did not observe.
type Repository interface {
	Create(ctx context.Context, a Agreement) (Agreement, error)
	GetByID(ctx context.Context, agreementID string) (Agreement, error)
	GetByShareToken(ctx context.Context, token string) (Agreement, error)
	List(ctx context.Context, ownerID string, filters ListFilters) ([]Agreement, int, error)
	Stats(ctx context.Context, ownerID string) (Stats, error)

	Confirm(ctx context.Context, agreementID string, at time.Time) (Agreement, error)
	MarkPaid(ctx context.Context, agreementID, ownerID string, p Payment, at time.Time) (Agreement, error)
	Update(ctx context.Context, a Agreement) (Agreement, error)
	Cancel(ctx context.Context, agreementID, ownerID string) (Agreement, error)
	Delete(ctx context.Context, agreementID, ownerID string) error

	MarkOverdue(ctx context.Context, now time.Time) ([]Agreement, error)
	DueForReminder(ctx context.Context, now time.Time) ([]Agreement, error)
	StampReminderSent(ctx context.Context, agreementID string, at time.Time) error
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository wires a pgxpool-backed repository implementation.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const agreementCols = `
	agreement_id, owner_id::text, title, content,
	party_a_name, party_a_contact, party_b_name, party_b_contact,
	proof_hash, proof_nonce, status, is_immutable, confirmed_at, share_token,
	amount, currency, due_date, payment_type, payment_status, payment_date,
	payment_proof_key, payment_notes,
	reminder_enabled, reminder_frequency, reminder_days_before, last_reminder_sent,
	created_at, updated_at`

func scanAgreement(row pgx.Row) (Agreement, error) {
	var (
		a        Agreement
		proofKey *string
		notes    *string
	)
	err := row.Scan(
		&a.AgreementID,
		&a.OwnerID,
		&a.Title,
		&a.Content,
		&a.PartyA.Name,
		&a.PartyA.Contact,
		&a.PartyB.Name,
		&a.PartyB.Contact,
		&a.ProofHash,
		&a.ProofNonce,
		&a.Status,
		&a.IsImmutable,
		&a.ConfirmedAt,
		&a.ShareToken,
		&a.Payment.Amount,
		&a.Payment.Currency,
		&a.DueDate,
		&a.Payment.Type,
		&a.Payment.Status,
		&a.Payment.Date,
		&proofKey,
		&notes,
		&a.Reminder.Enabled,
		&a.Reminder.Frequency,
		&a.Reminder.DaysBefore,
		&a.Reminder.LastSent,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return Agreement{}, err
	}
	if proofKey != nil {
		a.Payment.ProofKey = *proofKey
	}
	if notes != nil {
		a.Payment.Notes = *notes
	}
	return a, nil
}

// Create inserts the agreement and, when an owner is attached, bumps the
// owner's agreement counter in the same transaction.
func (r *PGRepository) Create(ctx context.Context, a Agreement) (Agreement, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Agreement{}, fmt.Errorf("agreement: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	insertSQL := `
		INSERT INTO agreements (
			agreement_id, owner_id, title, content,
			party_a_name, party_a_contact, party_b_name, party_b_contact,
			proof_hash, proof_nonce, status, share_token,
			amount, currency, due_date, payment_type,
			reminder_enabled, reminder_frequency, reminder_days_before
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
		RETURNING ` + agreementCols

	rec, err := scanAgreement(tx.QueryRow(ctx, insertSQL,
		a.AgreementID,
		a.OwnerID,
		a.Title,
		a.Content,
		a.PartyA.Name,
		a.PartyA.Contact,
		a.PartyB.Name,
		a.PartyB.Contact,
		a.ProofHash,
		a.ProofNonce,
		StatusPending,
		a.ShareToken,
		a.Payment.Amount,
		a.Payment.Currency,
		a.DueDate,
		a.Payment.Type,
		a.Reminder.Enabled,
		a.Reminder.Frequency,
		a.Reminder.DaysBefore,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Agreement{}, ErrDuplicateID
		}
		return Agreement{}, fmt.Errorf("agreement: insert: %w", err)
	}

	if a.OwnerID != nil {
		if _, err := tx.Exec(ctx,
			`UPDATE users SET agreement_count = agreement_count + 1, updated_at = now() WHERE id = $1`,
			*a.OwnerID); err != nil {
			return Agreement{}, fmt.Errorf("agreement: bump owner counter: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Agreement{}, fmt.Errorf("agreement: commit: %w", err)
	}

	return rec, nil
}

func (r *PGRepository) GetByID(ctx context.Context, agreementID string) (Agreement, error) {
	query := `SELECT ` + agreementCols + ` FROM agreements WHERE agreement_id = $1`

	rec, err := scanAgreement(r.pool.QueryRow(ctx, query, agreementID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Agreement{}, ErrNotFound
		}
		return Agreement{}, fmt.Errorf("agreement: get by id: %w", err)
	}
	return rec, nil
}

func (r *PGRepository) GetByShareToken(ctx context.Context, token string) (Agreement, error) {
	query := `SELECT ` + agreementCols + ` FROM agreements WHERE share_token = $1`

	rec, err := scanAgreement(r.pool.QueryRow(ctx, query, token))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Agreement{}, ErrNotFound
		}
		return Agreement{}, fmt.Errorf("agreement: get by share token: %w", err)
	}
	return rec, nil
}

func (r *PGRepository) List(ctx context.Context, ownerID string, filters ListFilters) ([]Agreement, int, error) {
	if filters.Page <= 0 {
		filters.Page = 1
	}
	if filters.PageSize <= 0 || filters.PageSize > 100 {
		filters.PageSize = 20
	}

	query := `SELECT ` + agreementCols + ` FROM agreements WHERE owner_id = $1`
	countQuery := `SELECT COUNT(*) FROM agreements WHERE owner_id = $1`
	args := []any{ownerID}
	if filters.Status != "" {
		query += ` AND status = $2`
		countQuery += ` AND status = $2`
		args = append(args, filters.Status)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		filters.PageSize, (filters.Page-1)*filters.PageSize)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("agreement: list: %w", err)
	}
	defer rows.Close()

	records := []Agreement{}
	for rows.Next() {
		rec, err := scanAgreement(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("agreement: scan: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("agreement: iterate: %w", err)
	}

	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("agreement: count: %w", err)
	}

	return records, total, nil
}

func (r *PGRepository) Stats(ctx context.Context, ownerID string) (Stats, error) {
	const query = `
		SELECT status, COUNT(*), COALESCE(SUM(amount), 0)
		FROM agreements
		WHERE owner_id = $1
		GROUP BY status
	`

	rows, err := r.pool.Query(ctx, query, ownerID)
	if err != nil {
		return Stats{}, fmt.Errorf("agreement: stats: %w", err)
	}
	defer rows.Close()

	var stats Stats
	for rows.Next() {
		var (
			status Status
			count  int
			amount float64
		)
		if err := rows.Scan(&status, &count, &amount); err != nil {
			return Stats{}, fmt.Errorf("agreement: stats scan: %w", err)
		}
		stats.Total += count
		switch status {
		case StatusPending:
			stats.Pending = count
		case StatusConfirmed:
			stats.Confirmed = count
		case StatusPaid:
			stats.Paid = count
			stats.PaidValue = amount
		case StatusOverdue:
			stats.Overdue = count
		case StatusCancelled:
			stats.Cancelled = count
		}
	}
	if err := rows.Err(); err != nil {
		return Stats{}, fmt.Errorf("agreement: stats iterate: %w", err)
	}
	return stats, nil
}

// Confirm applies PENDING -> CONFIRMED as a single conditional update.
// A lost race is classified by re-reading the row rather than retried.
func (r *PGRepository) Confirm(ctx context.Context, agreementID string, at time.Time) (Agreement, error) {
	query := `
		UPDATE agreements
		SET status = 'CONFIRMED', confirmed_at = $2, is_immutable = TRUE, updated_at = now()
		WHERE agreement_id = $1 AND status = 'PENDING' AND NOT is_immutable
		RETURNING ` + agreementCols

	rec, err := scanAgreement(r.pool.QueryRow(ctx, query, agreementID, at))
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Agreement{}, fmt.Errorf("agreement: confirm: %w", err)
	}

	current, err := r.GetByID(ctx, agreementID)
	if err != nil {
		return Agreement{}, err
	}
	switch current.Status {
	case StatusConfirmed, StatusPaid:
		return current, ErrAlreadyConfirmed
	case StatusOverdue:
		return current, ErrOverdue
	case StatusCancelled:
		return current, ErrCancelled
	}
	if current.IsImmutable {
		return current, ErrImmutable
	}
	return current, ErrAlreadyConfirmed
}

// MarkPaid moves any live state to PAID. ConfirmedAt is kept if already
// set so the confirmation timestamp is written exactly once.
func (r *PGRepository) MarkPaid(ctx context.Context, agreementID, ownerID string, p Payment, at time.Time) (Agreement, error) {
	query := `
		UPDATE agreements
		SET status = 'PAID',
		    payment_status = 'paid',
		    payment_date = $3,
		    payment_proof_key = COALESCE(NULLIF($4, ''), payment_proof_key),
		    payment_notes = COALESCE(NULLIF($5, ''), payment_notes),
		    confirmed_at = COALESCE(confirmed_at, $6),
		    is_immutable = TRUE,
		    updated_at = now()
		WHERE agreement_id = $1
		  AND owner_id = $2
		  AND status NOT IN ('PAID', 'CANCELLED')
		RETURNING ` + agreementCols

	rec, err := scanAgreement(r.pool.QueryRow(ctx, query, agreementID, ownerID, p.Date, p.ProofKey, p.Notes, at))
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Agreement{}, fmt.Errorf("agreement: mark paid: %w", err)
	}

	current, err := r.GetByID(ctx, agreementID)
	if err != nil {
		return Agreement{}, err
	}
	if current.OwnerID == nil || *current.OwnerID != ownerID {
		return Agreement{}, ErrForbidden
	}
	switch current.Status {
	case StatusPaid:
		return current, ErrAlreadyPaid
	case StatusCancelled:
		return current, ErrCancelled
	}
	return current, ErrAlreadyPaid
}

// Update rewrites the mutable fields while the agreement is still
// PENDING. The caller supplies the recomputed proof hash.
func (r *PGRepository) Update(ctx context.Context, a Agreement) (Agreement, error) {
	if a.OwnerID == nil {
		return Agreement{}, ErrForbidden
	}

	query := `
		UPDATE agreements
		SET title = $3,
		    content = $4,
		    due_date = $5,
		    proof_hash = $6,
		    reminder_enabled = $7,
		    reminder_frequency = $8,
		    reminder_days_before = $9,
		    updated_at = now()
		WHERE agreement_id = $1
		  AND owner_id = $2
		  AND status = 'PENDING'
		  AND NOT is_immutable
		RETURNING ` + agreementCols

	rec, err := scanAgreement(r.pool.QueryRow(ctx, query,
		a.AgreementID,
		*a.OwnerID,
		a.Title,
		a.Content,
		a.DueDate,
		a.ProofHash,
		a.Reminder.Enabled,
		a.Reminder.Frequency,
		a.Reminder.DaysBefore,
	))
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Agreement{}, fmt.Errorf("agreement: update: %w", err)
	}

	current, err := r.GetByID(ctx, a.AgreementID)
	if err != nil {
		return Agreement{}, err
	}
	if current.OwnerID == nil || *current.OwnerID != *a.OwnerID {
		return Agreement{}, ErrForbidden
	}
	return Agreement{}, ErrNotUpdatable
}

// Cancel moves a PENDING agreement to the terminal CANCELLED state.
func (r *PGRepository) Cancel(ctx context.Context, agreementID, ownerID string) (Agreement, error) {
	query := `
		UPDATE agreements
		SET status = 'CANCELLED', updated_at = now()
		WHERE agreement_id = $1 AND owner_id = $2 AND status = 'PENDING'
		RETURNING ` + agreementCols

	rec, err := scanAgreement(r.pool.QueryRow(ctx, query, agreementID, ownerID))
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Agreement{}, fmt.Errorf("agreement: cancel: %w", err)
	}

	current, err := r.GetByID(ctx, agreementID)
	if err != nil {
		return Agreement{}, err
	}
	if current.OwnerID == nil || *current.OwnerID != ownerID {
		return Agreement{}, ErrForbidden
	}
	switch current.Status {
	case StatusPaid:
		return Agreement{}, ErrAlreadyPaid
	case StatusCancelled:
		return Agreement{}, ErrCancelled
	}
	return Agreement{}, ErrNotUpdatable
}

// Delete removes a PENDING agreement and decrements the owner's counter
// in the same transaction.
func (r *PGRepository) Delete(ctx context.Context, agreementID, ownerID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("agreement: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`DELETE FROM agreements WHERE agreement_id = $1 AND owner_id = $2 AND status = 'PENDING'`,
		agreementID, ownerID)
	if err != nil {
		return fmt.Errorf("agreement: delete: %w", err)
	}

	if tag.RowsAffected() == 0 {
		current, err := r.GetByID(ctx, agreementID)
		if err != nil {
			return err
		}
		if current.OwnerID == nil || *current.OwnerID != ownerID {
			return ErrForbidden
		}
		return ErrNotDeletable
	}

	if _, err := tx.Exec(ctx,
		`UPDATE users SET agreement_count = GREATEST(agreement_count - 1, 0), updated_at = now() WHERE id = $1`,
		ownerID); err != nil {
		return fmt.Errorf("agreement: decrement owner counter: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("agreement: commit delete: %w", err)
	}
	return nil
}

// MarkOverdue flips every live agreement whose due date has elapsed to
// OVERDUE and returns the moved rows. The status predicate makes the
// sweep idempotent and safe against concurrent user transitions.
func (r *PGRepository) MarkOverdue(ctx context.Context, now time.Time) ([]Agreement, error) {
	query := `
		UPDATE agreements
		SET status = 'OVERDUE', updated_at = now()
		WHERE status IN ('PENDING', 'CONFIRMED')
		  AND reminder_enabled
		  AND due_date IS NOT NULL
		  AND due_date < $1
		RETURNING ` + agreementCols

	rows, err := r.pool.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("agreement: mark overdue: %w", err)
	}
	defer rows.Close()

	moved := []Agreement{}
	for rows.Next() {
		rec, err := scanAgreement(rows)
		if err != nil {
			return nil, fmt.Errorf("agreement: overdue scan: %w", err)
		}
		moved = append(moved, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("agreement: overdue iterate: %w", err)
	}
	return moved, nil
}

// DueForReminder selects live agreements whose due date falls inside
// their per-record reminder window and which have not been reminded in
// the last 24 hours.
func (r *PGRepository) DueForReminder(ctx context.Context, now time.Time) ([]Agreement, error) {
	query := `
		SELECT ` + agreementCols + `
		FROM agreements
		WHERE status IN ('PENDING', 'CONFIRMED')
		  AND reminder_enabled
		  AND due_date IS NOT NULL
		  AND due_date >= $1
		  AND due_date <= $1 + make_interval(days => reminder_days_before)
		  AND (last_reminder_sent IS NULL OR last_reminder_sent < $1 - interval '24 hours')
		ORDER BY due_date ASC
	`

	rows, err := r.pool.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("agreement: due for reminder: %w", err)
	}
	defer rows.Close()

	due := []Agreement{}
	for rows.Next() {
		rec, err := scanAgreement(rows)
		if err != nil {
			return nil, fmt.Errorf("agreement: reminder scan: %w", err)
		}
		due = append(due, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("agreement: reminder iterate: %w", err)
	}
	return due, nil
}

func (r *PGRepository) StampReminderSent(ctx context.Context, agreementID string, at time.Time) error {
	if _, err := r.pool.Exec(ctx,
		`UPDATE agreements SET last_reminder_sent = $2 WHERE agreement_id = $1`,
		agreementID, at); err != nil {
		return fmt.Errorf("agreement: stamp reminder: %w", err)
	}
	return nil
}
