package agreement

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// TestAgreementLifecycle_Integration connects to a real PostgreSQL via
// DATABASE_URL and walks an agreement through the full lifecycle against
// the live conditional updates.
func TestAgreementLifecycle_Integration(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL is empty; set it to a live PostgreSQL to run integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect pool: %v", err)
	}
	defer pool.Close()

	if !tableExists(ctx, pool, "agreements") || !tableExists(ctx, pool, "users") {
		t.Skip("database schema missing; apply the files under migrations/ first")
	}

	var ownerID string
	if err := pool.QueryRow(ctx,
		`INSERT INTO users (name, email, password_hash) VALUES ($1, $2, $3) RETURNING id`,
		"Integration Owner", fmt.Sprintf("owner+%d@example.com", time.Now().UnixNano()), "x",
	).Scan(&ownerID); err != nil {
		t.Fatalf("seed owner: %v", err)
	}

	repo := NewRepository(pool)
	svc := NewService(repo, nil)

	created, err := svc.Create(ctx, CreateParams{
		OwnerID: &ownerID,
		Title:   "Integration agreement",
		Content: "Created by the lifecycle integration test.",
		PartyA:  Party{Name: "Owner", Contact: fmt.Sprintf("a+%d@example.com", time.Now().UnixNano())},
		PartyB:  Party{Name: "Counterparty", Contact: fmt.Sprintf("b+%d@example.com", time.Now().UnixNano())},
		Amount:  750,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	t.Cleanup(func() {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel2()
		pool.Exec(ctx2, `DELETE FROM agreements WHERE owner_id = $1`, ownerID)
		pool.Exec(ctx2, `DELETE FROM users WHERE id = $1`, ownerID)
	})

	// Owner counter was bumped inside the insert transaction.
	var count int
	if err := pool.QueryRow(ctx, `SELECT agreement_count FROM users WHERE id = $1`, ownerID).Scan(&count); err != nil {
		t.Fatalf("read owner counter: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected owner counter 1, got %d", count)
	}

	// Share-token lookup resolves the same row.
	byToken, err := repo.GetByShareToken(ctx, created.ShareToken)
	if err != nil {
		t.Fatalf("shared lookup: %v", err)
	}
	if byToken.AgreementID != created.AgreementID {
		t.Fatalf("share token resolved %s, want %s", byToken.AgreementID, created.AgreementID)
	}

	confirmed, err := svc.Confirm(ctx, created.AgreementID)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if confirmed.Status != StatusConfirmed || !confirmed.IsImmutable || confirmed.ConfirmedAt == nil {
		t.Fatalf("unexpected confirmed record: %+v", confirmed)
	}

	// A repeat confirm loses the conditional update and is classified.
	again, err := svc.Confirm(ctx, created.AgreementID)
	if !errors.Is(err, ErrAlreadyConfirmed) {
		t.Fatalf("expected ErrAlreadyConfirmed, got %v", err)
	}
	if again.ConfirmedAt == nil || !again.ConfirmedAt.Equal(*confirmed.ConfirmedAt) {
		t.Fatalf("confirmation timestamp moved: %v vs %v", again.ConfirmedAt, confirmed.ConfirmedAt)
	}

	// Updates are rejected once frozen.
	title := "tampered"
	if _, err := svc.Update(ctx, created.AgreementID, ownerID, UpdateParams{Title: &title}); !errors.Is(err, ErrNotUpdatable) {
		t.Fatalf("expected ErrNotUpdatable, got %v", err)
	}

	paid, err := svc.MarkPaid(ctx, created.AgreementID, ownerID, MarkPaidParams{Notes: "paid in cash"})
	if err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	if paid.Status != StatusPaid || paid.Payment.Status != PaymentStatusPaid || paid.Payment.Date == nil {
		t.Fatalf("unexpected paid record: %+v", paid)
	}
	if !paid.ConfirmedAt.Equal(*confirmed.ConfirmedAt) {
		t.Fatal("mark paid must not rewrite confirmedAt")
	}

	// Terminal state rejects deletion.
	if err := svc.Delete(ctx, created.AgreementID, ownerID); !errors.Is(err, ErrNotDeletable) {
		t.Fatalf("expected ErrNotDeletable, got %v", err)
	}

	stats, err := svc.Stats(ctx, ownerID)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 1 || stats.Paid != 1 || stats.PaidValue != 750 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

// TestOverdueAndReminderSweeps_Integration verifies the sweep queries
// against a live database.
func TestOverdueAndReminderSweeps_Integration(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL is empty; set it to a live PostgreSQL to run integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect pool: %v", err)
	}
	defer pool.Close()

	if !tableExists(ctx, pool, "agreements") {
		t.Skip("database schema missing; apply the files under migrations/ first")
	}

	repo := NewRepository(pool)
	svc := NewService(repo, nil)

	now := time.Now().UTC()
	past := now.AddDate(0, 0, -2)
	soon := now.AddDate(0, 0, 2)

	elapsed, err := svc.Create(ctx, CreateParams{
		Title:   "Elapsed agreement",
		Content: "Due date already passed.",
		PartyA:  Party{Name: "A", Contact: fmt.Sprintf("a+%d@example.com", time.Now().UnixNano())},
		PartyB:  Party{Name: "B", Contact: fmt.Sprintf("b+%d@example.com", time.Now().UnixNano())},
		DueDate: &past,
	})
	if err != nil {
		t.Fatalf("create elapsed: %v", err)
	}

	upcoming, err := svc.Create(ctx, CreateParams{
		Title:   "Upcoming agreement",
		Content: "Due inside the reminder window.",
		PartyA:  Party{Name: "A", Contact: fmt.Sprintf("c+%d@example.com", time.Now().UnixNano())},
		PartyB:  Party{Name: "B", Contact: fmt.Sprintf("d+%d@example.com", time.Now().UnixNano())},
		DueDate: &soon,
	})
	if err != nil {
		t.Fatalf("create upcoming: %v", err)
	}

	t.Cleanup(func() {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel2()
		pool.Exec(ctx2, `DELETE FROM agreements WHERE agreement_id IN ($1, $2)`, elapsed.AgreementID, upcoming.AgreementID)
	})

	moved, err := repo.MarkOverdue(ctx, now)
	if err != nil {
		t.Fatalf("mark overdue: %v", err)
	}
	foundElapsed := false
	for _, a := range moved {
		if a.AgreementID == elapsed.AgreementID {
			foundElapsed = true
			if a.Status != StatusOverdue {
				t.Fatalf("expected OVERDUE, got %s", a.Status)
			}
		}
		if a.AgreementID == upcoming.AgreementID {
			t.Fatal("upcoming agreement must not be marked overdue")
		}
	}
	if !foundElapsed {
		t.Fatal("elapsed agreement was not marked overdue")
	}

	due, err := repo.DueForReminder(ctx, now)
	if err != nil {
		t.Fatalf("due for reminder: %v", err)
	}
	foundUpcoming := false
	for _, a := range due {
		if a.AgreementID == upcoming.AgreementID {
			foundUpcoming = true
		}
	}
	if !foundUpcoming {
		t.Fatal("upcoming agreement missing from the reminder window")
	}

	// Stamping removes it from the next pass.
	if err := repo.StampReminderSent(ctx, upcoming.AgreementID, now); err != nil {
		t.Fatalf("stamp reminder: %v", err)
	}
	due, err = repo.DueForReminder(ctx, now)
	if err != nil {
		t.Fatalf("due for reminder second pass: %v", err)
	}
	for _, a := range due {
		if a.AgreementID == upcoming.AgreementID {
			t.Fatal("stamped agreement must not be selected again within 24h")
		}
	}
}

func tableExists(ctx context.Context, pool *pgxpool.Pool, name string) bool {
	var exists bool
	if err := pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)`,
		name).Scan(&exists); err != nil {
		return false
	}
	return exists
}
