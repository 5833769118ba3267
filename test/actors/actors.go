package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"agreeproof/agreement"
)

// tolerable reports whether an error is an expected outcome of losing a
// race or of the chaos goroutine killing a backend mid-flight.
func tolerable(err error) bool {
	var vErr *agreement.ValidationError
	switch {
	case err == nil:
		return true
	case errors.As(err, &vErr):
		return true
	case errors.Is(err, agreement.ErrAlreadyConfirmed),
		errors.Is(err, agreement.ErrAlreadyPaid),
		errors.Is(err, agreement.ErrCancelled),
		errors.Is(err, agreement.ErrOverdue),
		errors.Is(err, agreement.ErrImmutable),
		errors.Is(err, agreement.ErrNotUpdatable),
		errors.Is(err, agreement.ErrNotDeletable),
		errors.Is(err, agreement.ErrForbidden),
		errors.Is(err, agreement.ErrDuplicateID):
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "57P01" { // admin_shutdown
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "conn closed") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "unexpected EOF")
}

// Confirmer hammers Confirm on the contested agreement. Exactly one call
// across all confirmers may win; the rest must see lifecycle sentinels.
func Confirmer(ctx context.Context, svc *agreement.Service, agreementID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		if _, err := svc.Confirm(ctx, agreementID); !tolerable(err) {
			return fmt.Errorf("confirmer: %w", err)
		}
		time.Sleep(time.Duration(10+rand.Intn(20)) * time.Millisecond)
	}
}

// Payer races the confirmers by marking the same agreement paid as its
// owner.
func Payer(ctx context.Context, svc *agreement.Service, agreementID, ownerID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		_, err := svc.MarkPaid(ctx, agreementID, ownerID, agreement.MarkPaidParams{Notes: "stress payment"})
		if !tolerable(err) {
			return fmt.Errorf("payer: %w", err)
		}
		time.Sleep(time.Duration(20+rand.Intn(40)) * time.Millisecond)
	}
}

// Updater keeps rewriting the title while the agreement is still
// PENDING. Once a confirmer wins it must be rejected every time.
func Updater(ctx context.Context, svc *agreement.Service, agreementID, ownerID string, stop <-chan struct{}) error {
	n := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		n++
		title := fmt.Sprintf("Stress agreement rev %d", n)
		_, err := svc.Update(ctx, agreementID, ownerID, agreement.UpdateParams{Title: &title})
		if !tolerable(err) {
			return fmt.Errorf("updater: %w", err)
		}
		time.Sleep(time.Duration(15+rand.Intn(35)) * time.Millisecond)
	}
}

// Creator churns out fresh agreements for the owner so the identifier
// generator and owner counter see contention too.
func Creator(ctx context.Context, svc *agreement.Service, ownerID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		n := rand.Int63()
		_, err := svc.Create(ctx, agreement.CreateParams{
			OwnerID: &ownerID,
			Title:   fmt.Sprintf("Stress deal %d", n),
			Content: "Generated under load.",
			PartyA:  agreement.Party{Name: "Creator", Contact: fmt.Sprintf("creator%d@example.com", n)},
			PartyB:  agreement.Party{Name: "Counterparty", Contact: fmt.Sprintf("counter%d@example.com", n)},
			Amount:  float64(rand.Intn(10000)),
		})
		if !tolerable(err) {
			return fmt.Errorf("creator: %w", err)
		}
		time.Sleep(time.Duration(30+rand.Intn(50)) * time.Millisecond)
	}
}

// Reader exercises both read paths against the contested agreement.
func Reader(ctx context.Context, svc *agreement.Service, agreementID, shareToken string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		if _, err := svc.Get(ctx, agreementID); !tolerable(err) && !errors.Is(err, agreement.ErrNotFound) {
			return fmt.Errorf("reader get: %w", err)
		}
		if _, err := svc.GetShared(ctx, shareToken); !tolerable(err) && !errors.Is(err, agreement.ErrNotFound) {
			return fmt.Errorf("reader shared: %w", err)
		}
		time.Sleep(time.Duration(10+rand.Intn(30)) * time.Millisecond)
	}
}

// Canceller attempts owner cancellation, racing the confirmers for the
// PENDING window.
func Canceller(ctx context.Context, svc *agreement.Service, agreementID, ownerID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		if _, err := svc.Cancel(ctx, agreementID, ownerID); !tolerable(err) {
			return fmt.Errorf("canceller: %w", err)
		}
		time.Sleep(time.Duration(200+rand.Intn(200)) * time.Millisecond)
	}
}
