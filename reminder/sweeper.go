// Package reminder runs the scheduled reminder and overdue sweeps over
// agreements with elapsed or approaching due dates.
package reminder

import (
	"context"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"agreeproof/agreement"
)

// Store is the slice of the agreement repository the sweeps need.
type Store interface {
	MarkOverdue(ctx context.Context, now time.Time) ([]agreement.Agreement, error)
	DueForReminder(ctx context.Context, now time.Time) ([]agreement.Agreement, error)
	StampReminderSent(ctx context.Context, agreementID string, at time.Time) error
}

// Notifier delivers the sweep emails.
type Notifier interface {
	PaymentReminder(ctx context.Context, a agreement.Agreement, daysRemaining int) error
	AgreementOverdue(ctx context.Context, a agreement.Agreement) error
}

// Sweeper executes the periodic jobs. Both sweeps are idempotent: the
// overdue transition is a conditional update and reminders are stamped,
// so overlapping runs or races with user-triggered transitions are safe.
type Sweeper struct {
	store     Store
	notifier  Notifier
	now       func() time.Time
	sendLimit int
}

func NewSweeper(store Store, notifier Notifier) *Sweeper {
	return &Sweeper{
		store:     store,
		notifier:  notifier,
		now:       time.Now,
		sendLimit: 4,
	}
}

// WithClock overrides the time source, for tests.
func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	s.now = now
	return s
}

// RunReminders sends due-soon payment reminders and stamps each
// agreement only after a successful send. Returns the number of
// reminders delivered.
func (s *Sweeper) RunReminders(ctx context.Context) (int, error) {
	now := s.now().UTC()

	due, err := s.store.DueForReminder(ctx, now)
	if err != nil {
		return 0, err
	}

	sent := 0
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.sendLimit)
	results := make(chan string, len(due))

	for _, a := range due {
		a := a
		g.Go(func() error {
			days := 0
			if a.DueDate != nil {
				days = int(a.DueDate.Sub(now).Hours() / 24)
			}
			if err := s.notifier.PaymentReminder(gctx, a, days); err != nil {
				log.Printf("reminder: send for %s failed: %v", a.AgreementID, err)
				return nil
			}
			results <- a.AgreementID
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return sent, err
	}
	close(results)

	for id := range results {
		if err := s.store.StampReminderSent(ctx, id, now); err != nil {
			log.Printf("reminder: stamp %s failed: %v", id, err)
			continue
		}
		sent++
	}

	return sent, nil
}

// RunOverdue flips elapsed agreements to OVERDUE and sends best-effort
// overdue notices for the rows that moved. Returns how many rows moved.
func (s *Sweeper) RunOverdue(ctx context.Context) (int, error) {
	now := s.now().UTC()

	moved, err := s.store.MarkOverdue(ctx, now)
	if err != nil {
		return 0, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.sendLimit)
	for _, a := range moved {
		a := a
		g.Go(func() error {
			if err := s.notifier.AgreementOverdue(gctx, a); err != nil {
				log.Printf("reminder: overdue notice for %s failed: %v", a.AgreementID, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return len(moved), err
	}

	return len(moved), nil
}
