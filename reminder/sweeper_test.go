package reminder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"agreeproof/agreement"
)

type fakeStore struct {
	mu      sync.Mutex
	due     []agreement.Agreement
	dueErr  error
	moved   []agreement.Agreement
	stamped []string
}

func (f *fakeStore) MarkOverdue(_ context.Context, _ time.Time) ([]agreement.Agreement, error) {
	return f.moved, nil
}

func (f *fakeStore) DueForReminder(_ context.Context, _ time.Time) ([]agreement.Agreement, error) {
	return f.due, f.dueErr
}

func (f *fakeStore) StampReminderSent(_ context.Context, agreementID string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stamped = append(f.stamped, agreementID)
	return nil
}

type fakeNotifier struct {
	mu        sync.Mutex
	reminders map[string]int
	overdue   []string
	failFor   string
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{reminders: make(map[string]int)}
}

func (f *fakeNotifier) PaymentReminder(_ context.Context, a agreement.Agreement, daysRemaining int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a.AgreementID == f.failFor {
		return errors.New("smtp unavailable")
	}
	f.reminders[a.AgreementID] = daysRemaining
	return nil
}

func (f *fakeNotifier) AgreementOverdue(_ context.Context, a agreement.Agreement) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a.AgreementID == f.failFor {
		return errors.New("smtp unavailable")
	}
	f.overdue = append(f.overdue, a.AgreementID)
	return nil
}

func dueAgreement(id string, due time.Time) agreement.Agreement {
	return agreement.Agreement{
		AgreementID: id,
		Status:      agreement.StatusPending,
		DueDate:     &due,
		PartyB:      agreement.Party{Name: "B", Contact: "b@example.com"},
		Reminder:    agreement.Reminders{Enabled: true, Frequency: agreement.ReminderWeekly, DaysBefore: 3},
	}
}

func TestRunReminders_SendsAndStamps(t *testing.T) {
	now := time.Date(2026, 4, 12, 9, 0, 0, 0, time.UTC)
	store := &fakeStore{due: []agreement.Agreement{
		dueAgreement("AGP-1", now.AddDate(0, 0, 3)),
		dueAgreement("AGP-2", now.AddDate(0, 0, 1)),
	}}
	notifier := newFakeNotifier()
	sweeper := NewSweeper(store, notifier).WithClock(func() time.Time { return now })

	sent, err := sweeper.RunReminders(context.Background())
	if err != nil {
		t.Fatalf("run reminders: %v", err)
	}
	if sent != 2 {
		t.Fatalf("expected 2 reminders sent, got %d", sent)
	}

	if days := notifier.reminders["AGP-1"]; days != 3 {
		t.Fatalf("expected 3 days remaining for AGP-1, got %d", days)
	}
	if days := notifier.reminders["AGP-2"]; days != 1 {
		t.Fatalf("expected 1 day remaining for AGP-2, got %d", days)
	}
	if len(store.stamped) != 2 {
		t.Fatalf("expected both agreements stamped, got %v", store.stamped)
	}
}

func TestRunReminders_FailedSendNotStamped(t *testing.T) {
	now := time.Date(2026, 4, 12, 9, 0, 0, 0, time.UTC)
	store := &fakeStore{due: []agreement.Agreement{
		dueAgreement("AGP-1", now.AddDate(0, 0, 2)),
		dueAgreement("AGP-2", now.AddDate(0, 0, 2)),
	}}
	notifier := newFakeNotifier()
	notifier.failFor = "AGP-1"
	sweeper := NewSweeper(store, notifier).WithClock(func() time.Time { return now })

	sent, err := sweeper.RunReminders(context.Background())
	if err != nil {
		t.Fatalf("run reminders: %v", err)
	}
	if sent != 1 {
		t.Fatalf("expected 1 reminder sent, got %d", sent)
	}
	if len(store.stamped) != 1 || store.stamped[0] != "AGP-2" {
		t.Fatalf("only the delivered reminder may be stamped, got %v", store.stamped)
	}
}

func TestRunReminders_StoreError(t *testing.T) {
	store := &fakeStore{dueErr: errors.New("db down")}
	sweeper := NewSweeper(store, newFakeNotifier())

	if _, err := sweeper.RunReminders(context.Background()); err == nil {
		t.Fatal("expected store error to propagate")
	}
}

func TestRunOverdue_CountsMovedEvenWhenNoticesFail(t *testing.T) {
	now := time.Date(2026, 4, 12, 10, 0, 0, 0, time.UTC)
	store := &fakeStore{moved: []agreement.Agreement{
		dueAgreement("AGP-1", now.AddDate(0, 0, -1)),
		dueAgreement("AGP-2", now.AddDate(0, 0, -2)),
	}}
	notifier := newFakeNotifier()
	notifier.failFor = "AGP-2"
	sweeper := NewSweeper(store, notifier).WithClock(func() time.Time { return now })

	moved, err := sweeper.RunOverdue(context.Background())
	if err != nil {
		t.Fatalf("run overdue: %v", err)
	}
	if moved != 2 {
		t.Fatalf("expected 2 moved, got %d", moved)
	}
	if len(notifier.overdue) != 1 || notifier.overdue[0] != "AGP-1" {
		t.Fatalf("unexpected overdue notices: %v", notifier.overdue)
	}
}

func TestRunOverdue_Empty(t *testing.T) {
	sweeper := NewSweeper(&fakeStore{}, newFakeNotifier())

	moved, err := sweeper.RunOverdue(context.Background())
	if err != nil {
		t.Fatalf("run overdue: %v", err)
	}
	if moved != 0 {
		t.Fatalf("expected 0 moved, got %d", moved)
	}
}
