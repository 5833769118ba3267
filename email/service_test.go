package email

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"agreeproof/agreement"
)

type captured struct {
	addr string
	from string
	to   []string
	msg  string
}

func newTestService(t *testing.T) (*Service, *[]captured) {
	t.Helper()
	sent := &[]captured{}
	svc := NewService(Config{
		Host:        "smtp.example.com",
		Port:        "587",
		From:        "noreply@agreeproof.app",
		FromName:    "AgreeProof",
		FrontendURL: "https://agreeproof.app/",
	}).WithSender(func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		*sent = append(*sent, captured{addr: addr, from: from, to: to, msg: string(msg)})
		return nil
	})
	return svc, sent
}

func sampleAgreement() agreement.Agreement {
	due := time.Date(2026, 4, 15, 0, 0, 0, 0, time.UTC)
	return agreement.Agreement{
		AgreementID: "AGP-20260310-A1B2C3",
		Title:       "Loan repayment",
		Content:     "Repay in full.",
		PartyA:      agreement.Party{Name: "Asha", Contact: "asha@example.com"},
		PartyB:      agreement.Party{Name: "Bilal", Contact: "bilal@example.com"},
		ShareToken:  "sharetoken123",
		DueDate:     &due,
		Payment: agreement.Payment{
			Amount:   5000,
			Currency: "INR",
			Type:     agreement.PaymentUPI,
		},
	}
}

func TestAgreementConfirmed_GoesToPartyB(t *testing.T) {
	svc, sent := newTestService(t)

	if err := svc.AgreementConfirmed(context.Background(), sampleAgreement()); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(*sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(*sent))
	}

	m := (*sent)[0]
	if m.addr != "smtp.example.com:587" {
		t.Fatalf("unexpected server %q", m.addr)
	}
	if len(m.to) != 1 || m.to[0] != "bilal@example.com" {
		t.Fatalf("expected delivery to party B, got %v", m.to)
	}
	if !strings.Contains(m.msg, "Subject: Agreement Confirmed - AgreeProof") {
		t.Fatalf("missing subject header:\n%s", m.msg)
	}
	if !strings.Contains(m.msg, "Bilal") {
		t.Fatal("body should address the recipient by name")
	}
	if !strings.Contains(m.msg, "https://agreeproof.app/shared/sharetoken123") {
		t.Fatal("body should carry the shared view link")
	}
	if !strings.Contains(m.msg, "AGP-20260310-A1B2C3") {
		t.Fatal("body should reference the agreement id")
	}
}

func TestPaymentReminder_IncludesCountdown(t *testing.T) {
	svc, sent := newTestService(t)

	if err := svc.PaymentReminder(context.Background(), sampleAgreement(), 3); err != nil {
		t.Fatalf("send: %v", err)
	}

	m := (*sent)[0]
	if !strings.Contains(m.msg, "Subject: Reminder: Agreement Payment Due Soon - AgreeProof") {
		t.Fatalf("missing reminder subject:\n%s", m.msg)
	}
	if !strings.Contains(m.msg, "3") || !strings.Contains(m.msg, "15 Apr 2026") {
		t.Fatal("reminder should mention days remaining and the due date")
	}
}

func TestAgreementOverdue_NotifiesBothParties(t *testing.T) {
	svc, sent := newTestService(t)

	if err := svc.AgreementOverdue(context.Background(), sampleAgreement()); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(*sent) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(*sent))
	}
	if (*sent)[0].to[0] != "bilal@example.com" || (*sent)[1].to[0] != "asha@example.com" {
		t.Fatalf("unexpected recipients: %v, %v", (*sent)[0].to, (*sent)[1].to)
	}
}

func TestAgreementOverdue_BouncedPartyBStillNotifiesPartyA(t *testing.T) {
	bounce := errors.New("smtp: mailbox unavailable")
	sent := []captured{}
	svc := NewService(Config{
		Host:        "smtp.example.com",
		Port:        "587",
		From:        "noreply@agreeproof.app",
		FromName:    "AgreeProof",
		FrontendURL: "https://agreeproof.app/",
	}).WithSender(func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		if to[0] == "bilal@example.com" {
			return bounce
		}
		sent = append(sent, captured{addr: addr, from: from, to: to, msg: string(msg)})
		return nil
	})

	err := svc.AgreementOverdue(context.Background(), sampleAgreement())
	if !errors.Is(err, bounce) {
		t.Fatalf("expected bounce error, got %v", err)
	}
	if len(sent) != 1 || sent[0].to[0] != "asha@example.com" {
		t.Fatalf("party A must still be notified, got %v", sent)
	}
}

func TestDeliver_PropagatesSendError(t *testing.T) {
	boom := errors.New("boom")
	svc := NewService(Config{
		Host: "smtp.example.com", Port: "587", From: "noreply@agreeproof.app",
	}).WithSender(func(string, smtp.Auth, string, []string, []byte) error {
		return boom
	})

	if err := svc.PaymentReceived(context.Background(), sampleAgreement()); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped send error, got %v", err)
	}
}

func TestDeliver_NotConfigured(t *testing.T) {
	svc := NewService(Config{})
	if svc.IsConfigured() {
		t.Fatal("empty config must not report configured")
	}
	if err := svc.AgreementConfirmed(context.Background(), sampleAgreement()); err == nil {
		t.Fatal("expected error when smtp is not configured")
	}
}
