// Package email sends agreement lifecycle notifications over SMTP.
package email

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"
	"time"

	"agreeproof/agreement"
)

// Config holds SMTP settings. Sending is disabled when Host is empty.
type Config struct {
	Host        string
	Port        string
	Username    string
	Password    string
	From        string
	FromName    string
	FrontendURL string
}

// Sender abstracts smtp.SendMail for testability.
type Sender func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Service renders and delivers notification emails. It implements
// agreement.Notifier and the reminder sweep's notifier contract.
type Service struct {
	config Config
	server string
	auth   smtp.Auth
	send   Sender
}

// NewService creates a new email service.
func NewService(config Config) *Service {
	var auth smtp.Auth
	if config.Username != "" {
		auth = smtp.PlainAuth("", config.Username, config.Password, config.Host)
	}
	return &Service{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   auth,
		send:   smtp.SendMail,
	}
}

// WithSender overrides the SMTP transport, for tests.
func (s *Service) WithSender(send Sender) *Service {
	s.send = send
	return s
}

// IsConfigured returns true if email is configured.
func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

// AgreementConfirmed notifies party B that the agreement is confirmed.
func (s *Service) AgreementConfirmed(ctx context.Context, a agreement.Agreement) error {
	return s.deliver(ctx, a.PartyB.Contact, "Agreement Confirmed - AgreeProof", confirmedTmpl, s.data(a, a.PartyB.Name, 0))
}

// PaymentReceived notifies party B that the payment was recorded.
func (s *Service) PaymentReceived(ctx context.Context, a agreement.Agreement) error {
	return s.deliver(ctx, a.PartyB.Contact, "Payment Received - AgreeProof", paymentReceivedTmpl, s.data(a, a.PartyB.Name, 0))
}

// PaymentReminder nudges party B ahead of the due date.
func (s *Service) PaymentReminder(ctx context.Context, a agreement.Agreement, daysRemaining int) error {
	return s.deliver(ctx, a.PartyB.Contact, "Reminder: Agreement Payment Due Soon - AgreeProof", reminderTmpl, s.data(a, a.PartyB.Name, daysRemaining))
}

// AgreementOverdue tells both parties the payment is late. Both sends are
// attempted even when one fails so a single bounce cannot silence the
// other party.
func (s *Service) AgreementOverdue(ctx context.Context, a agreement.Agreement) error {
	errB := s.deliver(ctx, a.PartyB.Contact, "Agreement Payment Overdue - AgreeProof", overdueTmpl, s.data(a, a.PartyB.Name, 0))
	errA := s.deliver(ctx, a.PartyA.Contact, "Agreement Payment Overdue - AgreeProof", overdueTmpl, s.data(a, a.PartyA.Name, 0))
	return errors.Join(errB, errA)
}

func (s *Service) data(a agreement.Agreement, recipient string, daysRemaining int) templateData {
	d := templateData{
		RecipientName: recipient,
		Title:         a.Title,
		AgreementID:   a.AgreementID,
		Content:       a.Content,
		Amount:        a.Payment.Amount,
		Currency:      a.Payment.Currency,
		PaymentType:   string(a.Payment.Type),
		DaysRemaining: daysRemaining,
		ViewLink:      fmt.Sprintf("%s/shared/%s", strings.TrimRight(s.config.FrontendURL, "/"), a.ShareToken),
		AppName:       "AgreeProof",
	}
	if a.DueDate != nil {
		d.DueDate = a.DueDate.Format("02 Jan 2006")
	}
	if a.Payment.Date != nil {
		d.PaymentDate = a.Payment.Date.Format("02 Jan 2006")
	}
	return d
}

func (s *Service) deliver(ctx context.Context, to, subject string, tmpl *template.Template, data templateData) error {
	if !s.IsConfigured() {
		return fmt.Errorf("email: not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var body bytes.Buffer
	if err := tmpl.Execute(&body, data); err != nil {
		return fmt.Errorf("email: render template: %w", err)
	}

	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: text/html; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	msg.Write(body.Bytes())

	if err := s.send(s.server, s.auth, s.config.From, []string{to}, msg.Bytes()); err != nil {
		return fmt.Errorf("email: send to %s: %w", to, err)
	}
	return nil
}
