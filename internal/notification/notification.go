package notification

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/frahmantamala/sacco-management/internal"
	memberDatamodel "github.com/frahmantamala/sacco-management/internal/core/datamodel/member"
	"github.com/frahmantamala/sacco-management/internal/core/events"
	"github.com/jordan-wright/email"
)

// Mailer delivers a composed message.
type Mailer interface {
	Send(msg *email.Email) error
}

type SMTPMailer struct {
	addr string
	auth smtp.Auth
}

func NewSMTPMailer(cfg internal.NotificationConfig) *SMTPMailer {
	var auth smtp.Auth
	if cfg.SMTPUsername != "" {
		auth = smtp.PlainAuth("", cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPHost)
	}
	return &SMTPMailer{
		addr: cfg.SMTPHost + ":" + strconv.Itoa(cfg.SMTPPort),
		auth: auth,
	}
}

func (m *SMTPMailer) Send(msg *email.Email) error {
	return msg.Send(m.addr, m.auth)
}

type MemberDirectory interface {
	GetMember(ctx context.Context, id int64) (*memberDatamodel.Member, error)
}

// EventHandler emails members when their payments settle. Delivery problems
// are logged and never reach the settlement path.
type EventHandler struct {
	mailer  Mailer
	members MemberDirectory
	from    string
	enabled bool
	logger  *slog.Logger
}

func NewEventHandler(cfg internal.NotificationConfig, mailer Mailer, members MemberDirectory, logger *slog.Logger) *EventHandler {
	return &EventHandler{
		mailer:  mailer,
		members: members,
		from:    cfg.From,
		enabled: cfg.Enabled,
		logger:  logger,
	}
}

func (h *EventHandler) HandlePaymentConfirmed(ctx context.Context, event events.Event) error {
	confirmed, ok := event.(*events.PaymentConfirmedEvent)
	if !ok {
		h.logger.Error("invalid event type for payment confirmed handler", "event_type", event.EventType())
		return fmt.Errorf("expected PaymentConfirmedEvent, got %T", event)
	}
	if !h.enabled {
		return nil
	}

	m, err := h.members.GetMember(ctx, confirmed.MemberID)
	if err != nil {
		h.logger.Error("payment notification skipped: member lookup failed",
			"member_id", confirmed.MemberID,
			"correlation_id", confirmed.CorrelationID,
			"error", err)
		return nil
	}
	if m.Email == "" {
		h.logger.Debug("payment notification skipped: no email on record", "member_id", m.ID)
		return nil
	}

	msg := ConfirmationMessage(h.from, m, confirmed)
	if err := h.mailer.Send(msg); err != nil {
		h.logger.Error("failed to send payment notification",
			"member_id", m.ID,
			"correlation_id", confirmed.CorrelationID,
			"error", err)
		return nil
	}

	h.logger.Info("payment notification sent", "member_id", m.ID, "correlation_id", confirmed.CorrelationID)
	return nil
}

func (h *EventHandler) RegisterEventHandlers(eventBus *events.EventBus) {
	eventBus.Subscribe(events.EventTypePaymentConfirmed, h.HandlePaymentConfirmed)

	h.logger.Info("notification event handlers registered",
		"handlers", []string{events.EventTypePaymentConfirmed},
		"enabled", h.enabled)
}

func ConfirmationMessage(from string, m *memberDatamodel.Member, e *events.PaymentConfirmedEvent) *email.Email {
	msg := email.NewEmail()
	msg.From = from
	msg.To = []string{m.Email}
	msg.Subject = "Payment Received " + e.ReceiptReference

	var b strings.Builder
	fmt.Fprintf(&b, "Dear %s,\n\n", m.Name)
	fmt.Fprintf(&b, "We have received your payment of KES %s (receipt %s).\n", e.Amount.StringFixed(2), e.ReceiptReference)
	if e.LoanShare.IsPositive() {
		fmt.Fprintf(&b, "Loan repayment: KES %s\n", e.LoanShare.StringFixed(2))
	}
	if e.SavingsShare.IsPositive() {
		fmt.Fprintf(&b, "Savings deposit: KES %s\n", e.SavingsShare.StringFixed(2))
	}
	b.WriteString("\nThank you,\nSACCO Back Office")
	msg.Text = []byte(b.String())
	return msg
}
