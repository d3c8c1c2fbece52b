package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/mitchellh/go-wordwrap"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/recurring-billing/internal/config"
	"github.com/akylbek/payment-system/recurring-billing/internal/models"
	"github.com/akylbek/payment-system/recurring-billing/internal/telemetry"
)

// ErrNotification wraps every failed delivery.
var ErrNotification = errors.New("notification error")

const wrapWidth = 70

// Mailer renders billing mail and hands it to a Sender. In test mode every
// message goes to the test address instead of its intended recipient.
type Mailer struct {
	sender   Sender
	cfg      config.MailConfig
	testMode bool
}

func NewMailer(sender Sender, cfg *config.Config) *Mailer {
	return &Mailer{
		sender:   sender,
		cfg:      cfg.Mail,
		testMode: cfg.TestMode,
	}
}

func (m *Mailer) SendInvoice(ctx context.Context, customer models.Customer, product models.Product) error {
	subject := m.subject("Monthly invoice")
	body := fmt.Sprintf("This is an invoice from %s for %s.\n\n"+
		"Please send a cheque to %s for %s with the amount of %s.\n",
		m.cfg.CompanyName, customer.ID,
		m.cfg.CompanyName, product.Name, product.Price.StringFixed(2))
	return m.send(ctx, customer.Email, subject, body)
}

func (m *Mailer) SendCardUpdateRequest(ctx context.Context, customer models.Customer, product models.Product) error {
	subject := m.subject("Credit card info needs updating")
	body := fmt.Sprintf("Please update your credit card information at the following address:\n%s\n\n"+
		"This needs to be done within the next three (3) days.\n\n"+
		"An attempt was made to charge your credit card $%s for %s, but it failed.\n\n"+
		"Thanks,\n%s\n",
		m.cfg.CardUpdateURL, product.Price.StringFixed(2), product.Name, m.cfg.CompanyName)
	return m.send(ctx, customer.Email, subject, body)
}

func (m *Mailer) SendEscalation(ctx context.Context, customer models.Customer, product models.Product, failures int) error {
	subject := m.subject("Multiple attempts failed at billing customer")
	body := fmt.Sprintf("Re: Customer %q:\n\n"+
		"On day %d of the month we attempted to bill the above customer $%s for %s, "+
		"but it didn't work. We've also tried every day since then, and those attempts "+
		"didn't work either. There have been %d consecutive failures.\n",
		customer.ID, product.BillingDay, product.Price.StringFixed(2), product.Name, failures)
	return m.send(ctx, m.cfg.AdminEmail, subject, body)
}

func (m *Mailer) subject(s string) string {
	return "[" + m.cfg.CompanyName + "] " + s
}

func (m *Mailer) send(ctx context.Context, to, subject, body string) error {
	ctx, span := telemetry.Tracer.Start(ctx, "notify.Send")
	defer span.End()

	if m.testMode {
		telemetry.Logger.Debug("Sending mail to the test account",
			zap.String("intended_recipient", to),
			zap.String("subject", subject),
		)
		to = m.cfg.TestEmail
	}

	if err := m.sender.Send(ctx, to, subject, wordwrap.WrapString(body, wrapWidth)); err != nil {
		span.RecordError(err)
		telemetry.Logger.Error("Failed to send mail",
			zap.String("to", to),
			zap.String("subject", subject),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %v", ErrNotification, err)
	}

	telemetry.Logger.Info("Mail sent", zap.String("to", to), zap.String("subject", subject))
	return nil
}
