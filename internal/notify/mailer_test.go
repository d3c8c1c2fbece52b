package notify

import (
	"context"
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"

	"github.com/akylbek/payment-system/recurring-billing/internal/config"
	"github.com/akylbek/payment-system/recurring-billing/internal/models"
)

type sentMail struct {
	to, subject, body string
}

type fakeSender struct {
	sent []sentMail
	err  error
}

func (f *fakeSender) Send(_ context.Context, to, subject, body string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMail{to: to, subject: subject, body: body})
	return nil
}

func testConfig(testMode bool) *config.Config {
	return &config.Config{
		TestMode: testMode,
		Mail: config.MailConfig{
			From:          "billing@example.com",
			AdminEmail:    "admin@example.com",
			TestEmail:     "qa@example.com",
			CardUpdateURL: "https://example.com/card",
			CompanyName:   "Wireless Nomad",
		},
	}
}

var (
	customer = models.Customer{ID: "C002", Email: "c002@example.com", PaymentMethod: models.PaymentMethodCreditCard}
	product  = models.Product{ID: "P1", Name: "WiFi Plan", Price: decimal.RequireFromString("29.99"), BillingDay: 15}
)

func TestSendInvoice(t *testing.T) {
	sender := &fakeSender{}
	m := NewMailer(sender, testConfig(false))

	require.NoError(t, m.SendInvoice(context.Background(), customer, product))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "c002@example.com", sender.sent[0].to)
	assert.Equal(t, "[Wireless Nomad] Monthly invoice", sender.sent[0].subject)
	assert.Contains(t, sender.sent[0].body, "WiFi Plan")
	assert.Contains(t, sender.sent[0].body, "29.99")
}

func TestSendCardUpdateRequest(t *testing.T) {
	sender := &fakeSender{}
	m := NewMailer(sender, testConfig(false))

	require.NoError(t, m.SendCardUpdateRequest(context.Background(), customer, product))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "c002@example.com", sender.sent[0].to)
	assert.Equal(t, "[Wireless Nomad] Credit card info needs updating", sender.sent[0].subject)
	assert.Contains(t, sender.sent[0].body, "https://example.com/card")
	assert.Contains(t, sender.sent[0].body, "$29.99")
}

func TestSendEscalation_GoesToAdmin(t *testing.T) {
	sender := &fakeSender{}
	m := NewMailer(sender, testConfig(false))

	require.NoError(t, m.SendEscalation(context.Background(), customer, product, 4))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "admin@example.com", sender.sent[0].to)
	assert.Equal(t, "[Wireless Nomad] Multiple attempts failed at billing customer", sender.sent[0].subject)
	assert.Contains(t, sender.sent[0].body, `"C002"`)
	assert.Contains(t, sender.sent[0].body, "4 consecutive")
}

func TestTestModeRedirectsEveryMessage(t *testing.T) {
	sender := &fakeSender{}
	m := NewMailer(sender, testConfig(true))
	ctx := context.Background()

	require.NoError(t, m.SendInvoice(ctx, customer, product))
	require.NoError(t, m.SendCardUpdateRequest(ctx, customer, product))
	require.NoError(t, m.SendEscalation(ctx, customer, product, 5))

	require.Len(t, sender.sent, 3)
	for _, mail := range sender.sent {
		assert.Equal(t, "qa@example.com", mail.to)
	}
}

func TestSendFailureIsNotificationError(t *testing.T) {
	sender := &fakeSender{err: errors.New("relay refused")}
	m := NewMailer(sender, testConfig(false))

	err := m.SendInvoice(context.Background(), customer, product)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotification))
}

func TestBodiesAreWrapped(t *testing.T) {
	sender := &fakeSender{}
	m := NewMailer(sender, testConfig(false))

	require.NoError(t, m.SendEscalation(context.Background(), customer, product, 7))
	for _, line := range strings.Split(sender.sent[0].body, "\n") {
		assert.LessOrEqual(t, len(line), wrapWidth, line)
	}
}

func TestLongWordsAreNotSplit(t *testing.T) {
	sender := &fakeSender{}
	cfg := testConfig(false)
	cfg.Mail.CardUpdateURL = "https://billing.example.com/customers/C002/payment-methods/credit-card/update?token=abcdef0123456789"
	m := NewMailer(sender, cfg)

	require.NoError(t, m.SendCardUpdateRequest(context.Background(), customer, product))
	assert.Contains(t, strings.Split(sender.sent[0].body, "\n"), cfg.Mail.CardUpdateURL)
}

// render serialises msg the way it would go over the wire.
func render(t *testing.T, msg *mail.Msg) string {
	t.Helper()
	var buf bytes.Buffer
	_, err := msg.WriteTo(&buf)
	require.NoError(t, err)
	return buf.String()
}

func TestSMTPSender_Send(t *testing.T) {
	s, err := NewSMTPSender("mail.example.com:587", "user", "pass", "billing@example.com")
	require.NoError(t, err)

	var delivered []*mail.Msg
	s.deliver = func(_ context.Context, msgs ...*mail.Msg) error {
		delivered = append(delivered, msgs...)
		return nil
	}

	require.NoError(t, s.Send(context.Background(), "c@example.com", "[Wireless Nomad] Monthly invoice", "line one\nline two"))
	require.Len(t, delivered, 1)

	raw := render(t, delivered[0])
	assert.Contains(t, raw, "Subject: [Wireless Nomad] Monthly invoice\r\n")
	assert.Contains(t, raw, "To: <c@example.com>\r\n")
	assert.Contains(t, raw, "From: <billing@example.com>\r\n")
	assert.Contains(t, raw, "Message-ID: <")
	assert.Contains(t, raw, "Date: ")
	assert.Contains(t, raw, "line one")
}

func TestSMTPSender_DeliveryErrorNamesRelay(t *testing.T) {
	s, err := NewSMTPSender("localhost:25", "", "", "billing@localhost")
	require.NoError(t, err)

	s.deliver = func(context.Context, ...*mail.Msg) error {
		return errors.New("connection refused")
	}
	err = s.Send(context.Background(), "c@example.com", "s", "b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "localhost:25")
}

func TestNewSMTPSender_InvalidAddress(t *testing.T) {
	for _, addr := range []string{"mail.example.com", "mail.example.com:smtp", ""} {
		_, err := NewSMTPSender(addr, "", "", "billing@example.com")
		assert.Error(t, err, addr)
	}
}

func TestBuildMessage_EncodesNonASCIISubject(t *testing.T) {
	msg, err := buildMessage("billing@example.com", "c@example.com", "[Café Réseau] Facture mensuelle", "bonjour")
	require.NoError(t, err)

	raw := render(t, msg)
	headers := raw[:strings.Index(raw, "\r\n\r\n")]
	assert.Contains(t, headers, "=?UTF-8?q?")
	assert.NotContains(t, headers, "Café")
}

func TestBuildMessage_RejectsHeaderInjection(t *testing.T) {
	_, err := buildMessage("billing@example.com", "c@example.com\r\nBcc: everyone@example.com", "s", "b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid recipient")

	_, err = buildMessage("billing@example.com", "not an address", "s", "b")
	assert.Error(t, err)
}
