package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"

	"kgstyle/shop-service/pkg/contracts"

	"gopkg.in/gomail.v2"
)

type EmailConfig struct {
	Host     string
	Port     int
	From     string
	Username string
	Password string
}

// EmailChannel delivers the settlement outcome to the customer's mailbox
// over SMTP, with an HTML body and a plain-text alternative.
type EmailChannel struct {
	cfg EmailConfig
}

func NewEmailChannel(cfg EmailConfig) *EmailChannel {
	return &EmailChannel{cfg: cfg}
}

func (e *EmailChannel) Name() string { return "email" }

func (e *EmailChannel) Send(ctx context.Context, msg Message) error {
	if msg.Order.Email == "" {
		return fmt.Errorf("order #%d has no customer email", msg.Order.ID)
	}

	subject, text := emailContent(msg)
	htmlBody, err := renderEmailHTML(msg)
	if err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", m.FormatAddress(e.cfg.From, "KG Style"))
	m.SetHeader("To", msg.Order.Email)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", text)
	m.AddAlternative("text/html", htmlBody)

	// gomail has no context support, so the send runs in its own goroutine
	// and the context deadline wins the race against a hung SMTP server. An
	// abandoned goroutine dies with its TCP connection.
	d := gomail.NewDialer(e.cfg.Host, e.cfg.Port, e.cfg.Username, e.cfg.Password)
	sendErr := make(chan error, 1)
	go func() {
		sendErr <- d.DialAndSend(m)
	}()

	select {
	case err := <-sendErr:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func emailContent(msg Message) (subject, text string) {
	o := msg.Order
	name := o.CustomerName()
	if name == "" {
		name = "customer"
	}

	if msg.Outcome == contracts.SettlementConfirmed {
		subject = fmt.Sprintf("Your order #%d is paid", o.ID)
		text = fmt.Sprintf(
			"Dear %s,\n\nPayment for order #%d (%s) has been confirmed.\nYour order is being prepared for shipment.\n\nThank you for your purchase!\nKG Style",
			name, o.ID, o.ReferenceCode)
		return subject, text
	}

	subject = fmt.Sprintf("Order #%d cancelled", o.ID)
	text = fmt.Sprintf(
		"Dear %s,\n\nWe could not verify the payment for order #%d (%s), so the order was cancelled.\nIf you believe this is a mistake, please contact us.\n\nKG Style",
		name, o.ID, o.ReferenceCode)
	return subject, text
}

var emailTpl = template.Must(template.New("settlement-email").Parse(`<!doctype html>
<html>
  <body style="font-family:Arial,sans-serif;color:#222;">
    <h2>{{ .Title }}</h2>
    <p>Dear {{ .Name }},</p>
    <p>{{ .Body }}</p>
    <table style="border-collapse:collapse;">
      <tr><td style="padding:4px 12px 4px 0;color:#666;">Order</td><td>#{{ .OrderID }}</td></tr>
      <tr><td style="padding:4px 12px 4px 0;color:#666;">Reference</td><td>{{ .Reference }}</td></tr>
      <tr><td style="padding:4px 12px 4px 0;color:#666;">Amount</td><td>{{ .Amount }}</td></tr>
    </table>
    <p style="color:#888;font-size:12px;">This message was sent automatically by KG Style.</p>
  </body>
</html>`))

func renderEmailHTML(msg Message) (string, error) {
	o := msg.Order
	name := o.CustomerName()
	if name == "" {
		name = "customer"
	}

	data := struct {
		Title, Name, Body, Reference, Amount string
		OrderID                              int64
	}{
		Name:      name,
		OrderID:   o.ID,
		Reference: o.ReferenceCode,
		Amount:    fmt.Sprintf("%d.%02d", o.Amount/100, o.Amount%100),
	}
	if msg.Outcome == contracts.SettlementConfirmed {
		data.Title = "Payment confirmed"
		data.Body = "Payment for your order has been confirmed and it is being prepared for shipment."
	} else {
		data.Title = "Order cancelled"
		data.Body = "We could not verify the payment for your order, so it was cancelled."
	}

	var buf bytes.Buffer
	if err := emailTpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}
