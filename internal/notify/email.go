package notify

import (
	"context"
	"fmt"
	"lotwatch/internal/monitor"
	"net/smtp"
	"strings"

	"github.com/jordan-wright/email"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("internal/notify")

type SmtpConfig struct {
	Server       string   `json:"server"`
	Port         int      `json:"port"`
	EmailAddress string   `json:"email_address"`
	Password     string   `json:"password"`
	To           []string `json:"to"`
}

func (c SmtpConfig) Enabled() bool {
	return c.Server != "" && len(c.To) > 0
}

// DefaultEmailKinds are the events worth an email, plain bid changes are
// left to the console.
var DefaultEmailKinds = []monitor.EventKind{
	monitor.EventOutbid,
	monitor.EventOverMax,
	monitor.EventClosing,
	monitor.EventClosed,
}

type sendFunc func(mail *email.Email, addr string, auth smtp.Auth) error

type Email struct {
	config SmtpConfig
	send   sendFunc
}

func NewEmail(config SmtpConfig) Email {
	return Email{config: config, send: (*email.Email).Send}
}

func (e Email) message(event monitor.Event) *email.Email {
	mail := email.NewEmail()
	mail.From = fmt.Sprintf("lotwatch <%s>", e.config.EmailAddress)
	mail.To = e.config.To
	mail.Subject = fmt.Sprintf("[lotwatch] %s", event.Summary())

	var body strings.Builder
	fmt.Fprintln(&body, event.Summary())
	fmt.Fprintln(&body)
	fmt.Fprintf(&body, "Lot: %s\n", event.LotID)
	if event.Location != "" {
		fmt.Fprintf(&body, "Location: %s\n", event.Location)
	}
	fmt.Fprintf(&body, "Current bid: $%s (%d bids)\n", event.CurrentBid.StringFixed(2), event.BidCount)
	if event.MaxBid.IsPositive() {
		fmt.Fprintf(&body, "Your max: $%s\n", event.MaxBid.StringFixed(2))
	}
	if !event.ClosesAt.IsZero() {
		fmt.Fprintf(&body, "Closes: %s\n", event.ClosesAt.Format("Mon Jan 2 3:04 PM MST"))
	}
	fmt.Fprintf(&body, "Link: https://www.mac.bid/lot/%s\n", event.LotID)
	mail.Text = []byte(body.String())
	return mail
}

func (e Email) deliver(mail *email.Email) error {
	addr := fmt.Sprintf("%s:%d", e.config.Server, e.config.Port)
	err := e.send(
		mail,
		addr,
		smtp.PlainAuth("", e.config.EmailAddress, e.config.Password, e.config.Server),
	)
	if err != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		err = e.send(mail, addr, nil)
	}
	return err
}

// Notify sends the event over smtp, servers that do not support AUTH are
// retried without it. It returns as soon as ctx is done, the smtp exchange
// itself cannot be interrupted and finishes in the background.
func (e Email) Notify(ctx context.Context, event monitor.Event) error {
	ctx, span := tracer.Start(ctx, "Email.Notify")
	defer span.End()

	err := ctx.Err()
	if err == nil {
		mail := e.message(event)
		done := make(chan error, 1)
		go func() {
			done <- e.deliver(mail)
		}()
		select {
		case err = <-done:
		case <-ctx.Done():
			err = ctx.Err()
		}
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to send email")
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}
