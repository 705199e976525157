// internal/delivery/transport.go
package delivery

import (
	"context"
	"fmt"
	"math/rand"
	"net/smtp"
	"strings"
)

// Transport is the outbound mail hop. Errors returned here are treated
// as transient and retried; permanent failures are decided before the
// transport is ever called.
type Transport interface {
	Send(ctx context.Context, to, subject, html string) error
}

// SMTPTransport sends through a plain SMTP relay.
type SMTPTransport struct {
	Addr string // host:port
	From string
	Auth smtp.Auth
}

func (t *SMTPTransport) Send(ctx context.Context, to, subject, html string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", t.From)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(html)
	return smtp.SendMail(t.Addr, t.Auth, t.From, []string{to}, []byte(b.String()))
}

// MockTransport simulates sending with a configurable failure rate.
// FailRate 0 always succeeds; 1 always fails.
type MockTransport struct {
	FailRate float64
}

func (t *MockTransport) Send(ctx context.Context, to, subject, html string) error {
	if rand.Float64() < t.FailRate {
		return fmt.Errorf("mock sending failed")
	}
	return nil
}

var (
	_ Transport = (*SMTPTransport)(nil)
	_ Transport = (*MockTransport)(nil)
)
