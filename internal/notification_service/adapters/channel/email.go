package channel

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/notifly/gateway/internal/notification_service/domain"
)

// EmailConfig holds SMTP settings for the email channel.
type EmailConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

// EmailSender delivers messages over SMTP. Title becomes the subject, body
// the plain-text content.
type EmailSender struct {
	config EmailConfig
	send   smtpSendFunc
}

// smtpSendFunc abstracts smtp.SendMail so tests can capture outgoing mail.
type smtpSendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// NewEmailSender creates the email adapter. Missing host or from-address is
// not a constructor error: it surfaces as a "not configured" failed outcome
// at send time so the dispatcher can fall back to the next channel.
func NewEmailSender(config EmailConfig) *EmailSender {
	return &EmailSender{config: config, send: smtp.SendMail}
}

func (s *EmailSender) Kind() domain.ChannelKind { return domain.ChannelEmail }

func (s *EmailSender) Send(ctx context.Context, address, title, body string) domain.DeliveryOutcome {
	if address == "" {
		return permanentFailure("empty destination")
	}
	if s.config.Host == "" || s.config.From == "" {
		return permanentFailure("email service not configured")
	}

	msg := "From: " + s.config.From + "\r\n" +
		"To: " + headerValue(address) + "\r\n" +
		"Subject: " + headerValue(title) + "\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: text/plain; charset=\"UTF-8\"\r\n" +
		"\r\n" + body

	var auth smtp.Auth
	if s.config.Username != "" {
		auth = smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)
	}

	// smtp.SendMail carries no deadline of its own, so the call runs in a
	// goroutine and races the caller's context. On timeout the goroutine is
	// left to finish against a dead connection.
	addr := s.config.Host + ":" + s.config.Port
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.send(addr, auth, s.config.From, []string{address}, []byte(msg))
	}()

	select {
	case <-ctx.Done():
		return failure(fmt.Sprintf("smtp send aborted: %v", ctx.Err()))
	case err := <-errCh:
		if err != nil {
			return failure(fmt.Sprintf("smtp send failed: %v", err))
		}
		return success()
	}
}

// headerValue strips CR and LF so caller-supplied text cannot smuggle extra
// headers into the message.
func headerValue(v string) string {
	return strings.NewReplacer("\r", "", "\n", "").Replace(v)
}
