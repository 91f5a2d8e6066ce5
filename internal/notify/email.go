package notify

import (
	"bytes"
	"context"
	"fmt"

	"github.com/wneessen/go-mail"
)

// EmailConfig holds SMTP settings
type EmailConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	To       string
}

// EmailSender delivers alerts over SMTP with STARTTLS
type EmailSender struct {
	cfg  EmailConfig
	send func(ctx context.Context, msg *mail.Msg) error
}

func NewEmailSender(cfg EmailConfig) *EmailSender {
	s := &EmailSender{cfg: cfg}
	s.send = s.dialAndSend
	return s
}

func (s *EmailSender) Name() string {
	return "email"
}

func (s *EmailSender) Enabled() bool {
	return s.cfg.User != "" && s.cfg.Password != "" && s.cfg.To != ""
}

func (s *EmailSender) Send(ctx context.Context, n Notification) error {
	if !s.Enabled() {
		return ErrNotConfigured
	}

	msg, err := s.buildMessage(n)
	if err != nil {
		return err
	}
	if err := s.send(ctx, msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

func (s *EmailSender) buildMessage(n Notification) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(s.cfg.User); err != nil {
		return nil, fmt.Errorf("invalid sender address: %w", err)
	}
	if err := msg.To(s.cfg.To); err != nil {
		return nil, fmt.Errorf("invalid recipient address: %w", err)
	}
	msg.Subject(n.Subject)
	msg.SetBodyString(mail.TypeTextPlain, n.Body)

	if len(n.Image) > 0 {
		name := n.ImageName
		if name == "" {
			name = "snapshot.jpg"
		}
		if err := msg.AttachReader(name, bytes.NewReader(n.Image)); err != nil {
			return nil, fmt.Errorf("failed to attach snapshot: %w", err)
		}
	}
	return msg, nil
}

func (s *EmailSender) dialAndSend(ctx context.Context, msg *mail.Msg) error {
	client, err := mail.NewClient(s.cfg.Host,
		mail.WithPort(s.cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(s.cfg.User),
		mail.WithPassword(s.cfg.Password),
		mail.WithTLSPolicy(mail.TLSMandatory),
	)
	if err != nil {
		return fmt.Errorf("failed to create smtp client: %w", err)
	}
	return client.DialAndSendWithContext(ctx, msg)
}
