package email

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"gopkg.in/gomail.v2"

	"github.com/lessslie/Pelu-PetShop/internal/config"
)

type Message struct {
	To      string
	Subject string
	HTML    string
}

type Service interface {
	Send(ctx context.Context, msg *Message) error
}

type smtpService struct {
	dialer *gomail.Dialer
	from   string
}

// NewService returns an SMTP sender, or a logging no-op when mail is disabled.
func NewService(cfg config.MailConfig) Service {
	if !cfg.Enabled {
		return &logOnlyService{}
	}
	return &smtpService{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}
}

func (s *smtpService) Send(ctx context.Context, msg *Message) error {
	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.from, "Pet Shop")
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/html", msg.HTML)

	// gomail has no context support; give up waiting when ctx ends.
	done := make(chan error, 1)
	go func() {
		done <- s.dialer.DialAndSend(m)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to send email to %s: %w", msg.To, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("failed to send email to %s: %w", msg.To, ctx.Err())
	}
}

type logOnlyService struct{}

func (s *logOnlyService) Send(ctx context.Context, msg *Message) error {
	log.Info().Str("to", msg.To).Str("subject", msg.Subject).Msg("Mail disabled, skipping delivery")
	return nil
}
