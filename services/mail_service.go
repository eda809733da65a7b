package services

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"

	"sheet-mailer/config"

	"go.uber.org/zap"
	mail "gopkg.in/gomail.v2"
)

// ErrNoRecipient is returned when a message has no destination address.
var ErrNoRecipient = errors.New("recipient address is empty")

// Attachment references a file on disk that should be attached under Filename.
type Attachment struct {
	Filename string
	Path     string
}

// Message is a single plain-text email.
type Message struct {
	From        string
	To          string
	Subject     string
	Text        string
	Attachments []Attachment
}

// Mailer sends one message per call.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPMailer sends through one fixed SMTP account.
type SMTPMailer struct {
	dialer *mail.Dialer
	logger *zap.Logger
}

// NewSMTPMailer builds a mailer from the SMTP settings in cfg.
func NewSMTPMailer(cfg *config.Config, logger *zap.Logger) *SMTPMailer {
	d := mail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass)
	d.TLSConfig = &tls.Config{
		ServerName:         cfg.SMTPHost,
		InsecureSkipVerify: cfg.SkipTLSVerify,
	}
	if cfg.SkipTLSVerify {
		logger.Warn("TLS certificate verification is DISABLED for SMTP")
	}
	logger.Info("mail transport configured",
		zap.String("host", cfg.SMTPHost),
		zap.Int("port", cfg.SMTPPort),
		zap.String("user", cfg.SMTPUser),
	)
	return &SMTPMailer{dialer: d, logger: logger}
}

// Send dials the SMTP server and delivers msg. The context is only consulted
// before dialing; an SMTP session in progress is not interrupted.
func (s *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return ErrNoRecipient
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m := mail.NewMessage()
	m.SetHeader("From", msg.From)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Text)
	for _, a := range msg.Attachments {
		m.Attach(a.Path, mail.Rename(a.Filename))
	}

	if err := s.dialer.DialAndSend(m); err != nil {
		mailSendFailure.WithLabelValues(s.dialer.Host).Inc()
		return fmt.Errorf("could not send email: %w", err)
	}

	mailSendSuccess.WithLabelValues(s.dialer.Host).Inc()
	s.logger.Debug("email delivered", zap.String("to", msg.To), zap.Int("attachments", len(msg.Attachments)))
	return nil
}
