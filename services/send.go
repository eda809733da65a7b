package services

import (
	"context"
	"fmt"
	"strings"

	"sheet-mailer/database"

	"go.uber.org/zap"
)

// Recorder persists successfully sent emails.
type Recorder interface {
	InsertSentEmail(ctx context.Context, rec database.NewSentEmail) (*database.SentEmail, error)
}

// MailService sends messages from one configured address and records every
// successful send.
type MailService struct {
	mailer   Mailer
	recorder Recorder
	from     string
	logger   *zap.Logger
}

// NewMailService creates a new MailService instance
func NewMailService(mailer Mailer, recorder Recorder, from string, logger *zap.Logger) *MailService {
	return &MailService{
		mailer:   mailer,
		recorder: recorder,
		from:     from,
		logger:   logger,
	}
}

// SendRequest is a single email as submitted by a client.
type SendRequest struct {
	Name       *string
	Email      string
	Subject    string
	Message    string
	Attachment *Attachment
}

// SendAndRecord sends req and, only if the transport accepted it, inserts a
// record. The record's filename is the attachment's original name, if any.
// A blank address fails with ErrNoRecipient before the transport is used.
func (s *MailService) SendAndRecord(ctx context.Context, req SendRequest) (*database.SentEmail, error) {
	if strings.TrimSpace(req.Email) == "" {
		return nil, ErrNoRecipient
	}

	msg := Message{
		From:    s.from,
		To:      req.Email,
		Subject: req.Subject,
		Text:    req.Message,
	}
	var filename *string
	if req.Attachment != nil {
		msg.Attachments = []Attachment{*req.Attachment}
		name := req.Attachment.Filename
		filename = &name
	}

	out, _, err := s.deliver(ctx, msg, database.NewSentEmail{
		Name:     req.Name,
		Email:    req.Email,
		Subject:  req.Subject,
		Message:  req.Message,
		Filename: filename,
	})
	return out, err
}

// deliver sends msg and records rec. sent reports whether the transport
// accepted the message, even when recording it failed afterwards.
func (s *MailService) deliver(ctx context.Context, msg Message, rec database.NewSentEmail) (out *database.SentEmail, sent bool, err error) {
	if err := s.mailer.Send(ctx, msg); err != nil {
		return nil, false, err
	}

	out, err = s.recorder.InsertSentEmail(ctx, rec)
	if err != nil {
		return nil, true, fmt.Errorf("email sent to %s but not recorded: %w", rec.Email, err)
	}
	return out, true, nil
}
