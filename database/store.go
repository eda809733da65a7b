package database

import (
	"context"
	"database/sql"
	"fmt"
)

// Store is the persistence client for the sent_emails log.
type Store struct {
	db *sql.DB
}

// NewStore wraps an open database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// InsertSentEmail records one successfully sent message and returns it with
// the id and timestamp assigned by the database.
func (s *Store) InsertSentEmail(ctx context.Context, rec NewSentEmail) (*SentEmail, error) {
	out := &SentEmail{
		Name:     rec.Name,
		Email:    rec.Email,
		Subject:  rec.Subject,
		Message:  rec.Message,
		Filename: rec.Filename,
	}
	err := s.db.QueryRowContext(ctx,
		"INSERT INTO sent_emails (name, email, subject, message, filename) VALUES ($1, $2, $3, $4, $5) RETURNING id, sent_at",
		nullString(rec.Name), rec.Email, rec.Subject, rec.Message, nullString(rec.Filename),
	).Scan(&out.ID, &out.SentAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert sent email: %w", err)
	}
	return out, nil
}

// ListSentEmails returns every record, newest first. Records sharing a
// timestamp are ordered by id so bulk inserts list in reverse insertion order.
func (s *Store) ListSentEmails(ctx context.Context) ([]SentEmail, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, email, subject, message, filename, sent_at FROM sent_emails ORDER BY sent_at DESC, id DESC",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query sent emails: %w", err)
	}
	defer rows.Close()

	emails := []SentEmail{}
	for rows.Next() {
		var e SentEmail
		var email, subject, message sql.NullString
		if err := rows.Scan(&e.ID, &e.Name, &email, &subject, &message, &e.Filename, &e.SentAt); err != nil {
			return nil, fmt.Errorf("failed to scan sent email row: %w", err)
		}
		e.Email, e.Subject, e.Message = email.String, subject.String, message.String
		emails = append(emails, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over sent email rows: %w", err)
	}
	return emails, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
