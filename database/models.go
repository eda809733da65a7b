package database

import "time"

// SentEmail represents a row in the sent_emails table
type SentEmail struct {
	ID       int       `json:"id"`
	Name     *string   `json:"name"`
	Email    string    `json:"email"`
	Subject  string    `json:"subject"`
	Message  string    `json:"message"`
	Filename *string   `json:"filename"` // original name of the attachment or imported sheet
	SentAt   time.Time `json:"sent_at"`
}

// NewSentEmail carries the caller-supplied columns of a record; id and
// sent_at are assigned by the database.
type NewSentEmail struct {
	Name     *string
	Email    string
	Subject  string
	Message  string
	Filename *string
}
