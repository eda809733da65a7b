package services

import (
	"context"
	"errors"
	"strings"

	"sheet-mailer/database"
	"sheet-mailer/utils"

	"go.uber.org/zap"
)

// ErrUnsupportedRowWidth marks a row whose column count has no mapping.
var ErrUnsupportedRowWidth = errors.New("unsupported row width")

// Unlimited disables the per-batch send quota.
const Unlimited = -1

// RowStatus is the outcome of one spreadsheet row.
type RowStatus string

const (
	RowSent    RowStatus = "sent"
	RowFailed  RowStatus = "failed"
	RowSkipped RowStatus = "skipped"
)

// RowResult describes what happened to one row. Row is 1-based and counts
// the header row when present.
type RowResult struct {
	Row    int       `json:"row"`
	Email  string    `json:"email,omitempty"`
	Status RowStatus `json:"status"`
	Reason string    `json:"reason,omitempty"`
}

// BulkReport aggregates the row results of one import.
type BulkReport struct {
	Total   int         `json:"total"`
	Sent    int         `json:"sent"`
	Failed  int         `json:"failed"`
	Skipped int         `json:"skipped"`
	Results []RowResult `json:"-"`
}

func (r *BulkReport) add(res RowResult) {
	r.Results = append(r.Results, res)
	r.Total++
	switch res.Status {
	case RowSent:
		r.Sent++
	case RowFailed:
		r.Failed++
	case RowSkipped:
		r.Skipped++
	}
	bulkRowsProcessed.WithLabelValues(string(res.Status)).Inc()
}

// BulkRequest holds the values shared by every row of an import.
type BulkRequest struct {
	Filename string // original name of the uploaded sheet, stored on every record
	Subject  string
	Message  string
	Quota    int // maximum messages handed to the transport, or Unlimited
}

// Recipient is the send target derived from one row.
type Recipient struct {
	Name    *string
	Email   string
	Subject string
	Message string
}

// IsHeaderRow reports whether row looks like a column header: its first cell
// mentions "email", in any case.
func IsHeaderRow(row []string) bool {
	return len(row) > 0 && strings.Contains(strings.ToLower(row[0]), "email")
}

// MapRow derives a recipient from a row by its width:
//
//	1   email
//	2   name, email
//	4+  name, email, subject, message (blank subject/message fall back to the common values)
//
// Width 3 yields ErrUnsupportedRowWidth. A row without an address yields ErrNoRecipient.
func MapRow(row []string, subject, message string) (Recipient, error) {
	rcpt := Recipient{Subject: subject, Message: message}

	switch w := len(row); {
	case w == 0:
		return rcpt, ErrNoRecipient
	case w == 1:
		rcpt.Email = row[0]
	case w == 2:
		rcpt.Name = optional(row[0])
		rcpt.Email = row[1]
	case w >= 4:
		rcpt.Name = optional(row[0])
		rcpt.Email = row[1]
		if strings.TrimSpace(row[2]) != "" {
			rcpt.Subject = row[2]
		}
		if strings.TrimSpace(row[3]) != "" {
			rcpt.Message = row[3]
		}
	default:
		return rcpt, ErrUnsupportedRowWidth
	}

	rcpt.Email = strings.TrimSpace(rcpt.Email)
	if rcpt.Email == "" {
		return rcpt, ErrNoRecipient
	}
	return rcpt, nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// SendBulk processes rows strictly in order: one send and one insert finish
// before the next row starts. A failing row is logged and reported but never
// stops the batch.
func (s *MailService) SendBulk(ctx context.Context, rows [][]string, req BulkRequest) BulkReport {
	var report BulkReport
	filename := req.Filename
	delivered := 0 // accepted by the transport, recorded or not

	start := 0
	if len(rows) > 0 && IsHeaderRow(rows[0]) {
		start = 1
	}

	for i := start; i < len(rows); i++ {
		rowNum := i + 1

		rcpt, err := MapRow(rows[i], req.Subject, req.Message)
		if err != nil {
			if errors.Is(err, ErrUnsupportedRowWidth) {
				s.logger.Warn("skipping row with unsupported width", zap.Int("row", rowNum), zap.Int("width", len(rows[i])))
			}
			report.add(RowResult{Row: rowNum, Status: RowSkipped, Reason: err.Error()})
			continue
		}

		if req.Quota != Unlimited && delivered >= req.Quota {
			report.add(RowResult{Row: rowNum, Email: rcpt.Email, Status: RowSkipped, Reason: utils.ErrDailyLimitExceeded.Error()})
			continue
		}

		_, sent, err := s.deliver(ctx,
			Message{From: s.from, To: rcpt.Email, Subject: rcpt.Subject, Text: rcpt.Message},
			database.NewSentEmail{
				Name:     rcpt.Name,
				Email:    rcpt.Email,
				Subject:  rcpt.Subject,
				Message:  rcpt.Message,
				Filename: &filename,
			},
		)
		if sent {
			delivered++
		}
		if err != nil {
			s.logger.Error("failed to send bulk email",
				zap.Int("row", rowNum),
				zap.String("email", rcpt.Email),
				zap.String("message", rcpt.Message),
				zap.Error(err),
			)
			report.add(RowResult{Row: rowNum, Email: rcpt.Email, Status: RowFailed, Reason: err.Error()})
			continue
		}
		report.add(RowResult{Row: rowNum, Email: rcpt.Email, Status: RowSent})
	}

	s.logger.Info("bulk import finished",
		zap.String("file", req.Filename),
		zap.Int("total", report.Total),
		zap.Int("sent", report.Sent),
		zap.Int("failed", report.Failed),
		zap.Int("skipped", report.Skipped),
	)
	return report
}
