package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"sheet-mailer/database"
	"sheet-mailer/services"
	"sheet-mailer/utils"

	"go.uber.org/zap"
)

const (
	msgSendOK        = "Email sent successfully!"
	msgSendFailed    = "Failed to send email"
	msgFetchFailed   = "Failed to fetch emails"
	msgBulkOK        = "Bulk emails sent successfully!"
	msgBulkFailed    = "Failed to send bulk emails"
	msgNoFile        = "No file uploaded"
	msgBulkFields    = "Subject and message are required"
	msgLimitExceeded = "Daily mail limit exceeded."
	msgTooLarge      = "Upload too large"
	msgBadForm       = "Invalid form data"

	multipartMemory = 8 << 20
	defaultStatDays = 7
	maxStatDays     = 366
)

// EmailStore is the read side of the sent_emails log used by the handlers.
type EmailStore interface {
	ListSentEmails(ctx context.Context) ([]database.SentEmail, error)
	DailySends(ctx context.Context, days int) (map[string]int, error)
	Ping(ctx context.Context) error
}

// Deps holds everything the HTTP handlers need. All clients are injected so
// tests can substitute fakes.
type Deps struct {
	Mail           *services.MailService
	Store          EmailStore
	Limiter        *utils.DailyLimiter
	UploadDir      string
	MaxUploadBytes int64
	Logger         *zap.Logger
}

// SendEmailHandler sends one email with an optional "attachment" file and
// records it.
func SendEmailHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := requestLogger(r, d.Logger)

		cleanup, ok := parseForm(w, r, d.MaxUploadBytes, log)
		if !ok {
			return
		}
		defer cleanup()

		email := strings.TrimSpace(r.FormValue("email"))

		if _, _, err := d.Limiter.Remaining(r.Context()); err != nil {
			limitError(w, err, msgSendFailed, log)
			return
		}

		req := services.SendRequest{
			Name:    optionalField(r.FormValue("name")),
			Email:   email,
			Subject: r.FormValue("subject"),
			Message: r.FormValue("message"),
		}

		upload, err := saveFormFile(r, "attachment", d.UploadDir)
		if err != nil && !errors.Is(err, http.ErrMissingFile) {
			log.Error("failed to store attachment", zap.Error(err))
			writeMessage(w, log, http.StatusInternalServerError, msgSendFailed)
			return
		}
		defer closeUpload(upload, log)
		if upload != nil {
			req.Attachment = &services.Attachment{Filename: upload.OriginalName, Path: upload.Path}
		}

		// A send that has started runs to completion even if the client goes away.
		if _, err := d.Mail.SendAndRecord(context.WithoutCancel(r.Context()), req); err != nil {
			log.Error("error sending email", zap.String("email", email), zap.Error(err))
			writeMessage(w, log, http.StatusInternalServerError, msgSendFailed)
			return
		}

		log.Info("email sent", zap.String("email", email), zap.Bool("attachment", upload != nil))
		writeMessage(w, log, http.StatusOK, msgSendOK)
	}
}

// ListSentEmailsHandler returns every sent email, newest first, as a bare
// JSON array.
func ListSentEmailsHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := requestLogger(r, d.Logger)
		emails, err := d.Store.ListSentEmails(r.Context())
		if err != nil {
			log.Error("error fetching emails", zap.Error(err))
			writeMessage(w, log, http.StatusInternalServerError, msgFetchFailed)
			return
		}
		writeJSON(w, log, http.StatusOK, emails)
	}
}

// ImportEmailsHandler sends one email per row of the uploaded "file"
// spreadsheet using the common subject and message as fallbacks.
func ImportEmailsHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := requestLogger(r, d.Logger)

		cleanup, ok := parseForm(w, r, d.MaxUploadBytes, log)
		if !ok {
			return
		}
		defer cleanup()

		if !hasFormFile(r, "file") {
			writeMessage(w, log, http.StatusBadRequest, msgNoFile)
			return
		}
		subject, message := r.FormValue("subject"), r.FormValue("message")
		if strings.TrimSpace(subject) == "" || strings.TrimSpace(message) == "" {
			writeMessage(w, log, http.StatusBadRequest, msgBulkFields)
			return
		}

		quota := services.Unlimited
		remaining, limited, err := d.Limiter.Remaining(r.Context())
		if err != nil {
			limitError(w, err, msgBulkFailed, log)
			return
		}
		if limited {
			quota = remaining
		}

		upload, err := saveFormFile(r, "file", d.UploadDir)
		if err != nil {
			log.Error("failed to store spreadsheet", zap.Error(err))
			writeMessage(w, log, http.StatusInternalServerError, msgBulkFailed)
			return
		}
		defer closeUpload(upload, log)

		rows, err := services.ParseSpreadsheet(upload.Path, upload.OriginalName)
		if err != nil {
			log.Error("failed to parse spreadsheet", zap.String("file", upload.OriginalName), zap.Error(err))
			writeMessage(w, log, http.StatusInternalServerError, msgBulkFailed)
			return
		}

		report := d.Mail.SendBulk(context.WithoutCancel(r.Context()), rows, services.BulkRequest{
			Filename: upload.OriginalName,
			Subject:  subject,
			Message:  message,
			Quota:    quota,
		})
		writeData(w, log, msgBulkOK, report)
	}
}

// DailyLimitHandler reports usage of the daily send quota.
func DailyLimitHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := requestLogger(r, d.Logger)
		status, err := d.Limiter.Status(r.Context())
		if err != nil {
			log.Error("error getting daily limit", zap.Error(err))
			writeMessage(w, log, http.StatusInternalServerError, "Internal server error getting daily limit")
			return
		}
		writeData(w, log, "Daily mail limit status retrieved", status)
	}
}

// DailySendsHandler returns per-day send counts for the last ?days= days.
func DailySendsHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := requestLogger(r, d.Logger)
		days := defaultStatDays
		if parsed, err := strconv.Atoi(r.URL.Query().Get("days")); err == nil && parsed > 0 {
			days = min(parsed, maxStatDays)
		}

		sends, err := d.Store.DailySends(r.Context(), days)
		if err != nil {
			log.Error("error fetching daily sends", zap.Error(err))
			writeMessage(w, log, http.StatusInternalServerError, "Internal server error fetching daily sends")
			return
		}
		writeData(w, log, "Daily sends over period retrieved", sends)
	}
}

// HealthHandler reports whether the database is reachable.
func HealthHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := requestLogger(r, d.Logger)
		if err := d.Store.Ping(r.Context()); err != nil {
			log.Warn("health check failed", zap.Error(err))
			writeMessage(w, log, http.StatusServiceUnavailable, "database unavailable")
			return
		}
		writeMessage(w, log, http.StatusOK, "ok")
	}
}

// parseForm caps the body size and parses multipart or urlencoded forms. The
// returned cleanup removes any temp files the multipart parser created.
func parseForm(w http.ResponseWriter, r *http.Request, maxBytes int64, log *zap.Logger) (func(), bool) {
	if r.ContentLength > maxBytes {
		writeMessage(w, log, http.StatusRequestEntityTooLarge, msgTooLarge)
		return nil, false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	err := r.ParseMultipartForm(multipartMemory)
	if err != nil && !errors.Is(err, http.ErrNotMultipart) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeMessage(w, log, http.StatusRequestEntityTooLarge, msgTooLarge)
			return nil, false
		}
		log.Warn("invalid form data", zap.Error(err))
		writeMessage(w, log, http.StatusBadRequest, msgBadForm)
		return nil, false
	}

	return func() {
		if r.MultipartForm != nil {
			r.MultipartForm.RemoveAll()
		}
	}, true
}

func hasFormFile(r *http.Request, field string) bool {
	return r.MultipartForm != nil && len(r.MultipartForm.File[field]) > 0
}

// saveFormFile copies the named file part into a scoped upload. It returns
// http.ErrMissingFile when the request carries no such part.
func saveFormFile(r *http.Request, field, dir string) (*utils.Upload, error) {
	if !hasFormFile(r, field) {
		return nil, http.ErrMissingFile
	}
	header := r.MultipartForm.File[field][0]
	src, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()
	return utils.SaveUpload(dir, src, header)
}

func closeUpload(up *utils.Upload, log *zap.Logger) {
	if err := up.Close(); err != nil {
		log.Warn("failed to remove upload", zap.String("path", up.Path), zap.Error(err))
	}
}

func limitError(w http.ResponseWriter, err error, fallback string, log *zap.Logger) {
	if errors.Is(err, utils.ErrDailyLimitExceeded) {
		writeMessage(w, log, http.StatusForbidden, msgLimitExceeded)
		return
	}
	log.Error("error checking daily limit", zap.Error(err))
	writeMessage(w, log, http.StatusInternalServerError, fallback)
}

func optionalField(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
