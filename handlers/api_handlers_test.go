package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"sheet-mailer/database"
	"sheet-mailer/services"
	"sheet-mailer/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap/zaptest"
)

type sentMessage struct {
	msg              services.Message
	attachmentExists bool
}

type fakeMailer struct {
	mu      sync.Mutex
	sent    []sentMessage
	failFor map[string]bool
}

func (f *fakeMailer) Send(_ context.Context, msg services.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[msg.To] {
		return errors.New("smtp: 550 mailbox unavailable")
	}
	exists := false
	for _, a := range msg.Attachments {
		_, err := os.Stat(a.Path)
		exists = err == nil
	}
	f.sent = append(f.sent, sentMessage{msg: msg, attachmentExists: exists})
	return nil
}

type fakeStore struct {
	mu       sync.Mutex
	records  []database.SentEmail
	listErr  error
	todayCnt int
}

func (f *fakeStore) InsertSentEmail(_ context.Context, rec database.NewSentEmail) (*database.SentEmail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := database.SentEmail{
		ID:       len(f.records) + 1,
		Name:     rec.Name,
		Email:    rec.Email,
		Subject:  rec.Subject,
		Message:  rec.Message,
		Filename: rec.Filename,
		SentAt:   time.Date(2026, 10, 17, 12, 0, len(f.records), 0, time.UTC),
	}
	f.records = append(f.records, out)
	return &out, nil
}

func (f *fakeStore) ListSentEmails(context.Context) ([]database.SentEmail, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]database.SentEmail, 0, len(f.records))
	for i := len(f.records) - 1; i >= 0; i-- {
		out = append(out, f.records[i])
	}
	return out, nil
}

func (f *fakeStore) DailySends(_ context.Context, days int) (map[string]int, error) {
	return map[string]int{"2026-10-17": len(f.records), "days": days}, nil
}

func (f *fakeStore) CountSentToday(context.Context) (int, error) {
	return f.todayCnt, nil
}

func (f *fakeStore) Ping(context.Context) error { return nil }

type testEnv struct {
	handler   http.Handler
	mailer    *fakeMailer
	store     *fakeStore
	uploadDir string
}

func newTestEnv(t *testing.T, dailyLimit int) *testEnv {
	t.Helper()
	logger := zaptest.NewLogger(t)
	mailer := &fakeMailer{failFor: map[string]bool{}}
	store := &fakeStore{}
	uploadDir := t.TempDir()

	deps := &Deps{
		Mail:           services.NewMailService(mailer, store, "sender@example.com", logger),
		Store:          store,
		Limiter:        utils.NewDailyLimiter(store, dailyLimit),
		UploadDir:      uploadDir,
		MaxUploadBytes: 1 << 20,
		Logger:         logger,
	}
	return &testEnv{
		handler:   NewRouter(deps, []string{"*"}),
		mailer:    mailer,
		store:     store,
		uploadDir: uploadDir,
	}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) assertUploadsRemoved(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(e.uploadDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "temporary uploads must be deleted after the request")
}

type filePart struct {
	field, name string
	content     []byte
}

func multipartRequest(t *testing.T, path string, fields map[string]string, file *filePart) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if file != nil {
		fw, err := mw.CreateFormFile(file.field, file.name)
		require.NoError(t, err)
		_, err = fw.Write(file.content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) messageBody {
	t.Helper()
	var resp messageBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp
}

func TestSendEmail_NoAttachment(t *testing.T) {
	env := newTestEnv(t, 0)

	rec := env.do(multipartRequest(t, "/api/send-email", map[string]string{
		"name":    "Bob",
		"email":   "b@x.com",
		"subject": "Hi",
		"message": "Hello",
	}, nil))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Email sent successfully!", decodeResponse(t, rec).Message)

	require.Len(t, env.mailer.sent, 1)
	msg := env.mailer.sent[0].msg
	assert.Equal(t, "sender@example.com", msg.From)
	assert.Equal(t, "b@x.com", msg.To)
	assert.Empty(t, msg.Attachments)

	require.Len(t, env.store.records, 1)
	assert.Nil(t, env.store.records[0].Filename)
	assert.Equal(t, "Bob", *env.store.records[0].Name)
}

func TestSendEmail_WithAttachment(t *testing.T) {
	env := newTestEnv(t, 0)

	rec := env.do(multipartRequest(t, "/api/send-email", map[string]string{
		"email":   "b@x.com",
		"subject": "Report",
		"message": "See attached",
	}, &filePart{field: "attachment", name: "report.pdf", content: []byte("%PDF-1.4")}))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	require.Len(t, env.mailer.sent, 1)
	sent := env.mailer.sent[0]
	require.Len(t, sent.msg.Attachments, 1)
	assert.Equal(t, "report.pdf", sent.msg.Attachments[0].Filename)
	assert.True(t, sent.attachmentExists, "attachment must exist on disk while sending")

	require.Len(t, env.store.records, 1)
	require.NotNil(t, env.store.records[0].Filename)
	assert.Equal(t, "report.pdf", *env.store.records[0].Filename)
	assert.Nil(t, env.store.records[0].Name)

	env.assertUploadsRemoved(t)
}

func TestSendEmail_URLEncoded(t *testing.T) {
	env := newTestEnv(t, 0)

	form := url.Values{"email": {"b@x.com"}, "subject": {"Hi"}, "message": {"Hello"}}
	req := httptest.NewRequest(http.MethodPost, "/api/send-email", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rec := env.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, env.store.records, 1)
}

func TestSendEmail_TransportFailure(t *testing.T) {
	env := newTestEnv(t, 0)
	env.mailer.failFor["b@x.com"] = true

	rec := env.do(multipartRequest(t, "/api/send-email", map[string]string{
		"email":   "b@x.com",
		"subject": "Hi",
		"message": "Hello",
	}, &filePart{field: "attachment", name: "a.txt", content: []byte("x")}))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Failed to send email", decodeResponse(t, rec).Message)
	assert.Empty(t, env.store.records)
	env.assertUploadsRemoved(t)
}

func TestSendEmail_MissingRecipient(t *testing.T) {
	env := newTestEnv(t, 0)

	for _, email := range []string{"", "  "} {
		rec := env.do(multipartRequest(t, "/api/send-email", map[string]string{"email": email, "subject": "Hi", "message": "Hello"}, nil))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "Failed to send email", decodeResponse(t, rec).Message)
	}
	assert.Empty(t, env.mailer.sent)
	assert.Empty(t, env.store.records)
}

func TestSendEmail_ResponseBody(t *testing.T) {
	env := newTestEnv(t, 0)

	rec := env.do(multipartRequest(t, "/api/send-email", map[string]string{"email": "b@x.com", "subject": "Hi", "message": "Hello"}, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"message":"Email sent successfully!"}`, rec.Body.String())

	env.mailer.failFor["c@x.com"] = true
	rec = env.do(multipartRequest(t, "/api/send-email", map[string]string{"email": "c@x.com"}, nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"message":"Failed to send email"}`, rec.Body.String())
}

func TestSendEmail_DailyLimit(t *testing.T) {
	env := newTestEnv(t, 5)
	env.store.todayCnt = 5

	rec := env.do(multipartRequest(t, "/api/send-email", map[string]string{"email": "b@x.com", "subject": "Hi", "message": "Hello"}, nil))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, env.mailer.sent)
}

func TestSendEmail_TooLarge(t *testing.T) {
	env := newTestEnv(t, 0)

	rec := env.do(multipartRequest(t, "/api/send-email", map[string]string{"email": "b@x.com"},
		&filePart{field: "attachment", name: "big.bin", content: bytes.Repeat([]byte("a"), 2<<20)}))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Empty(t, env.mailer.sent)
}

func TestListSentEmails(t *testing.T) {
	env := newTestEnv(t, 0)
	for _, addr := range []string{"a@x.com", "b@x.com", "c@x.com"} {
		rec := env.do(multipartRequest(t, "/api/send-email", map[string]string{"email": addr, "subject": "Hi", "message": "Hello"}, nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/sent-emails", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var emails []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &emails), "response must be a bare JSON array")
	require.Len(t, emails, 3)
	assert.Equal(t, "c@x.com", emails[0]["email"])
	assert.Equal(t, "a@x.com", emails[2]["email"])
	for _, key := range []string{"id", "name", "email", "subject", "message", "filename", "sent_at"} {
		assert.Contains(t, emails[0], key)
	}
	assert.Nil(t, emails[0]["filename"])
}

func TestListSentEmails_Empty(t *testing.T) {
	env := newTestEnv(t, 0)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/sent-emails", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestListSentEmails_Error(t *testing.T) {
	env := newTestEnv(t, 0)
	env.store.listErr = errors.New("connection refused")

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/sent-emails", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Failed to fetch emails", decodeResponse(t, rec).Message)
}

func TestImportEmails_CSV(t *testing.T) {
	env := newTestEnv(t, 0)
	csv := "a@x.com\nBob,b@x.com\nCarol,c@x.com,S,M\n"

	rec := env.do(multipartRequest(t, "/api/import-emails",
		map[string]string{"subject": "Hi", "message": "Hello"},
		&filePart{field: "file", name: "contacts.csv", content: []byte(csv)}))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeResponse(t, rec)
	assert.Equal(t, "Bulk emails sent successfully!", resp.Message)
	assert.Equal(t, map[string]any{"total": float64(3), "sent": float64(3), "failed": float64(0), "skipped": float64(0)}, resp.Data)

	require.Len(t, env.mailer.sent, 3)
	assert.Equal(t, services.Message{From: "sender@example.com", To: "a@x.com", Subject: "Hi", Text: "Hello"}, env.mailer.sent[0].msg)
	assert.Equal(t, services.Message{From: "sender@example.com", To: "b@x.com", Subject: "Hi", Text: "Hello"}, env.mailer.sent[1].msg)
	assert.Equal(t, services.Message{From: "sender@example.com", To: "c@x.com", Subject: "S", Text: "M"}, env.mailer.sent[2].msg)

	require.Len(t, env.store.records, 3)
	for _, r := range env.store.records {
		require.NotNil(t, r.Filename)
		assert.Equal(t, "contacts.csv", *r.Filename)
	}
	env.assertUploadsRemoved(t)
}

func TestImportEmails_CSVTrailingCommas(t *testing.T) {
	env := newTestEnv(t, 0)
	csv := "a@x.com,\nBob,b@x.com,\n"

	rec := env.do(multipartRequest(t, "/api/import-emails",
		map[string]string{"subject": "Hi", "message": "Hello"},
		&filePart{field: "file", name: "export.csv", content: []byte(csv)}))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	data := decodeResponse(t, rec).Data.(map[string]any)
	assert.Equal(t, float64(2), data["sent"])
	assert.Equal(t, float64(0), data["skipped"])

	require.Len(t, env.store.records, 2)
	assert.Equal(t, "a@x.com", env.store.records[0].Email)
	assert.Nil(t, env.store.records[0].Name)
	assert.Equal(t, "b@x.com", env.store.records[1].Email)
	assert.Equal(t, "Bob", *env.store.records[1].Name)
}

func TestImportEmails_ExtensionlessCSV(t *testing.T) {
	env := newTestEnv(t, 0)

	rec := env.do(multipartRequest(t, "/api/import-emails",
		map[string]string{"subject": "Hi", "message": "Hello"},
		&filePart{field: "file", name: "contacts", content: []byte("a@x.com\n")}))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, env.mailer.sent, 1)
}

func TestImportEmails_WorkbookWithHeaderAndFailure(t *testing.T) {
	env := newTestEnv(t, 0)
	env.mailer.failFor["b@x.com"] = true

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	for i, row := range [][]any{{"Email", "Name"}, {"a@x.com"}, {"b@x.com"}, {"c@x.com"}} {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		r := row
		require.NoError(t, f.SetSheetRow(sheet, cell, &r))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, f.Close())

	rec := env.do(multipartRequest(t, "/api/import-emails",
		map[string]string{"subject": "Hi", "message": "Hello"},
		&filePart{field: "file", name: "list.xlsx", content: buf.Bytes()}))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeResponse(t, rec)
	assert.Equal(t, "Bulk emails sent successfully!", resp.Message)
	assert.Equal(t, float64(1), resp.Data.(map[string]any)["failed"])

	require.Len(t, env.mailer.sent, 2, "header excluded, failing row does not stop the batch")
	assert.Equal(t, "a@x.com", env.mailer.sent[0].msg.To)
	assert.Equal(t, "c@x.com", env.mailer.sent[1].msg.To)
	assert.Len(t, env.store.records, 2)
	env.assertUploadsRemoved(t)
}

func TestImportEmails_Validation(t *testing.T) {
	file := &filePart{field: "file", name: "contacts.csv", content: []byte("a@x.com\n")}
	tests := []struct {
		name    string
		fields  map[string]string
		file    *filePart
		wantMsg string
	}{
		{name: "missing file", fields: map[string]string{"subject": "Hi", "message": "Hello"}, wantMsg: "No file uploaded"},
		{name: "missing subject", fields: map[string]string{"message": "Hello"}, file: file, wantMsg: "Subject and message are required"},
		{name: "missing message", fields: map[string]string{"subject": "Hi"}, file: file, wantMsg: "Subject and message are required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, 0)

			rec := env.do(multipartRequest(t, "/api/import-emails", tt.fields, tt.file))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.wantMsg, decodeResponse(t, rec).Message)
			assert.Empty(t, env.mailer.sent)
			assert.Empty(t, env.store.records)
			env.assertUploadsRemoved(t)
		})
	}
}

func TestImportEmails_ParseFailure(t *testing.T) {
	env := newTestEnv(t, 0)

	rec := env.do(multipartRequest(t, "/api/import-emails",
		map[string]string{"subject": "Hi", "message": "Hello"},
		&filePart{field: "file", name: "broken.xlsx", content: []byte("not a workbook")}))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Failed to send bulk emails", decodeResponse(t, rec).Message)
	assert.Empty(t, env.mailer.sent)
	env.assertUploadsRemoved(t)
}

func TestImportEmails_DailyLimitCapsRows(t *testing.T) {
	env := newTestEnv(t, 3)
	env.store.todayCnt = 1

	rec := env.do(multipartRequest(t, "/api/import-emails",
		map[string]string{"subject": "Hi", "message": "Hello"},
		&filePart{field: "file", name: "c.csv", content: []byte("a@x.com\nb@x.com\nc@x.com\n")}))

	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeResponse(t, rec).Data.(map[string]any)
	assert.Equal(t, float64(2), data["sent"])
	assert.Equal(t, float64(1), data["skipped"])
	assert.Len(t, env.mailer.sent, 2)
}

func TestDailyLimitAndStats(t *testing.T) {
	env := newTestEnv(t, 10)
	env.store.todayCnt = 4

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/limit", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeResponse(t, rec).Data.(map[string]any)
	assert.Equal(t, float64(6), data["remaining"])

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/stats/daily-sends?days=30", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(30), decodeResponse(t, rec).Data.(map[string]any)["days"])

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/stats/daily-sends?days=abc", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(defaultStatDays), decodeResponse(t, rec).Data.(map[string]any)["days"])
}

func TestRouter_Middleware(t *testing.T) {
	env := newTestEnv(t, 0)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/api/sent-emails", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec = env.do(req)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/send-email", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
