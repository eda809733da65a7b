package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

type ctxKey struct{}

// NewRouter wires every endpoint behind request logging and CORS.
func NewRouter(d *Deps, allowedOrigins []string) http.Handler {
	r := mux.NewRouter()
	r.Use(loggingMiddleware(d.Logger))

	// API Routes
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/send-email", SendEmailHandler(d)).Methods(http.MethodPost)
	api.HandleFunc("/sent-emails", ListSentEmailsHandler(d)).Methods(http.MethodGet)
	api.HandleFunc("/import-emails", ImportEmailsHandler(d)).Methods(http.MethodPost)
	api.HandleFunc("/limit", DailyLimitHandler(d)).Methods(http.MethodGet)
	api.HandleFunc("/stats/daily-sends", DailySendsHandler(d)).Methods(http.MethodGet)

	r.HandleFunc("/healthz", HealthHandler(d)).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"X-Request-ID"},
	})
	return c.Handler(r)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(logger *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqID := r.Header.Get("X-Request-ID")
			if reqID == "" {
				reqID = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", reqID)

			l := logger.With(zap.String("request_id", reqID))
			r = r.WithContext(context.WithValue(r.Context(), ctxKey{}, l))

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			l.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.status),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

// requestLogger returns the request-scoped logger set by the logging
// middleware, or fallback when the handler runs without it.
func requestLogger(r *http.Request, fallback *zap.Logger) *zap.Logger {
	if l, ok := r.Context().Value(ctxKey{}).(*zap.Logger); ok {
		return l
	}
	return fallback
}
