package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"sheet-mailer/config"
	"sheet-mailer/database"
	"sheet-mailer/handlers"
	"sheet-mailer/services"
	"sheet-mailer/utils"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	// Load configuration from .env
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("Error building logger: %v", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	// Initialize database connection
	db, err := openDatabase(cfg, logger)
	if err != nil {
		logger.Fatal("error preparing database", zap.Error(err))
	}
	defer db.Close()

	store := database.NewStore(db)
	mailer := services.NewSMTPMailer(cfg, logger)
	deps := &handlers.Deps{
		Mail:           services.NewMailService(mailer, store, cfg.FromEmail, logger),
		Store:          store,
		Limiter:        utils.NewDailyLimiter(store, cfg.DailyMailLimit),
		UploadDir:      cfg.UploadDir,
		MaxUploadBytes: cfg.MaxUploadBytes(),
		Logger:         logger,
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handlers.NewRouter(deps, cfg.CORSAllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// openDatabase connects and ensures the sent_emails table. Under the
// fail-fast policy any failure is returned; otherwise failures are logged and
// the lazily connecting pool is returned so the server can still start.
func openDatabase(cfg *config.Config, logger *zap.Logger) (*sql.DB, error) {
	db, err := database.InitDB(cfg.DatabaseURL, logger)
	if err != nil {
		if db == nil || cfg.SchemaFailFast {
			if db != nil {
				db.Close()
			}
			return nil, err
		}
		logger.Error("error connecting to database, serving anyway", zap.Error(err))
	}

	if err := database.EnsureSchema(cfg.DatabaseURL, logger); err != nil {
		if cfg.SchemaFailFast {
			db.Close()
			return nil, fmt.Errorf("error creating sent_emails table: %w", err)
		}
		logger.Error("error creating sent_emails table, serving anyway", zap.Error(err))
	}
	return db, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	zc := zap.NewProductionConfig()
	if cfg.IsDevelopment() {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
