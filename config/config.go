package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all application configurations
type Config struct {
	Port        string `env:"PORT" envDefault:"3001"`
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`

	SMTPHost      string `env:"SMTP_HOST" envDefault:"smtp.gmail.com"`
	SMTPPort      int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser      string `env:"SMTP_USER,required,notEmpty"`
	SMTPPass      string `env:"SMTP_PASS"`
	FromEmail     string `env:"FROM_EMAIL"` // falls back to SMTPUser
	SkipTLSVerify bool   `env:"SKIP_TLS_VERIFY"`

	UploadDir      string `env:"UPLOAD_DIR"`
	MaxUploadMB    int64  `env:"MAX_UPLOAD_MB" envDefault:"25"`
	DailyMailLimit int    `env:"DAILY_MAIL_LIMIT" envDefault:"0"`
	SchemaFailFast bool   `env:"SCHEMA_FAIL_FAST" envDefault:"true"`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv   string `env:"APP_ENV" envDefault:"production"`
}

// LoadConfig reads configuration from the .env file (if any) and the environment.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables directly.")
	}
	return Parse()
}

// Parse builds a Config from the current environment only.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if cfg.FromEmail == "" {
		cfg.FromEmail = cfg.SMTPUser
	}
	if cfg.UploadDir == "" {
		cfg.UploadDir = filepath.Join(os.TempDir(), "sheet-mailer")
	}
	if cfg.MaxUploadMB <= 0 {
		return nil, fmt.Errorf("MAX_UPLOAD_MB must be positive, got %d", cfg.MaxUploadMB)
	}
	if cfg.DailyMailLimit < 0 {
		return nil, fmt.Errorf("DAILY_MAIL_LIMIT must not be negative, got %d", cfg.DailyMailLimit)
	}
	return cfg, nil
}

// MaxUploadBytes is the request body cap derived from MaxUploadMB.
func (c *Config) MaxUploadBytes() int64 {
	return c.MaxUploadMB << 20
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + c.Port
}

// IsDevelopment reports whether the process runs with development defaults.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}
