// Package config loads bot settings from the environment and an optional
// .env file.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/dvloznov/finance-bot/internal/domain"
	"github.com/joho/godotenv"
)

// Storage backends.
const (
	BackendSheets   = "sheets"
	BackendBigQuery = "bigquery"
	BackendDrive    = "drive"
	BackendGCS      = "gcs"
	BackendMemory   = "memory"
)

// Run modes.
const (
	ModePoll    = "poll"
	ModeWebhook = "webhook"
)

// Config holds the bot configuration.
type Config struct {
	TelegramToken string
	Debug         bool

	// Google credentials; empty means application default credentials.
	CredentialsJSON []byte

	// Record storage
	StoreBackend    string
	SheetID         string
	BigQueryProject string
	BigQueryDataset string
	Location        *time.Location

	// Attachment storage
	AttachmentBackend string
	DriveFolderID     string
	DriveFolders      map[domain.Kind]string
	DrivePublic       bool
	GCSBucket         string

	// Quick entry; disabled without a key.
	GeminiAPIKey string
	GeminiModel  string

	// Timing and concurrency
	SessionTTL     time.Duration
	SweepInterval  time.Duration
	GatewayTimeout time.Duration
	Workers        int
	QueueBuffer    int

	// Webhook mode
	WebhookAddr   string
	WebhookURL    string
	WebhookSecret string
}

// Load reads .env when present and then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("Load: reading .env: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv. Malformed values are reported
// together.
func FromEnv(getenv func(string) string) (*Config, error) {
	r := reader{getenv: getenv}

	cfg := &Config{
		TelegramToken:     r.str("TELEGRAM_TOKEN", ""),
		Debug:             r.boolean("DEBUG", false),
		StoreBackend:      strings.ToLower(r.str("STORE_BACKEND", BackendSheets)),
		SheetID:           r.str("GOOGLE_SHEET_ID", ""),
		BigQueryProject:   r.str("BIGQUERY_PROJECT", ""),
		BigQueryDataset:   r.str("BIGQUERY_DATASET", "ledger"),
		Location:          r.location("LEDGER_TIMEZONE"),
		AttachmentBackend: strings.ToLower(r.str("ATTACHMENT_BACKEND", BackendDrive)),
		DriveFolderID:     r.str("GOOGLE_DRIVE_FOLDER_ID", ""),
		DriveFolders: map[domain.Kind]string{
			domain.KindExpense: r.str("DRIVE_FOLDER_EXPENSE", ""),
			domain.KindIncome:  r.str("DRIVE_FOLDER_INCOME", ""),
			domain.KindSale:    r.str("DRIVE_FOLDER_SALE", ""),
		},
		DrivePublic:    r.boolean("DRIVE_PUBLIC_LINKS", true),
		GCSBucket:      r.str("GCS_BUCKET", ""),
		GeminiAPIKey:   r.str("GEMINI_API_KEY", ""),
		GeminiModel:    r.str("GEMINI_MODEL", ""),
		SessionTTL:     r.duration("SESSION_TTL", 10*time.Minute),
		SweepInterval:  r.duration("SWEEP_INTERVAL", 30*time.Second),
		GatewayTimeout: r.duration("GATEWAY_TIMEOUT", 15*time.Second),
		Workers:        r.integer("WORKERS", 8),
		QueueBuffer:    r.integer("QUEUE_BUFFER", 64),
		WebhookAddr:    r.str("WEBHOOK_ADDR", ":8080"),
		WebhookURL:     r.str("WEBHOOK_URL", ""),
		WebhookSecret:  r.str("WEBHOOK_SECRET", ""),
	}
	cfg.CredentialsJSON = r.credentials()

	if len(r.errs) > 0 {
		return nil, fmt.Errorf("FromEnv: %w", errors.Join(r.errs...))
	}
	return cfg, nil
}

// Validate checks that the settings needed for mode are present.
func (c *Config) Validate(mode string) error {
	var errs []error
	if c.TelegramToken == "" {
		errs = append(errs, errors.New("TELEGRAM_TOKEN is required"))
	}
	errs = append(errs, c.storageErrors()...)

	switch mode {
	case ModePoll:
	case ModeWebhook:
		if c.WebhookURL == "" {
			errs = append(errs, errors.New("WEBHOOK_URL is required in webhook mode"))
		}
		if c.WebhookSecret == "" {
			errs = append(errs, errors.New("WEBHOOK_SECRET is required in webhook mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown mode %q", mode))
	}

	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("SESSION_TTL must be positive"))
	}
	if c.Workers <= 0 {
		errs = append(errs, errors.New("WORKERS must be positive"))
	}
	return errors.Join(errs...)
}

// ValidateStorage checks only the storage settings. Tools that never talk
// to Telegram use it.
func (c *Config) ValidateStorage() error {
	return errors.Join(c.storageErrors()...)
}

func (c *Config) storageErrors() []error {
	var errs []error
	switch c.StoreBackend {
	case BackendSheets:
		if c.SheetID == "" {
			errs = append(errs, errors.New("GOOGLE_SHEET_ID is required for the sheets backend"))
		}
	case BackendBigQuery:
		if c.BigQueryProject == "" {
			errs = append(errs, errors.New("BIGQUERY_PROJECT is required for the bigquery backend"))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend))
	}

	switch c.AttachmentBackend {
	case BackendDrive:
		if c.DriveFolderID == "" {
			errs = append(errs, errors.New("GOOGLE_DRIVE_FOLDER_ID is required for the drive backend"))
		}
	case BackendGCS:
		if c.GCSBucket == "" {
			errs = append(errs, errors.New("GCS_BUCKET is required for the gcs backend"))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown ATTACHMENT_BACKEND %q", c.AttachmentBackend))
	}
	return errs
}

// UseMemory switches both backends to process memory.
func (c *Config) UseMemory() {
	c.StoreBackend = BackendMemory
	c.AttachmentBackend = BackendMemory
}

// WebhookEndpoint is the public URL registered with Telegram.
func (c *Config) WebhookEndpoint() string {
	return strings.TrimRight(c.WebhookURL, "/") + "/telegram/webhook/" + c.WebhookSecret
}

// FolderFor returns the attachment folder of kind, falling back to the
// shared folder.
func (c *Config) FolderFor(kind domain.Kind) string {
	if f := c.DriveFolders[kind]; f != "" {
		return f
	}
	return c.DriveFolderID
}

type reader struct {
	getenv func(string) string
	errs   []error
}

func (r *reader) str(key, def string) string {
	if v := strings.TrimSpace(r.getenv(key)); v != "" {
		return v
	}
	return def
}

func (r *reader) integer(key string, def int) int {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func (r *reader) boolean(key string, def bool) bool {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return b
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}

func (r *reader) location(key string) *time.Location {
	v := r.str(key, "")
	if v == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return time.Local
	}
	return loc
}

func (r *reader) credentials() []byte {
	if v := r.str("GOOGLE_CREDENTIALS_BASE64", ""); v != "" {
		data, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			r.errs = append(r.errs, fmt.Errorf("GOOGLE_CREDENTIALS_BASE64: %w", err))
			return nil
		}
		return data
	}
	if path := r.str("GOOGLE_CREDENTIALS_FILE", ""); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			r.errs = append(r.errs, fmt.Errorf("GOOGLE_CREDENTIALS_FILE: %w", err))
			return nil
		}
		return data
	}
	return nil
}
