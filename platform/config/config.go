// Package config loads the immutable control-plane configuration from the
// environment. The parsed struct is passed by value into each orchestrator
// constructor; there is no mutable global settings object.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config carries everything the API server, provisioning executor, and
// retention engine need. Parsed once at startup.
type Config struct {
	// App
	Port            string        `env:"PORT" envDefault:"8000"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`

	// Security
	APIKey    string `env:"API_KEY,required"`
	MasterKey string `env:"SECRETBOX_MASTER_KEY,required"` // base64, 32 bytes

	// Domain / routing
	Domain string `env:"DOMAIN" envDefault:"nekotab.app"`

	// Control-plane metadata database
	DatabaseURL string `env:"DATABASE_URL,required"`

	// Admin connection to the cluster hosting tenant databases
	PostgresAdminURL string `env:"POSTGRES_ADMIN_URL,required"`

	// Compute stack
	RegistryURL         string        `env:"REGISTRY_URL" envDefault:"ghcr.io/nekotab"`
	ImageTag            string        `env:"IMAGE_TAG" envDefault:"latest"`
	ComposeTemplatePath string        `env:"COMPOSE_TEMPLATE_PATH"` // empty = embedded default
	DeployTimeout       time.Duration `env:"DEPLOY_TIMEOUT" envDefault:"60s"`
	HealthTimeout       time.Duration `env:"HEALTH_TIMEOUT" envDefault:"120s"`
	HealthInterval      time.Duration `env:"HEALTH_INTERVAL" envDefault:"5s"`

	// Default tenant resources
	TenantCPULimit    string `env:"TENANT_CPU_LIMIT" envDefault:"1.0"`
	TenantMemoryLimit string `env:"TENANT_MEMORY_LIMIT" envDefault:"512M"`

	// Reserved subdomains (comma separated); empty = built-in default set
	ReservedSubdomains []string `env:"RESERVED_SUBDOMAINS" envSeparator:","`

	// Retention policy; both zero values mean "feature disabled"
	RetentionDays       int      `env:"RETENTION_DAYS" envDefault:"0"`
	RetentionGraceHours int      `env:"RETENTION_GRACE_HOURS" envDefault:"24"`
	RetentionMode       string   `env:"RETENTION_MODE" envDefault:"EXPORT_THEN_DELETE"`
	ExportFormat        string   `env:"EXPORT_FORMAT" envDefault:"CSV"`
	ArchiveDir          string   `env:"ARCHIVE_DIR" envDefault:"./archives"`
	NotifyEmails        []string `env:"RETENTION_NOTIFY_EMAILS" envSeparator:","`

	// Cache purge on collection delete (optional)
	RedisURL string `env:"REDIS_URL"`

	// Outbound mail (optional; notifications are skipped when Host is empty)
	SMTPHost string `env:"SMTP_HOST"`
	SMTPPort int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPFrom string `env:"SMTP_FROM" envDefault:"noreply@nekotab.app"`
	SMTPUser string `env:"SMTP_USER"`
	SMTPPass string `env:"SMTP_PASS"`
}

// Load reads .env (when present) and parses the environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// RetentionConfig is the subset the retention CLI reads. Nothing here is
// required: cron invocations may supply everything through flags.
type RetentionConfig struct {
	LogLevel            string   `env:"LOG_LEVEL" envDefault:"info"`
	DatabaseURL         string   `env:"DATABASE_URL"`
	RetentionDays       int      `env:"RETENTION_DAYS" envDefault:"0"`
	RetentionGraceHours int      `env:"RETENTION_GRACE_HOURS" envDefault:"24"`
	RetentionMode       string   `env:"RETENTION_MODE" envDefault:"EXPORT_THEN_DELETE"`
	ExportFormat        string   `env:"EXPORT_FORMAT" envDefault:"CSV"`
	ArchiveDir          string   `env:"ARCHIVE_DIR" envDefault:"./archives"`
	NotifyEmails        []string `env:"RETENTION_NOTIFY_EMAILS" envSeparator:","`
	RedisURL            string   `env:"REDIS_URL"`
	SMTPHost            string   `env:"SMTP_HOST"`
	SMTPPort            int      `env:"SMTP_PORT" envDefault:"587"`
	SMTPFrom            string   `env:"SMTP_FROM" envDefault:"noreply@nekotab.app"`
	SMTPUser            string   `env:"SMTP_USER"`
	SMTPPass            string   `env:"SMTP_PASS"`
}

// LoadRetention reads .env (when present) and parses the retention subset.
func LoadRetention() (RetentionConfig, error) {
	_ = godotenv.Load()

	var cfg RetentionConfig
	if err := env.Parse(&cfg); err != nil {
		return RetentionConfig{}, fmt.Errorf("parse retention config: %w", err)
	}
	return cfg, nil
}
