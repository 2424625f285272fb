package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Port      string `env:"BILLING_PORT" envDefault:"8090"`
	BaseURL   string `env:"BILLING_BASE_URL"`
	LogLevel  string `env:"BILLING_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"BILLING_LOG_FORMAT" envDefault:"text"`
	DBPath    string `env:"BILLING_DB_PATH" envDefault:"billing.db"`

	// JWTSecret verifies tokens issued by the identity provider.
	JWTSecret string `env:"BILLING_JWT_SECRET,required"`
	// AdminToken gates the admin override endpoint. Empty disables it.
	AdminToken string `env:"BILLING_ADMIN_TOKEN"`

	Stripe StripeConfig
	Email  EmailConfig
	Backup BackupConfig
}

type StripeConfig struct {
	SecretKey     string `env:"STRIPE_SECRET_KEY"`
	WebhookSecret string `env:"STRIPE_WEBHOOK_SECRET"`
	// PremiumPriceID is the default premium price; PremiumPriceIDs maps
	// lowercase currency codes to currency-specific prices, e.g.
	// "eur=price_123,gbp=price_456".
	PremiumPriceID  string            `env:"STRIPE_PREMIUM_PRICE_ID"`
	PremiumPriceIDs map[string]string `env:"STRIPE_PREMIUM_PRICE_IDS" envSeparator:"," envKeyValSeparator:"="`
}

type EmailConfig struct {
	PostmarkToken string `env:"BILLING_POSTMARK_TOKEN"`
	FromEmail     string `env:"BILLING_FROM_EMAIL"`
}

type BackupConfig struct {
	Endpoint   string `env:"BACKUP_S3_ENDPOINT"`
	Bucket     string `env:"BACKUP_S3_BUCKET"`
	Region     string `env:"BACKUP_S3_REGION" envDefault:"auto"`
	AccessKey  string `env:"BACKUP_S3_ACCESS_KEY"`
	SecretKey  string `env:"BACKUP_S3_SECRET_KEY"`
	Passphrase string `env:"BACKUP_PASSPHRASE"`
	// RetentionDays bounds how many daily snapshots are kept.
	RetentionDays int `env:"BACKUP_RETENTION_DAYS" envDefault:"30"`
	// Hour is the UTC hour scheduled backups run at.
	Hour int `env:"BACKUP_HOUR" envDefault:"3"`
}

// Load reads .env if present, then parses the environment.
func Load() (*Config, error) {
	// The .env file is optional; a missing one is not an error.
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}
