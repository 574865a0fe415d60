package config

import (
	"errors"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/imrishuroy/go-storefront/internal/schema"
)

// Config holds all process configuration, read from the environment.
type Config struct {
	Port     string `envconfig:"PORT" default:"8080"`
	RunLocal bool   `envconfig:"RUN_LOCAL" default:"false"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	Storage
	IdempotencyTTL time.Duration `envconfig:"IDEMPOTENCY_TTL" default:"48h"`

	NotificationsQueueURL string `envconfig:"NOTIFICATIONS_QUEUE_URL"`
	MetricsEnabled        bool   `envconfig:"METRICS_ENABLED" default:"false"`
	MetricsNamespace      string `envconfig:"METRICS_NAMESPACE" default:"Storefront"`

	JWTSecret string        `envconfig:"JWT_SECRET" required:"true"`
	TokenTTL  time.Duration `envconfig:"TOKEN_TTL" default:"168h"`

	AdminEmail        string `envconfig:"ADMIN_EMAIL"`
	AdminPassword     string `envconfig:"ADMIN_PASSWORD"`
	AdminPasswordHash string `envconfig:"ADMIN_PASSWORD_HASH"`

	PaymentKeySecret string `envconfig:"PAYMENT_KEY_SECRET"`

	RedisAddr       string        `envconfig:"REDIS_ADDR"`
	ProductCacheTTL time.Duration `envconfig:"PRODUCT_CACHE_TTL" default:"1m"`

	SMTPAddr     string `envconfig:"SMTP_ADDR"`
	SMTPUsername string `envconfig:"SMTP_USERNAME"`
	SMTPPassword string `envconfig:"SMTP_PASSWORD"`
	MailFrom     string `envconfig:"MAIL_FROM" default:"no-reply@storefront.local"`
}

// Storage locates the AWS account and the DynamoDB tables. storectl loads it
// on its own.
type Storage struct {
	AWSRegion         string `envconfig:"AWS_REGION" default:"us-east-1"`
	AWSEndpoint       string `envconfig:"AWS_ENDPOINT_OVERRIDE"`
	ProductsTable     string `envconfig:"PRODUCTS_TABLE" default:"products"`
	OrdersTable       string `envconfig:"ORDERS_TABLE" default:"orders"`
	ApplicationsTable string `envconfig:"APPLICATIONS_TABLE" default:"applications"`
	UsersTable        string `envconfig:"USERS_TABLE" default:"users"`
	AuditTable        string `envconfig:"AUDIT_TABLE" default:"audit"`
	IdempotencyTable  string `envconfig:"IDEMPOTENCY_TABLE" default:"idempotency"`
}

// LoadStorage reads only the storage settings.
func LoadStorage() (*Storage, error) {
	_ = godotenv.Load()

	var s Storage
	if err := envconfig.Process("", &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// WorkerConfig is the notification worker's configuration. It shares the
// mail settings with Config but needs no secrets of the API.
type WorkerConfig struct {
	LogLevel     string `envconfig:"LOG_LEVEL" default:"info"`
	RunLocal     bool   `envconfig:"RUN_LOCAL" default:"false"`
	SMTPAddr     string `envconfig:"SMTP_ADDR"`
	SMTPUsername string `envconfig:"SMTP_USERNAME"`
	SMTPPassword string `envconfig:"SMTP_PASSWORD"`
	MailFrom     string `envconfig:"MAIL_FROM" default:"no-reply@storefront.local"`
}

// LoadWorker reads the worker configuration.
func LoadWorker() (*WorkerConfig, error) {
	_ = godotenv.Load()

	var cfg WorkerConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	// a missing .env is normal outside local development
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Tables returns the configured physical table names.
func (c *Storage) Tables() schema.TableNames {
	return schema.TableNames{
		Products:     c.ProductsTable,
		Orders:       c.OrdersTable,
		Applications: c.ApplicationsTable,
		Users:        c.UsersTable,
		Audit:        c.AuditTable,
		Idempotency:  c.IdempotencyTable,
	}
}

// Validate checks cross-field constraints envconfig cannot express.
func (c *Config) Validate() error {
	if len(c.JWTSecret) < 16 {
		return errors.New("JWT_SECRET must be at least 16 characters")
	}
	if c.TokenTTL <= 0 {
		return errors.New("TOKEN_TTL must be positive")
	}
	if c.AdminEmail != "" && c.AdminPassword == "" && c.AdminPasswordHash == "" {
		return errors.New("ADMIN_EMAIL requires ADMIN_PASSWORD or ADMIN_PASSWORD_HASH")
	}
	return nil
}
