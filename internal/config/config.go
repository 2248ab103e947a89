package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Storage     StorageConfig     `yaml:"storage"`
	Payment     PaymentConfig     `yaml:"payment"`
	Kafka       KafkaConfig       `yaml:"kafka"`
	Redis       RedisConfig       `yaml:"redis"`
	Settings    SettingsConfig    `yaml:"settings"`
	Marketplace MarketplaceConfig `yaml:"marketplace"`
	Log         LogConfig         `yaml:"log"`
	Scheduler   SchedulerConfig   `yaml:"scheduler"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// ServerConfig contains HTTP and gRPC listener settings
type ServerConfig struct {
	Host     string `yaml:"host" env:"SERVER_HOST"`
	Port     int    `yaml:"port" env:"SERVER_PORT"`
	GRPCPort int    `yaml:"grpc_port" env:"SERVER_GRPC_PORT"`
}

// DatabaseConfig contains PostgreSQL connection settings
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"DB_HOST"`
	Port           int    `yaml:"port" env:"DB_PORT"`
	User           string `yaml:"user" env:"DB_USER"`
	Password       string `yaml:"password" env:"DB_PASSWORD"`
	Database       string `yaml:"database" env:"DB_NAME"`
	SSLMode        string `yaml:"ssl_mode" env:"DB_SSL_MODE"`
	MigrationsPath string `yaml:"migrations_path" env:"DB_MIGRATIONS_PATH"` // empty uses the embedded set
	MaxOpenConns   int    `yaml:"max_open_conns" env:"DB_MAX_OPEN_CONNS"`
}

// StorageConfig contains evidence file storage settings
type StorageConfig struct {
	Type          string   `yaml:"type" env:"STORAGE_TYPE"`         // "mock" or "s3"
	UploadDir     string   `yaml:"upload_dir" env:"UPLOAD_DIR"`     // For mock storage
	BaseURL       string   `yaml:"base_url" env:"STORAGE_BASE_URL"` // Server base URL for mock URLs
	Bucket        string   `yaml:"bucket" env:"S3_BUCKET"`
	Region        string   `yaml:"region" env:"AWS_REGION"`
	MaxFileSize   int64    `yaml:"max_file_size_mb"`
	AllowedTypes  []string `yaml:"allowed_types"`
	URLExpiryMins int      `yaml:"url_expiry_minutes"`
}

// PaymentConfig contains payment provider settings
type PaymentConfig struct {
	Provider  string `yaml:"provider" env:"PAYMENT_PROVIDER"` // "stripe" or "noop"
	StripeKey string `yaml:"stripe_key" env:"STRIPE_SECRET_KEY"`
	Currency  string `yaml:"currency" env:"PAYMENT_CURRENCY"`
}

// KafkaConfig contains notification broker settings. An empty broker list
// makes the notifier log instead of publish.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers" env:"KAFKA_BROKERS" env-separator:","`
	Topic   string   `yaml:"topic" env:"KAFKA_NOTIFICATION_TOPIC"`
}

// RedisConfig contains the settings cache connection
type RedisConfig struct {
	URL string `yaml:"url" env:"REDIS_URL"`
	Key string `yaml:"key" env:"REDIS_SETTINGS_KEY"`
}

// SettingsConfig selects where runtime settings are resolved from
type SettingsConfig struct {
	Backend  string            `yaml:"backend" env:"SETTINGS_BACKEND"` // "static", "postgres" or "redis"
	CacheTTL time.Duration     `yaml:"cache_ttl" env:"SETTINGS_CACHE_TTL"`
	Values   map[string]string `yaml:"values"`
}

// MarketplaceConfig holds the fallback values used when a runtime setting is
// missing. The same keys can be overridden through the settings backend.
type MarketplaceConfig struct {
	RenterFeeRate                string `yaml:"renter_fee_rate"`
	OwnerFeeRate                 string `yaml:"owner_fee_rate"`
	GSTEnabled                   bool   `yaml:"gst_enabled"`
	GSTRate                      string `yaml:"gst_rate"`
	DisputeWindowHours           int    `yaml:"dispute_window_hours"`
	DisputeFilingWindowHours     int    `yaml:"dispute_filing_window_hours"`
	DisputeRebuttalWindowHours   int    `yaml:"dispute_rebuttal_window_hours"`
	DisputeRebuttalReminderHours int    `yaml:"dispute_rebuttal_reminder_hours"`
	BookingRequestExpiryHours    int    `yaml:"booking_request_expiry_hours"`
	BookingPaymentExpiryHours    int    `yaml:"booking_payment_expiry_hours"`
	// PlatformUserID is the account platform fee and GST entries are posted to.
	PlatformUserID int64 `yaml:"platform_user_id" env:"PLATFORM_USER_ID"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`   // "debug", "info", "warn", "error"
	Format string `yaml:"format" env:"LOG_FORMAT"` // "json" or "text"
}

// SchedulerConfig contains cron schedule settings
type SchedulerConfig struct {
	ExpireStaleBookings      string `yaml:"expire_stale_bookings"`
	AutoCloseMissingEvidence string `yaml:"auto_close_missing_evidence"`
	SendRebuttalReminders    string `yaml:"send_rebuttal_reminders"`
	AdvanceExpiredRebuttals  string `yaml:"advance_expired_rebuttals"`
	ReleaseDepositHolds      string `yaml:"release_deposit_holds"`
}

// MetricsConfig contains the Prometheus endpoint settings
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" env:"METRICS_ENABLED"`
	Addr    string `yaml:"addr" env:"METRICS_ADDR"`
}

// Load reads configuration from a YAML file, applies environment overrides and
// validates the result.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse is Load without the file read.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks if the configuration is valid and fills defaults
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.GRPCPort < 0 || c.Server.GRPCPort > 65535 {
		return fmt.Errorf("invalid grpc port: %d", c.Server.GRPCPort)
	}

	if c.Database.Host == "" {
		return errors.New("database host is required")
	}
	if c.Database.User == "" {
		return errors.New("database user is required")
	}
	if c.Database.Database == "" {
		return errors.New("database name is required")
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 20
	}

	switch c.Storage.Type {
	case "", "mock":
		c.Storage.Type = "mock"
		if c.Storage.UploadDir == "" {
			return errors.New("upload directory is required for mock storage")
		}
	case "s3":
		if c.Storage.Bucket == "" {
			return errors.New("s3 bucket is required")
		}
	default:
		return fmt.Errorf("unknown storage type: %s", c.Storage.Type)
	}
	if c.Storage.MaxFileSize == 0 {
		c.Storage.MaxFileSize = 10
	}
	if len(c.Storage.AllowedTypes) == 0 {
		c.Storage.AllowedTypes = []string{"image/jpeg", "image/png", "image/heic", "application/pdf", "video/mp4"}
	}
	if c.Storage.URLExpiryMins == 0 {
		c.Storage.URLExpiryMins = 15
	}

	switch c.Payment.Provider {
	case "", "noop":
		c.Payment.Provider = "noop"
	case "stripe":
		if c.Payment.StripeKey == "" {
			return errors.New("stripe secret key is required")
		}
	default:
		return fmt.Errorf("unknown payment provider: %s", c.Payment.Provider)
	}
	if c.Payment.Currency == "" {
		c.Payment.Currency = "cad"
	}

	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "toolshed.notifications"
	}

	switch c.Settings.Backend {
	case "", "static":
		c.Settings.Backend = "static"
	case "postgres":
	case "redis":
		if c.Redis.URL == "" {
			return errors.New("redis url is required for the redis settings backend")
		}
	default:
		return fmt.Errorf("unknown settings backend: %s", c.Settings.Backend)
	}
	if c.Settings.CacheTTL == 0 {
		c.Settings.CacheTTL = 60 * time.Second
	}
	if c.Redis.Key == "" {
		c.Redis.Key = "toolshed:settings"
	}

	c.Marketplace.applyDefaults()

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}

	if c.Scheduler.ExpireStaleBookings == "" {
		c.Scheduler.ExpireStaleBookings = "0 */15 * * * *" // every 15 minutes
	}
	if c.Scheduler.AutoCloseMissingEvidence == "" {
		c.Scheduler.AutoCloseMissingEvidence = "0 */10 * * * *" // every 10 minutes
	}
	if c.Scheduler.SendRebuttalReminders == "" {
		c.Scheduler.SendRebuttalReminders = "0 5,35 * * * *" // twice an hour
	}
	if c.Scheduler.AdvanceExpiredRebuttals == "" {
		c.Scheduler.AdvanceExpiredRebuttals = "0 */10 * * * *"
	}
	if c.Scheduler.ReleaseDepositHolds == "" {
		c.Scheduler.ReleaseDepositHolds = "0 0 * * * *" // hourly
	}

	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9090"
	}

	return nil
}

func (m *MarketplaceConfig) applyDefaults() {
	if m.RenterFeeRate == "" {
		m.RenterFeeRate = "0.10"
	}
	if m.OwnerFeeRate == "" {
		m.OwnerFeeRate = "0.05"
	}
	if m.GSTRate == "" {
		m.GSTRate = "0.05"
	}
	if m.DisputeWindowHours == 0 {
		m.DisputeWindowHours = 48
	}
	if m.DisputeFilingWindowHours == 0 {
		m.DisputeFilingWindowHours = 24
	}
	if m.DisputeRebuttalWindowHours == 0 {
		m.DisputeRebuttalWindowHours = 24
	}
	if m.DisputeRebuttalReminderHours == 0 {
		m.DisputeRebuttalReminderHours = 12
	}
	if m.BookingRequestExpiryHours == 0 {
		m.BookingRequestExpiryHours = 48
	}
	if m.BookingPaymentExpiryHours == 0 {
		m.BookingPaymentExpiryHours = 24
	}
	if m.PlatformUserID == 0 {
		m.PlatformUserID = 1
	}
}

// SettingsDefaults flattens the marketplace section into settings keys.
// Values from settings.values win over the marketplace section.
func (c *Config) SettingsDefaults() map[string]string {
	m := c.Marketplace
	out := map[string]string{
		"renter_fee_rate":                 m.RenterFeeRate,
		"owner_fee_rate":                  m.OwnerFeeRate,
		"gst_enabled":                     fmt.Sprintf("%t", m.GSTEnabled),
		"gst_rate":                        m.GSTRate,
		"dispute_window_hours":            fmt.Sprintf("%d", m.DisputeWindowHours),
		"dispute_filing_window_hours":     fmt.Sprintf("%d", m.DisputeFilingWindowHours),
		"dispute_rebuttal_window_hours":   fmt.Sprintf("%d", m.DisputeRebuttalWindowHours),
		"dispute_rebuttal_reminder_hours": fmt.Sprintf("%d", m.DisputeRebuttalReminderHours),
		"booking_request_expiry_hours":    fmt.Sprintf("%d", m.BookingRequestExpiryHours),
		"booking_payment_expiry_hours":    fmt.Sprintf("%d", m.BookingPaymentExpiryHours),
	}
	for k, v := range c.Settings.Values {
		out[k] = v
	}
	return out
}

// GetDatabaseConnectionString returns a PostgreSQL connection string
func (c *Config) GetDatabaseConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
		c.Database.SSLMode,
	)
}

// GetServerAddress returns the HTTP server address
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// GetGRPCAddress returns the gRPC listener address, empty when disabled
func (c *Config) GetGRPCAddress() string {
	if c.Server.GRPCPort == 0 {
		return ""
	}
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.GRPCPort)
}
