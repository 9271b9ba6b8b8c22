// Package config loads ledgerd configuration from config.toml and LEDGER_* environment variables.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Log       LogConfig
	HTTP      HTTPConfig
	Worker    WorkerConfig
	Notify    NotifyConfig
	Gateway   GatewayConfig
	Telemetry TelemetryConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name    string
	Env     string
	Port    string
	Storage string // postgres or memory
}

// IsDevelopment reports whether the app runs in development mode.
func (c AppConfig) IsDevelopment() bool {
	return c.Env == "development"
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL             string // takes precedence over the discrete fields
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxConns        int32
	MinConns        int32
	ConnMaxLifetime time.Duration
}

// DSN returns the connection URL.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     c.DBName,
		RawQuery: "sslmode=" + c.SSLMode,
	}
	return u.String()
}

// RedisConfig holds Redis connection settings. An empty Addr disables the sweep lock.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	LockTTL  time.Duration
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string // debug, info, warn, error
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	IdempotencyTTL  time.Duration
}

// WorkerConfig controls the periodic jobs.
type WorkerConfig struct {
	Tick             time.Duration
	BillingInterval  time.Duration
	OverdueInterval  time.Duration
	ReminderInterval time.Duration
	OutboxInterval   time.Duration
	OutboxBatchSize  int
	OutboxMaxRetries int
	OutboxBackoff    time.Duration
	OutboxRetention  time.Duration
}

// NotifyConfig configures notification delivery. An empty WebhookURL logs messages instead.
type NotifyConfig struct {
	WebhookURL string
	Secret     string
	Timeout    time.Duration
}

// GatewayConfig configures the hosted payment link provider. An empty BaseURL disables links.
type GatewayConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled        bool
	ServiceName    string
	Endpoint       string // OTLP gRPC collector, host:port
	Insecure       bool
	SamplingRatio  float64
	ExportInterval time.Duration
}

// Load reads configuration with this priority (highest first):
// 1. Environment variables with LEDGER_ prefix (e.g. LEDGER_DATABASE_URL)
// 2. config.toml in the working directory or /etc/ledgerd
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/ledgerd")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return build(v)
}

// LoadFile reads configuration from an explicit file path.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	return build(v)
}

func build(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	v.SetEnvPrefix("LEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name:    v.GetString("app.name"),
			Env:     v.GetString("app.env"),
			Port:    v.GetString("app.port"),
			Storage: v.GetString("app.storage"),
		},
		Database: DatabaseConfig{
			URL:             v.GetString("database.url"),
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxConns:        v.GetInt32("database.max_conns"),
			MinConns:        v.GetInt32("database.min_conns"),
			ConnMaxLifetime: v.GetDuration("database.conn_max_lifetime"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
			LockTTL:  v.GetDuration("redis.lock_ttl"),
		},
		Log: LogConfig{
			Level: v.GetString("log.level"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:     v.GetDuration("http.read_timeout"),
			WriteTimeout:    v.GetDuration("http.write_timeout"),
			IdleTimeout:     v.GetDuration("http.idle_timeout"),
			ShutdownTimeout: v.GetDuration("http.shutdown_timeout"),
			IdempotencyTTL:  v.GetDuration("http.idempotency_ttl"),
		},
		Worker: WorkerConfig{
			Tick:             v.GetDuration("worker.tick"),
			BillingInterval:  v.GetDuration("worker.billing_interval"),
			OverdueInterval:  v.GetDuration("worker.overdue_interval"),
			ReminderInterval: v.GetDuration("worker.reminder_interval"),
			OutboxInterval:   v.GetDuration("worker.outbox_interval"),
			OutboxBatchSize:  v.GetInt("worker.outbox_batch_size"),
			OutboxMaxRetries: v.GetInt("worker.outbox_max_retries"),
			OutboxBackoff:    v.GetDuration("worker.outbox_backoff"),
			OutboxRetention:  v.GetDuration("worker.outbox_retention"),
		},
		Notify: NotifyConfig{
			WebhookURL: v.GetString("notify.webhook_url"),
			Secret:     v.GetString("notify.secret"),
			Timeout:    v.GetDuration("notify.timeout"),
		},
		Gateway: GatewayConfig{
			BaseURL: v.GetString("gateway.base_url"),
			APIKey:  v.GetString("gateway.api_key"),
			Timeout: v.GetDuration("gateway.timeout"),
		},
		Telemetry: TelemetryConfig{
			Enabled:        v.GetBool("telemetry.enabled"),
			ServiceName:    v.GetString("telemetry.service_name"),
			Endpoint:       v.GetString("telemetry.endpoint"),
			Insecure:       v.GetBool("telemetry.insecure"),
			SamplingRatio:  v.GetFloat64("telemetry.sampling_ratio"),
			ExportInterval: v.GetDuration("telemetry.export_interval"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "ledgerd")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("app.storage", DriverPostgres)

	v.SetDefault("database.url", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "ledgerd")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.conn_max_lifetime", time.Hour)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.lock_ttl", 5*time.Minute)

	v.SetDefault("log.level", "info")

	v.SetDefault("http.read_timeout", 15*time.Second)
	v.SetDefault("http.write_timeout", 30*time.Second)
	v.SetDefault("http.idle_timeout", 60*time.Second)
	v.SetDefault("http.shutdown_timeout", 30*time.Second)
	v.SetDefault("http.idempotency_ttl", 24*time.Hour)

	v.SetDefault("worker.tick", 30*time.Second)
	v.SetDefault("worker.billing_interval", time.Hour)
	v.SetDefault("worker.overdue_interval", time.Hour)
	v.SetDefault("worker.reminder_interval", 6*time.Hour)
	v.SetDefault("worker.outbox_interval", 30*time.Second)
	v.SetDefault("worker.outbox_batch_size", 100)
	v.SetDefault("worker.outbox_max_retries", 5)
	v.SetDefault("worker.outbox_backoff", time.Minute)
	v.SetDefault("worker.outbox_retention", 7*24*time.Hour)

	v.SetDefault("notify.webhook_url", "")
	v.SetDefault("notify.secret", "")
	v.SetDefault("notify.timeout", 10*time.Second)

	v.SetDefault("gateway.base_url", "")
	v.SetDefault("gateway.api_key", "")
	v.SetDefault("gateway.timeout", 10*time.Second)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "ledgerd")
	v.SetDefault("telemetry.endpoint", "localhost:4317")
	v.SetDefault("telemetry.insecure", true)
	v.SetDefault("telemetry.sampling_ratio", 1.0)
	v.SetDefault("telemetry.export_interval", time.Minute)
}

func (c *Config) validate() error {
	switch c.App.Storage {
	case DriverPostgres, DriverMemory:
	default:
		return fmt.Errorf("app.storage must be %q or %q, got %q", DriverPostgres, DriverMemory, c.App.Storage)
	}
	if c.Worker.Tick <= 0 {
		return fmt.Errorf("worker.tick must be positive")
	}
	if c.Telemetry.SamplingRatio < 0 || c.Telemetry.SamplingRatio > 1 {
		return fmt.Errorf("telemetry.sampling_ratio must be within [0, 1]")
	}
	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("database.max_conns (%d) is below database.min_conns (%d)", c.Database.MaxConns, c.Database.MinConns)
	}
	return nil
}
