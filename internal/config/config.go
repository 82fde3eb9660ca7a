// Package config loads and validates the auth-service configuration using Viper.
//
// Configuration is layered: built-in defaults < YAML config file < environment
// variables. Environment variables use the AUTHSVC_ prefix (e.g.
// AUTHSVC_DATABASE_HOST overrides database.host in the YAML), so the same
// binary runs with a config.yaml locally and with pure environment variables
// in containers. The server and the worker share this configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable override.
const EnvPrefix = "AUTHSVC"

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Auth          AuthConfig          `mapstructure:"auth"`
	Security      SecurityConfig      `mapstructure:"security"`
	Audit         AuditConfig         `mapstructure:"audit"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Telemetry     TelemetryConfig     `mapstructure:"telemetry"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Worker        WorkerConfig        `mapstructure:"worker"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// RequestTimeout bounds store work done on behalf of a single request.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	// DevMode relaxes startup checks (e.g. a missing JWT secret).
	DevMode bool `mapstructure:"dev_mode"`
	// TrustedProxies lists the proxy IPs/CIDRs whose X-Forwarded-For is
	// honoured when resolving the client IP. Empty trusts none.
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	Name               string `mapstructure:"name"`
	User               string `mapstructure:"user"`
	Password           string `mapstructure:"password"`
	SSLMode            string `mapstructure:"ssl_mode"`
	MaxConnections     int    `mapstructure:"max_connections"`
	MinIdleConnections int    `mapstructure:"min_idle_connections"`
}

// RedisConfig holds the Redis connection used by the task queue and the
// rate limiter
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// AuthConfig holds credential and token configuration
type AuthConfig struct {
	// JWTSecret is read from AUTHSVC_JWT_SECRET; it is never expected in YAML.
	JWTSecret       string        `mapstructure:"jwt_secret"`
	Issuer          string        `mapstructure:"issuer"`
	AccessTokenTTL  time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL time.Duration `mapstructure:"refresh_token_ttl"`
	BcryptCost      int           `mapstructure:"bcrypt_cost"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	CORS         CORSConfig         `mapstructure:"cors"`
	RateLimiting RateLimitingConfig `mapstructure:"rate_limiting"`
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
}

// RateLimitingConfig controls the Redis-backed limiter applied to the
// credential endpoints
type RateLimitingConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	Burst             int  `mapstructure:"burst"`
}

// AuditConfig selects extra destinations for audit records. The records are
// always written to the application log; these sinks are optional copies.
type AuditConfig struct {
	// FilePath appends JSON lines to a local file.
	FilePath   string `mapstructure:"file_path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	// WebhookURL receives each record as a JSON POST.
	WebhookURL     string        `mapstructure:"webhook_url"`
	WebhookTimeout time.Duration `mapstructure:"webhook_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig holds observability configuration
type TelemetryConfig struct {
	ServiceName string        `mapstructure:"service_name"`
	Metrics     MetricsConfig `mapstructure:"metrics"`
}

// MetricsConfig holds Prometheus metrics configuration
type MetricsConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	PrometheusPort int  `mapstructure:"prometheus_port"`
}

// NotificationsConfig holds settings for outbound account emails
type NotificationsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Provider selects the transport: smtp, sendgrid or log.
	Provider string `mapstructure:"provider"`
	// From is the sender address shown in notification emails
	From string `mapstructure:"from"`
	// InviteBaseURL prefixes the link sent in invitation emails.
	InviteBaseURL string         `mapstructure:"invite_base_url"`
	SendTimeout   time.Duration  `mapstructure:"send_timeout"`
	SMTP          SMTPConfig     `mapstructure:"smtp"`
	SendGrid      SendGridConfig `mapstructure:"sendgrid"`
}

// SMTPConfig holds outbound mail server configuration for notification emails
type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	// UseTLS enables STARTTLS (port 587) or implicit TLS (port 465); false = plain SMTP
	UseTLS bool `mapstructure:"use_tls"`
}

// SendGridConfig holds the SendGrid API credentials
type SendGridConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// WorkerConfig holds task queue worker settings
type WorkerConfig struct {
	QueueKey        string        `mapstructure:"queue_key"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	BackoffInterval time.Duration `mapstructure:"backoff_interval"`
	// DeadLetterKey receives malformed payloads; empty drops them.
	DeadLetterKey string `mapstructure:"dead_letter_key"`
	// BlockingPop switches from LPOP polling to BLPOP with PollInterval as the timeout.
	BlockingPop bool `mapstructure:"blocking_pop"`
}

// bindEnvVars explicitly binds environment variables to config keys.
// This is necessary because AutomaticEnv() doesn't work well with nested structs during Unmarshal.
func bindEnvVars(v *viper.Viper) error {
	keys := []string{
		"server.host",
		"server.port",
		"server.read_timeout",
		"server.write_timeout",
		"server.request_timeout",
		"server.dev_mode",
		"server.trusted_proxies",

		"database.host",
		"database.port",
		"database.name",
		"database.user",
		"database.password",
		"database.ssl_mode",
		"database.max_connections",
		"database.min_idle_connections",

		"redis.host",
		"redis.port",
		"redis.password",
		"redis.db",
		"redis.pool_size",

		"auth.issuer",
		"auth.access_token_ttl",
		"auth.refresh_token_ttl",
		"auth.bcrypt_cost",

		"security.cors.allowed_origins",
		"security.cors.allowed_methods",
		"security.rate_limiting.enabled",
		"security.rate_limiting.requests_per_minute",
		"security.rate_limiting.burst",

		"audit.file_path",
		"audit.max_size_mb",
		"audit.max_backups",
		"audit.webhook_url",
		"audit.webhook_timeout",

		"logging.level",
		"logging.format",

		"telemetry.service_name",
		"telemetry.metrics.enabled",
		"telemetry.metrics.prometheus_port",

		"notifications.enabled",
		"notifications.provider",
		"notifications.from",
		"notifications.invite_base_url",
		"notifications.send_timeout",
		"notifications.smtp.host",
		"notifications.smtp.port",
		"notifications.smtp.username",
		"notifications.smtp.password",
		"notifications.smtp.use_tls",
		"notifications.sendgrid.api_key",

		"worker.queue_key",
		"worker.poll_interval",
		"worker.backoff_interval",
		"worker.dead_letter_key",
		"worker.blocking_pop",
	}
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind env var %q: %w", key, err)
		}
	}

	// Secrets with fixed names so infrastructure tooling can inject them.
	if err := v.BindEnv("auth.jwt_secret", EnvPrefix+"_JWT_SECRET"); err != nil {
		return fmt.Errorf("failed to bind env var %q: %w", "auth.jwt_secret", err)
	}
	if err := v.BindEnv("server.dev_mode", EnvPrefix+"_SERVER_DEV_MODE", "DEV_MODE"); err != nil {
		return fmt.Errorf("failed to bind env var %q: %w", "server.dev_mode", err)
	}
	return nil
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/auth-service")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// no file: defaults + environment only
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := bindEnvVars(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	cfg.Database.Password = expandEnv(cfg.Database.Password)
	cfg.Redis.Password = expandEnv(cfg.Redis.Password)
	cfg.Notifications.SMTP.Password = expandEnv(cfg.Notifications.SMTP.Password)
	cfg.Notifications.SendGrid.APIKey = expandEnv(cfg.Notifications.SendGrid.APIKey)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.request_timeout", "10s")
	v.SetDefault("server.dev_mode", false)
	v.SetDefault("server.trusted_proxies", []string{})

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "auth_service")
	v.SetDefault("database.user", "auth")
	v.SetDefault("database.ssl_mode", "require")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_idle_connections", 5)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("auth.issuer", "auth-service")
	v.SetDefault("auth.access_token_ttl", "1h")
	v.SetDefault("auth.refresh_token_ttl", "168h")
	v.SetDefault("auth.bcrypt_cost", 12)

	v.SetDefault("security.cors.allowed_origins", []string{"*"})
	v.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("security.rate_limiting.enabled", true)
	v.SetDefault("security.rate_limiting.requests_per_minute", 10)
	v.SetDefault("security.rate_limiting.burst", 5)

	v.SetDefault("audit.max_size_mb", 100)
	v.SetDefault("audit.max_backups", 5)
	v.SetDefault("audit.webhook_timeout", "5s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("telemetry.service_name", "auth-service")
	v.SetDefault("telemetry.metrics.enabled", true)
	v.SetDefault("telemetry.metrics.prometheus_port", 9090)

	v.SetDefault("notifications.enabled", false)
	v.SetDefault("notifications.provider", "log")
	v.SetDefault("notifications.from", "no-reply@localhost")
	v.SetDefault("notifications.invite_base_url", "http://localhost:8080/invites")
	v.SetDefault("notifications.send_timeout", "15s")
	v.SetDefault("notifications.smtp.port", 587)
	v.SetDefault("notifications.smtp.use_tls", true)

	v.SetDefault("worker.queue_key", "task_queue")
	v.SetDefault("worker.poll_interval", "1s")
	v.SetDefault("worker.backoff_interval", "5s")
	v.SetDefault("worker.dead_letter_key", "")
	v.SetDefault("worker.blocking_pop", false)
}

// expandEnv expands environment variables in the format ${VAR_NAME}
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.RequestTimeout < 0 {
		return fmt.Errorf("server.request_timeout must not be negative")
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database.name is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database.user is required")
	}

	if c.Redis.Host == "" {
		return fmt.Errorf("redis.host is required")
	}
	if c.Redis.Port < 1 || c.Redis.Port > 65535 {
		return fmt.Errorf("invalid redis port: %d", c.Redis.Port)
	}

	if c.Auth.AccessTokenTTL < 0 || c.Auth.RefreshTokenTTL < 0 {
		return fmt.Errorf("auth token TTLs must not be negative")
	}
	if c.Auth.RefreshTokenTTL > 0 && c.Auth.AccessTokenTTL > c.Auth.RefreshTokenTTL {
		return fmt.Errorf("auth.access_token_ttl (%s) must not exceed auth.refresh_token_ttl (%s)",
			c.Auth.AccessTokenTTL, c.Auth.RefreshTokenTTL)
	}

	if c.Security.RateLimiting.Enabled && c.Security.RateLimiting.RequestsPerMinute <= 0 {
		return fmt.Errorf("security.rate_limiting.requests_per_minute must be positive when rate limiting is enabled")
	}

	if c.Notifications.Enabled {
		switch c.Notifications.Provider {
		case "smtp":
			if c.Notifications.SMTP.Host == "" {
				return fmt.Errorf("notifications.smtp.host is required when provider is smtp")
			}
		case "sendgrid":
			if c.Notifications.SendGrid.APIKey == "" {
				return fmt.Errorf("notifications.sendgrid.api_key is required when provider is sendgrid")
			}
		case "log":
		default:
			return fmt.Errorf("invalid notifications provider: %s (must be smtp, sendgrid, or log)", c.Notifications.Provider)
		}
		if c.Notifications.From == "" {
			return fmt.Errorf("notifications.from is required when notifications are enabled")
		}
	}

	if c.Worker.QueueKey == "" {
		return fmt.Errorf("worker.queue_key is required")
	}
	if c.Worker.PollInterval <= 0 || c.Worker.BackoffInterval <= 0 {
		return fmt.Errorf("worker.poll_interval and worker.backoff_interval must be positive")
	}
	if c.Worker.DeadLetterKey != "" && c.Worker.DeadLetterKey == c.Worker.QueueKey {
		return fmt.Errorf("worker.dead_letter_key must differ from worker.queue_key")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	return nil
}

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// GetAddress returns the server address in host:port format
func (c *ServerConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GetAddress returns the Redis address in host:port format
func (c *RedisConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
