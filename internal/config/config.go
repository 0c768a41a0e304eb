package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

const (
	// MasterKeyPrefix is followed by the key version, e.g. RELAYGATE_MASTER_KEY_V2.
	MasterKeyPrefix = "RELAYGATE_MASTER_KEY_V"
	// WebhookSecretPrefix is followed by the upper-cased provider name.
	WebhookSecretPrefix = "RELAYGATE_WEBHOOK_SECRET_"

	minPBKDF2Iterations = 100_000
)

// State backends for counters and the idempotency ledger.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Audit sinks.
const (
	AuditSinkPostgres = "postgres"
	AuditSinkLog      = "log"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	Server     ServerConfig
	Gateway    GatewayConfig
	Webhook    WebhookConfig
	Rotation   RotationConfig
	Alert      AlertConfig
	Log        LogConfig
	Production bool
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string //nolint:gosec // G117: DB connection config
	DBName   string
	SSLMode  string
	MaxConns int
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string //nolint:gosec // G117: Redis connection config
	DB       int
}

// JWTConfig holds the key used to verify caller bearer tokens.
type JWTConfig struct {
	Secret string //nolint:gosec // G117: JWT signing secret config
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CORSOrigins  []string
}

// GatewayConfig holds RPC gateway settings.
type GatewayConfig struct {
	// RegistryPath is the YAML whitelist of callable functions.
	RegistryPath     string
	StateBackend     string
	PBKDF2Iterations int
	AuditSink        string
	AuditBuffer      int
}

// WebhookConfig holds inbound webhook settings.
type WebhookConfig struct {
	// Procedure is the stored procedure that processes verified deliveries.
	Procedure    string
	MaxBodyBytes int64
	RatePerSec   float64
	Burst        int
	Retention    time.Duration
}

// RotationConfig holds background key rotation settings.
type RotationConfig struct {
	// Schedule is a standard cron spec; empty disables scheduled rotation.
	Schedule  string
	BatchSize int
	Workers   int
}

// AlertConfig holds security alert settings. Alerts are off unless a Slack
// token is set.
type AlertConfig struct {
	SlackToken   string //nolint:gosec // G117: Slack bot token config
	SlackChannel string
	PerMinute    int
	Burst        int
}

// Enabled reports whether alert delivery is configured.
func (c AlertConfig) Enabled() bool {
	return c.SlackToken != ""
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string
	Format string
}

// Load reads configuration from environment variables.
// Defaults are safe for local development only. In production,
// sensitive values (JWT secret, DB password) must be set explicitly.
func Load() (*Config, error) {
	dbPort, err := getEnvInt("RELAYGATE_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	dbMaxConns, err := getEnvInt("RELAYGATE_DB_MAX_CONNS", 25)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	redisDB, err := getEnvInt("RELAYGATE_REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	readTimeout, err := getEnvDuration("RELAYGATE_SERVER_READ_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	writeTimeout, err := getEnvDuration("RELAYGATE_SERVER_WRITE_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	iterations, err := getEnvInt("RELAYGATE_PBKDF2_ITERATIONS", minPBKDF2Iterations)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	auditBuffer, err := getEnvInt("RELAYGATE_AUDIT_BUFFER", 1024)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	maxBody, err := getEnvInt("RELAYGATE_WEBHOOK_MAX_BODY", 1<<20)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	webhookRate, err := getEnvFloat("RELAYGATE_WEBHOOK_RATE", 20)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	webhookBurst, err := getEnvInt("RELAYGATE_WEBHOOK_BURST", 40)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	retention, err := getEnvDuration("RELAYGATE_WEBHOOK_RETENTION", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	batchSize, err := getEnvInt("RELAYGATE_ROTATION_BATCH_SIZE", 500)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	workers, err := getEnvInt("RELAYGATE_ROTATION_WORKERS", 4)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	alertRate, err := getEnvInt("RELAYGATE_ALERT_PER_MINUTE", 6)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	alertBurst, err := getEnvInt("RELAYGATE_ALERT_BURST", 3)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	production, err := getEnvBool("RELAYGATE_PRODUCTION", false)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("RELAYGATE_DB_HOST", "localhost"),
			Port:     dbPort,
			User:     getEnv("RELAYGATE_DB_USER", "relaygate"),
			Password: getEnv("RELAYGATE_DB_PASSWORD", ""),
			DBName:   getEnv("RELAYGATE_DB_NAME", "relaygate_dev"),
			SSLMode:  getEnv("RELAYGATE_DB_SSLMODE", "disable"),
			MaxConns: dbMaxConns,
		},
		Redis: RedisConfig{
			Addr:     getEnv("RELAYGATE_REDIS_ADDR", "localhost:6379"),
			Password: getEnv("RELAYGATE_REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		JWT: JWTConfig{
			Secret: getEnv("RELAYGATE_JWT_SECRET", ""),
		},
		Server: ServerConfig{
			Addr:         getEnv("RELAYGATE_SERVER_ADDR", ":8080"),
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
			CORSOrigins:  getEnvList("RELAYGATE_CORS_ORIGINS", []string{"http://localhost:5173"}),
		},
		Gateway: GatewayConfig{
			RegistryPath:     getEnv("RELAYGATE_RPC_REGISTRY", "rpc.yaml"),
			StateBackend:     getEnv("RELAYGATE_STATE_BACKEND", BackendMemory),
			PBKDF2Iterations: iterations,
			AuditSink:        getEnv("RELAYGATE_AUDIT_SINK", AuditSinkPostgres),
			AuditBuffer:      auditBuffer,
		},
		Webhook: WebhookConfig{
			Procedure:    getEnv("RELAYGATE_WEBHOOK_PROCEDURE", "process_webhook"),
			MaxBodyBytes: int64(maxBody),
			RatePerSec:   webhookRate,
			Burst:        webhookBurst,
			Retention:    retention,
		},
		Rotation: RotationConfig{
			Schedule:  getEnv("RELAYGATE_ROTATION_SCHEDULE", "@hourly"),
			BatchSize: batchSize,
			Workers:   workers,
		},
		Alert: AlertConfig{
			SlackToken:   getEnv("RELAYGATE_ALERT_SLACK_TOKEN", ""),
			SlackChannel: getEnv("RELAYGATE_ALERT_SLACK_CHANNEL", ""),
			PerMinute:    alertRate,
			Burst:        alertBurst,
		},
		Log: LogConfig{
			Level:  getEnv("RELAYGATE_LOG_LEVEL", "info"),
			Format: getEnv("RELAYGATE_LOG_FORMAT", "json"),
		},
		Production: production,
	}

	err = cfg.validate()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	return cfg, nil
}

// validate checks required fields and value bounds.
func (c *Config) validate() error {
	// JWT secret is required (no insecure default).
	if c.JWT.Secret == "" {
		return errors.New("RELAYGATE_JWT_SECRET is required")
	}
	if len(c.JWT.Secret) < 32 {
		return errors.New("RELAYGATE_JWT_SECRET must be at least 32 characters")
	}

	if c.Database.SSLMode == "disable" && c.Production {
		log.Warn().Msg("RELAYGATE_DB_SSLMODE=disable is insecure for production; set to 'require' or 'verify-full'")
	}

	// Bounds checks.
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("RELAYGATE_DB_PORT must be 1-65535, got %d", c.Database.Port)
	}
	if c.Database.MaxConns < 1 {
		return fmt.Errorf("RELAYGATE_DB_MAX_CONNS must be >= 1, got %d", c.Database.MaxConns)
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("RELAYGATE_SERVER_READ_TIMEOUT must be positive, got %s", c.Server.ReadTimeout)
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("RELAYGATE_SERVER_WRITE_TIMEOUT must be positive, got %s", c.Server.WriteTimeout)
	}

	switch c.Gateway.StateBackend {
	case BackendMemory, BackendRedis:
	default:
		return fmt.Errorf("RELAYGATE_STATE_BACKEND must be %q or %q, got %q", BackendMemory, BackendRedis, c.Gateway.StateBackend)
	}
	if c.Gateway.PBKDF2Iterations < minPBKDF2Iterations {
		return fmt.Errorf("RELAYGATE_PBKDF2_ITERATIONS must be >= %d, got %d", minPBKDF2Iterations, c.Gateway.PBKDF2Iterations)
	}
	switch c.Gateway.AuditSink {
	case AuditSinkPostgres, AuditSinkLog:
	default:
		return fmt.Errorf("RELAYGATE_AUDIT_SINK must be %q or %q, got %q", AuditSinkPostgres, AuditSinkLog, c.Gateway.AuditSink)
	}
	if c.Gateway.AuditBuffer < 1 {
		return fmt.Errorf("RELAYGATE_AUDIT_BUFFER must be >= 1, got %d", c.Gateway.AuditBuffer)
	}

	if c.Webhook.MaxBodyBytes < 1 {
		return fmt.Errorf("RELAYGATE_WEBHOOK_MAX_BODY must be >= 1, got %d", c.Webhook.MaxBodyBytes)
	}
	if !(c.Webhook.RatePerSec > 0) {
		return fmt.Errorf("RELAYGATE_WEBHOOK_RATE must be positive, got %g", c.Webhook.RatePerSec)
	}
	if c.Webhook.Burst < 1 {
		return fmt.Errorf("RELAYGATE_WEBHOOK_BURST must be >= 1, got %d", c.Webhook.Burst)
	}
	if c.Webhook.Retention <= 0 {
		return fmt.Errorf("RELAYGATE_WEBHOOK_RETENTION must be positive, got %s", c.Webhook.Retention)
	}

	if c.Rotation.Schedule != "" {
		if _, err := cron.ParseStandard(c.Rotation.Schedule); err != nil {
			return fmt.Errorf("RELAYGATE_ROTATION_SCHEDULE %q: %w", c.Rotation.Schedule, err)
		}
	}
	if c.Rotation.BatchSize < 1 {
		return fmt.Errorf("RELAYGATE_ROTATION_BATCH_SIZE must be >= 1, got %d", c.Rotation.BatchSize)
	}
	if c.Rotation.Workers < 1 {
		return fmt.Errorf("RELAYGATE_ROTATION_WORKERS must be >= 1, got %d", c.Rotation.Workers)
	}

	if c.Alert.Enabled() && c.Alert.SlackChannel == "" {
		return errors.New("RELAYGATE_ALERT_SLACK_CHANNEL is required when RELAYGATE_ALERT_SLACK_TOKEN is set")
	}
	if c.Alert.PerMinute < 0 {
		return fmt.Errorf("RELAYGATE_ALERT_PER_MINUTE must be >= 0, got %d", c.Alert.PerMinute)
	}
	if c.Alert.Burst < 1 {
		return fmt.Errorf("RELAYGATE_ALERT_BURST must be >= 1, got %d", c.Alert.Burst)
	}

	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("RELAYGATE_LOG_FORMAT must be json or text, got %q", c.Log.Format)
	}

	return nil
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as int: %w", key, v, err)
	}
	return n, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as float: %w", key, v, err)
	}
	return f, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("parsing %s=%q as bool: %w", key, v, err)
	}
	return b, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as duration: %w", key, v, err)
	}
	return d, nil
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
