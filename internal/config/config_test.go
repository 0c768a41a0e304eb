package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// Helper function tests
// ---------------------------------------------------------------------------

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		setVal   *string // nil = don't set; pointer to distinguish "" from unset
		fallback string
		want     string
	}{
		{name: "returns fallback when unset", key: "RELAYGATE_TEST_GETENV_UNSET", setVal: nil, fallback: "default", want: "default"},
		{name: "returns env value when set", key: "RELAYGATE_TEST_GETENV_SET", setVal: strPtr("custom"), fallback: "default", want: "custom"},
		{name: "returns fallback when empty string", key: "RELAYGATE_TEST_GETENV_EMPTY", setVal: strPtr(""), fallback: "default", want: "default"},
		{name: "preserves whitespace", key: "RELAYGATE_TEST_GETENV_WS", setVal: strPtr("  spaced  "), fallback: "x", want: "  spaced  "},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.setVal != nil {
				t.Setenv(tc.key, *tc.setVal)
			}

			got := getEnv(tc.key, tc.fallback)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestGetEnvInt(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		setVal   *string
		fallback int
		want     int
		wantErr  bool
	}{
		{name: "returns fallback when unset", key: "RELAYGATE_TEST_INT_UNSET", setVal: nil, fallback: 42, want: 42},
		{name: "parses valid int", key: "RELAYGATE_TEST_INT_VALID", setVal: strPtr("8080"), fallback: 0, want: 8080},
		{name: "parses negative int", key: "RELAYGATE_TEST_INT_NEG", setVal: strPtr("-1"), fallback: 0, want: -1},
		{name: "parses zero", key: "RELAYGATE_TEST_INT_ZERO", setVal: strPtr("0"), fallback: 99, want: 0},
		{name: "returns fallback for empty string", key: "RELAYGATE_TEST_INT_EMPTY", setVal: strPtr(""), fallback: 25, want: 25},
		{name: "errors on non-numeric", key: "RELAYGATE_TEST_INT_NAN", setVal: strPtr("abc"), fallback: 0, wantErr: true},
		{name: "errors on float", key: "RELAYGATE_TEST_INT_FLOAT", setVal: strPtr("3.14"), fallback: 0, wantErr: true},
		{name: "errors on hex", key: "RELAYGATE_TEST_INT_HEX", setVal: strPtr("0xFF"), fallback: 0, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.setVal != nil {
				t.Setenv(tc.key, *tc.setVal)
			}

			got, err := getEnvInt(tc.key, tc.fallback)
			if tc.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.key)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		setVal   *string
		fallback bool
		want     bool
		wantErr  bool
	}{
		{name: "returns fallback when unset", key: "RELAYGATE_TEST_BOOL_UNSET", setVal: nil, fallback: false, want: false},
		{name: "fallback true when unset", key: "RELAYGATE_TEST_BOOL_UNSETTRUE", setVal: nil, fallback: true, want: true},
		{name: "parses true", key: "RELAYGATE_TEST_BOOL_TRUE", setVal: strPtr("true"), fallback: false, want: true},
		{name: "parses false", key: "RELAYGATE_TEST_BOOL_FALSE", setVal: strPtr("false"), fallback: true, want: false},
		{name: "parses 1", key: "RELAYGATE_TEST_BOOL_ONE", setVal: strPtr("1"), fallback: false, want: true},
		{name: "parses 0", key: "RELAYGATE_TEST_BOOL_ZERO", setVal: strPtr("0"), fallback: true, want: false},
		{name: "parses TRUE uppercase", key: "RELAYGATE_TEST_BOOL_UPPER", setVal: strPtr("TRUE"), fallback: false, want: true},
		{name: "parses t", key: "RELAYGATE_TEST_BOOL_T", setVal: strPtr("t"), fallback: false, want: true},
		{name: "errors on invalid", key: "RELAYGATE_TEST_BOOL_INV", setVal: strPtr("yes"), fallback: false, wantErr: true},
		{name: "errors on numeric non-bool", key: "RELAYGATE_TEST_BOOL_NUM", setVal: strPtr("2"), fallback: false, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.setVal != nil {
				t.Setenv(tc.key, *tc.setVal)
			}

			got, err := getEnvBool(tc.key, tc.fallback)
			if tc.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.key)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		setVal   *string
		fallback time.Duration
		want     time.Duration
		wantErr  bool
	}{
		{name: "returns fallback when unset", key: "RELAYGATE_TEST_DUR_UNSET", setVal: nil, fallback: 5 * time.Second, want: 5 * time.Second},
		{name: "parses seconds", key: "RELAYGATE_TEST_DUR_SEC", setVal: strPtr("30s"), fallback: 0, want: 30 * time.Second},
		{name: "parses minutes", key: "RELAYGATE_TEST_DUR_MIN", setVal: strPtr("15m"), fallback: 0, want: 15 * time.Minute},
		{name: "parses hours", key: "RELAYGATE_TEST_DUR_HR", setVal: strPtr("2h"), fallback: 0, want: 2 * time.Hour},
		{name: "parses composite", key: "RELAYGATE_TEST_DUR_COMP", setVal: strPtr("1h30m"), fallback: 0, want: 90 * time.Minute},
		{name: "parses nanosecond", key: "RELAYGATE_TEST_DUR_NS", setVal: strPtr("1ns"), fallback: 0, want: time.Nanosecond},
		{name: "parses zero", key: "RELAYGATE_TEST_DUR_ZERO", setVal: strPtr("0s"), fallback: 5 * time.Second, want: 0},
		{name: "errors on invalid", key: "RELAYGATE_TEST_DUR_INV", setVal: strPtr("notaduration"), fallback: 0, wantErr: true},
		{name: "errors on bare number", key: "RELAYGATE_TEST_DUR_BARE", setVal: strPtr("30"), fallback: 0, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.setVal != nil {
				t.Setenv(tc.key, *tc.setVal)
			}

			got, err := getEnvDuration(tc.key, tc.fallback)
			if tc.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.key)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestGetEnvFloat(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		setVal   *string
		fallback float64
		want     float64
		wantErr  bool
	}{
		{name: "returns fallback when unset", key: "RELAYGATE_TEST_FLOAT_UNSET", fallback: 2.5, want: 2.5},
		{name: "parses decimal", key: "RELAYGATE_TEST_FLOAT_DEC", setVal: strPtr("0.5"), want: 0.5},
		{name: "parses integer", key: "RELAYGATE_TEST_FLOAT_INT", setVal: strPtr("20"), want: 20},
		{name: "errors on invalid", key: "RELAYGATE_TEST_FLOAT_INV", setVal: strPtr("fast"), wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.setVal != nil {
				t.Setenv(tc.key, *tc.setVal)
			}

			got, err := getEnvFloat(tc.key, tc.fallback)
			if tc.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.key)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tc.want, got, 1e-9)
		})
	}
}

// ---------------------------------------------------------------------------
// Load() error cases
// ---------------------------------------------------------------------------

const testJWTSecret = "test-secret-that-is-at-least-32ch"

func TestLoad_MissingJWTSecret(t *testing.T) {
	// All defaults apply; JWT secret is empty => must fail.
	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "RELAYGATE_JWT_SECRET")
}

func TestLoad_InvalidEnvVars(t *testing.T) {
	tests := []struct {
		name   string
		envKey string
		envVal string
	}{
		{name: "DB_PORT not a number", envKey: "RELAYGATE_DB_PORT", envVal: "abc"},
		{name: "DB_PORT zero", envKey: "RELAYGATE_DB_PORT", envVal: "0"},
		{name: "DB_PORT too high", envKey: "RELAYGATE_DB_PORT", envVal: "65536"},
		{name: "DB_MAX_CONNS zero", envKey: "RELAYGATE_DB_MAX_CONNS", envVal: "0"},
		{name: "DB_MAX_CONNS not a number", envKey: "RELAYGATE_DB_MAX_CONNS", envVal: "many"},
		{name: "SERVER_READ_TIMEOUT invalid", envKey: "RELAYGATE_SERVER_READ_TIMEOUT", envVal: "notduration"},
		{name: "SERVER_WRITE_TIMEOUT zero", envKey: "RELAYGATE_SERVER_WRITE_TIMEOUT", envVal: "0s"},
		{name: "REDIS_DB not a number", envKey: "RELAYGATE_REDIS_DB", envVal: "abc"},
		{name: "STATE_BACKEND unknown", envKey: "RELAYGATE_STATE_BACKEND", envVal: "etcd"},
		{name: "AUDIT_SINK unknown", envKey: "RELAYGATE_AUDIT_SINK", envVal: "kafka"},
		{name: "PBKDF2_ITERATIONS too low", envKey: "RELAYGATE_PBKDF2_ITERATIONS", envVal: "99999"},
		{name: "PBKDF2_ITERATIONS not a number", envKey: "RELAYGATE_PBKDF2_ITERATIONS", envVal: "lots"},
		{name: "AUDIT_BUFFER zero", envKey: "RELAYGATE_AUDIT_BUFFER", envVal: "0"},
		{name: "WEBHOOK_MAX_BODY zero", envKey: "RELAYGATE_WEBHOOK_MAX_BODY", envVal: "0"},
		{name: "WEBHOOK_RATE zero", envKey: "RELAYGATE_WEBHOOK_RATE", envVal: "0"},
		{name: "WEBHOOK_RATE NaN", envKey: "RELAYGATE_WEBHOOK_RATE", envVal: "NaN"},
		{name: "WEBHOOK_BURST zero", envKey: "RELAYGATE_WEBHOOK_BURST", envVal: "0"},
		{name: "WEBHOOK_RETENTION invalid", envKey: "RELAYGATE_WEBHOOK_RETENTION", envVal: "forever"},
		{name: "ROTATION_SCHEDULE invalid", envKey: "RELAYGATE_ROTATION_SCHEDULE", envVal: "every tuesday"},
		{name: "ROTATION_BATCH_SIZE zero", envKey: "RELAYGATE_ROTATION_BATCH_SIZE", envVal: "0"},
		{name: "ROTATION_WORKERS zero", envKey: "RELAYGATE_ROTATION_WORKERS", envVal: "0"},
		{name: "ALERT_SLACK_TOKEN without channel", envKey: "RELAYGATE_ALERT_SLACK_TOKEN", envVal: "xoxb-test"},
		{name: "ALERT_PER_MINUTE negative", envKey: "RELAYGATE_ALERT_PER_MINUTE", envVal: "-1"},
		{name: "ALERT_BURST zero", envKey: "RELAYGATE_ALERT_BURST", envVal: "0"},
		{name: "LOG_FORMAT unknown", envKey: "RELAYGATE_LOG_FORMAT", envVal: "xml"},
		{name: "PRODUCTION not a bool", envKey: "RELAYGATE_PRODUCTION", envVal: "yes"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			// Always set JWT secret so failures are from the var under test.
			t.Setenv("RELAYGATE_JWT_SECRET", testJWTSecret)
			t.Setenv(tc.envKey, tc.envVal)

			cfg, err := Load()
			require.Error(t, err, "expected error for %s=%q", tc.envKey, tc.envVal)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), tc.envKey)
		})
	}
}

// ---------------------------------------------------------------------------
// Load() happy paths
// ---------------------------------------------------------------------------

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("RELAYGATE_JWT_SECRET", testJWTSecret)

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "relaygate", cfg.Database.User)
	assert.Equal(t, "relaygate_dev", cfg.Database.DBName)
	assert.Equal(t, 25, cfg.Database.MaxConns)

	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 0, cfg.Redis.DB)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 10*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.Server.CORSOrigins)

	assert.Equal(t, "rpc.yaml", cfg.Gateway.RegistryPath)
	assert.Equal(t, BackendMemory, cfg.Gateway.StateBackend)
	assert.Equal(t, AuditSinkPostgres, cfg.Gateway.AuditSink)
	assert.Equal(t, 100_000, cfg.Gateway.PBKDF2Iterations)
	assert.Equal(t, 1024, cfg.Gateway.AuditBuffer)

	assert.Equal(t, "process_webhook", cfg.Webhook.Procedure)
	assert.Equal(t, int64(1<<20), cfg.Webhook.MaxBodyBytes)
	assert.InDelta(t, 20.0, cfg.Webhook.RatePerSec, 1e-9)
	assert.Equal(t, 40, cfg.Webhook.Burst)
	assert.Equal(t, 24*time.Hour, cfg.Webhook.Retention)

	assert.Equal(t, "@hourly", cfg.Rotation.Schedule)
	assert.Equal(t, 500, cfg.Rotation.BatchSize)
	assert.Equal(t, 4, cfg.Rotation.Workers)

	assert.False(t, cfg.Alert.Enabled())
	assert.Equal(t, 6, cfg.Alert.PerMinute)
	assert.Equal(t, 3, cfg.Alert.Burst)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.False(t, cfg.Production)
}

func TestLoad_AllCustomValues(t *testing.T) {
	envs := map[string]string{
		"RELAYGATE_DB_HOST":              "db.prod.internal",
		"RELAYGATE_DB_PORT":              "5433",
		"RELAYGATE_DB_SSLMODE":           "require",
		"RELAYGATE_REDIS_ADDR":           "redis.prod:6380",
		"RELAYGATE_REDIS_DB":             "3",
		"RELAYGATE_JWT_SECRET":           "prod-jwt-secret-256-bits-long!!!",
		"RELAYGATE_SERVER_ADDR":          ":9090",
		"RELAYGATE_CORS_ORIGINS":         "https://a.example, https://b.example",
		"RELAYGATE_RPC_REGISTRY":         "/etc/relaygate/rpc.yaml",
		"RELAYGATE_STATE_BACKEND":        "redis",
		"RELAYGATE_PBKDF2_ITERATIONS":    "210000",
		"RELAYGATE_AUDIT_SINK":           "log",
		"RELAYGATE_AUDIT_BUFFER":         "64",
		"RELAYGATE_WEBHOOK_PROCEDURE":    "ingest_event",
		"RELAYGATE_WEBHOOK_MAX_BODY":     "65536",
		"RELAYGATE_WEBHOOK_RATE":         "2.5",
		"RELAYGATE_WEBHOOK_BURST":        "5",
		"RELAYGATE_WEBHOOK_RETENTION":    "72h",
		"RELAYGATE_ROTATION_SCHEDULE":    "*/15 * * * *",
		"RELAYGATE_ROTATION_BATCH_SIZE":  "50",
		"RELAYGATE_ROTATION_WORKERS":     "8",
		"RELAYGATE_ALERT_SLACK_TOKEN":    "xoxb-test",
		"RELAYGATE_ALERT_SLACK_CHANNEL":  "C0SECURITY",
		"RELAYGATE_ALERT_PER_MINUTE":     "12",
		"RELAYGATE_ALERT_BURST":          "4",
		"RELAYGATE_LOG_LEVEL":            "debug",
		"RELAYGATE_LOG_FORMAT":           "text",
		"RELAYGATE_PRODUCTION":           "true",
		"RELAYGATE_SERVER_READ_TIMEOUT":  "5s",
		"RELAYGATE_SERVER_WRITE_TIMEOUT": "15s",
	}

	for k, v := range envs {
		t.Setenv(k, v)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "db.prod.internal", cfg.Database.Host)
	assert.Equal(t, 5433, cfg.Database.Port)
	assert.Equal(t, "require", cfg.Database.SSLMode)
	assert.Equal(t, "redis.prod:6380", cfg.Redis.Addr)
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 15*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, "/etc/relaygate/rpc.yaml", cfg.Gateway.RegistryPath)
	assert.Equal(t, BackendRedis, cfg.Gateway.StateBackend)
	assert.Equal(t, 210000, cfg.Gateway.PBKDF2Iterations)
	assert.Equal(t, AuditSinkLog, cfg.Gateway.AuditSink)
	assert.Equal(t, 64, cfg.Gateway.AuditBuffer)
	assert.Equal(t, "ingest_event", cfg.Webhook.Procedure)
	assert.Equal(t, int64(65536), cfg.Webhook.MaxBodyBytes)
	assert.InDelta(t, 2.5, cfg.Webhook.RatePerSec, 1e-9)
	assert.Equal(t, 5, cfg.Webhook.Burst)
	assert.Equal(t, 72*time.Hour, cfg.Webhook.Retention)
	assert.Equal(t, "*/15 * * * *", cfg.Rotation.Schedule)
	assert.Equal(t, 50, cfg.Rotation.BatchSize)
	assert.Equal(t, 8, cfg.Rotation.Workers)
	assert.True(t, cfg.Alert.Enabled())
	assert.Equal(t, "C0SECURITY", cfg.Alert.SlackChannel)
	assert.Equal(t, 12, cfg.Alert.PerMinute)
	assert.Equal(t, 4, cfg.Alert.Burst)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.True(t, cfg.Production)
}

// ---------------------------------------------------------------------------
// DSN() output format
// ---------------------------------------------------------------------------

func TestDatabaseConfig_DSN(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  DatabaseConfig
		want string
	}{
		{
			name: "default dev values",
			cfg: DatabaseConfig{
				Host: "localhost", Port: 5432, User: "relaygate",
				Password: "", DBName: "relaygate_dev", SSLMode: "disable",
			},
			want: "host=localhost port=5432 user=relaygate password= dbname=relaygate_dev sslmode=disable",
		},
		{
			name: "production values",
			cfg: DatabaseConfig{
				Host: "db.prod", Port: 5433, User: "admin",
				Password: "p@ss!", DBName: "relaygate", SSLMode: "require",
			},
			want: "host=db.prod port=5433 user=admin password=p@ss! dbname=relaygate sslmode=require",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, tc.cfg.DSN())
		})
	}
}

// ---------------------------------------------------------------------------
// validate() direct tests
// ---------------------------------------------------------------------------

func TestValidate(t *testing.T) {
	t.Parallel()

	// validBase returns a Config that passes validation.
	validBase := func() *Config {
		return &Config{
			Database: DatabaseConfig{Port: 5432, MaxConns: 25},
			JWT:      JWTConfig{Secret: testJWTSecret},
			Server:   ServerConfig{ReadTimeout: 10 * time.Second, WriteTimeout: 30 * time.Second},
			Gateway:  GatewayConfig{StateBackend: BackendMemory, PBKDF2Iterations: 100_000, AuditSink: AuditSinkPostgres, AuditBuffer: 1},
			Webhook:  WebhookConfig{MaxBodyBytes: 1, RatePerSec: 1, Burst: 1, Retention: time.Hour},
			Rotation: RotationConfig{BatchSize: 1, Workers: 1},
			Alert:    AlertConfig{Burst: 1},
			Log:      LogConfig{Format: "json"},
		}
	}

	t.Run("valid config passes", func(t *testing.T) {
		t.Parallel()
		assert.NoError(t, validBase().validate())
	})

	t.Run("JWT secret too short fails", func(t *testing.T) {
		t.Parallel()
		c := validBase()
		c.JWT.Secret = "only-31-characters-long-secret!"
		assert.ErrorContains(t, c.validate(), "RELAYGATE_JWT_SECRET")
	})

	t.Run("empty rotation schedule disables rotation", func(t *testing.T) {
		t.Parallel()
		c := validBase()
		c.Rotation.Schedule = ""
		assert.NoError(t, c.validate())
	})

	t.Run("cron descriptor passes", func(t *testing.T) {
		t.Parallel()
		c := validBase()
		c.Rotation.Schedule = "@every 30m"
		assert.NoError(t, c.validate())
	})

	t.Run("alert channel required with token", func(t *testing.T) {
		t.Parallel()
		c := validBase()
		c.Alert.SlackToken = "xoxb-test"
		assert.ErrorContains(t, c.validate(), "RELAYGATE_ALERT_SLACK_CHANNEL")
		c.Alert.SlackChannel = "C1"
		assert.NoError(t, c.validate())
	})

	t.Run("sslmode disable in production only warns", func(t *testing.T) {
		t.Parallel()
		c := validBase()
		c.Production = true
		c.Database.SSLMode = "disable"
		assert.NoError(t, c.validate())
	})
}

// ---------------------------------------------------------------------------
// Test helper
// ---------------------------------------------------------------------------

func strPtr(s string) *string {
	return &s
}
