package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Notification NotificationConfig
	Rules        RulesConfig
	Deadline     DeadlineConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
	MaxUploadMB           int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
	ConnectRetries int
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret               string
	AccessTokenTTLMinutes   int
	PasswordResetTTLMinutes int
	BcryptCost              int
	Required                bool
}

// NotificationConfig configures delivery transports and the queue.
type NotificationConfig struct {
	EmailFrom         string
	OpsRecipient      string
	SMTPHost          string
	SMTPPort          int
	SMTPUser          string
	SMTPPassword      string
	KafkaBrokers      []string
	KafkaTopic        string
	QueueKey          string
	QueueBuffer       int
	MaxAttempts       int
	RetryDelaySeconds int
	PollTimeoutSecond int
}

// RulesConfig points at the classification and workflow document.
type RulesConfig struct {
	File string
}

// DeadlineConfig tunes the deadline monitor.
type DeadlineConfig struct {
	ThresholdDays       int
	ExcludedState       string
	ScanIntervalMinutes int
	AlertCooldownHours  int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	smtpPort, err := strconv.Atoi(getEnv("NOTIFY_SMTP_PORT", "587"))
	if err != nil {
		return nil, fmt.Errorf("invalid NOTIFY_SMTP_PORT: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "pqrs-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "5000"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
			MaxUploadMB:           getEnvAsInt("HTTP_MAX_UPLOAD_MB", 32),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
			ConnectRetries: getEnvAsInt("POSTGRES_CONNECT_RETRIES", 3),
		},
		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", true),
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:               getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes:   getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			PasswordResetTTLMinutes: getEnvAsInt("AUTH_PASSWORD_RESET_TTL_MINUTES", 30),
			BcryptCost:              getEnvAsInt("AUTH_BCRYPT_COST", 10),
			Required:                getEnvAsBool("AUTH_REQUIRED", false),
		},
		Notification: NotificationConfig{
			EmailFrom:         getEnv("NOTIFY_EMAIL_FROM", "noreply@example.com"),
			OpsRecipient:      getEnv("NOTIFY_OPS_RECIPIENT", "pqrs@example.com"),
			SMTPHost:          os.Getenv("NOTIFY_SMTP_HOST"),
			SMTPPort:          smtpPort,
			SMTPUser:          os.Getenv("NOTIFY_SMTP_USER"),
			SMTPPassword:      os.Getenv("NOTIFY_SMTP_PASSWORD"),
			KafkaBrokers:      splitList(os.Getenv("NOTIFY_KAFKA_BROKERS")),
			KafkaTopic:        getEnv("NOTIFY_KAFKA_TOPIC", "pqrs.notifications"),
			QueueKey:          getEnv("NOTIFY_QUEUE_KEY", "pqrs:notifications"),
			QueueBuffer:       getEnvAsInt("NOTIFY_QUEUE_BUFFER", 256),
			MaxAttempts:       getEnvAsInt("NOTIFY_MAX_ATTEMPTS", 3),
			RetryDelaySeconds: getEnvAsInt("NOTIFY_RETRY_DELAY_SECONDS", 2),
			PollTimeoutSecond: getEnvAsInt("NOTIFY_POLL_TIMEOUT_SECONDS", 5),
		},
		Rules: RulesConfig{
			File: os.Getenv("RULES_FILE"),
		},
		Deadline: DeadlineConfig{
			ThresholdDays:       getEnvAsInt("DEADLINE_THRESHOLD_DAYS", 2),
			ExcludedState:       getEnv("DEADLINE_EXCLUDED_STATE", "Resuelta"),
			ScanIntervalMinutes: getEnvAsInt("DEADLINE_SCAN_INTERVAL_MINUTES", 60),
			AlertCooldownHours:  getEnvAsInt("DEADLINE_ALERT_COOLDOWN_HOURS", 24),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// ScanInterval returns how often the deadline scheduler runs; zero disables it.
func (d DeadlineConfig) ScanInterval() time.Duration {
	if d.ScanIntervalMinutes <= 0 {
		return 0
	}
	return time.Duration(d.ScanIntervalMinutes) * time.Minute
}

// AlertCooldown returns the alert suppression window; zero disables suppression.
func (d DeadlineConfig) AlertCooldown() time.Duration {
	if d.AlertCooldownHours <= 0 {
		return 0
	}
	return time.Duration(d.AlertCooldownHours) * time.Hour
}

// RetryDelay is the base backoff between delivery attempts.
func (n NotificationConfig) RetryDelay() time.Duration {
	if n.RetryDelaySeconds <= 0 {
		return 0
	}
	return time.Duration(n.RetryDelaySeconds) * time.Second
}

// PollTimeout bounds a single blocking dequeue.
func (n NotificationConfig) PollTimeout() time.Duration {
	if n.PollTimeoutSecond <= 0 {
		return 5 * time.Second
	}
	return time.Duration(n.PollTimeoutSecond) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
