package config

import (
	"errors"
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
	Analysis     AnalysisConfig
	Worker       WorkerConfig
	Queue        QueueConfig
	Notification NotificationConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AnalysisConfig is passed through to the analysis provider. Only Timeout
// influences pipeline behavior.
type AnalysisConfig struct {
	APIKey      string
	BaseURL     string
	APIVersion  string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// WorkerConfig tunes the enrichment worker pool.
type WorkerConfig struct {
	Embedded      bool
	Concurrency   int
	MaxAttempts   int
	RetryDelay    time.Duration
	HardDeadline  time.Duration
	SoftDeadline  time.Duration
	LeaseTimeout  time.Duration
	PollInterval  time.Duration
	SweepInterval time.Duration
	StaleAfter    time.Duration
}

// QueueConfig selects the task queue backend.
type QueueConfig struct {
	Backend   string
	KeyPrefix string
}

// NotificationConfig controls live subscriber connections.
type NotificationConfig struct {
	HeartbeatInterval time.Duration
	WriteTimeout      time.Duration
	PongWait          time.Duration
	RelayChannel      string
}

const (
	QueueBackendRedis  = "redis"
	QueueBackendMemory = "memory"
)

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	analysisTimeout := getEnvAsInt("AI_TIMEOUT", 30)

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "complaint-triage"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "1.0.0"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Analysis: AnalysisConfig{
			APIKey:      os.Getenv("ANTHROPIC_API_KEY"),
			BaseURL:     getEnv("ANTHROPIC_BASE_URL", "https://api.anthropic.com"),
			APIVersion:  getEnv("ANTHROPIC_API_VERSION", "2023-06-01"),
			Model:       getEnv("AI_MODEL", "claude-sonnet-4-20250514"),
			MaxTokens:   getEnvAsInt("AI_MAX_TOKENS", 1500),
			Temperature: getEnvAsFloat("AI_TEMPERATURE", 0.7),
			Timeout:     time.Duration(analysisTimeout) * time.Second,
		},
		Worker: WorkerConfig{
			Embedded:      getEnvAsBool("WORKER_EMBEDDED", true),
			Concurrency:   getEnvAsInt("WORKER_CONCURRENCY", 4),
			MaxAttempts:   getEnvAsInt("WORKER_MAX_ATTEMPTS", 3),
			RetryDelay:    getEnvAsDuration("WORKER_RETRY_DELAY", 10*time.Second),
			HardDeadline:  getEnvAsDuration("WORKER_HARD_DEADLINE", time.Duration(analysisTimeout)*time.Second),
			SoftDeadline:  getEnvAsDuration("WORKER_SOFT_DEADLINE", 25*time.Second),
			LeaseTimeout:  getEnvAsDuration("WORKER_LEASE_TIMEOUT", 60*time.Second),
			PollInterval:  getEnvAsDuration("WORKER_POLL_INTERVAL", time.Second),
			SweepInterval: getEnvAsDuration("WORKER_SWEEP_INTERVAL", time.Minute),
			StaleAfter:    getEnvAsDuration("WORKER_STALE_AFTER", 5*time.Minute),
		},
		Queue: QueueConfig{
			Backend:   strings.ToLower(getEnv("QUEUE_BACKEND", QueueBackendRedis)),
			KeyPrefix: getEnv("QUEUE_KEY_PREFIX", "triage"),
		},
		Notification: NotificationConfig{
			HeartbeatInterval: getEnvAsDuration("WS_HEARTBEAT_INTERVAL", 54*time.Second),
			WriteTimeout:      getEnvAsDuration("WS_WRITE_TIMEOUT", 10*time.Second),
			PongWait:          getEnvAsDuration("WS_PONG_WAIT", 60*time.Second),
			RelayChannel:      getEnv("EVENTS_RELAY_CHANNEL", "triage:events"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints that defaults alone cannot guarantee.
func (c *Config) Validate() error {
	w := c.Worker
	var errs []error
	if w.Concurrency < 1 {
		errs = append(errs, errors.New("WORKER_CONCURRENCY must be at least 1"))
	}
	if w.MaxAttempts < 1 {
		errs = append(errs, errors.New("WORKER_MAX_ATTEMPTS must be at least 1"))
	}
	if w.HardDeadline <= 0 {
		errs = append(errs, errors.New("WORKER_HARD_DEADLINE must be positive"))
	}
	if w.SoftDeadline <= 0 || w.SoftDeadline >= w.HardDeadline {
		errs = append(errs, errors.New("WORKER_SOFT_DEADLINE must be positive and below the hard deadline"))
	}
	if w.LeaseTimeout <= w.HardDeadline {
		errs = append(errs, errors.New("WORKER_LEASE_TIMEOUT must exceed the hard deadline"))
	}
	if w.StaleAfter <= w.HardDeadline {
		errs = append(errs, errors.New("WORKER_STALE_AFTER must exceed the hard deadline"))
	}
	if w.PollInterval <= 0 {
		errs = append(errs, errors.New("WORKER_POLL_INTERVAL must be positive"))
	}
	if !w.Embedded && c.Postgres.DSN == "" {
		errs = append(errs, errors.New("WORKER_EMBEDDED=false requires POSTGRES_DSN"))
	}
	switch c.Queue.Backend {
	case QueueBackendRedis:
	case QueueBackendMemory:
		if !w.Embedded {
			errs = append(errs, errors.New("QUEUE_BACKEND=memory requires WORKER_EMBEDDED=true"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown QUEUE_BACKEND %q", c.Queue.Backend))
	}
	return errors.Join(errs...)
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

func getEnvAsFloat(key string, fallback float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(val, 64)
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

// getEnvAsDuration accepts Go duration strings ("10s") or bare seconds ("10").
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return parsed
}
