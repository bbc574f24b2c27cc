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
	App       AppConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	NATS      NATSConfig
	Logger    LoggerConfig
	Queue     QueueConfig
	Worker    WorkerConfig
	Ticketing TicketingConfig
	Annotator AnnotatorConfig
	Endpoints EndpointsConfig
	Retention RetentionConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
	BodyLimitBytes        int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MigrationsDir  string
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

// NATSConfig holds JetStream connection values.
type NATSConfig struct {
	URL      string
	Stream   string
	Subject  string
	Consumer string
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string

	// Format is "json" or "console".
	Format string
}

// Queue backends.
const (
	BackendMemory      = "memory"
	BackendRedis       = "redis"
	BackendNATS        = "nats"
	BackendConnectWise = "connectwise"
)

// QueueConfig selects and tunes the work queue.
type QueueConfig struct {
	Backend           string
	Name              string
	PollInterval      time.Duration
	VisibilityTimeout time.Duration
}

// WorkerConfig sizes the worker pool and the per-key lock.
type WorkerConfig struct {
	Count     int
	LockWait  time.Duration
	LockSlack time.Duration

	// LockBackend holds the per-key locks and the global maintenance flag.
	LockBackend string
}

// TicketingConfig selects the ticketing backend and holds PSA credentials.
type TicketingConfig struct {
	Backend        string
	BaseURL        string
	Company        string
	PublicKey      string
	PrivateKey     string
	ClientID       string
	Board          string
	StatusNew      string
	StatusClosed   string
	DefaultCompany string
}

// AnnotatorConfig enables the Gemini annotator when an API key is present.
type AnnotatorConfig struct {
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Enabled reports whether an annotator can be built.
func (a AnnotatorConfig) Enabled() bool {
	return a.APIKey != ""
}

// EndpointsConfig points at a YAML or JSON-with-comments endpoint file used
// when no database is configured.
type EndpointsConfig struct {
	File string
}

// RetentionConfig bounds how long the event log is kept. Days <= 0 keeps it forever.
type RetentionConfig struct {
	Days     int
	Interval time.Duration
}

// Window returns the retention period, or 0 when pruning is off.
func (r RetentionConfig) Window() time.Duration {
	if r.Days <= 0 {
		return 0
	}
	return time.Duration(r.Days) * 24 * time.Hour
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "alertbridge"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
			BodyLimitBytes:        getEnvAsInt("HTTP_BODY_LIMIT_BYTES", 1<<20),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MigrationsDir:  getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		NATS: NATSConfig{
			URL:      getEnv("NATS_URL", "nats://127.0.0.1:4222"),
			Stream:   getEnv("NATS_STREAM", "ALERTBRIDGE"),
			Subject:  getEnv("NATS_SUBJECT", "alertbridge.events"),
			Consumer: getEnv("NATS_CONSUMER", "alertbridge-workers"),
		},
		Logger: LoggerConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: strings.ToLower(getEnv("LOG_FORMAT", "json")),
		},
		Queue: QueueConfig{
			Backend:           strings.ToLower(getEnv("QUEUE_BACKEND", BackendRedis)),
			Name:              getEnv("QUEUE_NAME", "alertbridge:events"),
			PollInterval:      getEnvAsDuration("QUEUE_POLL_INTERVAL", 500*time.Millisecond),
			VisibilityTimeout: getEnvAsDuration("QUEUE_VISIBILITY_TIMEOUT", 5*time.Minute),
		},
		Worker: WorkerConfig{
			Count:     getEnvAsInt("WORKER_COUNT", 4),
			LockWait:  getEnvAsDuration("WORKER_LOCK_WAIT", 10*time.Second),
			LockSlack: getEnvAsDuration("WORKER_LOCK_SLACK", 30*time.Second),

			LockBackend: strings.ToLower(getEnv("LOCK_BACKEND", BackendRedis)),
		},
		Ticketing: TicketingConfig{
			Backend:        strings.ToLower(getEnv("TICKETING_BACKEND", BackendConnectWise)),
			BaseURL:        getEnv("CW_URL", "https://api-na.myconnectwise.net/v4_6_release/apis/3.0"),
			Company:        os.Getenv("CW_COMPANY"),
			PublicKey:      os.Getenv("CW_PUBLIC_KEY"),
			PrivateKey:     os.Getenv("CW_PRIVATE_KEY"),
			ClientID:       os.Getenv("CW_CLIENT_ID"),
			Board:          getEnv("CW_SERVICE_BOARD", "Service Board"),
			StatusNew:      getEnv("CW_STATUS_NEW", "New"),
			StatusClosed:   getEnv("CW_STATUS_CLOSED", "Closed"),
			DefaultCompany: os.Getenv("CW_DEFAULT_COMPANY_ID"),
		},
		Annotator: AnnotatorConfig{
			APIKey:  os.Getenv("GEMINI_API_KEY"),
			Model:   getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
			Timeout: getEnvAsDuration("ANNOTATOR_TIMEOUT", 60*time.Second),
		},
		Endpoints: EndpointsConfig{
			File: getEnv("ENDPOINTS_FILE", "endpoints.yaml"),
		},
		Retention: RetentionConfig{
			Days:     getEnvAsInt("LOG_RETENTION_DAYS", 30),
			Interval: getEnvAsDuration("LOG_CLEANUP_INTERVAL", time.Hour),
		},
	}

	switch cfg.Queue.Backend {
	case BackendMemory, BackendRedis, BackendNATS:
	default:
		return nil, fmt.Errorf("invalid QUEUE_BACKEND %q", cfg.Queue.Backend)
	}
	switch cfg.Worker.LockBackend {
	case BackendMemory, BackendRedis:
	default:
		return nil, fmt.Errorf("invalid LOCK_BACKEND %q", cfg.Worker.LockBackend)
	}
	switch cfg.Ticketing.Backend {
	case BackendMemory, BackendConnectWise:
	default:
		return nil, fmt.Errorf("invalid TICKETING_BACKEND %q", cfg.Ticketing.Backend)
	}

	if cfg.Retention.Interval <= 0 {
		return nil, fmt.Errorf("invalid LOG_CLEANUP_INTERVAL %s", cfg.Retention.Interval)
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

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return parsed
}
