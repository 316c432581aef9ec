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

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

type Config struct {
	ServiceName string
	LogLevel    string
	HTTPAddr    string
	GRPCAddr    string
	// InstanceID tags fan-out envelopes so an instance ignores its own echoes.
	InstanceID string

	StorageDriver string
	DatabaseURL   string
	DBAutoMigrate bool

	RedisAddr string

	KafkaBrokers  []string
	KafkaTopic    string
	OutboxEnabled bool

	NotifyRedisAddr string
	NotifyQueue     string

	JWTSecret   string
	JWTIssuer   string
	JWTAudience string

	RateLimitRequests int
	RateLimitWindow   time.Duration
	AllowedOrigins    []string

	MetricsEnabled bool
	TracingEnabled bool
	JaegerURL      string

	IdempotencyTTL           time.Duration
	IdempotencySweepInterval time.Duration
}

// Load reads the process environment, after an optional .env file.
func Load() *Config {
	_ = godotenv.Load()

	hostname, _ := os.Hostname()

	return &Config{
		ServiceName: getEnv("SERVICE_NAME", "messaging"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		HTTPAddr:    fixPort(getEnv("HTTP_ADDR", ":8080")),
		GRPCAddr:    fixPort(getEnv("GRPC_ADDR", ":50053")),
		InstanceID:  getEnv("INSTANCE_ID", hostname),

		StorageDriver: strings.ToLower(getEnv("STORAGE_DRIVER", StorageMemory)),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		DBAutoMigrate: getEnvBool("DB_AUTO_MIGRATE", true),

		RedisAddr: getEnv("REDIS_ADDR", ""),

		KafkaBrokers:  splitList(getEnv("KAFKA_BROKERS", "")),
		KafkaTopic:    getEnv("KAFKA_TOPIC", "messaging.events"),
		OutboxEnabled: getEnvBool("OUTBOX_ENABLED", false),

		NotifyRedisAddr: getEnv("NOTIFY_REDIS_ADDR", ""),
		NotifyQueue:     getEnv("NOTIFY_QUEUE", "notifications"),

		JWTSecret:   mustEnv("JWT_SECRET"),
		JWTIssuer:   getEnv("JWT_ISSUER", "realchat-auth"),
		JWTAudience: getEnv("JWT_AUDIENCE", "realchat-clients"),

		RateLimitRequests: getEnvInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow:   getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		AllowedOrigins:    splitList(getEnv("WS_ALLOWED_ORIGINS", "*")),

		MetricsEnabled: getEnvBool("METRICS_ENABLED", false),
		TracingEnabled: getEnvBool("TRACING_ENABLED", false),
		JaegerURL:      getEnv("JAEGER_URL", "http://localhost:14268/api/traces"),

		IdempotencyTTL:           getEnvDuration("IDEMPOTENCY_TTL", 24*time.Hour),
		IdempotencySweepInterval: getEnvDuration("IDEMPOTENCY_SWEEP_INTERVAL", 10*time.Minute),
	}
}

// Validate reports settings that cannot work together.
func (c *Config) Validate() error {
	var errs []error

	switch c.StorageDriver {
	case StorageMemory:
		if c.OutboxEnabled {
			errs = append(errs, errors.New("OUTBOX_ENABLED requires STORAGE_DRIVER=postgres"))
		}
	case StoragePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for postgres storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver))
	}

	if c.OutboxEnabled && len(c.KafkaBrokers) == 0 {
		errs = append(errs, errors.New("OUTBOX_ENABLED requires KAFKA_BROKERS"))
	}
	if c.TracingEnabled && c.JaegerURL == "" {
		errs = append(errs, errors.New("TRACING_ENABLED requires JAEGER_URL"))
	}
	if c.RateLimitRequests <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_REQUESTS must be positive"))
	}
	if c.IdempotencyTTL <= 0 {
		errs = append(errs, errors.New("IDEMPOTENCY_TTL must be positive"))
	}

	return errors.Join(errs...)
}

func fixPort(port string) string {
	if port != "" && !strings.Contains(port, ":") {
		return ":" + port
	}
	return port
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func mustEnv(k string) string {
	v := os.Getenv(k)
	if v == "" {
		panic("missing required env: " + k)
	}
	return v
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v == "true"
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
