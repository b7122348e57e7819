package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aicarpool/carpool/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// Redis configuration
	Redis RedisConfig

	// Permission evaluation configuration
	Authz AuthzConfig

	// Allocator configuration
	Allocator AllocatorConfig

	// Rate limiting configuration
	RateLimit RateLimitConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// DatabaseConfig holds PostgreSQL settings
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds Redis settings. Redis backs the distributed rate limiter
// and the allocator's snapshot mirror; both degrade gracefully without it.
type RedisConfig struct {
	URL      string
	Password string
	DB       int
}

// Enabled reports whether a Redis endpoint is configured.
func (c RedisConfig) Enabled() bool {
	return c.URL != ""
}

// AuthzConfig holds permission evaluator tuning
type AuthzConfig struct {
	CacheTTL       time.Duration
	CacheSize      int
	ResolveTimeout time.Duration
}

// AllocatorConfig holds candidate-refresh tuning
type AllocatorConfig struct {
	Schedule       string
	RefreshTimeout time.Duration
	MirrorTTL      time.Duration
}

// RateLimitConfig holds per-group request limiting settings
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("CARPOOL_HOST", "0.0.0.0"),
			Port:            getEnv("CARPOOL_PORT", "8080"),
			ReadTimeout:     getEnvDuration("CARPOOL_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("CARPOOL_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("CARPOOL_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("CARPOOL_SHUTDOWN_TIMEOUT", 30*time.Second),
			HealthPort:      getEnv("CARPOOL_HEALTH_PORT", "9090"),
		},
		Database: DatabaseConfig{
			URL:             getEnv("CARPOOL_POSTGRES_URL", ""),
			MaxOpenConns:    getEnvInt("CARPOOL_POSTGRES_MAX_CONNS", 25),
			MaxIdleConns:    getEnvInt("CARPOOL_POSTGRES_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("CARPOOL_POSTGRES_CONN_LIFETIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			URL:      getEnv("CARPOOL_REDIS_URL", ""),
			Password: getEnv("CARPOOL_REDIS_PASSWORD", ""),
			DB:       getEnvInt("CARPOOL_REDIS_DB", 0),
		},
		Authz: AuthzConfig{
			CacheTTL:       getEnvDuration("CARPOOL_AUTHZ_CACHE_TTL", 5*time.Minute),
			CacheSize:      getEnvInt("CARPOOL_AUTHZ_CACHE_SIZE", 4096),
			ResolveTimeout: getEnvDuration("CARPOOL_AUTHZ_RESOLVE_TIMEOUT", 2*time.Second),
		},
		Allocator: AllocatorConfig{
			Schedule:       getEnv("CARPOOL_ALLOCATOR_SCHEDULE", "*/5 * * * *"),
			RefreshTimeout: getEnvDuration("CARPOOL_ALLOCATOR_REFRESH_TIMEOUT", time.Minute),
			MirrorTTL:      getEnvDuration("CARPOOL_ALLOCATOR_MIRROR_TTL", 15*time.Minute),
		},
		RateLimit: RateLimitConfig{
			Enabled:           getEnvBool("CARPOOL_RATELIMIT_ENABLED", true),
			RequestsPerMinute: getEnvInt("CARPOOL_RATELIMIT_RPM", 600),
		},
		Observability: ObservabilityConfig{
			LogLevel:       parseLogLevel(getEnv("CARPOOL_LOG_LEVEL", "info")),
			MetricsEnabled: getEnvBool("CARPOOL_METRICS_ENABLED", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}

	if c.Authz.CacheTTL <= 0 {
		return fmt.Errorf("authz cache TTL must be positive")
	}
	if c.Authz.CacheSize <= 0 {
		return fmt.Errorf("authz cache size must be positive")
	}

	if c.Allocator.Schedule == "" {
		return fmt.Errorf("allocator schedule is required")
	}

	if c.RateLimit.Enabled && c.RateLimit.RequestsPerMinute <= 0 {
		return fmt.Errorf("rate limit requests per minute must be positive")
	}
	if c.RateLimit.Enabled && !c.Redis.Enabled() {
		return fmt.Errorf("rate limiting requires a Redis URL")
	}

	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
