package config

import (
	"os"
	"testing"
	"time"

	"github.com/aicarpool/carpool/pkg/observability"
)

// TestGetEnv tests the getEnv helper function
func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
	}{
		{
			name:         "returns env value when set",
			key:          "TEST_VAR",
			defaultValue: "default",
			envValue:     "custom",
			want:         "custom",
		},
		{
			name:         "returns default when env not set",
			key:          "TEST_VAR_NOT_SET",
			defaultValue: "default",
			envValue:     "",
			want:         "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.key, tt.envValue)
				defer os.Unsetenv(tt.key)
			}

			got := getEnv(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestGetEnvBool tests the getEnvBool helper function
func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue bool
		envValue     string
		want         bool
	}{
		{
			name:         "returns true for 'true'",
			key:          "TEST_BOOL",
			defaultValue: false,
			envValue:     "true",
			want:         true,
		},
		{
			name:         "returns true for '1'",
			key:          "TEST_BOOL",
			defaultValue: false,
			envValue:     "1",
			want:         true,
		},
		{
			name:         "returns false for 'false'",
			key:          "TEST_BOOL",
			defaultValue: true,
			envValue:     "false",
			want:         false,
		},
		{
			name:         "returns default when not set",
			key:          "TEST_BOOL_NOT_SET",
			defaultValue: true,
			envValue:     "",
			want:         true,
		},
		{
			name:         "returns true for 'TRUE' (case insensitive)",
			key:          "TEST_BOOL",
			defaultValue: false,
			envValue:     "TRUE",
			want:         true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.key, tt.envValue)
				defer os.Unsetenv(tt.key)
			} else {
				os.Unsetenv(tt.key)
			}

			got := getEnvBool(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvBool() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestGetEnvInt tests the getEnvInt helper function
func TestGetEnvInt(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue int
		envValue     string
		want         int
	}{
		{
			name:         "returns parsed int",
			key:          "TEST_INT",
			defaultValue: 10,
			envValue:     "42",
			want:         42,
		},
		{
			name:         "returns default for invalid int",
			key:          "TEST_INT",
			defaultValue: 10,
			envValue:     "invalid",
			want:         10,
		},
		{
			name:         "returns default when not set",
			key:          "TEST_INT_NOT_SET",
			defaultValue: 10,
			envValue:     "",
			want:         10,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.key, tt.envValue)
				defer os.Unsetenv(tt.key)
			} else {
				os.Unsetenv(tt.key)
			}

			got := getEnvInt(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvInt() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestGetEnvDuration tests the getEnvDuration helper function
func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue time.Duration
		envValue     string
		want         time.Duration
	}{
		{
			name:         "returns parsed duration",
			key:          "TEST_DURATION",
			defaultValue: 10 * time.Second,
			envValue:     "30s",
			want:         30 * time.Second,
		},
		{
			name:         "returns default for invalid duration",
			key:          "TEST_DURATION",
			defaultValue: 10 * time.Second,
			envValue:     "invalid",
			want:         10 * time.Second,
		},
		{
			name:         "returns default when not set",
			key:          "TEST_DURATION_NOT_SET",
			defaultValue: 10 * time.Second,
			envValue:     "",
			want:         10 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.key, tt.envValue)
				defer os.Unsetenv(tt.key)
			} else {
				os.Unsetenv(tt.key)
			}

			got := getEnvDuration(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvDuration() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestParseLogLevel tests the parseLogLevel function
func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		name  string
		level string
		want  observability.LogLevel
	}{
		{
			name:  "debug",
			level: "debug",
			want:  observability.DebugLevel,
		},
		{
			name:  "DEBUG uppercase",
			level: "DEBUG",
			want:  observability.DebugLevel,
		},
		{
			name:  "info",
			level: "info",
			want:  observability.InfoLevel,
		},
		{
			name:  "warn",
			level: "warn",
			want:  observability.WarnLevel,
		},
		{
			name:  "warning",
			level: "warning",
			want:  observability.WarnLevel,
		},
		{
			name:  "error",
			level: "error",
			want:  observability.ErrorLevel,
		},
		{
			name:  "invalid defaults to info",
			level: "invalid",
			want:  observability.InfoLevel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseLogLevel(tt.level)
			if got != tt.want {
				t.Errorf("parseLogLevel() = %v, want %v", got, tt.want)
			}
		})
	}
}

func validConfig() Config {
	return Config{
		Server: ServerConfig{
			Port:       "8080",
			HealthPort: "9090",
		},
		Database: DatabaseConfig{
			URL: "postgres://localhost/carpool",
		},
		Authz: AuthzConfig{
			CacheTTL:  5 * time.Minute,
			CacheSize: 4096,
		},
		Allocator: AllocatorConfig{
			Schedule: "*/5 * * * *",
		},
		Redis: RedisConfig{
			URL: "redis://localhost:6379",
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 600,
		},
	}
}

// TestConfigValidate tests the Config.Validate method
func TestConfigValidate(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		cfg := validConfig()
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate() unexpected error = %v", err)
		}
	})

	t.Run("missing server port", func(t *testing.T) {
		cfg := validConfig()
		cfg.Server.Port = ""
		err := cfg.Validate()
		if err == nil {
			t.Error("Validate() expected error, got nil")
		}
		if err != nil && err.Error() != "server port is required" {
			t.Errorf("Validate() error = %v, want 'server port is required'", err.Error())
		}
	})

	t.Run("missing health port", func(t *testing.T) {
		cfg := validConfig()
		cfg.Server.HealthPort = ""
		err := cfg.Validate()
		if err == nil {
			t.Error("Validate() expected error, got nil")
		}
		if err != nil && err.Error() != "health port is required" {
			t.Errorf("Validate() error = %v, want 'health port is required'", err.Error())
		}
	})

	t.Run("same server and health port", func(t *testing.T) {
		cfg := validConfig()
		cfg.Server.HealthPort = cfg.Server.Port
		err := cfg.Validate()
		if err == nil {
			t.Error("Validate() expected error, got nil")
		}
		if err != nil && err.Error() != "server port and health port must be different" {
			t.Errorf("Validate() error = %v, want 'server port and health port must be different'", err.Error())
		}
	})

	t.Run("missing postgres url", func(t *testing.T) {
		cfg := validConfig()
		cfg.Database.URL = ""
		err := cfg.Validate()
		if err == nil {
			t.Error("Validate() expected error, got nil")
		}
		if err != nil && err.Error() != "postgres URL is required" {
			t.Errorf("Validate() error = %v, want 'postgres URL is required'", err.Error())
		}
	})

	t.Run("non-positive cache TTL", func(t *testing.T) {
		cfg := validConfig()
		cfg.Authz.CacheTTL = 0
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error, got nil")
		}
	})

	t.Run("non-positive cache size", func(t *testing.T) {
		cfg := validConfig()
		cfg.Authz.CacheSize = 0
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error, got nil")
		}
	})

	t.Run("missing allocator schedule", func(t *testing.T) {
		cfg := validConfig()
		cfg.Allocator.Schedule = ""
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error, got nil")
		}
	})

	t.Run("rate limiting without redis", func(t *testing.T) {
		cfg := validConfig()
		cfg.Redis.URL = ""
		err := cfg.Validate()
		if err == nil {
			t.Error("Validate() expected error, got nil")
		}
		if err != nil && err.Error() != "rate limiting requires a Redis URL" {
			t.Errorf("Validate() error = %v, want 'rate limiting requires a Redis URL'", err.Error())
		}
	})

	t.Run("rate limiting disabled without redis", func(t *testing.T) {
		cfg := validConfig()
		cfg.Redis.URL = ""
		cfg.RateLimit.Enabled = false
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate() unexpected error = %v", err)
		}
	})

	t.Run("invalid rate limit rpm", func(t *testing.T) {
		cfg := validConfig()
		cfg.RateLimit.RequestsPerMinute = 0
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error, got nil")
		}
	})
}

// TestLoadConfig tests the LoadConfig function
func TestLoadConfig(t *testing.T) {
	// Save current env and restore after test
	envVars := []string{
		"CARPOOL_PORT",
		"CARPOOL_HEALTH_PORT",
		"CARPOOL_POSTGRES_URL",
		"CARPOOL_REDIS_URL",
		"CARPOOL_RATELIMIT_ENABLED",
		"CARPOOL_AUTHZ_CACHE_TTL",
	}
	originalEnv := make(map[string]string)
	for _, k := range envVars {
		originalEnv[k] = os.Getenv(k)
	}
	defer func() {
		for k, v := range originalEnv {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	}()

	tests := []struct {
		name    string
		env     map[string]string
		wantErr bool
	}{
		{
			name: "valid config",
			env: map[string]string{
				"CARPOOL_PORT":         "8080",
				"CARPOOL_HEALTH_PORT":  "9090",
				"CARPOOL_POSTGRES_URL": "postgres://localhost/carpool",
				"CARPOOL_REDIS_URL":    "redis://localhost:6379",
			},
			wantErr: false,
		},
		{
			name: "invalid config - same ports",
			env: map[string]string{
				"CARPOOL_PORT":         "8080",
				"CARPOOL_HEALTH_PORT":  "8080",
				"CARPOOL_POSTGRES_URL": "postgres://localhost/carpool",
			},
			wantErr: true,
		},
		{
			name: "invalid config - no postgres",
			env: map[string]string{
				"CARPOOL_PORT":        "8080",
				"CARPOOL_HEALTH_PORT": "9090",
			},
			wantErr: true,
		},
		{
			name: "valid config - rate limiting disabled without redis",
			env: map[string]string{
				"CARPOOL_PORT":              "8080",
				"CARPOOL_HEALTH_PORT":       "9090",
				"CARPOOL_POSTGRES_URL":      "postgres://localhost/carpool",
				"CARPOOL_RATELIMIT_ENABLED": "false",
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Clear all env vars
			for _, k := range envVars {
				os.Unsetenv(k)
			}

			// Set test env vars
			for k, v := range tt.env {
				os.Setenv(k, v)
			}

			cfg, err := LoadConfig()
			if (err != nil) != tt.wantErr {
				t.Errorf("LoadConfig() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && cfg == nil {
				t.Error("LoadConfig() returned nil config without error")
			}
		})
	}
}
