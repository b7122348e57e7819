// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables with
// sensible defaults for all settings.
//
// # Configuration Structure
//
// Server settings:
//
//	CARPOOL_HOST="0.0.0.0"
//	CARPOOL_PORT="8080"
//	CARPOOL_HEALTH_PORT="9090"
//	CARPOOL_READ_TIMEOUT="15s"
//	CARPOOL_WRITE_TIMEOUT="15s"
//
// Database settings:
//
//	CARPOOL_POSTGRES_URL="postgres://localhost/carpool"
//	CARPOOL_POSTGRES_MAX_CONNS="25"
//
// Redis settings (rate limiting and allocator mirror):
//
//	CARPOOL_REDIS_URL="redis://localhost:6379"
//	CARPOOL_REDIS_DB="0"
//
// Permission evaluation settings:
//
//	CARPOOL_AUTHZ_CACHE_TTL="5m"
//	CARPOOL_AUTHZ_CACHE_SIZE="4096"
//
// Allocator settings:
//
//	CARPOOL_ALLOCATOR_SCHEDULE="*/5 * * * *"
//	CARPOOL_ALLOCATOR_REFRESH_TIMEOUT="1m"
//
// Observability settings:
//
//	CARPOOL_LOG_LEVEL="info"  # debug, info, warn, error
//	CARPOOL_METRICS_ENABLED="true"
//
// # Usage Example
//
// Load configuration:
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	fmt.Printf("Server: %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//	fmt.Printf("Log level: %s\n", cfg.Observability.LogLevel)
//
// # Related Packages
//
//   - pkg/rbac: Uses authz configuration
//   - pkg/allocator: Uses allocator configuration
//   - pkg/observability: Uses observability configuration
package config
