// Package observability provides structured logging, Prometheus metrics and
// graceful shutdown for the carpool core.
//
// The Logger wraps stdlib slog with a JSON handler and field chaining:
//
//	log := observability.NewLogger(observability.InfoLevel, nil)
//	log.WithField("group_id", 42).Info("binding configured")
//
// Metrics are created against a caller-supplied registry; the core never
// serves an export endpoint itself.
package observability
