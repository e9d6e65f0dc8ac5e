// Package observability provides logging and metrics support for the comment
// thread store.
//
// # Overview
//
// The observability package provides:
//
//   - Structured logging with zerolog
//   - Prometheus metrics for repository operations and thread events
//   - Context helpers for propagating request and trace identifiers
//
// # Logging
//
// Create a logger from configuration:
//
//	cfg := observability.LoggingConfig{
//	    Level:  "info",
//	    Format: "json",
//	    Output: "stdout",
//	}
//
//	logger := observability.NewLogger(cfg)
//	logger = observability.WithThreadContext(logger, threadID, applicationID)
//
// # Metrics
//
//	metrics := observability.NewMetrics("threadstore")
//	metrics.RecordOperation("save", "postgres", observability.OutcomeSuccess, 0.004)
//
// # Standard Fields
//
//   - thread_id: Comment thread identifier
//   - application_id: Owning application identifier
//   - operation: Repository operation name
//   - backend: Storage backend name
//   - request_id, trace_id, span_id: Correlation identifiers
package observability
