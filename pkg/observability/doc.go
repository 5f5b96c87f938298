// Package observability provides logging, metrics, tracing, health checks and
// graceful shutdown for the plugin host.
//
// # Logging
//
//	logger := observability.NewLogger("info", observability.FormatText, os.Stderr)
//	logger.WithField("plugin_id", id).Warn("candidate skipped")
//
// Panics are turned into logged events with RecoverPanic, or into errors with MustRecover.
//
// # Metrics
//
// Admin API requests are counted by HTTPMetrics.Middleware. The plugin
// registry registers its own collectors on the same prometheus.Registry,
// served by MetricsHandler.
//
// # Tracing
//
//	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
//		Enabled:     true,
//		Endpoint:    "otel-collector:4317",
//		ServiceName: "brace",
//	}, logger)
//	defer observability.ShutdownOTel(ctx, providers, logger)
//
// # Health
//
// HealthChecker exposes /health/live and /health/ready. Readiness fails when
// the plugins directory is gone and degrades when the journal database is down.
package observability
