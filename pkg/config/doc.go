// Package config loads the brace host configuration from environment variables.
//
// Every setting has a default; LoadConfig validates the result.
//
// Plugins:
//
//	BRACE_PLUGINS_DIR="./plugins"
//	BRACE_PLUGIN_EXTENSION=".plugin"
//	BRACE_WATCH="false"                 # register packages dropped in after startup
//	BRACE_WATCH_AUTOSTART="false"       # init and activate watched packages
//	BRACE_WATCH_SETTLE_DELAY="500ms"
//	BRACE_RESCAN_SCHEDULE=""            # cron spec, e.g. "*/5 * * * *"
//	BRACE_MANIFEST_CACHE_SIZE="128"
//	BRACE_MANIFEST_CACHE_TTL="10m"
//
// Admin API:
//
//	BRACE_ADMIN_ADDR=":8081"            # empty disables the API
//	BRACE_READ_TIMEOUT="15s"
//	BRACE_WRITE_TIMEOUT="15s"
//	BRACE_IDLE_TIMEOUT="60s"
//	BRACE_SHUTDOWN_TIMEOUT="30s"
//	BRACE_ADMIN_RATE_LIMIT="60"         # scan and lifecycle calls per minute per client, 0 disables
//
// Journal and webhook:
//
//	BRACE_JOURNAL_DSN=""                # sqlite file; empty disables the journal
//	BRACE_JOURNAL_RETENTION="720h"
//	BRACE_WEBHOOK_URL=""
//	BRACE_WEBHOOK_SECRET=""
//	BRACE_WEBHOOK_FAILURES_ONLY="false"
//	BRACE_WEBHOOK_MAX_ATTEMPTS="5"
//
// Observability:
//
//	BRACE_LOG_LEVEL="info"              # debug, info, warn, error
//	BRACE_LOG_FORMAT="text"             # text, json
//	BRACE_LANG="en"                     # language of log messages (en, zh)
//	BRACE_METRICS_ENABLED="true"
//	BRACE_OTEL_ENABLED="false"
//	BRACE_OTEL_ENDPOINT="localhost:4317"
//	BRACE_OTEL_SERVICE_NAME="brace"
//	BRACE_OTEL_SERVICE_VERSION="1.0.0"
//	BRACE_OTEL_INSECURE="true"
//	BRACE_OTEL_SAMPLE_RATIO="1.0"       # fraction of root traces kept
//
// Usage:
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatalf("Failed to load config: %v", err)
//	}
package config
