// Package notify delivers plugin lifecycle events to HTTP webhooks.
//
// A Webhook is a plugins.EventSink: Record queues the event and returns at once,
// Run delivers queued events until its context is canceled. Each delivery is a
// JSON POST signed with HMAC-SHA256 when a secret is configured:
//
//	X-Brace-Event:     lifecycle.succeeded | lifecycle.failed
//	X-Brace-Event-ID:  delivery identifier
//	X-Brace-Signature: sha256=<hex>
//
// Failed deliveries are retried with exponential backoff and outgoing requests
// are rate limited per webhook.
package notify
