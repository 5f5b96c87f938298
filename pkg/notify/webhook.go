package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/platinummonkey/brace/pkg/observability"
	"github.com/platinummonkey/brace/pkg/plugins"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"
)

// ErrQueueFull is returned by Record when the delivery queue has no room
var ErrQueueFull = errors.New("webhook queue full")

// EventType classifies a delivery
type EventType string

const (
	EventLifecycleSucceeded EventType = "lifecycle.succeeded"
	EventLifecycleFailed    EventType = "lifecycle.failed"
)

// Payload is the JSON body of a delivery
type Payload struct {
	ID        string        `json:"id"`
	Type      EventType     `json:"type"`
	Timestamp time.Time     `json:"timestamp"`
	Event     plugins.Event `json:"event"`
}

// RetryConfig configures retry behavior
type RetryConfig struct {
	MaxAttempts       int           `json:"max_attempts"`
	InitialDelay      time.Duration `json:"initial_delay"`
	MaxDelay          time.Duration `json:"max_delay"`
	BackoffMultiplier float64       `json:"backoff_multiplier"`
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       5,
		InitialDelay:      1 * time.Second,
		MaxDelay:          5 * time.Minute,
		BackoffMultiplier: 2.0,
	}
}

func (c RetryConfig) normalize() RetryConfig {
	d := DefaultRetryConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = d.InitialDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = d.MaxDelay
	}
	if c.BackoffMultiplier <= 1.0 {
		c.BackoffMultiplier = d.BackoffMultiplier
	}
	return c
}

// Option configures a Webhook
type Option func(*Webhook)

// WithSecret signs every delivery with secret
func WithSecret(secret string) Option {
	return func(w *Webhook) {
		w.secret = secret
	}
}

// WithClient replaces the HTTP client. Its transport is still instrumented.
func WithClient(client *http.Client) Option {
	return func(w *Webhook) {
		if client != nil {
			w.client = client
		}
	}
}

// WithRetry sets the retry policy
func WithRetry(cfg RetryConfig) Option {
	return func(w *Webhook) {
		w.retry = cfg.normalize()
	}
}

// WithRateLimit allows n deliveries per period, with bursts of n
func WithRateLimit(n int, period time.Duration) Option {
	return func(w *Webhook) {
		if n > 0 && period > 0 {
			w.limiter = rate.NewLimiter(rate.Every(period/time.Duration(n)), n)
		}
	}
}

// WithFailuresOnly drops successful transitions
func WithFailuresOnly(only bool) Option {
	return func(w *Webhook) {
		w.failuresOnly = only
	}
}

// WithQueueSize sets how many events may wait for delivery
func WithQueueSize(n int) Option {
	return func(w *Webhook) {
		if n > 0 {
			w.queueSize = n
		}
	}
}

// WithLogger sets the logger for delivery failures
func WithLogger(log logrus.FieldLogger) Option {
	return func(w *Webhook) {
		if log != nil {
			w.log = log
		}
	}
}

// Webhook posts lifecycle events to one URL
type Webhook struct {
	url          string
	secret       string
	client       *http.Client
	retry        RetryConfig
	limiter      *rate.Limiter
	failuresOnly bool
	queueSize    int
	log          logrus.FieldLogger

	queue      chan plugins.Event
	deliveries metric.Int64Counter
}

// New creates a webhook for url
func New(url string, opts ...Option) (*Webhook, error) {
	if url == "" {
		return nil, fmt.Errorf("webhook URL is required")
	}

	w := &Webhook{
		url:       url,
		client:    &http.Client{Timeout: 10 * time.Second},
		retry:     DefaultRetryConfig(),
		limiter:   rate.NewLimiter(rate.Every(time.Minute/100), 100),
		queueSize: 256,
		log:       logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(w)
	}

	base := w.client.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	client := *w.client
	client.Transport = otelhttp.NewTransport(base)
	w.client = &client

	counter, err := otel.Meter("github.com/platinummonkey/brace/pkg/notify").Int64Counter(
		"brace.webhook.deliveries",
		metric.WithDescription("Webhook delivery attempts by result"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create delivery counter: %w", err)
	}
	w.deliveries = counter
	w.queue = make(chan plugins.Event, w.queueSize)
	return w, nil
}

// URL returns the delivery target
func (w *Webhook) URL() string {
	return w.url
}

// Record queues event for delivery. It never blocks.
func (w *Webhook) Record(_ context.Context, event plugins.Event) error {
	if w.failuresOnly && event.Success {
		return nil
	}

	select {
	case w.queue <- event:
		return nil
	default:
		return fmt.Errorf("%w: dropping %s event for %s", ErrQueueFull, event.Phase, event.PluginID)
	}
}

// Run delivers queued events until ctx is canceled
func (w *Webhook) Run(ctx context.Context) error {
	defer observability.RecoverPanic(w.log, "webhook delivery")

	for {
		select {
		case <-ctx.Done():
			return nil
		case event := <-w.queue:
			if err := w.Deliver(ctx, event); err != nil && ctx.Err() == nil {
				w.log.WithFields(logrus.Fields{
					"url":       w.url,
					"plugin_id": event.PluginID,
					"phase":     event.Phase,
					"error":     err,
				}).Warn("Webhook delivery failed")
			}
		}
	}
}

// Deliver sends one event, retrying failed attempts
func (w *Webhook) Deliver(ctx context.Context, event plugins.Event) error {
	payload := Payload{
		ID:        uuid.NewString(),
		Type:      EventLifecycleSucceeded,
		Timestamp: time.Now().UTC(),
		Event:     event,
	}
	if !event.Success {
		payload.Type = EventLifecycleFailed
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = w.retry.InitialDelay
	policy.MaxInterval = w.retry.MaxDelay
	policy.Multiplier = w.retry.BackoffMultiplier

	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, w.send(ctx, payload, body)
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(uint(w.retry.MaxAttempts)))

	result := "success"
	if err != nil {
		result = "failure"
	}
	w.deliveries.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", string(payload.Type)),
		attribute.String("result", result),
	))
	return err
}

func (w *Webhook) send(ctx context.Context, payload Payload, body []byte) error {
	if err := w.limiter.Wait(ctx); err != nil {
		return backoff.Permanent(fmt.Errorf("rate limit wait: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Brace-Event", string(payload.Type))
	req.Header.Set("X-Brace-Event-ID", payload.ID)
	req.Header.Set("X-Brace-Delivery", time.Now().Format(time.RFC3339))
	if w.secret != "" {
		req.Header.Set("X-Brace-Signature", Sign(body, w.secret))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer func() {
		// drained bodies let retries reuse the connection
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests:
		// the receiver rejected the payload; resending it cannot help
		return backoff.Permanent(fmt.Errorf("webhook returned status %d", resp.StatusCode))
	default:
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
}

// Sign returns the X-Brace-Signature value for body
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a X-Brace-Signature value
func VerifySignature(body []byte, signature, secret string) bool {
	return hmac.Equal([]byte(Sign(body, secret)), []byte(signature))
}
