package plugins

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the registry's Prometheus collectors
type Metrics struct {
	Registered          prometheus.Gauge
	ScanCandidatesTotal prometheus.Counter
	SkippedTotal        *prometheus.CounterVec
	RegistrationsTotal  *prometheus.CounterVec
	TransitionsTotal    *prometheus.CounterVec
	TransitionDuration  *prometheus.HistogramVec
}

// NewMetrics creates and registers the registry metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		Registered: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "brace_plugins_registered",
				Help: "Number of plugins currently registered",
			},
		),
		ScanCandidatesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "brace_scan_candidates_total",
				Help: "Total number of candidate packages found by directory scans",
			},
		),
		SkippedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "brace_scan_skipped_total",
				Help: "Total number of candidate packages skipped during scans",
			},
			[]string{"reason"},
		),
		RegistrationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "brace_registrations_total",
				Help: "Total number of registration attempts",
			},
			[]string{"result"},
		),
		TransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "brace_lifecycle_transitions_total",
				Help: "Total number of lifecycle transition attempts",
			},
			[]string{"phase", "result"},
		),
		TransitionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "brace_lifecycle_transition_duration_seconds",
				Help:    "Time spent in plugin lifecycle entry points",
				Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 30},
			},
			[]string{"phase"},
		),
	}

	registry.MustRegister(
		m.Registered,
		m.ScanCandidatesTotal,
		m.SkippedTotal,
		m.RegistrationsTotal,
		m.TransitionsTotal,
		m.TransitionDuration,
	)

	return m
}

// skipReason maps a construction error to a metric label
func skipReason(err error) string {
	switch {
	case errors.Is(err, ErrManifestMissing):
		return "manifest_missing"
	case errors.Is(err, ErrInvalidManifest):
		return "invalid_manifest"
	case errors.Is(err, ErrEntryPointMissing):
		return "entry_point_missing"
	case errors.Is(err, ErrDuplicateDefinition):
		return "duplicate_definition"
	case errors.Is(err, ErrMalformedUnit):
		return "malformed"
	case errors.Is(err, ErrDuplicateIdentifier):
		return "duplicate_id"
	default:
		return "other"
	}
}
