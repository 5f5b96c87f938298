package journal

import (
	"context"
	"errors"

	"github.com/platinummonkey/brace/pkg/plugins"
	"github.com/sirupsen/logrus"
)

// MultiSink forwards every event to each sink in order
type MultiSink struct {
	sinks []plugins.EventSink
}

// Multi combines sinks. Nil sinks are dropped.
func Multi(sinks ...plugins.EventSink) *MultiSink {
	m := &MultiSink{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Record delivers the event to every sink, even when one fails
func (m *MultiSink) Record(ctx context.Context, event plugins.Event) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Record(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink writes lifecycle events to a logger
type LogSink struct {
	log logrus.FieldLogger
}

// NewLogSink creates a sink logging to log
func NewLogSink(log logrus.FieldLogger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Record(_ context.Context, event plugins.Event) error {
	entry := s.log.WithFields(logrus.Fields{
		"plugin_id": event.PluginID,
		"phase":     event.Phase,
		"from":      event.From.String(),
		"to":        event.To.String(),
		"duration":  event.Duration,
	})
	if event.Success {
		entry.Debug("lifecycle transition")
		return nil
	}
	entry.WithField("error", event.Error).Debug("lifecycle transition failed")
	return nil
}
