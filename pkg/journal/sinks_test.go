package journal

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/platinummonkey/brace/pkg/plugins"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSink struct {
	mu     sync.Mutex
	events []plugins.Event
	err    error
}

func (s *captureSink) Record(_ context.Context, e plugins.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return s.err
}

func TestMulti(t *testing.T) {
	failing := &captureSink{err: errors.New("unavailable")}
	ok := &captureSink{}

	m := Multi(failing, nil, ok)
	err := m.Record(context.Background(), sampleEvent())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unavailable")
	assert.Len(t, failing.events, 1)
	assert.Len(t, ok.events, 1, "later sinks still receive the event")
}

func TestMulti_Empty(t *testing.T) {
	assert.NoError(t, Multi().Record(context.Background(), sampleEvent()))
}

func TestLogSink(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	sink := NewLogSink(logger)

	require.NoError(t, sink.Record(context.Background(), sampleEvent()))
	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "lifecycle transition", entry.Message)
	assert.Equal(t, "alpha", entry.Data["plugin_id"])
	assert.Equal(t, "initialized", entry.Data["to"])

	failed := sampleEvent()
	failed.Success = false
	failed.Error = "boom"
	require.NoError(t, sink.Record(context.Background(), failed))
	entry = hook.LastEntry()
	assert.Equal(t, "lifecycle transition failed", entry.Message)
	assert.Equal(t, "boom", entry.Data["error"])
}
