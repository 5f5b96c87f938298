package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/platinummonkey/brace/pkg/httputil"
	"github.com/platinummonkey/brace/pkg/journal"
	"github.com/platinummonkey/brace/pkg/observability"
	"github.com/platinummonkey/brace/pkg/plugins"
	"github.com/platinummonkey/brace/pkg/plugins/plugintest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	dir      string
	registry *plugins.Registry
	server   *Server
}

func failing(id, phase string) plugintest.Package {
	return plugintest.Package{
		Manifest: plugintest.Manifest(id, "Main"),
		Types: map[string]string{
			"Main": "extends: " + plugintest.RecorderType + "\nproperties:\n  fail_on: " + phase + "\n",
		},
	}
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	dir := t.TempDir()
	plugintest.Write(t, dir, "alpha.plugin", plugintest.Simple("alpha"))
	plugintest.Write(t, dir, "beta.plugin", failing("beta", "init"))

	host, _ := plugintest.NewHost()
	logger, _ := test.NewNullLogger()
	registry := plugins.NewRegistry(dir, host, plugins.WithLogger(logger))
	_, err := registry.Scan(context.Background(), true)
	require.NoError(t, err)

	opts = append([]Option{WithLogger(logger)}, opts...)
	return &fixture{
		dir:      dir,
		registry: registry,
		server:   NewServer(registry, opts...),
	}
}

func (f *fixture) do(t *testing.T, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	f.server.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestListPlugins(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, "GET", "/api/v1/plugins")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Plugins []struct {
			Manifest plugins.Manifest `json:"manifest"`
			State    string           `json:"state"`
		} `json:"plugins"`
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	require.Len(t, resp.Plugins, 2)
	assert.Equal(t, "alpha", resp.Plugins[0].Manifest.ID)
	assert.Equal(t, "beta", resp.Plugins[1].Manifest.ID)
	assert.Equal(t, "constructed", resp.Plugins[0].State)
}

func TestGetPlugin(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, "GET", "/api/v1/plugins/alpha")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"state":"constructed"`)
	assert.Contains(t, w.Body.String(), filepath.Join(f.dir, "alpha.plugin"))

	w = f.do(t, "GET", "/api/v1/plugins/gamma")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "plugin not found: gamma")
}

func TestLifecycle(t *testing.T) {
	f := newFixture(t)

	t.Run("init", func(t *testing.T) {
		w := f.do(t, "POST", "/api/v1/plugins/alpha/init")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		resp := decode[map[string]string](t, w)
		assert.Equal(t, "alpha", resp["id"])
		assert.Equal(t, "init", resp["phase"])
		assert.Equal(t, "initialized", resp["state"])
	})

	t.Run("out of order", func(t *testing.T) {
		w := f.do(t, "POST", "/api/v1/plugins/alpha/init")
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("unknown plugin", func(t *testing.T) {
		w := f.do(t, "POST", "/api/v1/plugins/gamma/activate")
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Contains(t, w.Body.String(), "unknown plugin id")
	})

	t.Run("unknown action", func(t *testing.T) {
		w := f.do(t, "POST", "/api/v1/plugins/alpha/restart")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("plugin failure", func(t *testing.T) {
		w := f.do(t, "POST", "/api/v1/plugins/beta/init")
		require.Equal(t, http.StatusInternalServerError, w.Code)
		resp := decode[httputil.ErrorResponse](t, w)
		assert.Contains(t, resp.Error, "beta refused init")
		assert.Equal(t, "beta", resp.Details["plugin_id"])
		assert.Equal(t, "init", resp.Details["phase"])

		u, ok := f.registry.Get("beta")
		require.True(t, ok)
		assert.Equal(t, plugins.StateConstructed, u.State())
	})

	t.Run("activate and uninstall", func(t *testing.T) {
		w := f.do(t, "POST", "/api/v1/plugins/alpha/activate")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "active", decode[map[string]string](t, w)["state"])

		w = f.do(t, "POST", "/api/v1/plugins/alpha/uninstall")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "uninstalled", decode[map[string]string](t, w)["state"])

		assert.Equal(t, http.StatusNotFound, f.do(t, "GET", "/api/v1/plugins/alpha").Code)
		assert.Equal(t, []string{"beta"}, f.registry.IDs())

		// scanning again does not bring an uninstalled plugin back
		w = f.do(t, "POST", "/api/v1/plugins/scan")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, []string{"beta"}, decode[ScanResult](t, w).Registered)
	})

	t.Run("wrong method", func(t *testing.T) {
		w := f.do(t, "GET", "/api/v1/plugins/beta/init")
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	})
}

func TestScan(t *testing.T) {
	f := newFixture(t)

	t.Run("dry run", func(t *testing.T) {
		plugintest.Write(t, f.dir, "gamma.plugin", plugintest.Simple("gamma"))

		w := f.do(t, "POST", "/api/v1/plugins/scan?register=false")
		require.Equal(t, http.StatusOK, w.Code)
		resp := decode[ScanResult](t, w)
		assert.Len(t, resp.Candidates, 3)
		assert.Equal(t, []string{"alpha", "beta"}, resp.Registered)
	})

	t.Run("register", func(t *testing.T) {
		w := f.do(t, "POST", "/api/v1/plugins/scan")
		require.Equal(t, http.StatusOK, w.Code)
		resp := decode[ScanResult](t, w)
		assert.Equal(t, []string{"alpha", "beta", "gamma"}, resp.Registered)
	})

	t.Run("bad flag", func(t *testing.T) {
		w := f.do(t, "POST", "/api/v1/plugins/scan?register=sometimes")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestScan_DirectoryUnavailable(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	host, _ := plugintest.NewHost()
	logger, _ := test.NewNullLogger()
	registry := plugins.NewRegistry(filepath.Join(blocker, "plugins"), host, plugins.WithLogger(logger))
	server := NewServer(registry)

	w := httptest.NewRecorder()
	server.ServeHTTP(w, httptest.NewRequest("POST", "/api/v1/plugins/scan", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "plugins directory unavailable")
}

func TestListCandidates(t *testing.T) {
	host, _ := plugintest.NewHost()
	f := newFixture(t, WithInspector(plugins.NewInspector(host, 16, time.Minute)))
	plugintest.Write(t, f.dir, "broken.plugin", plugintest.Package{
		Manifest: plugintest.Manifest("broken", "Missing"),
	})

	w := f.do(t, "GET", "/api/v1/candidates")
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[CandidateList](t, w)
	require.Equal(t, 3, resp.Count)

	byID := make(map[string]*plugins.Inspection)
	for _, c := range resp.Candidates {
		require.NotNil(t, c.Manifest)
		byID[c.Manifest.ID] = c
	}
	assert.True(t, byID["alpha"].Valid)
	assert.True(t, byID["beta"].Valid, "failing in init does not make a package invalid")
	assert.False(t, byID["broken"].Valid)
	assert.Equal(t, "entry_point_missing", byID["broken"].Reason)

	assert.Equal(t, []string{"alpha", "beta"}, f.registry.IDs(), "inspection registers nothing")
}

func TestOptionalRoutesDisabled(t *testing.T) {
	f := newFixture(t)

	for _, path := range []string{"/api/v1/candidates", "/api/v1/events", "/health/live", "/metrics"} {
		assert.Equal(t, http.StatusNotFound, f.do(t, "GET", path).Code, path)
	}
}

type stubEvents struct {
	filter  journal.Filter
	entries []journal.Entry
	err     error
}

func (s *stubEvents) List(_ context.Context, filter journal.Filter) ([]journal.Entry, error) {
	s.filter = filter
	return s.entries, s.err
}

func TestListEvents(t *testing.T) {
	events := &stubEvents{entries: []journal.Entry{
		{ID: 1, Event: plugins.Event{PluginID: "alpha", Phase: plugins.PhaseInit, Success: true}},
	}}
	f := newFixture(t, WithJournal(events))

	w := f.do(t, "GET", "/api/v1/events?plugin=alpha&phase=init&failed=true&since=2026-10-01T00:00:00Z&limit=5")
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[EventList](t, w)
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, "alpha", resp.Events[0].PluginID)

	assert.Equal(t, "alpha", events.filter.PluginID)
	assert.Equal(t, plugins.PhaseInit, events.filter.Phase)
	assert.True(t, events.filter.Failed)
	assert.Equal(t, 5, events.filter.Limit)
	assert.True(t, events.filter.Since.Equal(time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)))

	w = f.do(t, "GET", "/api/v1/events")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, journal.DefaultListLimit, events.filter.Limit)

	for _, query := range []string{"limit=many", "failed=perhaps", "since=yesterday"} {
		assert.Equal(t, http.StatusBadRequest, f.do(t, "GET", "/api/v1/events?"+query).Code, query)
	}

	events.err = errors.New("database is locked")
	w = f.do(t, "GET", "/api/v1/events")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "database is locked")
}

func TestHealthAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := observability.NewHTTPMetrics(reg)

	dir := t.TempDir()
	f := newFixture(t,
		WithHealth(observability.NewHealthChecker(nil, dir, "test")),
		WithMetrics(metrics, reg),
	)

	assert.Equal(t, http.StatusOK, f.do(t, "GET", "/health/live").Code)
	assert.Equal(t, http.StatusOK, f.do(t, "GET", "/health/ready").Code)

	f.do(t, "GET", "/api/v1/plugins/alpha")
	f.do(t, "GET", "/api/v1/plugins/beta")
	assert.Equal(t, float64(2), testutil.ToFloat64(
		metrics.RequestsTotal.WithLabelValues("GET", "/api/v1/plugins/{id}", "200")))

	w := f.do(t, "GET", "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "brace_http_requests_total")
}

func TestHandler(t *testing.T) {
	f := newFixture(t)

	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/plugins", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(httputil.RequestIDHeader))
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t, WithRateLimit(httputil.NewRateLimiter(httputil.RateLimitConfig{
		RequestsPerWindow: 1,
		WindowDuration:    time.Hour,
	})))

	assert.Equal(t, http.StatusOK, f.do(t, "POST", "/api/v1/plugins/alpha/init").Code)
	assert.Equal(t, http.StatusTooManyRequests, f.do(t, "POST", "/api/v1/plugins/alpha/activate").Code)

	// reads are not throttled
	assert.Equal(t, http.StatusOK, f.do(t, "GET", "/api/v1/plugins/alpha").Code)

	u, _ := f.registry.Get("alpha")
	assert.Equal(t, plugins.StateInitialized, u.State())
}
