package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// HealthChecker reports liveness and readiness of the plugin host.
// Readiness depends on the plugins directory and, when configured, the journal database.
type HealthChecker struct {
	db         *sql.DB
	pluginsDir string
	version    string
	checks     []namedCheck
}

// CheckFunc reports the health of one component
type CheckFunc func(ctx context.Context) DependencyStatus

type namedCheck struct {
	name     string
	required bool
	fn       CheckFunc
}

// NewHealthChecker creates a health checker. db may be nil when no journal is configured.
func NewHealthChecker(db *sql.DB, pluginsDir, version string) *HealthChecker {
	return &HealthChecker{
		db:         db,
		pluginsDir: pluginsDir,
		version:    version,
	}
}

// AddCheck adds a component check. A failing required check makes the host
// unhealthy; any other failure degrades it.
func (h *HealthChecker) AddCheck(name string, required bool, fn CheckFunc) {
	h.checks = append(h.checks, namedCheck{name: name, required: required, fn: fn})
}

// HealthStatus represents the overall health status
type HealthStatus struct {
	Status       string                      `json:"status"`
	Timestamp    time.Time                   `json:"timestamp"`
	Version      string                      `json:"version,omitempty"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

// DependencyStatus represents the health of a single dependency
type DependencyStatus struct {
	Status    string        `json:"status"`
	Message   string        `json:"message,omitempty"`
	Latency   time.Duration `json:"latency_ms,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// Liveness always answers 200 while the process serves requests
func (h *HealthChecker) Liveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":    StatusHealthy,
		"timestamp": time.Now(),
	})
}

// Readiness answers 503 when a required dependency is unhealthy
func (h *HealthChecker) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.Check(ctx)

	w.Header().Set("Content-Type", "application/json")
	if status.Status == StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	_ = json.NewEncoder(w).Encode(status)
}

// Check runs every dependency check
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:       StatusHealthy,
		Timestamp:    time.Now(),
		Version:      h.version,
		Dependencies: make(map[string]DependencyStatus),
	}

	if h.pluginsDir != "" {
		status.merge("plugins_dir", true, h.checkPluginsDir())
	}

	// the journal is optional: losing it degrades the host, it does not stop it
	if h.db != nil {
		status.merge("journal", false, h.checkDatabase(ctx))
	}

	for _, c := range h.checks {
		start := time.Now()
		dep := c.fn(ctx)
		if dep.Timestamp.IsZero() {
			dep.Timestamp = start
		}
		if dep.Latency == 0 {
			dep.Latency = time.Since(start)
		}
		status.merge(c.name, c.required, dep)
	}

	return status
}

func (s *HealthStatus) merge(name string, required bool, dep DependencyStatus) {
	s.Dependencies[name] = dep
	switch {
	case dep.Status == StatusHealthy:
	case required && dep.Status == StatusUnhealthy:
		s.Status = StatusUnhealthy
	case s.Status == StatusHealthy:
		s.Status = StatusDegraded
	}
}

func (h *HealthChecker) checkPluginsDir() DependencyStatus {
	start := time.Now()
	status := DependencyStatus{
		Status:    StatusHealthy,
		Timestamp: start,
	}

	info, err := os.Stat(h.pluginsDir)
	status.Latency = time.Since(start)
	switch {
	case err != nil:
		status.Status = StatusUnhealthy
		status.Message = err.Error()
	case !info.IsDir():
		status.Status = StatusUnhealthy
		status.Message = fmt.Sprintf("%s is not a directory", h.pluginsDir)
	}
	return status
}

func (h *HealthChecker) checkDatabase(ctx context.Context) DependencyStatus {
	start := time.Now()
	status := DependencyStatus{
		Status:    StatusHealthy,
		Timestamp: start,
	}

	err := h.db.PingContext(ctx)
	status.Latency = time.Since(start)
	if err != nil {
		status.Status = StatusUnhealthy
		status.Message = err.Error()
		return status
	}

	var one int
	if err := h.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		status.Status = StatusUnhealthy
		status.Message = "query failed: " + err.Error()
	}
	return status
}
