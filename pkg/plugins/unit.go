package plugins

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/platinummonkey/brace/pkg/observability"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// CurrentAPIVersion is the plugin API version implemented by this host
const CurrentAPIVersion = "1.0.0"

var tracer = otel.Tracer("github.com/platinummonkey/brace/pkg/plugins")

// UnitOption configures a Unit
type UnitOption func(*Unit)

// WithUnitLogger sets the logger used for lifecycle failures
func WithUnitLogger(logger logrus.FieldLogger) UnitOption {
	return func(u *Unit) {
		if logger != nil {
			u.log = logger
		}
	}
}

// WithEventSink reports every lifecycle transition attempt to sink
func WithEventSink(sink EventSink) UnitOption {
	return func(u *Unit) {
		u.sink = sink
	}
}

// WithUnitMetrics records lifecycle transitions in m
func WithUnitMetrics(m *Metrics) UnitOption {
	return func(u *Unit) {
		u.metrics = m
	}
}

// Unit is one loaded plugin package: its manifest, its private boundary and the
// entry point resolved from it. Only the lifecycle state changes after construction.
type Unit struct {
	path     string
	manifest *Manifest
	boundary *Boundary
	entry    Entrypoint
	loadedAt time.Time

	log     logrus.FieldLogger
	sink    EventSink
	metrics *Metrics

	mu      sync.Mutex
	state   State
	lastErr error
	running Phase
}

// NewUnit opens the package at path and builds a unit whose boundary delegates to parent
func NewUnit(path string, parent Namespace, opts ...UnitOption) (*Unit, error) {
	fsys, err := OpenPackage(path)
	if err != nil {
		return nil, err
	}
	return LoadUnit(path, fsys, parent, opts...)
}

// LoadUnit builds a unit from an already mounted package filesystem
func LoadUnit(path string, fsys fs.FS, parent Namespace, opts ...UnitOption) (*Unit, error) {
	manifest, err := LoadManifest(fsys)
	if err != nil {
		return nil, err
	}
	if errs := ValidateManifest(manifest); len(errs) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidManifest, joinValidationErrors(errs))
	}
	if !IsCompatibleAPIVersion(manifest.APIVersion, CurrentAPIVersion) {
		return nil, fmt.Errorf("%w: plugin %s targets API %s, host implements %s",
			ErrInvalidManifest, manifest.ID, manifest.APIVersion, CurrentAPIVersion)
	}

	boundary := NewBoundary(parent)
	if err := loadTypes(boundary, fsys); err != nil {
		return nil, err
	}

	if manifest.Main == "" {
		return nil, fmt.Errorf("%w: plugin %s declares no main type", ErrEntryPointMissing, manifest.ID)
	}
	entry, err := boundary.Instantiate(manifest.ID, manifest.Main)
	if err != nil {
		return nil, err
	}

	u := &Unit{
		path:     path,
		manifest: manifest,
		boundary: boundary,
		entry:    entry,
		loadedAt: time.Now(),
		log:      logrus.StandardLogger(),
		state:    StateConstructed,
	}
	for _, opt := range opts {
		opt(u)
	}
	u.log = u.log.WithField("plugin_id", manifest.ID)

	return u, nil
}

// loadTypes defines every types/<name>.yaml document of the package in b.
// A package without a types directory is valid; its main must then name a host type.
func loadTypes(b *Boundary, fsys fs.FS) error {
	entries, err := fs.ReadDir(fsys, TypesDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: failed to list %s: %v", ErrMalformedUnit, TypesDir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		file := path.Join(TypesDir, entry.Name())
		name, ok := typeNameFromPath(file)
		if !ok {
			continue
		}

		raw, err := fs.ReadFile(fsys, file)
		if err != nil {
			return fmt.Errorf("%w: failed to read %s: %v", ErrMalformedUnit, file, err)
		}
		if _, err := b.Load(name, raw); err != nil {
			if errors.Is(err, ErrMalformedUnit) {
				return err
			}
			return fmt.Errorf("%w: %w", ErrMalformedUnit, err)
		}
	}
	return nil
}

func joinValidationErrors(errs []ValidationError) string {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.String()
	}
	return strings.Join(msgs, "; ")
}

// ID returns the plugin identifier
func (u *Unit) ID() string {
	return u.manifest.ID
}

// Manifest returns the parsed manifest
func (u *Unit) Manifest() *Manifest {
	return u.manifest
}

// Path returns the package path the unit was loaded from
func (u *Unit) Path() string {
	return u.path
}

// Boundary returns the unit's private loading boundary
func (u *Unit) Boundary() *Boundary {
	return u.boundary
}

// State returns the current lifecycle state
func (u *Unit) State() State {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state
}

// LastError returns the failure of the most recent transition attempt, or nil
func (u *Unit) LastError() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.lastErr
}

// Info returns a snapshot of the unit
func (u *Unit) Info() PluginInfo {
	u.mu.Lock()
	defer u.mu.Unlock()

	info := PluginInfo{
		Manifest:   u.manifest,
		Path:       u.path,
		State:      u.state,
		Running:    u.running,
		BoundaryID: u.boundary.ID(),
		LoadedAt:   u.loadedAt,
	}
	if u.lastErr != nil {
		info.LastError = u.lastErr.Error()
	}
	return info
}

// Init runs the entry point's setup logic. Constructed -> Initialized.
func (u *Unit) Init(ctx context.Context) error {
	return u.transition(ctx, PhaseInit, StateConstructed, StateInitialized, u.entry.Init)
}

// OnInitialization activates the plugin. Initialized -> Active.
func (u *Unit) OnInitialization(ctx context.Context) error {
	return u.transition(ctx, PhaseOnInitialization, StateInitialized, StateActive, u.entry.OnInitialization)
}

// OnUninstall deactivates the plugin. Active -> Uninstalled.
func (u *Unit) OnUninstall(ctx context.Context) error {
	return u.transition(ctx, PhaseOnUninstall, StateActive, StateUninstalled, u.entry.OnUninstall)
}

func (u *Unit) transition(ctx context.Context, phase Phase, from, to State, call func(context.Context) error) error {
	u.mu.Lock()
	current := u.state
	var err error
	switch {
	case u.running != "":
		err = &TransitionError{ID: u.ID(), Phase: phase, From: current, Running: u.running}
	case current != from:
		err = &TransitionError{ID: u.ID(), Phase: phase, From: current}
	case ctx.Err() != nil:
		err = fmt.Errorf("plugin %s: %s: %w", u.ID(), phase, ctx.Err())
	default:
		u.running = phase
	}
	u.mu.Unlock()

	if err != nil {
		u.observe(ctx, phase, current, current, 0, err)
		return err
	}

	// plugin code runs unlocked so state queries never wait on it
	ctx, span := tracer.Start(ctx, "plugin."+string(phase), trace.WithAttributes(
		attribute.String("plugin.id", u.ID()),
		attribute.String("plugin.phase", string(phase)),
		attribute.String("plugin.state.from", from.String()),
	))
	defer span.End()

	start := time.Now()
	err = u.invoke(ctx, phase, call)
	elapsed := time.Since(start)

	if err != nil {
		lerr := &LifecycleError{ID: u.ID(), Phase: phase, Err: err}
		u.commit(from, lerr)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		u.observe(ctx, phase, from, from, elapsed, lerr)
		return lerr
	}

	u.commit(to, nil)
	span.SetStatus(codes.Ok, "")
	u.observe(ctx, phase, from, to, elapsed, nil)
	return nil
}

// commit ends the running transition
func (u *Unit) commit(state State, err error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.state = state
	u.lastErr = err
	u.running = ""
}

// invoke calls into plugin code, turning a panic into an error
func (u *Unit) invoke(ctx context.Context, phase Phase, call func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			u.log.WithFields(observability.TraceFields(ctx)).WithFields(logrus.Fields{
				"phase": phase,
				"stack": string(debug.Stack()),
			}).Error("PANIC recovered in plugin entry point")
			err = observability.MustRecover(r)
		}
	}()
	return call(ctx)
}

func (u *Unit) observe(ctx context.Context, phase Phase, from, to State, elapsed time.Duration, err error) {
	result := "success"
	switch {
	case errors.Is(err, ErrInvalidLifecycleTransition):
		result = "rejected"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		result = "canceled"
	case err != nil:
		result = "failure"
	}

	if u.metrics != nil {
		u.metrics.TransitionsTotal.WithLabelValues(string(phase), result).Inc()
		if result == "success" || result == "failure" {
			u.metrics.TransitionDuration.WithLabelValues(string(phase)).Observe(elapsed.Seconds())
		}
	}

	if u.sink == nil {
		return
	}
	event := Event{
		PluginID:  u.ID(),
		Phase:     phase,
		From:      from,
		To:        to,
		Success:   err == nil,
		Duration:  elapsed,
		Timestamp: time.Now().UTC(),
	}
	if err != nil {
		event.Error = err.Error()
	}
	if sinkErr := u.sink.Record(ctx, event); sinkErr != nil {
		u.log.WithError(sinkErr).WithField("phase", phase).Warn("Failed to record lifecycle event")
	}
}
