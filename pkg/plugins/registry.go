package plugins

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"sync"

	"github.com/platinummonkey/brace/pkg/i18n"
	"github.com/sirupsen/logrus"
)

// DefaultExtension is the file extension of plugin packages
const DefaultExtension = ".plugin"

// Option configures a Registry
type Option func(*Registry)

// WithExtension sets the file extension that marks a candidate package
func WithExtension(ext string) Option {
	return func(r *Registry) {
		if ext != "" {
			r.ext = ext
		}
	}
}

// WithLogger sets the registry logger
func WithLogger(log *logrus.Logger) Option {
	return func(r *Registry) {
		if log != nil {
			r.log = log
		}
	}
}

// WithTranslator sets the provider of localized log messages
func WithTranslator(tr i18n.Translator) Option {
	return func(r *Registry) {
		if tr != nil {
			r.tr = tr
		}
	}
}

// WithMetrics records scans, registrations and transitions in m
func WithMetrics(m *Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

// WithSink reports lifecycle events of every unit the registry builds to sink
func WithSink(sink EventSink) Option {
	return func(r *Registry) {
		r.sink = sink
	}
}

// Registry maps plugin IDs to units and drives their lifecycle.
// It is safe for concurrent use.
type Registry struct {
	dir  string
	ext  string
	host Namespace

	log     *logrus.Logger
	tr      i18n.Translator
	metrics *Metrics
	sink    EventSink

	mu    sync.RWMutex
	units map[string]*Unit
	order []string
	// package paths of uninstalled units; Load refuses them until restart
	uninstalled map[string]struct{}
}

// NewRegistry creates an empty registry for the plugins directory dir.
// Units built by the registry resolve shared types through host.
func NewRegistry(dir string, host Namespace, opts ...Option) *Registry {
	r := &Registry{
		dir:   dir,
		ext:   DefaultExtension,
		host:  host,
		log:   logrus.New(),
		tr:    i18n.Default(),
		units: make(map[string]*Unit),

		uninstalled: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Dir returns the plugins directory
func (r *Registry) Dir() string {
	return r.dir
}

// Extension returns the candidate file extension
func (r *Registry) Extension() string {
	return r.ext
}

// Host returns the namespace units delegate to
func (r *Registry) Host() Namespace {
	return r.host
}

// Register inserts u under its ID unless the ID is taken.
// The first registration wins; a collision is logged and returns ErrDuplicateIdentifier.
func (r *Registry) Register(u *Unit) error {
	if u == nil {
		return fmt.Errorf("cannot register nil unit")
	}
	id := u.ID()

	r.mu.Lock()
	existing, exists := r.units[id]
	if !exists {
		r.units[id] = u
		r.order = append(r.order, id)
	}
	count := len(r.units)
	r.mu.Unlock()

	if exists {
		r.log.WithFields(logrus.Fields{
			"plugin_id":     id,
			"path":          u.Path(),
			"registered_at": existing.Path(),
		}).Warn(r.tr.Sprintf(i18n.MsgDuplicateID, id, u.Path()))
		r.countRegistration("duplicate", count)
		return fmt.Errorf("%w: %s", ErrDuplicateIdentifier, id)
	}

	r.log.WithFields(logrus.Fields{
		"plugin_id": id,
		"path":      u.Path(),
	}).Debug(r.tr.Sprintf(i18n.MsgPluginRegistered, id, u.Path()))
	r.countRegistration("registered", count)
	return nil
}

func (r *Registry) countRegistration(result string, count int) {
	if r.metrics == nil {
		return
	}
	r.metrics.RegistrationsTotal.WithLabelValues(result).Inc()
	r.metrics.Registered.Set(float64(count))
}

// Get returns the unit registered under id
func (r *Registry) Get(id string) (*Unit, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.units[id]
	return u, ok
}

// Has reports whether id is registered
func (r *Registry) Has(id string) bool {
	_, ok := r.Get(id)
	return ok
}

// Len returns the number of registered units
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.units)
}

// IDs returns the registered IDs in registration order
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}

// List returns the registered units in registration order
func (r *Registry) List() []*Unit {
	r.mu.RLock()
	defer r.mu.RUnlock()

	units := make([]*Unit, 0, len(r.order))
	for _, id := range r.order {
		units = append(units, r.units[id])
	}
	return units
}

// Infos returns a snapshot of every registered unit in registration order
func (r *Registry) Infos() []PluginInfo {
	units := r.List()
	infos := make([]PluginInfo, len(units))
	for i, u := range units {
		infos[i] = u.Info()
	}
	return infos
}

// Uninstalled reports whether a unit built from the package at path was uninstalled
func (r *Registry) Uninstalled(path string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.uninstalled[filepath.Clean(path)]
	return ok
}

// remove drops u if it is still the unit registered under its ID and
// remembers its package so that rescans do not bring it back
func (r *Registry) remove(u *Unit) {
	r.mu.Lock()
	id := u.ID()
	if r.units[id] == u {
		delete(r.units, id)
		r.order = slices.DeleteFunc(r.order, func(s string) bool { return s == id })
	}
	r.uninstalled[filepath.Clean(u.Path())] = struct{}{}
	count := len(r.units)
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.Registered.Set(float64(count))
	}
}

type lifecycleCall func(*Unit, context.Context) error

// InitAll calls Init on every registered unit
func (r *Registry) InitAll(ctx context.Context) error {
	return r.all(ctx, PhaseInit, (*Unit).Init)
}

// InitOne calls Init on the unit registered under id
func (r *Registry) InitOne(ctx context.Context, id string) error {
	return r.one(ctx, id, PhaseInit, (*Unit).Init)
}

// ActivateAll calls OnInitialization on every registered unit
func (r *Registry) ActivateAll(ctx context.Context) error {
	return r.all(ctx, PhaseOnInitialization, (*Unit).OnInitialization)
}

// ActivateOne calls OnInitialization on the unit registered under id
func (r *Registry) ActivateOne(ctx context.Context, id string) error {
	return r.one(ctx, id, PhaseOnInitialization, (*Unit).OnInitialization)
}

// UninstallAll calls OnUninstall on every registered unit.
// Units that uninstall successfully are removed from the registry and
// their packages are not loaded again.
func (r *Registry) UninstallAll(ctx context.Context) error {
	return r.all(ctx, PhaseOnUninstall, (*Unit).OnUninstall)
}

// UninstallOne calls OnUninstall on the unit registered under id and removes it on success
func (r *Registry) UninstallOne(ctx context.Context, id string) error {
	return r.one(ctx, id, PhaseOnUninstall, (*Unit).OnUninstall)
}

// all dispatches to a snapshot of the registry in registration order.
// A failing unit does not stop its siblings; every failure is in the joined error.
func (r *Registry) all(ctx context.Context, phase Phase, call lifecycleCall) error {
	var errs []error
	for _, u := range r.List() {
		if err := r.dispatch(ctx, u, phase, call); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Registry) one(ctx context.Context, id string, phase Phase, call lifecycleCall) error {
	u, ok := r.Get(id)
	if !ok {
		return unknownID(id)
	}
	return r.dispatch(ctx, u, phase, call)
}

func (r *Registry) dispatch(ctx context.Context, u *Unit, phase Phase, call lifecycleCall) error {
	log := r.log.WithFields(logrus.Fields{
		"plugin_id": u.ID(),
		"phase":     phase,
	})

	if err := call(u, ctx); err != nil {
		log.WithError(err).Warn(r.tr.Sprintf(i18n.MsgLifecycleFailed, u.ID(), phase, err))
		return err
	}

	if phase == PhaseOnUninstall {
		r.remove(u)
	}
	log.Info(r.tr.Sprintf(i18n.MsgLifecycleDone, u.ID(), phase))
	return nil
}
