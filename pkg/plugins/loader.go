package plugins

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/platinummonkey/brace/pkg/i18n"
	"github.com/sirupsen/logrus"
)

// Scan lists the candidate packages of the plugins directory, creating it when missing.
// Candidates are regular files carrying the registry extension, in directory order.
// With register set, every candidate is built and registered; a candidate that fails
// is logged and skipped. If the directory cannot be created Scan returns nil and
// ErrDirectoryUnavailable.
func (r *Registry) Scan(ctx context.Context, register bool) ([]string, error) {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		r.log.WithField("path", r.dir).Warn(r.tr.Sprintf(i18n.MsgDirectoryUnavailable, r.dir, err))
		return nil, fmt.Errorf("%w: %s: %v", ErrDirectoryUnavailable, r.dir, err)
	}

	entries, err := os.ReadDir(r.dir)
	if err != nil {
		r.log.WithField("path", r.dir).Warn(r.tr.Sprintf(i18n.MsgDirectoryUnavailable, r.dir, err))
		return nil, fmt.Errorf("%w: %s: %v", ErrDirectoryUnavailable, r.dir, err)
	}

	candidates := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !r.IsCandidate(entry.Name()) {
			continue
		}
		path := filepath.Join(r.dir, entry.Name())
		if !isRegularFile(path, entry) {
			continue
		}
		candidates = append(candidates, path)
	}

	if r.metrics != nil {
		r.metrics.ScanCandidatesTotal.Add(float64(len(candidates)))
	}
	r.log.Debug(r.tr.Sprintf(i18n.MsgScanComplete, len(candidates), r.dir))

	if !register {
		return candidates, nil
	}

	for _, path := range candidates {
		if err := ctx.Err(); err != nil {
			return candidates, fmt.Errorf("scan of %s interrupted: %w", r.dir, err)
		}
		// failures are logged by Load and Register
		_, _ = r.Load(path)
	}

	return candidates, nil
}

// Rescan registers the candidates no registered unit was loaded from and
// returns the units it added. Registered units are never replaced and
// uninstalled packages are skipped.
func (r *Registry) Rescan(ctx context.Context) ([]*Unit, error) {
	candidates, err := r.Scan(ctx, false)
	if err != nil {
		return nil, err
	}

	var added []*Unit
	for _, path := range candidates {
		if err := ctx.Err(); err != nil {
			return added, fmt.Errorf("rescan of %s interrupted: %w", r.dir, err)
		}
		if _, loaded := r.LoadedFrom(path); loaded || r.Uninstalled(path) {
			continue
		}
		if u, err := r.Load(path); err == nil {
			added = append(added, u)
		}
	}
	return added, nil
}

// IsCandidate reports whether a file name carries the candidate extension
func (r *Registry) IsCandidate(name string) bool {
	return len(name) > len(r.ext) && strings.HasSuffix(strings.ToLower(name), strings.ToLower(r.ext))
}

// isRegularFile follows symlinks, as a link to a package is a valid candidate
func isRegularFile(path string, entry fs.DirEntry) bool {
	if entry.Type().IsRegular() {
		return true
	}
	if entry.Type()&fs.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Load builds a unit from the package at path and registers it.
// Construction failures are logged as skipped candidates. A package whose
// unit was uninstalled returns ErrPackageUninstalled.
func (r *Registry) Load(path string) (*Unit, error) {
	if r.Uninstalled(path) {
		r.log.WithField("path", path).Debug(r.tr.Sprintf(i18n.MsgPackageUninstalled, filepath.Base(path)))
		return nil, fmt.Errorf("%w: %s", ErrPackageUninstalled, path)
	}

	u, err := NewUnit(path, r.host, r.unitOptions()...)
	if err != nil {
		msg := i18n.MsgCandidateSkipped
		if errors.Is(err, ErrEntryPointMissing) {
			msg = i18n.MsgNoMainType
		}
		r.log.WithFields(logrus.Fields{
			"path":   path,
			"reason": skipReason(err),
		}).Warn(r.tr.Sprintf(msg, filepath.Base(path), err))
		if r.metrics != nil {
			r.metrics.SkippedTotal.WithLabelValues(skipReason(err)).Inc()
		}
		return nil, err
	}

	if err := r.Register(u); err != nil {
		if r.metrics != nil {
			r.metrics.SkippedTotal.WithLabelValues(skipReason(err)).Inc()
		}
		return nil, err
	}
	return u, nil
}

// LoadedFrom returns the registered unit built from path
func (r *Registry) LoadedFrom(path string) (*Unit, bool) {
	for _, u := range r.List() {
		if u.Path() == path {
			return u, true
		}
	}
	return nil, false
}

func (r *Registry) unitOptions() []UnitOption {
	return []UnitOption{
		WithUnitLogger(r.log),
		WithUnitMetrics(r.metrics),
		WithEventSink(r.sink),
	}
}

// Bootstrap is the host startup sequence: scan and register the plugins
// directory, then initialize every registered unit.
func (r *Registry) Bootstrap(ctx context.Context) error {
	r.log.Info(r.tr.Sprintf(i18n.MsgManagerLoad))
	r.log.Info(r.tr.Sprintf(i18n.MsgPluginsLoading, r.dir))

	if _, err := r.Scan(ctx, true); err != nil {
		return err
	}
	return r.InitAll(ctx)
}
