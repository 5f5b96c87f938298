// Package builtin provides the entry types compiled into the brace host.
//
// Plugin packages reach them by extending one of the type names below from a
// unit definition:
//
//	# types/Main.yaml
//	extends: brace.builtin.Announcer
//	properties:
//	  message: hello from alpha
package builtin

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/platinummonkey/brace/pkg/plugins"
	"github.com/sirupsen/logrus"
)

const (
	// NoopType does nothing in every phase
	NoopType = "brace.builtin.Noop"
	// AnnouncerType logs its message in every phase
	AnnouncerType = "brace.builtin.Announcer"
	// TouchType creates a marker file while the plugin is active
	TouchType = "brace.builtin.Touch"
)

// Register adds the builtin types to host
func Register(host *plugins.HostNamespace, log logrus.FieldLogger) error {
	if log == nil {
		log = logrus.StandardLogger()
	}

	return errors.Join(
		host.Register(NoopType, func(plugins.InstanceSpec) (plugins.Entrypoint, error) {
			return Noop{}, nil
		}, nil),
		host.Register(AnnouncerType, func(spec plugins.InstanceSpec) (plugins.Entrypoint, error) {
			return NewAnnouncer(spec, log), nil
		}, map[string]any{"message": "hello"}),
		host.Register(TouchType, func(spec plugins.InstanceSpec) (plugins.Entrypoint, error) {
			return NewTouch(spec)
		}, nil),
	)
}

// Noop accepts every lifecycle call
type Noop struct{}

func (Noop) Init(context.Context) error             { return nil }
func (Noop) OnInitialization(context.Context) error { return nil }
func (Noop) OnUninstall(context.Context) error      { return nil }

// Announcer logs a message at every lifecycle phase
type Announcer struct {
	log     logrus.FieldLogger
	message string
}

// NewAnnouncer builds an Announcer from the "message" property
func NewAnnouncer(spec plugins.InstanceSpec, log logrus.FieldLogger) *Announcer {
	message, _ := spec.Properties["message"].(string)
	return &Announcer{
		log:     log.WithField("plugin_id", spec.PluginID),
		message: message,
	}
}

func (a *Announcer) announce(phase plugins.Phase) error {
	a.log.WithField("phase", phase).Info(a.message)
	return nil
}

func (a *Announcer) Init(context.Context) error {
	return a.announce(plugins.PhaseInit)
}

func (a *Announcer) OnInitialization(context.Context) error {
	return a.announce(plugins.PhaseOnInitialization)
}

func (a *Announcer) OnUninstall(context.Context) error {
	return a.announce(plugins.PhaseOnUninstall)
}

// Touch writes the file named by its "path" property when activated and removes it on uninstall
type Touch struct {
	pluginID string
	path     string
}

// NewTouch builds a Touch; the "path" property is required
func NewTouch(spec plugins.InstanceSpec) (*Touch, error) {
	path, _ := spec.Properties["path"].(string)
	if path == "" {
		return nil, fmt.Errorf("property path is required")
	}
	return &Touch{pluginID: spec.PluginID, path: filepath.Clean(path)}, nil
}

// Path returns the marker file path
func (t *Touch) Path() string {
	return t.path
}

// Init checks that the marker directory exists
func (t *Touch) Init(context.Context) error {
	dir := filepath.Dir(t.path)
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("marker directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("marker directory %s is not a directory", dir)
	}
	return nil
}

func (t *Touch) OnInitialization(context.Context) error {
	content := fmt.Sprintf("%s %s\n", t.pluginID, time.Now().UTC().Format(time.RFC3339))
	if err := os.WriteFile(t.path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write marker: %w", err)
	}
	return nil
}

func (t *Touch) OnUninstall(context.Context) error {
	if err := os.Remove(t.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove marker: %w", err)
	}
	return nil
}
