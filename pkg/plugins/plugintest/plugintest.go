// Package plugintest builds plugin packages and recording entry points for tests.
package plugintest

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"

	"github.com/platinummonkey/brace/pkg/plugins"
)

// RecorderType is the host type name registered by NewHost
const RecorderType = "test.Recorder"

// Package describes the files of a plugin package
type Package struct {
	// Manifest is the raw plugin.yaml; empty omits the file
	Manifest string
	// Types maps type names to types/<name>.yaml bodies
	Types map[string]string
	// Files holds any other archive entries by path
	Files map[string]string
	Gzip  bool
}

// Manifest renders a minimal manifest
func Manifest(id, main string) string {
	return fmt.Sprintf("id: %s\nname: %s\nversion: 1.0.0\napi_version: 1.0.0\nmain: %s\n", id, id, main)
}

// Simple is a package whose main type extends the recorder host type
func Simple(id string) Package {
	return Package{
		Manifest: Manifest(id, "Main"),
		Types: map[string]string{
			"Main": "extends: " + RecorderType + "\n",
		},
	}
}

// Build renders pkg as archive bytes
func Build(pkg Package) ([]byte, error) {
	files := make(map[string]string)
	if pkg.Manifest != "" {
		files[plugins.ManifestFile] = pkg.Manifest
	}
	for name, body := range pkg.Types {
		files[plugins.TypesDir+"/"+name+".yaml"] = body
	}
	for name, body := range pkg.Files {
		files[name] = body
	}

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, name := range slices.Sorted(maps.Keys(files)) {
		body := files[name]
		hdr := &tar.Header{
			Name:     name,
			Mode:     0o644,
			Size:     int64(len(body)),
			Typeflag: tar.TypeReg,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, err
		}
		if _, err := tw.Write([]byte(body)); err != nil {
			return nil, err
		}
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}

	if !pkg.Gzip {
		return buf.Bytes(), nil
	}

	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	if _, err := zw.Write(buf.Bytes()); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return gz.Bytes(), nil
}

// Write builds pkg into dir/file and returns the path
func Write(t testing.TB, dir, file string, pkg Package) string {
	t.Helper()

	data, err := Build(pkg)
	if err != nil {
		t.Fatalf("failed to build package %s: %v", file, err)
	}
	path := filepath.Join(dir, file)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("failed to write package %s: %v", file, err)
	}
	return path
}

// Recorder is an entry point that records the phases it was called with.
// Properties "fail_on" and "panic_on" name a phase to fail or panic in.
type Recorder struct {
	PluginID string
	Props    map[string]any

	mu    sync.Mutex
	calls []plugins.Phase
}

// Calls returns the recorded phases in call order
func (r *Recorder) Calls() []plugins.Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.calls)
}

func (r *Recorder) record(phase plugins.Phase) error {
	r.mu.Lock()
	r.calls = append(r.calls, phase)
	r.mu.Unlock()

	if r.Props["panic_on"] == string(phase) {
		panic(fmt.Sprintf("%s panicked in %s", r.PluginID, phase))
	}
	if r.Props["fail_on"] == string(phase) {
		return fmt.Errorf("%s refused %s", r.PluginID, phase)
	}
	return nil
}

func (r *Recorder) Init(context.Context) error {
	return r.record(plugins.PhaseInit)
}

func (r *Recorder) OnInitialization(context.Context) error {
	return r.record(plugins.PhaseOnInitialization)
}

func (r *Recorder) OnUninstall(context.Context) error {
	return r.record(plugins.PhaseOnUninstall)
}

// Recorders collects the recorders built by a host, by plugin ID
type Recorders struct {
	mu   sync.Mutex
	byID map[string][]*Recorder
}

// Get returns the most recent recorder built for id
func (rs *Recorders) Get(id string) *Recorder {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	built := rs.byID[id]
	if len(built) == 0 {
		return nil
	}
	return built[len(built)-1]
}

// Count returns how many recorders were built for id
func (rs *Recorders) Count(id string) int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return len(rs.byID[id])
}

// NewHost returns a host namespace exposing RecorderType
func NewHost() (*plugins.HostNamespace, *Recorders) {
	recorders := &Recorders{byID: make(map[string][]*Recorder)}

	host := plugins.NewHostNamespace()
	host.MustRegister(RecorderType, func(spec plugins.InstanceSpec) (plugins.Entrypoint, error) {
		rec := &Recorder{PluginID: spec.PluginID, Props: spec.Properties}

		recorders.mu.Lock()
		recorders.byID[spec.PluginID] = append(recorders.byID[spec.PluginID], rec)
		recorders.mu.Unlock()

		return rec, nil
	}, nil)

	return host, recorders
}
