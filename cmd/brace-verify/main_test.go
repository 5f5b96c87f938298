package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/platinummonkey/brace/pkg/builtin"
	"github.com/platinummonkey/brace/pkg/plugins"
	"github.com/platinummonkey/brace/pkg/plugins/plugintest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupPackages(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	plugintest.Write(t, dir, "hello.plugin", plugintest.Package{
		Manifest: plugintest.Manifest("hello", "Main"),
		Types: map[string]string{
			"Main": "extends: " + builtin.AnnouncerType + "\n",
		},
	})
	plugintest.Write(t, dir, "empty.plugin", plugintest.Package{
		Types: map[string]string{
			"Main": "extends: " + builtin.NoopType + "\n",
		},
	})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))
	return dir
}

func newInspector(t *testing.T) *plugins.Inspector {
	t.Helper()

	host := plugins.NewHostNamespace()
	require.NoError(t, builtin.Register(host, nil))
	return plugins.NewInspector(host, 8, 0)
}

func TestCollectPaths(t *testing.T) {
	dir := setupPackages(t)

	paths, err := collectPaths(Config{Dir: dir, Extension: ".plugin", Paths: []string{"extra.plugin"}})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"extra.plugin",
		filepath.Join(dir, "empty.plugin"),
		filepath.Join(dir, "hello.plugin"),
	}, paths)

	_, err = collectPaths(Config{Dir: filepath.Join(dir, "missing"), Extension: ".plugin"})
	assert.Error(t, err)
}

func TestInspectAll(t *testing.T) {
	dir := setupPackages(t)
	paths, err := collectPaths(Config{Dir: dir, Extension: ".plugin"})
	require.NoError(t, err)

	results, err := inspectAll(newInspector(t), paths, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)

	// sorted by path
	assert.False(t, results[0].Valid)
	assert.Equal(t, "manifest_missing", results[0].Reason)
	assert.True(t, results[1].Valid)
	assert.Equal(t, "hello", results[1].Manifest.ID)
	assert.Equal(t, []string{"Main"}, results[1].Types)
	assert.Equal(t, 1, countInvalid(results))

	_, err = inspectAll(newInspector(t), []string{filepath.Join(dir, "gone.plugin")}, 0)
	assert.Error(t, err)
}

func TestWriteReport(t *testing.T) {
	dir := setupPackages(t)
	paths, err := collectPaths(Config{Dir: dir, Extension: ".plugin"})
	require.NoError(t, err)
	results, err := inspectAll(newInspector(t), paths, 0)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, writeReport(&buf, results))
	out := buf.String()
	assert.Contains(t, out, "PACKAGE")
	assert.Contains(t, out, "hello.plugin")
	assert.Contains(t, out, "1.0.0")
	assert.Contains(t, out, "manifest_missing")

	buf.Reset()
	require.NoError(t, writeJSON(&buf, results))
	var decoded []plugins.Inspection
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "hello", decoded[1].Manifest.ID)
}
