package plugins_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/platinummonkey/brace/pkg/plugins"
	"github.com/platinummonkey/brace/pkg/plugins/plugintest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInspector_Inspect(t *testing.T) {
	host, recorders := plugintest.NewHost()
	dir := t.TempDir()
	inspector := plugins.NewInspector(host, 8, time.Minute)

	t.Run("valid package", func(t *testing.T) {
		path := plugintest.Write(t, dir, "alpha.plugin", plugintest.Simple("alpha"))

		result, err := inspector.Inspect(path)
		require.NoError(t, err)
		assert.True(t, result.Valid)
		assert.Equal(t, "alpha", result.Manifest.ID)
		assert.Equal(t, []string{"Main"}, result.Types)
		assert.Empty(t, result.Error)
	})

	t.Run("entry point missing keeps the manifest", func(t *testing.T) {
		path := plugintest.Write(t, dir, "beta.plugin", plugintest.Package{
			Manifest: plugintest.Manifest("beta", "Missing"),
		})

		result, err := inspector.Inspect(path)
		require.NoError(t, err)
		assert.False(t, result.Valid)
		assert.Equal(t, "entry_point_missing", result.Reason)
		require.NotNil(t, result.Manifest)
		assert.Equal(t, "beta", result.Manifest.ID)
	})

	t.Run("no manifest", func(t *testing.T) {
		path := plugintest.Write(t, dir, "gamma.plugin", plugintest.Package{})

		result, err := inspector.Inspect(path)
		require.NoError(t, err)
		assert.False(t, result.Valid)
		assert.Equal(t, "manifest_missing", result.Reason)
		assert.Nil(t, result.Manifest)
	})

	t.Run("unreadable path", func(t *testing.T) {
		_, err := inspector.Inspect(filepath.Join(dir, "missing.plugin"))
		assert.Error(t, err)

		_, err = inspector.Inspect(dir)
		assert.Error(t, err)
	})

	t.Run("nothing is initialized", func(t *testing.T) {
		assert.Empty(t, recorders.Get("alpha").Calls())
	})
}

func TestInspector_Cache(t *testing.T) {
	host, recorders := plugintest.NewHost()
	dir := t.TempDir()
	inspector := plugins.NewInspector(host, 8, time.Minute)

	path := plugintest.Write(t, dir, "alpha.plugin", plugintest.Simple("alpha"))

	first, err := inspector.Inspect(path)
	require.NoError(t, err)
	second, err := inspector.Inspect(path)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, recorders.Count("alpha"))
	assert.Equal(t, 1, inspector.Len())

	// a rewritten file is inspected again
	plugintest.Write(t, dir, "alpha.plugin", plugintest.Package{Manifest: plugintest.Manifest("alpha", "Missing")})
	later := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, later, later))

	third, err := inspector.Inspect(path)
	require.NoError(t, err)
	assert.False(t, third.Valid)

	inspector.Purge()
	assert.Equal(t, 0, inspector.Len())
}
