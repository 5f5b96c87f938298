package main

import (
	"context"
	"testing"

	"github.com/platinummonkey/brace/pkg/plugins"
	"github.com/platinummonkey/brace/pkg/plugins/plugintest"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUninstallActive(t *testing.T) {
	dir := t.TempDir()
	plugintest.Write(t, dir, "alpha.plugin", plugintest.Simple("alpha"))
	plugintest.Write(t, dir, "beta.plugin", plugintest.Simple("beta"))

	host, recorders := plugintest.NewHost()
	logger, _ := test.NewNullLogger()
	registry := plugins.NewRegistry(dir, host, plugins.WithLogger(logger))

	ctx := context.Background()
	require.NoError(t, registry.Bootstrap(ctx))
	require.NoError(t, registry.ActivateOne(ctx, "alpha"))

	require.NoError(t, uninstallActive(ctx, registry))
	assert.Equal(t, []string{"beta"}, registry.IDs())
	assert.Equal(t, []plugins.Phase{plugins.PhaseInit, plugins.PhaseOnInitialization, plugins.PhaseOnUninstall},
		recorders.Get("alpha").Calls())
}

func TestRescan(t *testing.T) {
	dir := t.TempDir()
	plugintest.Write(t, dir, "alpha.plugin", plugintest.Simple("alpha"))

	host, recorders := plugintest.NewHost()
	logger, hook := test.NewNullLogger()
	registry := plugins.NewRegistry(dir, host, plugins.WithLogger(logger))

	ctx := context.Background()
	rescan(ctx, registry, false, logger)
	u, ok := registry.Get("alpha")
	require.True(t, ok)
	assert.Equal(t, plugins.StateConstructed, u.State())

	plugintest.Write(t, dir, "beta.plugin", plugintest.Simple("beta"))
	rescan(ctx, registry, true, logger)
	u, ok = registry.Get("beta")
	require.True(t, ok)
	assert.Equal(t, plugins.StateActive, u.State())
	assert.Len(t, recorders.Get("beta").Calls(), 2)

	// alpha was registered before auto start was requested
	u, _ = registry.Get("alpha")
	assert.Equal(t, plugins.StateConstructed, u.State())

	for _, entry := range hook.AllEntries() {
		assert.NotEqual(t, "Rescan failed", entry.Message)
	}
}
