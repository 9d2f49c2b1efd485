// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QueryMesh Contributors

//go:build !windows

package extension

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/querymesh/querymesh/internal/config"
	"github.com/querymesh/querymesh/internal/endpoint"
	"github.com/querymesh/querymesh/internal/registry"
	"github.com/querymesh/querymesh/internal/service"
)

// managerHarness runs a full manager (watcher + RPC server) on a
// temp-dir endpoint.
type managerHarness struct {
	cfg    *config.Config
	reg    *registry.Registry
	mgr    *Manager
	runner *service.Runner
}

func startManager(t *testing.T, opts ...ManagerOption) *managerHarness {
	t.Helper()

	cfg := &config.Config{
		ExtensionsSocket:   filepath.Join(t.TempDir(), "em"),
		ExtensionsTimeout:  "1",
		ExtensionsInterval: "1",
	}

	h := &managerHarness{
		cfg:    cfg,
		reg:    registry.New(),
		runner: service.NewRunner(),
	}
	h.mgr = NewManager(cfg, h.reg, opts...)
	t.Cleanup(h.runner.Stop)

	status := StartExtensionManager(context.Background(), cfg, h.mgr, h.reg, h.runner)
	require.True(t, status.OK(), "manager bootstrap failed: %s", status.Message)
	require.NoError(t, endpoint.Ready(context.Background(), cfg.ExtensionsSocket, 2*time.Second, true))
	return h
}

func TestStartExtensionManager_Disabled(t *testing.T) {
	cfg := &config.Config{
		ExtensionsSocket:   filepath.Join(t.TempDir(), "em"),
		ExtensionsTimeout:  "0",
		ExtensionsInterval: "1",
		DisableExtensions:  true,
	}
	runner := service.NewRunner()
	defer runner.Stop()

	reg := registry.New()
	status := StartExtensionManager(context.Background(), cfg, NewManager(cfg, reg), reg, runner)
	require.False(t, status.OK())
	assert.Equal(t, "Extensions disabled", status.Message)
}

func TestStartExtension_ManagerMissing(t *testing.T) {
	cfg := &config.Config{
		ExtensionsSocket:   filepath.Join(t.TempDir(), "em"),
		ExtensionsTimeout:  "0",
		ExtensionsInterval: "1",
	}
	runner := service.NewRunner()
	defer runner.Stop()

	start := time.Now()
	status := StartExtension(context.Background(), cfg, registry.New(), runner,
		probeInfo("orphan"), func(int) {})

	require.False(t, status.OK())
	assert.Contains(t, status.Message, "Extension socket not available")
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestLifecycle_RegisterObserveDeregister(t *testing.T) {
	h := startManager(t)
	ctx := context.Background()

	extReg := registry.New()
	require.NoError(t, extReg.AddPlugin("table", "probe_info", rowsPlugin{
		rows: []map[string]string{{"status": "alive"}},
	}, false))

	extRunner := service.NewRunner()
	status := StartExtension(ctx, h.cfg, extReg, extRunner, probeInfo("probe"), func(int) {})
	require.True(t, status.OK(), "extension bootstrap failed: %s", status.Message)
	uuid := status.UUID
	require.NotZero(t, uuid)

	// The registry is marked external by the bootstrap.
	assert.True(t, extReg.External())

	// Registering again with the same name is refused.
	dupRunner := service.NewRunner()
	defer dupRunner.Stop()
	dup := StartExtension(ctx, h.cfg, registry.New(), dupRunner, probeInfo("probe"), func(int) {})
	require.False(t, dup.OK())
	assert.Contains(t, dup.Message, "duplicate")

	// The manager lists core plus the extension.
	list, st := GetExtensions(ctx, h.cfg)
	require.True(t, st.OK())
	require.Contains(t, list, uint64(0))
	assert.Equal(t, "core", list[0].Name)
	require.Contains(t, list, uuid)
	assert.Equal(t, "probe", list[uuid].Name)
	assert.Equal(t, "1.0.0", list[uuid].Version)

	// The extension endpoint answers pings and plugin calls.
	extensionPath := endpoint.ForExtension(uuid, h.cfg.ExtensionsSocket)
	require.NoError(t, endpoint.Ready(ctx, extensionPath, 2*time.Second, true))
	require.True(t, PingExtension(ctx, h.cfg, extensionPath).OK())

	rows, st := CallExtensionPath(ctx, h.cfg, extensionPath, "table", "probe_info", nil)
	require.True(t, st.OK())
	require.Len(t, rows, 1)
	assert.Equal(t, "alive", rows[0]["status"])

	// Calls routed through the manager reach the extension too.
	resp := h.mgr.Call("table", "probe_info", nil)
	require.True(t, resp.Status.OK())
	assert.Equal(t, "alive", resp.Rows[0]["status"])

	// The extension shuts down; the watcher deregisters it.
	extRunner.Stop()

	require.Eventually(t, func() bool {
		list, st := GetExtensions(ctx, h.cfg)
		if !st.OK() {
			return false
		}
		_, present := list[uuid]
		return !present
	}, 5*time.Second, 100*time.Millisecond, "extension was not deregistered")

	list, st = GetExtensions(ctx, h.cfg)
	require.True(t, st.OK())
	assert.Equal(t, "core", list[0].Name)
	assert.Empty(t, h.reg.RouteUUIDs())
}

func TestStartExtensionManager_RequiredMissing(t *testing.T) {
	start := time.Now()

	cfg := &config.Config{
		ExtensionsSocket:   filepath.Join(t.TempDir(), "em"),
		ExtensionsTimeout:  "1",
		ExtensionsInterval: "1",
		ExtensionsRequire:  "R",
	}
	reg := registry.New()
	runner := service.NewRunner()
	defer runner.Stop()

	status := StartExtensionManager(context.Background(), cfg, NewManager(cfg, reg), reg, runner)
	require.False(t, status.OK())
	assert.Equal(t, "Extension not autoloaded: R", status.Message)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestStartExtensionManager_RequiredWhitespaceEntries(t *testing.T) {
	cfg := &config.Config{
		ExtensionsSocket:   filepath.Join(t.TempDir(), "em"),
		ExtensionsTimeout:  "1",
		ExtensionsInterval: "1",
		ExtensionsRequire:  " , ,",
	}
	reg := registry.New()
	runner := service.NewRunner()
	defer runner.Stop()

	// Empty entries are trimmed away; nothing is required.
	status := StartExtensionManager(context.Background(), cfg, NewManager(cfg, reg), reg, runner)
	require.True(t, status.OK())
}

func TestAwaitRequired_WaitedQuirk(t *testing.T) {
	h := startManager(t)
	ctx := context.Background()

	// A fresh wait spends the full timeout on a missing name.
	waited := false
	start := time.Now()
	status := awaitRequiredExtension(ctx, h.cfg, "ghost", &waited)
	fullWait := time.Since(start)
	require.False(t, status.OK())
	assert.Equal(t, "Extension not autoloaded: ghost", status.Message)
	assert.GreaterOrEqual(t, fullWait, 500*time.Millisecond)

	// Once waited is set, a missing name gets a single probe rather
	// than a fresh timeout.
	waited = true
	start = time.Now()
	status = awaitRequiredExtension(ctx, h.cfg, "ghost", &waited)
	require.False(t, status.OK())
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}
