// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QueryMesh Contributors

package extension

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/querymesh/querymesh/internal/config"
	"github.com/querymesh/querymesh/internal/endpoint"
	"github.com/querymesh/querymesh/internal/registry"
	"github.com/querymesh/querymesh/internal/service"
	"github.com/querymesh/querymesh/internal/transport"
)

// StartExtensionWatcher verifies the manager endpoint is reachable, then
// starts the watcher service on the runner. If the manager dies, so does
// the extension.
func StartExtensionWatcher(ctx context.Context, cfg *config.Config, runner *service.Runner, managerPath string, interval time.Duration, fatal bool, requestShutdown func(int)) transport.Status {
	if err := endpoint.Ready(ctx, managerPath, cfg.Timeout(), true); err != nil {
		return transport.Failuref("%s", err.Error())
	}
	runner.Add(NewExtensionWatcher(managerPath, interval, fatal, requestShutdown))
	return transport.Success()
}

// StartExtension runs the extension-side bootstrap: mark the registry
// external, start the manager watcher, register with the manager, apply
// its options, and serve the extension's own endpoint. On success the
// returned status carries the route UUID.
func StartExtension(ctx context.Context, cfg *config.Config, reg *registry.Registry, runner *service.Runner, info transport.ExtensionInfo, requestShutdown func(int)) transport.Status {
	// When a broadcast is requested this registry must not send
	// core-only plugins.
	reg.SetExternal()

	if st := StartExtensionWatcher(ctx, cfg, runner, cfg.ExtensionsSocket, cfg.Interval(), true, requestShutdown); !st.OK() {
		return st
	}

	if err := endpoint.Ready(ctx, cfg.ExtensionsSocket, cfg.Timeout(), true); err != nil {
		return transport.Failuref("%s", err.Error())
	}

	broadcast := reg.GetBroadcast()

	client := transport.NewClient(cfg.ExtensionsSocket, cfg.Timeout())
	defer client.Close()

	status, err := client.RegisterExtension(info, broadcast)
	if err != nil {
		// The most likely cause is the manager going away mid-register.
		return transport.Failuref("Extension register failed: %s", err.Error())
	}
	if !status.OK() {
		// Typically a duplicate extension name or a duplicate plugin
		// item in the broadcast.
		return status
	}

	options, err := client.Options()
	if err != nil {
		return transport.Failuref("Extension register failed: %s", err.Error())
	}

	// The manager arbitrates when the active plugins are not present in
	// this extension's local registry.
	applyActive(reg, "config", options["config_plugin"].Value)
	applyActive(reg, "logger", options["logger_plugin"].Value)
	applyActive(reg, "distributed", options["distributed_plugin"].Value)
	if err := reg.SetUp(); err != nil {
		return transport.Failuref("%s", err.Error())
	}

	// Now that the uuid is known, clean up any stale endpoint.
	extensionPath := endpoint.ForExtension(status.UUID, cfg.ExtensionsSocket)
	if err := endpoint.Reclaim(extensionPath); err != nil {
		return transport.Failuref("%s", err.Error())
	}

	runner.Add(transport.NewServer("extension", extensionPath, NewExtensionHandler(reg, func() {
		requestShutdown(0)
	})))

	slog.Debug("extension registered",
		"name", info.Name,
		"uuid", status.UUID,
		"version", info.Version,
		"sdk_version", info.SDKVersion,
	)
	return status
}

func applyActive(reg *registry.Registry, kind, name string) {
	if err := reg.SetActive(kind, name); err != nil {
		slog.Debug("active plugin not present locally",
			"kind", kind,
			"name", name,
		)
	}
}

// StartExtensionManager runs the host-side bootstrap: reclaim the
// manager endpoint, start the per-extension watcher and the manager RPC
// server, then optionally wait for required extensions.
func StartExtensionManager(ctx context.Context, cfg *config.Config, mgr *Manager, reg *registry.Registry, runner *service.Runner) transport.Status {
	if cfg.DisableExtensions {
		return transport.Failuref("Extensions disabled")
	}

	if err := endpoint.Reclaim(cfg.ExtensionsSocket); err != nil {
		return transport.Failuref("%s", err.Error())
	}

	watcher := NewManagerWatcher(cfg.ExtensionsSocket, cfg.Interval(), cfg.Timeout(), reg, mgr.Deregister).
		WithWatcherMetrics(mgr.metrics)
	runner.Add(watcher)
	runner.Add(transport.NewServer("extension_manager", cfg.ExtensionsSocket, mgr))

	if cfg.ExtensionsRequire != "" {
		waited := false
		for _, required := range strings.Split(cfg.ExtensionsRequire, ",") {
			name := strings.TrimSpace(required)
			if name == "" {
				continue
			}

			status := awaitRequiredExtension(ctx, cfg, name, &waited)

			// Once any name has been through the loop, later names get a
			// single probe rather than a fresh timeout.
			waited = true
			if !status.OK() {
				slog.Warn(status.Message)
				return status
			}
		}
	}

	return transport.Success()
}

// awaitRequiredExtension polls until an extension with the given name is
// registered and answers a ping.
func awaitRequiredExtension(ctx context.Context, cfg *config.Config, name string, waited *bool) transport.Status {
	var last transport.Status
	_ = endpoint.Delay(ctx, cfg.Timeout(), func(stop *bool) error {
		list, st := GetExtensions(ctx, cfg)
		if st.OK() {
			for uuid, info := range list {
				if info.Name == name {
					last = PingExtension(ctx, cfg, endpoint.ForExtension(uuid, cfg.ExtensionsSocket))
					if last.OK() {
						return nil
					}
					return errors.New(last.Message)
				}
			}
		}

		if *waited {
			// The timeout period has already been spent once.
			*stop = true
		}
		last = transport.Failuref("Extension not autoloaded: %s", name)
		return errors.New(last.Message)
	})
	return last
}
