// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QueryMesh Contributors

// Package sdk provides the entry point for building QueryMesh extension
// binaries.
//
// An extension process registers its plugin catalog with the manager
// over the local endpoint, serves its own endpoint, and watches the
// manager, exiting if the manager disappears.
//
// Example usage:
//
//	package main
//
//	import (
//		"context"
//		"os"
//
//		"github.com/querymesh/querymesh/pkg/sdk"
//	)
//
//	type tablePlugin struct{}
//
//	func (tablePlugin) Routes() sdk.PluginDescriptor {
//		return sdk.PluginDescriptor{"columns": "name:TEXT"}
//	}
//
//	func (tablePlugin) Call(_ context.Context, _ map[string]string) ([]map[string]string, error) {
//		return []map[string]string{{"name": "example"}}, nil
//	}
//
//	func main() {
//		err := sdk.Run(&sdk.ServeConfig{
//			Name:    "example",
//			Version: "1.0.0",
//			Plugins: map[string]map[string]sdk.Plugin{
//				"table": {"example": tablePlugin{}},
//			},
//		})
//		if err != nil {
//			os.Exit(1)
//		}
//	}
package sdk

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/querymesh/querymesh/internal/build"
	"github.com/querymesh/querymesh/internal/config"
	"github.com/querymesh/querymesh/internal/extension"
	"github.com/querymesh/querymesh/internal/logging"
	"github.com/querymesh/querymesh/internal/registry"
	"github.com/querymesh/querymesh/internal/service"
	"github.com/querymesh/querymesh/internal/transport"
)

// Plugin is the interface extension plugin items implement.
type Plugin = registry.Plugin

// PluginDescriptor describes a plugin item for the broadcast catalog.
type PluginDescriptor = registry.PluginDescriptor

// ServeConfig configures an extension process.
type ServeConfig struct {
	// Name identifies the extension to the manager. Required.
	Name string

	// Version of the extension. Required.
	Version string

	// MinSDKVersion the extension requires of the host. Defaults to
	// "0.0.0".
	MinSDKVersion string

	// Plugins contributed by this extension, keyed by plugin kind then
	// plugin name.
	Plugins map[string]map[string]Plugin

	// Flags is an optional pre-parsed flag set carrying the aliased
	// socket/timeout/interval flags. When nil, os.Args is parsed.
	Flags *pflag.FlagSet
}

// Run starts the extension process and blocks until the manager asks it
// to shut down, the manager disappears, or a signal arrives. A clean
// manager loss returns nil; a fatal ping failure returns an error.
func Run(sc *ServeConfig) error {
	if sc == nil || sc.Name == "" {
		return oops.Code("SDK_CONFIG").Errorf("extension name is required")
	}
	if sc.Version == "" {
		return oops.Code("SDK_CONFIG").Errorf("extension version is required")
	}

	fs := sc.Flags
	if fs == nil {
		fs = pflag.NewFlagSet(sc.Name, pflag.ContinueOnError)
		config.RegisterExtensionFlags(fs)
		if err := fs.Parse(os.Args[1:]); err != nil {
			return oops.Code("SDK_FLAGS").Wrap(err)
		}
	}

	cfg, err := config.LoadExtension(fs)
	if err != nil {
		return err
	}

	logging.SetDefault(sc.Name, sc.Version, cfg.LogFormat)

	reg := registry.New()
	for kind, items := range sc.Plugins {
		for name, plugin := range items {
			if err := reg.AddPlugin(kind, name, plugin, false); err != nil {
				return err
			}
		}
	}

	minSDK := sc.MinSDKVersion
	if minSDK == "" {
		minSDK = "0.0.0"
	}
	info := transport.ExtensionInfo{
		Name:          sc.Name,
		Version:       sc.Version,
		SDKVersion:    build.SDKVersion,
		MinSDKVersion: minSDK,
	}

	exitCh := make(chan int, 1)
	requestShutdown := func(code int) {
		select {
		case exitCh <- code:
		default:
		}
	}

	runner := service.NewRunner()
	status := extension.StartExtension(context.Background(), cfg, reg, runner, info, requestShutdown)
	if !status.OK() {
		runner.Stop()
		return oops.Code("SDK_START").Errorf("%s", status.Message)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	code := 0
	select {
	case code = <-exitCh:
	case <-sigCh:
	}

	runner.Stop()
	if code != 0 {
		return oops.Code("SDK_FATAL").With("exit_code", code).
			Errorf("extension exiting after fatal manager ping")
	}
	return nil
}
