// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QueryMesh Contributors

package extension

import (
	"context"

	"github.com/querymesh/querymesh/internal/build"
	"github.com/querymesh/querymesh/internal/config"
	"github.com/querymesh/querymesh/internal/endpoint"
	"github.com/querymesh/querymesh/internal/transport"
)

// Facade operations share one template: fail fast when extensions are
// disabled, verify endpoint readiness with a single probe, open a
// one-shot client, and translate the wire response. Transport errors
// surface as "Extension call failed"; protocol statuses propagate
// verbatim.

// Query runs a SQL query against the manager endpoint.
func Query(ctx context.Context, cfg *config.Config, sql string) ([]map[string]string, transport.Status) {
	if st := checkEndpoint(ctx, cfg, cfg.ExtensionsSocket); !st.OK() {
		return nil, st
	}

	client := transport.NewClient(cfg.ExtensionsSocket, cfg.Timeout())
	defer client.Close()

	resp, err := client.Query(sql)
	if err != nil {
		return nil, transport.Failuref("Extension call failed: %s", err.Error())
	}
	return resp.Rows, resp.Status
}

// GetQueryColumns resolves the column metadata of a SQL query against
// the manager endpoint.
func GetQueryColumns(ctx context.Context, cfg *config.Config, sql string) ([]Column, transport.Status) {
	if st := checkEndpoint(ctx, cfg, cfg.ExtensionsSocket); !st.OK() {
		return nil, st
	}

	client := transport.NewClient(cfg.ExtensionsSocket, cfg.Timeout())
	defer client.Close()

	resp, err := client.GetQueryColumns(sql)
	if err != nil {
		return nil, transport.Failuref("Extension call failed: %s", err.Error())
	}

	columns := make([]Column, 0, len(resp.Rows))
	for _, row := range resp.Rows {
		for name, typeName := range row {
			columns = append(columns, Column{
				Name:    name,
				Type:    ColumnTypeOf(typeName),
				Options: DefaultColumnOptions,
			})
		}
	}
	return columns, resp.Status
}

// CallExtension invokes a plugin item on a registered extension,
// resolved by route UUID.
func CallExtension(ctx context.Context, cfg *config.Config, uuid uint64, registryName, item string, request map[string]string) ([]map[string]string, transport.Status) {
	return CallExtensionPath(ctx, cfg, endpoint.ForExtension(uuid, cfg.ExtensionsSocket), registryName, item, request)
}

// CallExtensionPath invokes a plugin item on the endpoint at path. Rows
// are returned only for a success status.
func CallExtensionPath(ctx context.Context, cfg *config.Config, path, registryName, item string, request map[string]string) ([]map[string]string, transport.Status) {
	if st := checkEndpoint(ctx, cfg, path); !st.OK() {
		return nil, st
	}

	client := transport.NewClient(path, cfg.Timeout())
	defer client.Close()

	resp, err := client.Call(registryName, item, request)
	if err != nil {
		return nil, transport.Failuref("Extension call failed: %s", err.Error())
	}
	if resp.Status.Code != transport.CodeSuccess {
		return nil, resp.Status
	}
	return resp.Rows, resp.Status
}

// Ping checks liveness of the manager endpoint.
func Ping(ctx context.Context, cfg *config.Config) transport.Status {
	return PingExtension(ctx, cfg, cfg.ExtensionsSocket)
}

// PingExtension checks liveness of the endpoint at path.
func PingExtension(ctx context.Context, cfg *config.Config, path string) transport.Status {
	if st := checkEndpoint(ctx, cfg, path); !st.OK() {
		return st
	}

	client := transport.NewClient(path, cfg.Timeout())
	defer client.Close()

	status, err := client.Ping()
	if err != nil {
		return transport.Failuref("Extension call failed: %s", err.Error())
	}
	return status
}

// GetExtensions lists registered extensions. Index 0 always holds a
// synthetic record for the manager itself, named "core".
func GetExtensions(ctx context.Context, cfg *config.Config) (transport.ExtensionList, transport.Status) {
	if st := checkEndpoint(ctx, cfg, cfg.ExtensionsSocket); !st.OK() {
		return nil, st
	}

	client := transport.NewClient(cfg.ExtensionsSocket, cfg.Timeout())
	defer client.Close()

	remote, err := client.Extensions()
	if err != nil {
		return nil, transport.Failuref("Extension call failed: %s", err.Error())
	}

	list := make(transport.ExtensionList, len(remote)+1)
	list[0] = transport.ExtensionInfo{
		Name:          "core",
		Version:       build.Version,
		SDKVersion:    "0.0.0",
		MinSDKVersion: build.SDKVersion,
	}
	for uuid, info := range remote {
		list[uuid] = info
	}
	return list, transport.Success()
}

// checkEndpoint applies the shared facade preamble: the disabled flag
// short-circuits before any filesystem or endpoint activity, then the
// endpoint gets a single readiness probe.
func checkEndpoint(ctx context.Context, cfg *config.Config, path string) transport.Status {
	if cfg.DisableExtensions {
		return transport.Failuref("Extensions disabled")
	}
	if err := endpoint.Ready(ctx, path, cfg.Timeout(), false); err != nil {
		return transport.Failuref("%s", err.Error())
	}
	return transport.Success()
}
