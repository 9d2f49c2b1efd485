// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QueryMesh Contributors

// Package extension implements both halves of the extension manager
// protocol: the manager role serving the primary endpoint and merging
// extension broadcasts, and the extension role registering with a
// manager and serving its own endpoint. The two watcher state machines
// live in watcher.go.
package extension

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"

	"github.com/Masterminds/semver/v3"

	"github.com/querymesh/querymesh/internal/build"
	"github.com/querymesh/querymesh/internal/config"
	"github.com/querymesh/querymesh/internal/endpoint"
	"github.com/querymesh/querymesh/internal/registry"
	"github.com/querymesh/querymesh/internal/transport"
)

// SQLExecutor answers SQL queries for the manager. The engine itself is
// an external collaborator; the default implementation reports that none
// is attached.
type SQLExecutor interface {
	Query(ctx context.Context, sql string) ([]map[string]string, error)
	QueryColumns(ctx context.Context, sql string) ([]Column, error)
}

// UnsupportedSQL is the SQLExecutor used when no engine is attached.
type UnsupportedSQL struct{}

// Query always fails.
func (UnsupportedSQL) Query(context.Context, string) ([]map[string]string, error) {
	return nil, errNoSQLEngine
}

// QueryColumns always fails.
func (UnsupportedSQL) QueryColumns(context.Context, string) ([]Column, error) {
	return nil, errNoSQLEngine
}

// Record is the manager's view of one registered extension.
type Record struct {
	UUID uint64
	Info transport.ExtensionInfo
	Path string
}

// Manager owns the host side of the protocol: route UUID minting,
// extension records, and the merged registry. It implements
// transport.ManagerHandler.
type Manager struct {
	cfg      *config.Config
	reg      *registry.Registry
	sql      SQLExecutor
	shutdown func()
	newUUID  func() uint64
	metrics  *Metrics

	mu         sync.Mutex
	extensions map[uint64]Record
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithSQL attaches a SQL engine for the query operations.
func WithSQL(sql SQLExecutor) ManagerOption {
	return func(m *Manager) { m.sql = sql }
}

// WithShutdownFunc sets the host shutdown hook invoked by the shutdown
// operation.
func WithShutdownFunc(fn func()) ManagerOption {
	return func(m *Manager) { m.shutdown = fn }
}

// WithUUIDSource overrides route UUID minting. Used in tests.
func WithUUIDSource(fn func() uint64) ManagerOption {
	return func(m *Manager) { m.newUUID = fn }
}

// WithManagerMetrics attaches watcher/registration metrics.
func WithManagerMetrics(metrics *Metrics) ManagerOption {
	return func(m *Manager) { m.metrics = metrics }
}

// NewManager creates the host-side manager over the given registry.
func NewManager(cfg *config.Config, reg *registry.Registry, opts ...ManagerOption) *Manager {
	m := &Manager{
		cfg:        cfg,
		reg:        reg,
		sql:        UnsupportedSQL{},
		newUUID:    rand.Uint64,
		extensions: make(map[uint64]Record),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Ping reports manager liveness.
func (m *Manager) Ping() transport.Status {
	return transport.Success()
}

// RegisterExtension admits an extension: identity checks, SDK bounds,
// route UUID minting, broadcast merge. On success the returned status
// carries the new UUID.
func (m *Manager) RegisterExtension(info transport.ExtensionInfo, broadcast registry.Broadcast) transport.Status {
	if info.Name == "" {
		return transport.Failuref("extension name is required")
	}
	if st := checkSDKBounds(info); !st.OK() {
		return st
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, record := range m.extensions {
		if record.Info.Name == info.Name {
			return transport.Failuref("duplicate extension registered: %s", info.Name)
		}
	}

	uuid := m.mintUUIDLocked()
	if err := m.reg.AddBroadcast(uuid, broadcast); err != nil {
		return transport.Failuref("%s", err.Error())
	}

	m.extensions[uuid] = Record{
		UUID: uuid,
		Info: info,
		Path: endpoint.ForExtension(uuid, m.cfg.ExtensionsSocket),
	}
	m.metrics.RecordRegistered(1)

	slog.Info("extension registered",
		"name", info.Name,
		"uuid", uuid,
		"version", info.Version,
		"sdk_version", info.SDKVersion,
	)

	return transport.Status{Code: transport.CodeSuccess, Message: "OK", UUID: uuid}
}

// mintUUIDLocked mints a route UUID unique among live extensions.
// Callers hold m.mu.
func (m *Manager) mintUUIDLocked() uint64 {
	for {
		uuid := m.newUUID()
		if uuid == 0 {
			continue
		}
		if _, taken := m.extensions[uuid]; !taken {
			return uuid
		}
	}
}

// checkSDKBounds rejects extensions that require a newer SDK than the
// host speaks. Unparseable versions skip the gate.
func checkSDKBounds(info transport.ExtensionInfo) transport.Status {
	if info.MinSDKVersion == "" {
		return transport.Success()
	}
	minimum, err := semver.NewVersion(info.MinSDKVersion)
	if err != nil {
		slog.Debug("ignoring unparseable min_sdk_version",
			"name", info.Name,
			"min_sdk_version", info.MinSDKVersion,
		)
		return transport.Success()
	}
	host, err := semver.NewVersion(build.SDKVersion)
	if err != nil {
		return transport.Success()
	}
	if minimum.GreaterThan(host) {
		return transport.Failuref("extension requires SDK %s, host provides %s",
			info.MinSDKVersion, build.SDKVersion)
	}
	return transport.Success()
}

// Deregister drops an extension's record and broadcast. Safe for
// unknown UUIDs.
func (m *Manager) Deregister(uuid uint64) {
	m.mu.Lock()
	_, known := m.extensions[uuid]
	delete(m.extensions, uuid)
	m.mu.Unlock()

	m.reg.RemoveBroadcast(uuid)
	if known {
		m.metrics.RecordRegistered(-1)
		m.metrics.RecordDeregistration()
	}
}

// Extensions snapshots the registered extension identities.
func (m *Manager) Extensions() transport.ExtensionList {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := make(transport.ExtensionList, len(m.extensions))
	for uuid, record := range m.extensions {
		list[uuid] = record.Info
	}
	return list
}

// RecordFor returns the record of a registered extension.
func (m *Manager) RecordFor(uuid uint64) (Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.extensions[uuid]
	return record, ok
}

// Options exports the frozen flag table.
func (m *Manager) Options() transport.OptionList {
	return m.cfg.Options()
}

// Query answers a SQL query through the attached engine.
func (m *Manager) Query(sql string) transport.Response {
	rows, err := m.sql.Query(context.Background(), sql)
	if err != nil {
		return transport.Response{Status: transport.Failuref("%s", err.Error())}
	}
	return transport.Response{Status: transport.Success(), Rows: rows}
}

// GetQueryColumns resolves column metadata for a SQL query. Each row of
// the response is a one-entry map of column name to type name.
func (m *Manager) GetQueryColumns(sql string) transport.Response {
	columns, err := m.sql.QueryColumns(context.Background(), sql)
	if err != nil {
		return transport.Response{Status: transport.Failuref("%s", err.Error())}
	}
	rows := make([]map[string]string, 0, len(columns))
	for _, column := range columns {
		rows = append(rows, map[string]string{column.Name: string(column.Type)})
	}
	return transport.Response{Status: transport.Success(), Rows: rows}
}

// Call dispatches a plugin request: local items are served in-process,
// items broadcast by an extension are proxied to it.
func (m *Manager) Call(registryName, item string, request map[string]string) transport.Response {
	if uuid, routed := m.reg.RouteFor(registryName, item); routed {
		rows, status := CallExtension(context.Background(), m.cfg, uuid, registryName, item, request)
		return transport.Response{Status: status, Rows: rows}
	}

	rows, err := m.reg.Call(context.Background(), registryName, item, request)
	if err != nil {
		return transport.Response{Status: transport.Failuref("%s", err.Error())}
	}
	return transport.Response{Status: transport.Success(), Rows: rows}
}

// Shutdown invokes the host shutdown hook.
func (m *Manager) Shutdown() {
	if m.shutdown != nil {
		m.shutdown()
	}
}

// ExtensionHandler serves the operations an extension endpoint answers.
type ExtensionHandler struct {
	reg      *registry.Registry
	shutdown func()
}

// NewExtensionHandler creates the extension-side endpoint handler.
func NewExtensionHandler(reg *registry.Registry, shutdown func()) *ExtensionHandler {
	return &ExtensionHandler{reg: reg, shutdown: shutdown}
}

// Ping reports extension liveness.
func (h *ExtensionHandler) Ping() transport.Status {
	return transport.Success()
}

// Call dispatches to a local plugin item.
func (h *ExtensionHandler) Call(registryName, item string, request map[string]string) transport.Response {
	rows, err := h.reg.Call(context.Background(), registryName, item, request)
	if err != nil {
		return transport.Response{Status: transport.Failuref("%s", err.Error())}
	}
	return transport.Response{Status: transport.Success(), Rows: rows}
}

// Shutdown requests the extension process stop.
func (h *ExtensionHandler) Shutdown() {
	if h.shutdown != nil {
		h.shutdown()
	}
}
