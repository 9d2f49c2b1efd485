// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QueryMesh Contributors

// Package registry holds the plugin catalog of one process. The manager
// merges every registered extension's broadcast into its registry; an
// extension's registry holds only its own plugins and is marked external
// so core-only plugins are excluded from its broadcast.
package registry

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/samber/oops"
)

// PluginDescriptor describes one plugin item in a broadcast.
type PluginDescriptor map[string]string

// Broadcast is a catalog of contributed plugins keyed by plugin kind,
// then plugin name.
type Broadcast map[string]map[string]PluginDescriptor

// Plugin is a locally-callable plugin item.
type Plugin interface {
	// Routes describes the item for the broadcast catalog.
	Routes() PluginDescriptor
	// Call services one plugin request.
	Call(ctx context.Context, request map[string]string) ([]map[string]string, error)
}

type localEntry struct {
	plugin   Plugin
	coreOnly bool
}

// Registry is the per-process plugin catalog. Writes are serialized by
// the registry's own lock.
type Registry struct {
	mu       sync.RWMutex
	external bool
	setup    bool
	active   map[string]string
	local    map[string]map[string]localEntry
	remote   map[uint64]Broadcast
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		active: make(map[string]string),
		local:  make(map[string]map[string]localEntry),
		remote: make(map[uint64]Broadcast),
	}
}

// SetExternal marks this registry as belonging to an extension process.
// Subsequent GetBroadcast calls exclude core-only plugins.
func (r *Registry) SetExternal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.external = true
}

// External reports whether the registry belongs to an extension process.
func (r *Registry) External() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.external
}

// AddPlugin registers a local plugin item. Core-only plugins are served
// in-process but never broadcast by an external registry.
func (r *Registry) AddPlugin(kind, name string, p Plugin, coreOnly bool) error {
	if kind == "" || name == "" {
		return oops.Code("REGISTRY_ITEM").Errorf("plugin kind and name are required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.local[kind][name]; ok {
		return oops.Code("REGISTRY_DUPLICATE").With("kind", kind).With("name", name).
			Errorf("duplicate registry item exists: %s/%s", kind, name)
	}
	if r.local[kind] == nil {
		r.local[kind] = make(map[string]localEntry)
	}
	r.local[kind][name] = localEntry{plugin: p, coreOnly: coreOnly}
	return nil
}

// GetBroadcast snapshots the local catalog. When the registry is
// external, core-only plugins are excluded.
func (r *Registry) GetBroadcast() Broadcast {
	r.mu.RLock()
	defer r.mu.RUnlock()

	broadcast := make(Broadcast)
	for kind, items := range r.local {
		for name, entry := range items {
			if r.external && entry.coreOnly {
				continue
			}
			if broadcast[kind] == nil {
				broadcast[kind] = make(map[string]PluginDescriptor)
			}
			desc := PluginDescriptor{}
			if entry.plugin != nil {
				for k, v := range entry.plugin.Routes() {
					desc[k] = v
				}
			}
			broadcast[kind][name] = desc
		}
	}
	return broadcast
}

// AddBroadcast merges an extension's catalog under its route UUID.
// Fails if any item collides with a local plugin or another extension's
// broadcast; on failure nothing is merged.
func (r *Registry) AddBroadcast(uuid uint64, broadcast Broadcast) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for kind, items := range broadcast {
		for name := range items {
			if _, ok := r.local[kind][name]; ok {
				return oops.Code("REGISTRY_DUPLICATE").With("kind", kind).With("name", name).
					Errorf("duplicate registry item exists: %s/%s", kind, name)
			}
			for other, b := range r.remote {
				if other == uuid {
					continue
				}
				if _, ok := b[kind][name]; ok {
					return oops.Code("REGISTRY_DUPLICATE").With("kind", kind).With("name", name).
						Errorf("duplicate registry item exists: %s/%s", kind, name)
				}
			}
		}
	}

	r.remote[uuid] = broadcast
	return nil
}

// RemoveBroadcast drops an extension's catalog. Unknown UUIDs are a no-op.
func (r *Registry) RemoveBroadcast(uuid uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.remote, uuid)
}

// RouteUUIDs returns the UUIDs of all merged broadcasts, sorted.
func (r *Registry) RouteUUIDs() []uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	uuids := make([]uint64, 0, len(r.remote))
	for uuid := range r.remote {
		uuids = append(uuids, uuid)
	}
	sort.Slice(uuids, func(i, j int) bool { return uuids[i] < uuids[j] })
	return uuids
}

// RouteFor resolves a plugin item to the extension that broadcast it.
func (r *Registry) RouteFor(kind, name string) (uint64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for uuid, b := range r.remote {
		if _, ok := b[kind][name]; ok {
			return uuid, true
		}
	}
	return 0, false
}

// Call dispatches a request to a local plugin item.
func (r *Registry) Call(ctx context.Context, kind, name string, request map[string]string) ([]map[string]string, error) {
	r.mu.RLock()
	entry, ok := r.local[kind][name]
	r.mu.RUnlock()

	if !ok || entry.plugin == nil {
		return nil, oops.Code("REGISTRY_MISSING").With("kind", kind).With("name", name).
			Errorf("registry item not found: %s/%s", kind, name)
	}
	rows, err := entry.plugin.Call(ctx, request)
	if err != nil {
		return nil, oops.Code("REGISTRY_CALL").With("kind", kind).With("name", name).Wrap(err)
	}
	return rows, nil
}

// SetActive selects the active plugin for a kind. The item may live in
// the local catalog or in a merged broadcast; the process serving the
// other side arbitrates at call time.
func (r *Registry) SetActive(kind, name string) error {
	if name == "" {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	_, local := r.local[kind][name]
	remote := false
	for _, b := range r.remote {
		if _, ok := b[kind][name]; ok {
			remote = true
			break
		}
	}
	if !local && !remote {
		return oops.Code("REGISTRY_MISSING").With("kind", kind).With("name", name).
			Errorf("registry item not found: %s/%s", kind, name)
	}

	r.active[kind] = name
	return nil
}

// Active returns the active plugin name for a kind.
func (r *Registry) Active(kind string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.active[kind]
	return name, ok
}

// SetUp finalizes lazy plugin selection. Active items that resolve to
// nothing are logged and cleared rather than failing startup.
func (r *Registry) SetUp() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for kind, name := range r.active {
		if _, ok := r.local[kind][name]; ok {
			continue
		}
		found := false
		for _, b := range r.remote {
			if _, ok := b[kind][name]; ok {
				found = true
				break
			}
		}
		if !found {
			slog.Warn("active plugin missing from registry",
				"kind", kind,
				"name", name,
			)
			delete(r.active, kind)
		}
	}

	r.setup = true
	return nil
}

// Ready reports whether SetUp has completed.
func (r *Registry) Ready() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.setup
}
