// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QueryMesh Contributors

package extension

import (
	"context"
	"log/slog"
	"time"

	"github.com/querymesh/querymesh/internal/endpoint"
	"github.com/querymesh/querymesh/internal/registry"
	"github.com/querymesh/querymesh/internal/service"
	"github.com/querymesh/querymesh/internal/transport"
)

// DefaultFatalExitCode is the exit code of an extension whose manager is
// reachable but returns a failing ping while the watcher is fatal.
const DefaultFatalExitCode = 1

// prober is the slice of the one-shot client the watchers use.
type prober interface {
	Ping() (transport.Status, error)
	Shutdown() error
	Close()
}

// clientFactory builds one-shot clients; swappable in tests.
type clientFactory func(path string, timeout time.Duration) prober

func defaultClientFactory(path string, timeout time.Duration) prober {
	return transport.NewClient(path, timeout)
}

// ExtensionWatcher runs inside an extension process and pings the
// manager endpoint on a fixed interval. When the manager disappears the
// extension shuts itself down so its supervisor can restart it cleanly.
type ExtensionWatcher struct {
	service.Base

	path            string
	interval        time.Duration
	fatal           bool
	requestShutdown func(code int)
	newClient       clientFactory
}

// NewExtensionWatcher creates the manager-watching service of an
// extension process. requestShutdown initiates process-wide shutdown
// with the given exit code.
func NewExtensionWatcher(path string, interval time.Duration, fatal bool, requestShutdown func(int)) *ExtensionWatcher {
	return &ExtensionWatcher{
		path:            path,
		interval:        interval,
		fatal:           fatal,
		requestShutdown: requestShutdown,
		newClient:       defaultClientFactory,
	}
}

// Name identifies the service.
func (w *ExtensionWatcher) Name() string {
	return "extension_watcher"
}

// Start runs the watch loop until interrupted.
func (w *ExtensionWatcher) Start() error {
	for !w.Interrupted() {
		w.watch()
		w.Pause(w.interval)
	}
	return nil
}

// Stop interrupts the watch loop.
func (w *ExtensionWatcher) Stop() {
	w.Interrupt()
}

// watch performs one probe of the manager endpoint. The raw ping is used
// rather than the facade so no readiness wait applies on a tick.
func (w *ExtensionWatcher) watch() {
	var status transport.Status
	coreSane := true

	if endpoint.Writable(w.path) {
		client := w.newClient(w.path, transport.DefaultCallTimeout)
		st, err := client.Ping()
		client.Close()
		if err != nil {
			coreSane = false
		} else {
			status = st
		}
	} else {
		// The previously-writable manager endpoint is not usable.
		coreSane = false
	}

	if !coreSane {
		slog.Info("extension watcher ending: extension manager has gone away")
		w.exitFatal(0)
		return
	}

	if status.Code != transport.CodeSuccess && w.fatal {
		// The manager may be healthy but return a failed ping status.
		w.exitFatal(DefaultFatalExitCode)
	}
}

// exitFatal requests process shutdown and stops the watch loop.
func (w *ExtensionWatcher) exitFatal(code int) {
	w.Interrupt()
	if w.requestShutdown != nil {
		w.requestShutdown(code)
	}
}

// ManagerWatcher runs inside the host and pings every registered
// extension on a fixed interval. The failure map is confined to this
// service's goroutine; each scan resets an extension's count to one, so
// a single failed scan raises it to two and deregisters the extension.
type ManagerWatcher struct {
	service.Base

	managerPath string
	interval    time.Duration
	timeout     time.Duration
	reg         *registry.Registry
	deregister  func(uuid uint64)
	failures    map[uint64]int
	newClient   clientFactory
	metrics     *Metrics
}

// NewManagerWatcher creates the extension-watching service of the host.
// deregister is invoked once per evicted UUID; timeout is the grace
// period granted to a freshly-registered extension's first probe.
func NewManagerWatcher(managerPath string, interval, timeout time.Duration, reg *registry.Registry, deregister func(uint64)) *ManagerWatcher {
	return &ManagerWatcher{
		managerPath: managerPath,
		interval:    interval,
		timeout:     timeout,
		reg:         reg,
		deregister:  deregister,
		failures:    make(map[uint64]int),
		newClient:   defaultClientFactory,
	}
}

// WithWatcherMetrics attaches tick metrics.
func (w *ManagerWatcher) WithWatcherMetrics(metrics *Metrics) *ManagerWatcher {
	w.metrics = metrics
	return w
}

// Name identifies the service.
func (w *ManagerWatcher) Name() string {
	return "extension_manager_watcher"
}

// Start runs the watch loop until interrupted, then asks every live
// extension to shut down.
func (w *ManagerWatcher) Start() error {
	for !w.Interrupted() {
		w.watch()
		w.Pause(w.interval)
	}

	for _, uuid := range w.reg.RouteUUIDs() {
		path := endpoint.ForExtension(uuid, w.managerPath)
		client := w.newClient(path, transport.DefaultCallTimeout)
		if err := client.Shutdown(); err != nil {
			slog.Debug("extension shutdown request failed",
				"uuid", uuid,
				"error", err,
			)
		}
		client.Close()
	}
	return nil
}

// Stop interrupts the watch loop.
func (w *ManagerWatcher) Stop() {
	w.Interrupt()
}

// watch performs one scan over all registered route UUIDs.
func (w *ManagerWatcher) watch() {
	for _, uuid := range w.reg.RouteUUIDs() {
		path := endpoint.ForExtension(uuid, w.managerPath)

		writable := endpoint.Writable(path)
		if !writable && w.failures[uuid] == 0 {
			// A never-probed extension may still be binding its
			// endpoint; grant it the autoload timeout.
			slog.Debug("extension initial check failed", "uuid", uuid)
			writable = endpoint.Ready(context.Background(), path, w.timeout, true) == nil
		}

		// Every scan resets the count to one before the probe outcome is
		// known; a failed scan then lands on two. An extension is only
		// removed once a scan ends with the count above one.
		w.failures[uuid] = 1
		if !writable {
			w.failures[uuid]++
			w.metrics.RecordPingFailure()
			continue
		}

		client := w.newClient(path, transport.DefaultCallTimeout)
		status, err := client.Ping()
		client.Close()
		if err != nil {
			w.failures[uuid]++
			w.metrics.RecordPingFailure()
			continue
		}

		if status.Code != transport.CodeSuccess {
			slog.Info("extension ping failed", "uuid", uuid)
			w.failures[uuid]++
			w.metrics.RecordPingFailure()
		} else {
			w.failures[uuid] = 1
		}
	}

	for uuid, count := range w.failures {
		if count > 1 {
			slog.Info("extension has gone away", "uuid", uuid)
			w.deregister(uuid)
			// Leave a clean entry in case the UUID is ever reused.
			w.failures[uuid] = 1
		}
	}
}
