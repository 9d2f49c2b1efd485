// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QueryMesh Contributors

// Package service provides long-lived worker units with explicit
// start/stop lifecycle. Each service runs on its own goroutine owned by a
// Runner; the Runner stops services in reverse construction order.
package service

import (
	"log/slog"
	"sync"
	"time"
)

// Service is a long-lived unit of work.
//
// Start blocks until the service is interrupted. Stop requests an
// interrupt and must be safe to call more than once and from any
// goroutine.
type Service interface {
	Name() string
	Start() error
	Stop()
}

// Base provides interrupt bookkeeping for Service implementations.
// Embed it and poll Interrupted (or use Pause) from the run loop.
type Base struct {
	once sync.Once
	done chan struct{}
	mu   sync.Mutex
}

// interruptChan lazily initializes the done channel.
func (b *Base) interruptChan() chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done == nil {
		b.done = make(chan struct{})
	}
	return b.done
}

// Interrupt requests the service stop. Idempotent.
func (b *Base) Interrupt() {
	ch := b.interruptChan()
	b.once.Do(func() { close(ch) })
}

// Interrupted reports whether an interrupt has been requested.
func (b *Base) Interrupted() bool {
	select {
	case <-b.interruptChan():
		return true
	default:
		return false
	}
}

// Pause sleeps for d or until interrupted, whichever comes first.
// Returns false if the pause was cut short by an interrupt.
func (b *Base) Pause(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-b.interruptChan():
		return false
	case <-t.C:
		return true
	}
}

// Runner owns a set of services, each on a dedicated goroutine.
type Runner struct {
	mu       sync.Mutex
	services []Service
	wg       sync.WaitGroup
	stopped  bool
}

// NewRunner creates an empty Runner.
func NewRunner() *Runner {
	return &Runner{}
}

// Add starts the service on its own goroutine and tracks it for Stop.
func (r *Runner) Add(s Service) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	r.services = append(r.services, s)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := s.Start(); err != nil {
			slog.Warn("service exited with error",
				"service", s.Name(),
				"error", err,
			)
		}
	}()
}

// Stop interrupts all services in reverse construction order and waits
// for their goroutines to finish.
func (r *Runner) Stop() {
	r.mu.Lock()
	r.stopped = true
	services := r.services
	r.mu.Unlock()

	for i := len(services) - 1; i >= 0; i-- {
		services[i].Stop()
	}
	r.wg.Wait()
}
