// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QueryMesh Contributors

package service

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// loopService runs until interrupted and records lifecycle order.
type loopService struct {
	Base
	name    string
	started chan struct{}
	order   *stopOrder
}

type stopOrder struct {
	mu    sync.Mutex
	names []string
}

func (o *stopOrder) record(name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.names = append(o.names, name)
}

func (o *stopOrder) snapshot() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.names...)
}

func (s *loopService) Name() string {
	return s.name
}

func (s *loopService) Start() error {
	close(s.started)
	for !s.Interrupted() {
		s.Pause(10 * time.Millisecond)
	}
	s.order.record(s.name)
	return nil
}

func (s *loopService) Stop() {
	s.Interrupt()
}

func TestRunner_StopsInReverseOrder(t *testing.T) {
	order := &stopOrder{}
	first := &loopService{name: "first", started: make(chan struct{}), order: order}
	second := &loopService{name: "second", started: make(chan struct{}), order: order}

	runner := NewRunner()
	runner.Add(first)
	runner.Add(second)

	<-first.started
	<-second.started

	runner.Stop()

	// Stop is requested in reverse construction order; both services
	// have exited once Stop returns.
	assert.Equal(t, []string{"second", "first"}, order.snapshot())
}

func TestRunner_AddAfterStopIsIgnored(t *testing.T) {
	runner := NewRunner()
	runner.Stop()

	s := &loopService{name: "late", started: make(chan struct{}), order: &stopOrder{}}
	runner.Add(s)

	select {
	case <-s.started:
		t.Fatal("service started after runner stop")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBase_PauseInterrupted(t *testing.T) {
	var b Base

	done := make(chan bool, 1)
	go func() {
		done <- b.Pause(10 * time.Second)
	}()

	time.Sleep(20 * time.Millisecond)
	b.Interrupt()

	select {
	case completed := <-done:
		assert.False(t, completed)
	case <-time.After(time.Second):
		t.Fatal("pause did not observe the interrupt")
	}
}

func TestBase_PauseCompletes(t *testing.T) {
	var b Base
	require.True(t, b.Pause(10*time.Millisecond))
	assert.False(t, b.Interrupted())
}

func TestBase_InterruptIdempotent(t *testing.T) {
	var b Base
	b.Interrupt()
	b.Interrupt()
	assert.True(t, b.Interrupted())
}
