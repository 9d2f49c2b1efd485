// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QueryMesh Contributors

package endpoint

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDelay_SucceedsImmediately(t *testing.T) {
	calls := 0
	err := Delay(context.Background(), time.Second, func(_ *bool) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDelay_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := Delay(context.Background(), time.Second, func(_ *bool) error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDelay_StopFlagReturnsImmediately(t *testing.T) {
	calls := 0
	probeErr := errors.New("single probe failed")

	start := time.Now()
	err := Delay(context.Background(), 10*time.Second, func(stop *bool) error {
		calls++
		*stop = true
		return probeErr
	})

	require.Error(t, err)
	assert.Equal(t, probeErr, err)
	assert.Equal(t, 1, calls)
	assert.Less(t, time.Since(start), time.Second)
}

func TestDelay_TimeoutReturnsLastResult(t *testing.T) {
	probeErr := errors.New("still failing")

	start := time.Now()
	err := Delay(context.Background(), 100*time.Millisecond, func(_ *bool) error {
		return probeErr
	})
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Equal(t, probeErr, err)
	// The floor is 10×InitLatency even for short timeouts.
	assert.GreaterOrEqual(t, elapsed, 7*InitLatency)
	assert.Less(t, elapsed, 2*time.Second)
}

func TestDelay_ZeroTimeoutClampsToFloor(t *testing.T) {
	probeErr := errors.New("never ready")
	calls := 0

	start := time.Now()
	err := Delay(context.Background(), 0, func(_ *bool) error {
		calls++
		return probeErr
	})
	elapsed := time.Since(start)

	require.Error(t, err)
	// 10×InitLatency is 200ms; the loop must poll more than once.
	assert.Greater(t, calls, 1)
	assert.GreaterOrEqual(t, elapsed, 7*InitLatency)
	assert.Less(t, elapsed, time.Second)
}
