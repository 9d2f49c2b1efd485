// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QueryMesh Contributors

//go:build !windows

package endpoint

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForExtension(t *testing.T) {
	tests := []struct {
		name        string
		uuid        uint64
		managerPath string
		want        string
	}{
		{
			name:        "simple",
			uuid:        100,
			managerPath: "/tmp/em",
			want:        "/tmp/em.100",
		},
		{
			name:        "zero uuid",
			uuid:        0,
			managerPath: "/tmp/em",
			want:        "/tmp/em.0",
		},
		{
			name:        "large uuid",
			uuid:        18446744073709551615,
			managerPath: "/run/querymesh.em",
			want:        "/run/querymesh.em.18446744073709551615",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ForExtension(tt.uuid, tt.managerPath)
			assert.Equal(t, tt.want, got)
			// Pure function: same inputs, same string.
			assert.Equal(t, got, ForExtension(tt.uuid, tt.managerPath))
		})
	}
}

func TestExistsAndWritable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "present")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))

	assert.True(t, Exists(path))
	assert.True(t, Writable(path))

	missing := filepath.Join(dir, "missing")
	assert.False(t, Exists(missing))
	assert.False(t, Writable(missing))
}

func TestReclaim_StaleSocket(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "em")

	// Stand in for a file left behind by a crashed prior instance:
	// closing the listener unlinks its socket, so a plain file takes
	// its place.
	listener, err := net.Listen("unix", path)
	require.NoError(t, err)
	_ = listener.Close()
	require.NoError(t, os.WriteFile(path, nil, 0o600))
	require.True(t, Exists(path))

	require.NoError(t, Reclaim(path))
	assert.False(t, Exists(path))
}

func TestReclaim_Idempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "em")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	require.NoError(t, Reclaim(path))
	// Second call is a no-op and still leaves the path absent.
	require.NoError(t, Reclaim(path))
	assert.False(t, Exists(path))
}

func TestReclaim_MissingParent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope", "em")
	err := Reclaim(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "directory missing")
}

func TestReady_ListeningSocket(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "em")

	listener, err := net.Listen("unix", path)
	require.NoError(t, err)
	defer func() { _ = listener.Close() }()

	go func() {
		for {
			conn, acceptErr := listener.Accept()
			if acceptErr != nil {
				return
			}
			_ = conn.Close()
		}
	}()

	require.NoError(t, Ready(context.Background(), path, time.Second, true))
	// No-timeout mode still succeeds against a live endpoint.
	require.NoError(t, Ready(context.Background(), path, time.Second, false))
}

func TestReady_MissingEndpoint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "em")

	// No-timeout mode degrades to a single probe.
	start := time.Now()
	err := Ready(context.Background(), path, 5*time.Second, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Extension socket not available")
	assert.Less(t, time.Since(start), time.Second)
}

func TestReady_TimeoutBounded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "em")

	start := time.Now()
	err := Ready(context.Background(), path, 300*time.Millisecond, true)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.GreaterOrEqual(t, elapsed, 200*time.Millisecond)
	assert.Less(t, elapsed, 2*time.Second)
}
