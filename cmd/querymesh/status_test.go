//go:build !windows

package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/querymesh/querymesh/internal/transport"
)

func TestStatusCmd_ManagerDown(t *testing.T) {
	cmd := newStatusCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{
		"--json",
		"--extensions_socket", filepath.Join(t.TempDir(), "absent.em"),
		"--extensions_timeout", "0",
	})

	require.NoError(t, cmd.Execute())

	var status ManagerStatus
	require.NoError(t, json.Unmarshal(out.Bytes(), &status))
	assert.False(t, status.Running)
	assert.Contains(t, status.Error, "Extension socket not available")
}

func TestFlattenExtensions_SortedCoreFirst(t *testing.T) {
	list := transport.ExtensionList{
		200: {Name: "beta", Version: "2.0.0"},
		0:   {Name: "core", Version: "0.4.0"},
		100: {Name: "alpha", Version: "1.0.0"},
	}

	flat := flattenExtensions(list)
	require.Len(t, flat, 3)
	assert.Equal(t, "core", flat[0].Name)
	assert.Equal(t, "alpha", flat[1].Name)
	assert.Equal(t, "beta", flat[2].Name)
}

func TestFormatStatusTable(t *testing.T) {
	out := formatStatusTable(ManagerStatus{
		Socket:  "/tmp/em",
		Running: true,
		Extensions: []ExtensionStatus{
			{UUID: 0, Name: "core", Version: "0.4.0", SDKVersion: "0.0.0"},
			{UUID: 100, Name: "probe", Version: "1.0.0", SDKVersion: "1.0.0"},
		},
	})

	assert.Contains(t, out, "SOCKET")
	assert.Contains(t, out, "/tmp/em")
	assert.Contains(t, out, "core")
	assert.Contains(t, out, "probe")
}
