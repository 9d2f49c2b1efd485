// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QueryMesh Contributors

package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/querymesh/querymesh/internal/config"
)

func newFlagSet(t *testing.T) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	config.RegisterFlags(fs)
	return fs
}

func TestLoad_Defaults(t *testing.T) {
	fs := newFlagSet(t)
	require.NoError(t, fs.Parse(nil))

	cfg, err := config.Load(fs, "")
	require.NoError(t, err)

	assert.False(t, cfg.DisableExtensions)
	assert.Equal(t, config.DefaultSocketPath(), cfg.ExtensionsSocket)
	assert.Equal(t, "3", cfg.ExtensionsTimeout)
	assert.Equal(t, "3", cfg.ExtensionsInterval)
	assert.Equal(t, "filesystem", cfg.ConfigPlugin)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 3*time.Second, cfg.Timeout())
	assert.Equal(t, 3*time.Second, cfg.Interval())
}

func TestLoad_FlagsOverride(t *testing.T) {
	fs := newFlagSet(t)
	require.NoError(t, fs.Parse([]string{
		"--extensions_socket", "/tmp/test.em",
		"--extensions_timeout", "7",
		"--disable_extensions",
	}))

	cfg, err := config.Load(fs, "")
	require.NoError(t, err)

	assert.True(t, cfg.DisableExtensions)
	assert.Equal(t, "/tmp/test.em", cfg.ExtensionsSocket)
	assert.Equal(t, 7*time.Second, cfg.Timeout())
}

func TestLoad_FileThenFlags(t *testing.T) {
	dir := t.TempDir()
	configFile := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte(
		"extensions_socket: /tmp/from-file.em\nextensions_require: alpha,beta\n",
	), 0o600))

	fs := newFlagSet(t)
	require.NoError(t, fs.Parse([]string{"--extensions_socket", "/tmp/from-flag.em"}))

	cfg, err := config.Load(fs, configFile)
	require.NoError(t, err)

	// A changed flag wins over the file; untouched keys come from the file.
	assert.Equal(t, "/tmp/from-flag.em", cfg.ExtensionsSocket)
	assert.Equal(t, "alpha,beta", cfg.ExtensionsRequire)
}

func TestLoad_MissingConfigFile(t *testing.T) {
	fs := newFlagSet(t)
	require.NoError(t, fs.Parse(nil))

	_, err := config.Load(fs, filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoad_RejectsNonNumericTimeout(t *testing.T) {
	fs := newFlagSet(t)
	require.NoError(t, fs.Parse([]string{"--extensions_timeout", "soon"}))

	_, err := config.Load(fs, "")
	require.Error(t, err)
}

func TestOptions_Snapshot(t *testing.T) {
	fs := newFlagSet(t)
	require.NoError(t, fs.Parse([]string{"--extensions_timeout", "9"}))

	cfg, err := config.Load(fs, "")
	require.NoError(t, err)

	options := cfg.Options()
	timeout, ok := options["extensions_timeout"]
	require.True(t, ok)
	assert.Equal(t, "9", timeout.Value)
	assert.Equal(t, config.DefaultTimeout, timeout.DefaultValue)
	assert.Equal(t, "string", timeout.Type)

	configPlugin, ok := options["config_plugin"]
	require.True(t, ok)
	assert.Equal(t, "filesystem", configPlugin.Value)

	// The snapshot is a copy; mutating it does not leak back.
	options["extensions_timeout"] = config.Option{Value: "mutated"}
	assert.Equal(t, "9", cfg.Options()["extensions_timeout"].Value)
}

func TestTimeout_MalformedCountsAsZero(t *testing.T) {
	cfg := &config.Config{ExtensionsTimeout: "nope", ExtensionsInterval: "-2"}
	assert.Equal(t, time.Duration(0), cfg.Timeout())
	assert.Equal(t, time.Duration(0), cfg.Interval())
}

func TestLoadExtension_Aliases(t *testing.T) {
	fs := pflag.NewFlagSet("ext", pflag.ContinueOnError)
	config.RegisterExtensionFlags(fs)
	require.NoError(t, fs.Parse([]string{
		"--socket", "/tmp/mgr.em",
		"--timeout", "1",
		"--interval", "2",
	}))

	cfg, err := config.LoadExtension(fs)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/mgr.em", cfg.ExtensionsSocket)
	assert.Equal(t, time.Second, cfg.Timeout())
	assert.Equal(t, 2*time.Second, cfg.Interval())
}
