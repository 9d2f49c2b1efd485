// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QueryMesh Contributors

// Package config loads the process-wide configuration bundle. Values are
// layered: an optional YAML config file first, then command-line flags
// (flag defaults included) on top. The bundle is frozen after Load;
// services receive it by pointer and never mutate it.
package config

import (
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/querymesh/querymesh/internal/xdg"
)

// Defaults for the extension manager flags.
const (
	DefaultTimeout  = "3"
	DefaultInterval = "3"
)

// Option is one exported runtime option, as served by the options RPC.
// Values are strings; the consumer coerces.
type Option struct {
	Value        string `json:"value"`
	DefaultValue string `json:"default_value"`
	Type         string `json:"type"`
}

// Config is the frozen configuration bundle for one process.
type Config struct {
	DisableExtensions  bool   `koanf:"disable_extensions"`
	ExtensionsSocket   string `koanf:"extensions_socket" validate:"required"`
	ExtensionsAutoload string `koanf:"extensions_autoload"`
	ModulesAutoload    string `koanf:"modules_autoload"`
	ExtensionsTimeout  string `koanf:"extensions_timeout" validate:"required,number"`
	ExtensionsInterval string `koanf:"extensions_interval" validate:"required,number"`
	ExtensionsRequire  string `koanf:"extensions_require"`
	Extension          string `koanf:"extension"`
	ConfigPlugin       string `koanf:"config_plugin"`
	LoggerPlugin       string `koanf:"logger_plugin"`
	DistributedPlugin  string `koanf:"distributed_plugin"`
	LogFormat          string `koanf:"log_format" validate:"omitempty,oneof=json text"`
	MetricsAddr        string `koanf:"metrics_addr"`

	options map[string]Option
}

// RegisterFlags defines the manager-side flag surface with defaults.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.Bool("disable_extensions", false, "disable the extension API")
	fs.String("extensions_socket", DefaultSocketPath(), "path to the extension manager endpoint")
	fs.String("extensions_autoload", filepath.Join(xdg.ConfigDir(), "extensions.load"), "optional path to a list of autoloaded extensions")
	fs.String("modules_autoload", filepath.Join(xdg.ConfigDir(), "modules.load"), "optional path to a list of autoloaded registry modules")
	fs.String("extensions_timeout", DefaultTimeout, "seconds to wait for autoloaded extensions")
	fs.String("extensions_interval", DefaultInterval, "seconds delay between connectivity checks")
	fs.String("extensions_require", "", "comma-separated list of required extensions")
	fs.String("extension", "", "path to a single extension to autoload, bypassing the safety check")
	fs.String("config_plugin", "filesystem", "active config plugin")
	fs.String("logger_plugin", "filesystem", "active logger plugin")
	fs.String("distributed_plugin", "tls", "active distributed plugin")
	fs.String("log_format", "json", "log format (json or text)")
	fs.String("metrics_addr", "", "metrics/health HTTP address (empty = disabled)")
}

// RegisterExtensionFlags defines the aliased flag surface exposed to
// extension binaries. The extensions_ prefix is dropped since the binary
// already runs in the context of an extension.
func RegisterExtensionFlags(fs *pflag.FlagSet) {
	fs.String("socket", DefaultSocketPath(), "path to the extension manager endpoint")
	fs.String("timeout", DefaultTimeout, "seconds to wait for the manager endpoint")
	fs.String("interval", DefaultInterval, "seconds delay between connectivity checks")
	fs.String("log_format", "json", "log format (json or text)")
}

// DefaultSocketPath is the manager endpoint path when no flag is given.
func DefaultSocketPath() string {
	return filepath.Join(xdg.RuntimeDir(), "querymesh.em")
}

// Load builds the bundle from an optional YAML config file and the parsed
// flag set. Flags (and their defaults) win over the file.
func Load(fs *pflag.FlagSet, configFile string) (*Config, error) {
	k := koanf.New(".")

	if configFile != "" {
		if err := k.Load(file.Provider(configFile), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_FILE").With("path", configFile).Wrapf(err, "failed to load config file")
		}
	}

	if err := k.Load(posflag.Provider(fs, ".", k), nil); err != nil {
		return nil, oops.Code("CONFIG_FLAGS").Wrapf(err, "failed to load flags")
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_DECODE").Wrapf(err, "failed to decode configuration")
	}

	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(&cfg); err != nil {
		return nil, oops.Code("CONFIG_INVALID").Wrapf(err, "invalid configuration")
	}

	cfg.options = snapshotOptions(fs, k)
	return &cfg, nil
}

// LoadExtension builds the bundle for an extension process from the
// aliased flag set of RegisterExtensionFlags.
func LoadExtension(fs *pflag.FlagSet) (*Config, error) {
	socket, err := fs.GetString("socket")
	if err != nil {
		return nil, oops.Code("CONFIG_FLAGS").Wrapf(err, "missing socket flag")
	}
	timeout, err := fs.GetString("timeout")
	if err != nil {
		return nil, oops.Code("CONFIG_FLAGS").Wrapf(err, "missing timeout flag")
	}
	interval, err := fs.GetString("interval")
	if err != nil {
		return nil, oops.Code("CONFIG_FLAGS").Wrapf(err, "missing interval flag")
	}
	logFormat, _ := fs.GetString("log_format")

	cfg := &Config{
		ExtensionsSocket:   socket,
		ExtensionsTimeout:  timeout,
		ExtensionsInterval: interval,
		LogFormat:          logFormat,
	}
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(cfg); err != nil {
		return nil, oops.Code("CONFIG_INVALID").Wrapf(err, "invalid configuration")
	}
	cfg.options = snapshotOptions(fs, nil)
	return cfg, nil
}

// snapshotOptions freezes the flag table for the options RPC.
func snapshotOptions(fs *pflag.FlagSet, k *koanf.Koanf) map[string]Option {
	options := make(map[string]Option)
	fs.VisitAll(func(f *pflag.Flag) {
		value := f.Value.String()
		if k != nil && k.Exists(f.Name) {
			value = fmt.Sprint(k.Get(f.Name))
		}
		options[f.Name] = Option{
			Value:        value,
			DefaultValue: f.DefValue,
			Type:         f.Value.Type(),
		}
	})
	return options
}

// Options returns the frozen flag table snapshot.
func (c *Config) Options() map[string]Option {
	options := make(map[string]Option, len(c.options))
	for name, o := range c.options {
		options[name] = o
	}
	return options
}

// Timeout returns extensions_timeout as a duration. A malformed value
// counts as zero; the readiness helper clamps to its floor.
func (c *Config) Timeout() time.Duration {
	return secondsFlag(c.ExtensionsTimeout)
}

// Interval returns extensions_interval as a duration.
func (c *Config) Interval() time.Duration {
	return secondsFlag(c.ExtensionsInterval)
}

func secondsFlag(s string) time.Duration {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}
