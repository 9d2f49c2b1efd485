// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QueryMesh Contributors

package extension

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/oops"

	"github.com/querymesh/querymesh/internal/config"
)

// Supervisor receives sanitized extension binary paths to spawn and
// manage. The default implementation lives in supervisor.go.
type Supervisor interface {
	AddExtensionPath(path string)
}

// ModuleLoader loads a registry module binary into the process. Module
// loading itself is an opaque sibling facility; only the safety gate is
// applied here.
type ModuleLoader interface {
	Load(path string) error
}

type extendableKind string

const (
	kindExtension extendableKind = "extension"
	kindModule    extendableKind = "module"
)

// suffix returns the required filename suffix for the kind on this
// platform. The per-platform values live in the suffix_*.go files.
func (k extendableKind) suffix() string {
	if k == kindExtension {
		return extensionSuffix
	}
	return moduleSuffix
}

// LoadExtensions reads the autoload file and hands each safe candidate
// to the supervisor. The list file being readable is the only hard
// requirement; unsafe candidates are skipped with a warning.
func LoadExtensions(cfg *config.Config, supervisor Supervisor) error {
	// Disabling extensions disables autoloading.
	if cfg.DisableExtensions {
		return nil
	}

	if cfg.Extension != "" {
		// Shell-only development flag for quickly loading a single
		// extension. It bypasses the safety check.
		supervisor.AddExtensionPath(cfg.Extension)
	}

	data, err := os.ReadFile(cfg.ExtensionsAutoload)
	if err != nil {
		return oops.Code("AUTOLOAD_READ").With("path", cfg.ExtensionsAutoload).
			Errorf("Failed reading: %s", cfg.ExtensionsAutoload)
	}

	for _, line := range strings.Split(string(data), "\n") {
		if path, ok := isFileSafe(line, kindExtension); ok {
			// The supervisor becomes responsible for spawning and
			// managing the extension binary.
			supervisor.AddExtensionPath(path)
		}
	}
	return nil
}

// LoadModules reads the module autoload file and loads each safe
// candidate. Unlike extensions, any unsafe candidate makes the whole
// load an aggregate failure.
func LoadModules(cfg *config.Config, loader ModuleLoader) error {
	data, err := os.ReadFile(cfg.ModulesAutoload)
	if err != nil {
		return oops.Code("AUTOLOAD_READ").With("path", cfg.ModulesAutoload).
			Errorf("Failed reading: %s", cfg.ModulesAutoload)
	}

	allLoaded := true
	for _, line := range strings.Split(string(data), "\n") {
		path, ok := isFileSafe(line, kindModule)
		if !ok {
			if candidate := strings.TrimSpace(line); candidate != "" &&
				candidate[0] != '#' && candidate[0] != ';' {
				allLoaded = false
			}
			continue
		}
		if err := loader.Load(path); err != nil {
			slog.Warn("failed to load module",
				"path", path,
				"error", err,
			)
			allLoaded = false
		}
	}

	if !allLoaded {
		return oops.Code("AUTOLOAD_MODULES").
			Errorf("failed to load all modules from: %s", cfg.ModulesAutoload)
	}
	return nil
}

// isFileSafe applies the autoload safety gates to one candidate line:
// not a comment, not a directory, safe permissions on the file and its
// parent, and the platform suffix for the kind. Returns the sanitized
// path on acceptance.
func isFileSafe(path string, kind extendableKind) (string, bool) {
	path = strings.TrimSpace(path)
	if path == "" || path[0] == '#' || path[0] == ';' {
		return "", false
	}

	if fi, err := os.Stat(path); err == nil && fi.IsDir() {
		slog.Debug("cannot autoload from directory",
			"kind", string(kind),
			"path", path,
		)
		return "", false
	}

	// Only autoload files that are safe at the time of discovery.
	if !safePermissions(filepath.Dir(path), path) {
		slog.Warn("will not autoload with unsafe directory permissions",
			"kind", string(kind),
			"path", path,
		)
		return "", false
	}

	if !strings.HasSuffix(path, kind.suffix()) {
		slog.Warn("will not autoload with wrong suffix",
			"kind", string(kind),
			"suffix", kind.suffix(),
			"path", path,
		)
		return "", false
	}

	slog.Debug("found autoloadable",
		"kind", string(kind),
		"path", path,
	)
	return path, true
}
