// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QueryMesh Contributors

package extension

import (
	"log/slog"
	"os"
	"os/exec"
	"sync"

	"github.com/querymesh/querymesh/internal/config"
)

// ExecSupervisor spawns autoloaded extension binaries as child
// processes wired to the manager endpoint via the aliased flags.
type ExecSupervisor struct {
	cfg *config.Config

	mu   sync.Mutex
	cmds []*exec.Cmd
}

// NewExecSupervisor creates a supervisor for the given configuration.
func NewExecSupervisor(cfg *config.Config) *ExecSupervisor {
	return &ExecSupervisor{cfg: cfg}
}

// AddExtensionPath spawns the extension binary at path. Spawn failures
// are logged, not fatal; the manager runs without the extension.
func (s *ExecSupervisor) AddExtensionPath(path string) {
	//nolint:gosec // path has passed the autoload safety gate
	cmd := exec.Command(path,
		"--socket", s.cfg.ExtensionsSocket,
		"--timeout", s.cfg.ExtensionsTimeout,
		"--interval", s.cfg.ExtensionsInterval,
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		slog.Warn("failed to spawn extension",
			"path", path,
			"error", err,
		)
		return
	}

	s.mu.Lock()
	s.cmds = append(s.cmds, cmd)
	s.mu.Unlock()

	slog.Info("spawned extension",
		"path", path,
		"pid", cmd.Process.Pid,
	)

	go func() {
		if err := cmd.Wait(); err != nil {
			slog.Info("extension process exited",
				"path", path,
				"error", err,
			)
			return
		}
		slog.Info("extension process exited", "path", path)
	}()
}

// Stop signals every spawned extension to terminate.
func (s *ExecSupervisor) Stop() {
	s.mu.Lock()
	cmds := s.cmds
	s.mu.Unlock()

	for _, cmd := range cmds {
		if cmd.Process == nil {
			continue
		}
		if err := cmd.Process.Signal(os.Interrupt); err != nil {
			slog.Debug("failed to signal extension",
				"pid", cmd.Process.Pid,
				"error", err,
			)
		}
	}
}
