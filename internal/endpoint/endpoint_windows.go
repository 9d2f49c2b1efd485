// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QueryMesh Contributors

//go:build windows

package endpoint

import (
	"errors"
	"net"
	"strings"
	"time"

	"github.com/Microsoft/go-winio"
	"github.com/samber/oops"
)

// PipePrefix is the required prefix for named pipe endpoint paths.
const PipePrefix = `\\.\pipe\`

// pipeWait bounds the existence probe of a named pipe that may be busy.
const pipeWait = 500 * time.Millisecond

// Exists reports whether the named pipe at path is present. A busy pipe
// counts as present; only a missing or invalid pipe name does not.
func Exists(path string) bool {
	timeout := pipeWait
	conn, err := winio.DialPipe(path, &timeout)
	if err == nil {
		_ = conn.Close()
		return true
	}
	return errors.Is(err, winio.ErrTimeout)
}

// Writable is equivalent to Exists for named pipes.
func Writable(path string) bool {
	return Exists(path)
}

// Reclaim validates the pipe path. Named pipes vanish with their owning
// process, so there is nothing to unlink.
func Reclaim(path string) error {
	if !strings.HasPrefix(path, PipePrefix) {
		return oops.Code("ENDPOINT_RECLAIM").With("path", path).
			Errorf("Bad named pipe name prefix")
	}
	return nil
}

// Dial opens a client connection to the named pipe at path.
func Dial(path string, timeout time.Duration) (net.Conn, error) {
	t := timeout
	conn, err := winio.DialPipe(path, &t)
	if err != nil {
		return nil, oops.Code("ENDPOINT_DIAL").With("path", path).Wrap(err)
	}
	return conn, nil
}

// Listen binds the named pipe at path.
func Listen(path string) (net.Listener, error) {
	listener, err := winio.ListenPipe(path, nil)
	if err != nil {
		return nil, oops.Code("ENDPOINT_LISTEN").With("path", path).Wrap(err)
	}
	return listener, nil
}

// probe is one readiness attempt. Pipe paths outside the configured
// prefix fail immediately rather than polling.
func probe(path string) (bool, error) {
	if !strings.HasPrefix(path, PipePrefix) {
		return false, oops.Code("ENDPOINT_NOT_READY").With("path", path).
			Errorf("Bad named pipe name prefix")
	}
	return Exists(path), nil
}
