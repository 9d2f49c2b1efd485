// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QueryMesh Contributors

//go:build !windows

package endpoint

import (
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/samber/oops"
	"golang.org/x/sys/unix"
)

// probeDialTimeout bounds the connect attempt inside a readiness probe.
const probeDialTimeout = 500 * time.Millisecond

// Exists reports whether a filesystem object is present at path.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Writable reports whether path exists and the process may write it.
func Writable(path string) bool {
	return Exists(path) && unix.Access(path, unix.W_OK) == nil
}

// Reclaim prepares path for binding a fresh endpoint. An existing socket
// is unlinked only if it is writable, a proxy for "left behind by a
// previous instance of me". If nothing exists, the parent directory must
// exist and be writable. Calling Reclaim twice is a no-op on the second
// call and always leaves the path absent.
func Reclaim(path string) error {
	if Exists(path) {
		if !Writable(path) {
			return oops.Code("ENDPOINT_RECLAIM").With("path", path).
				Errorf("cannot write extension socket: %s", path)
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return oops.Code("ENDPOINT_RECLAIM").With("path", path).
				Wrapf(err, "cannot remove extension socket: %s", path)
		}
		return nil
	}

	parent := filepath.Dir(path)
	if !Exists(parent) {
		return oops.Code("ENDPOINT_RECLAIM").With("path", path).
			Errorf("extension socket directory missing: %s", path)
	}
	if unix.Access(parent, unix.W_OK) != nil {
		return oops.Code("ENDPOINT_RECLAIM").With("path", path).
			Errorf("cannot create extension socket: %s", path)
	}
	return nil
}

// Dial opens a client connection to the endpoint at path.
func Dial(path string, timeout time.Duration) (net.Conn, error) {
	conn, err := net.DialTimeout("unix", path, timeout)
	if err != nil {
		return nil, oops.Code("ENDPOINT_DIAL").With("path", path).Wrap(err)
	}
	return conn, nil
}

// Listen binds the endpoint at path. The socket is restricted to the
// owning user; endpoint permissions are the only authentication layer.
func Listen(path string) (net.Listener, error) {
	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, oops.Code("ENDPOINT_LISTEN").With("path", path).Wrap(err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		_ = listener.Close()
		return nil, oops.Code("ENDPOINT_LISTEN").With("path", path).
			Wrapf(err, "failed to set socket permissions")
	}
	return listener, nil
}

// probe is one readiness attempt: the socket must be writable and accept
// a short-lived client connection.
func probe(path string) (bool, error) {
	if !Writable(path) {
		return false, nil
	}
	conn, err := Dial(path, probeDialTimeout)
	if err != nil {
		// Path can exist without a listening manager or extension.
		return false, nil
	}
	_ = conn.Close()
	return true, nil
}
