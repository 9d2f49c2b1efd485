// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QueryMesh Contributors

//go:build !windows

package extension

import (
	"os"
	"syscall"
)

// safePermissions reports whether the file and its parent directory are
// owned by root or the current user and not writable by group or other.
func safePermissions(dir, file string) bool {
	uid := uint32(os.Getuid())
	for _, path := range []string{dir, file} {
		fi, err := os.Stat(path)
		if err != nil {
			return false
		}
		st, ok := fi.Sys().(*syscall.Stat_t)
		if !ok {
			return false
		}
		if st.Uid != 0 && st.Uid != uid {
			return false
		}
		if fi.Mode().Perm()&0o022 != 0 {
			return false
		}
	}
	return true
}
