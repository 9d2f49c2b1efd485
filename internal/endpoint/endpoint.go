// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QueryMesh Contributors

// Package endpoint abstracts the local IPC address shared by the manager
// and its extensions: a filesystem socket on UNIX-like systems, a named
// pipe on Windows. The rest of the system never branches on platform;
// the split lives entirely in this package's build-tagged files.
package endpoint

import "strconv"

// ForExtension derives the endpoint path for a registered extension from
// the manager path and the extension's route UUID. The scheme is fixed:
// <manager_path>.<decimal-uuid>.
func ForExtension(uuid uint64, managerPath string) string {
	return managerPath + "." + strconv.FormatUint(uuid, 10)
}
