// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QueryMesh Contributors

//go:build !windows && !darwin

package extension

const (
	extensionSuffix = ".ext"
	moduleSuffix    = ".so"
)
