// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QueryMesh Contributors

//go:build windows

package extension

const (
	extensionSuffix = ".exe"
	moduleSuffix    = ".dll"
)
