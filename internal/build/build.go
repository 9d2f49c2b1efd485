// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QueryMesh Contributors

// Package build carries version identity stamped into the binary.
package build

// Version is the host version. Overridden at link time via
// -ldflags "-X github.com/querymesh/querymesh/internal/build.Version=...".
var Version = "0.4.0"

// SDKVersion is the extension SDK version the host speaks. Extensions
// declare a minimum SDK version at registration; the manager rejects
// registrations that require a newer SDK than this.
var SDKVersion = "1.0.0"
