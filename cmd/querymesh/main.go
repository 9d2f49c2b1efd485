// Package main is the entry point for the QueryMesh host.
package main

import (
	"fmt"
	"os"

	"github.com/querymesh/querymesh/internal/build"
)

// Build metadata set at link time.
var (
	commit = "unknown"
	date   = "unknown"
)

func main() {
	cmd := NewRootCmd()
	cmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", build.Version, commit, date)

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
