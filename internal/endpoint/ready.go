// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QueryMesh Contributors

package endpoint

import (
	"context"
	"time"

	"github.com/samber/oops"
)

// Ready blocks until the endpoint at path accepts a one-shot client.
// When wait is false the check degrades to a single probe.
func Ready(ctx context.Context, path string, timeout time.Duration, wait bool) error {
	return Delay(ctx, timeout, func(stop *bool) error {
		ok, fatal := probe(path)
		if fatal != nil {
			*stop = true
			return fatal
		}
		if ok {
			return nil
		}
		if !wait {
			*stop = true
		}
		return oops.Code("ENDPOINT_NOT_READY").With("path", path).
			Errorf("Extension socket not available: %s", path)
	})
}
