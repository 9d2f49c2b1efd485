// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QueryMesh Contributors

package endpoint

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
)

// InitLatency is the polling period of the delay helper.
const InitLatency = 20 * time.Millisecond

// Predicate is polled by Delay. Setting stop makes Delay return the
// predicate's result immediately instead of retrying.
type Predicate func(stop *bool) error

// Delay polls pred every InitLatency until it succeeds, requests a stop,
// or the timeout elapses. The timeout is clamped to a floor of
// 10×InitLatency so a zero timeout still polls briefly. Returns the
// predicate's last result.
func Delay(ctx context.Context, timeout time.Duration, pred Predicate) error {
	if timeout < 10*InitLatency {
		timeout = 10 * InitLatency
	}

	var last error
	backoff := retry.WithMaxDuration(timeout, retry.NewConstant(InitLatency))
	//nolint:errcheck // the predicate's own result is what callers want
	_ = retry.Do(ctx, backoff, func(context.Context) error {
		stop := false
		last = pred(&stop)
		if stop || last == nil {
			return nil
		}
		return retry.RetryableError(last)
	})
	return last
}
