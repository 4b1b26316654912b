// Package retry polls a probe until it succeeds or a time budget runs out.
package retry

import (
	"context"
	"time"

	"furnacebot.ai/internal/clock"
)

// Interval is the fixed wait between failed attempts.
const Interval = time.Second

// Probe is one attempt. ok=false means "not yet".
type Probe[T any] func() (v T, ok bool)

// Recovery runs after a failed attempt, before the wait.
type Recovery func()

// Recoveries chains several recovery actions, skipping nil ones.
func Recoveries(rs ...Recovery) Recovery {
	return func() {
		for _, r := range rs {
			if r != nil {
				r()
			}
		}
	}
}

// Do calls probe until it succeeds or timeout has elapsed since the first call.
// Timeout is reported as the zero value and false, never as an error.
// A canceled ctx also ends the loop with false.
func Do[T any](ctx context.Context, clk clock.Clock, probe Probe[T], onFailure Recovery, timeout time.Duration) (T, bool) {
	return DoEvery(ctx, clk, probe, onFailure, timeout, Interval)
}

// DoEvery is Do with an explicit wait between attempts.
func DoEvery[T any](ctx context.Context, clk clock.Clock, probe Probe[T], onFailure Recovery, timeout, interval time.Duration) (T, bool) {
	var zero T
	start := clk.Now()
	for clk.Now().Sub(start) < timeout {
		if v, ok := probe(); ok {
			return v, true
		}
		if onFailure != nil {
			onFailure()
		}
		if err := clk.Sleep(ctx, interval); err != nil {
			return zero, false
		}
	}
	return zero, false
}
