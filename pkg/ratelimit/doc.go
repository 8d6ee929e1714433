// Package ratelimit throttles requests to the messaging APIs.
//
// Limits are per group: every group talks to its own API host, so a
// Registry hands out one token bucket per group id. Buckets are built on
// golang.org/x/time/rate and block with a context, so a cancelled run
// stops waiting immediately.
//
// Usage:
//
//	limits := ratelimit.NewRegistry(2, 1) // 2 requests/s, no burst
//	if err := limits.Get("nogi").Wait(ctx); err != nil {
//	    return err
//	}
//
// A non-positive rate yields Unlimited, which never blocks.
package ratelimit
