// Package ratelimit bounds the request rate of the Instagram client.
//
// The hub keeps every remote call behind a token bucket so that a burst of
// API activity (login storms, several monitored accounts polling at once)
// cannot exceed the configured requests-per-minute budget. The monitor's
// polling loops additionally pace themselves with explicit delays; the
// limiter is a second line of defense at the HTTP layer.
//
// Usage:
//
//	limiter := ratelimit.NewTokenBucket(60, time.Minute)
//	limiter.Wait() // block until a request is allowed
package ratelimit
