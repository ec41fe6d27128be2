package backoff

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// ProviderRetryPolicy is the backoff policy used when retrying a failed
// LLM provider call: 250ms base, doubling, capped at 30s, full jitter,
// up to 5 attempts.
func ProviderRetryPolicy() BackoffPolicy {
	return BackoffPolicy{
		InitialMs: 250,
		MaxMs:     30000,
		Factor:    2,
	}
}

// MaxProviderAttempts bounds the number of attempts ProviderRetryPolicy is
// used for.
const MaxProviderAttempts = 5

// ComputeFullJitterBackoff implements the AWS "full jitter" algorithm:
// sleep = random_between(0, min(cap, base*factor^(attempt-1))). Unlike
// ComputeBackoff's additive jitter (which only ever adds to the base
// delay), full jitter spreads the delay over the entire [0, cap] range,
// which is what actually de-correlates retries from many clients that
// failed at the same instant. Attempt numbers start at 1.
func ComputeFullJitterBackoff(policy BackoffPolicy, attempt int) time.Duration {
	return ComputeFullJitterBackoffWithRand(policy, attempt, rand.Float64()) // #nosec G404
}

// ComputeFullJitterBackoffWithRand is ComputeFullJitterBackoff with an
// injectable random value in [0.0, 1.0) for deterministic tests.
func ComputeFullJitterBackoffWithRand(policy BackoffPolicy, attempt int, randomValue float64) time.Duration {
	exp := math.Max(float64(attempt-1), 0)
	capMs := math.Min(policy.MaxMs, policy.InitialMs*math.Pow(policy.Factor, exp))
	return time.Duration(math.Round(capMs*randomValue)) * time.Millisecond
}

// SleepWithFullJitterBackoff sleeps for ComputeFullJitterBackoff(policy,
// attempt), respecting context cancellation.
func SleepWithFullJitterBackoff(ctx context.Context, policy BackoffPolicy, attempt int) error {
	return SleepWithContext(ctx, ComputeFullJitterBackoff(policy, attempt))
}

// RetryProviderCall retries fn up to MaxProviderAttempts times using
// ProviderRetryPolicy's full-jitter backoff between attempts. fn reports
// whether an error is retryable; a non-retryable error returns immediately
// without further attempts.
func RetryProviderCall[T any](
	ctx context.Context,
	fn func(attempt int) (T, error, bool),
) (T, error) {
	var zero T
	var lastErr error
	policy := ProviderRetryPolicy()

	for attempt := 1; attempt <= MaxProviderAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		value, err, retryable := fn(attempt)
		if err == nil {
			return value, nil
		}
		lastErr = err
		if !retryable || attempt == MaxProviderAttempts {
			return zero, lastErr
		}
		if err := SleepWithFullJitterBackoff(ctx, policy, attempt); err != nil {
			return zero, err
		}
	}
	return zero, lastErr
}
