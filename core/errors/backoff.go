package errors

import (
	"math"
	"math/rand"
	"time"
)

// CalculateDelay computes the backoff delay for a given attempt.
// Formula: delay = initial * (multiplier ^ attempt), capped at max_delay.
func CalculateDelay(attempt int, policy *RetryPolicy) time.Duration {
	if policy == nil {
		return 0
	}

	multiplier := policy.Multiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}

	factor := math.Pow(multiplier, float64(attempt))
	delay := time.Duration(float64(policy.InitialDelay) * factor)

	if delay > policy.MaxDelay || delay <= 0 {
		return policy.MaxDelay
	}
	return delay
}

// AddJitter applies a random offset of ±jitterPercent to the delay to
// prevent synchronized retries against a rate-limited backend.
func AddJitter(delay time.Duration, jitterPercent float64) time.Duration {
	if jitterPercent <= 0 {
		return delay
	}

	jitterRange := float64(delay) * jitterPercent
	offset := (rand.Float64()*2 - 1) * jitterRange
	jittered := time.Duration(float64(delay) + offset)

	if jittered < time.Millisecond {
		return time.Millisecond
	}
	return jittered
}
