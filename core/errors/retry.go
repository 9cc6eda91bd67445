package errors

import (
	"context"
	"errors"
	"time"
)

// RetryPolicy defines retry behavior for one error tier.
type RetryPolicy struct {
	// MaxAttempts is the number of retries after the first attempt
	// (0 means no retry).
	MaxAttempts int `yaml:"max_attempts"`

	// InitialDelay is the starting backoff duration.
	InitialDelay time.Duration `yaml:"initial_delay"`

	// MaxDelay caps the backoff duration.
	MaxDelay time.Duration `yaml:"max_delay"`

	// Multiplier is the backoff multiplier (default 2.0).
	Multiplier float64 `yaml:"multiplier"`

	// UseRetryAfter respects a server-suggested delay on rate limits.
	UseRetryAfter bool `yaml:"use_retry_after"`

	// JitterPercent randomizes the delay by ±this fraction.
	JitterPercent float64 `yaml:"jitter_percent"`
}

// DefaultRetryPolicies returns the retry policies per tier.
// Schema and permanent failures are never retried; daily-quota rate
// limits are cut short by the executor regardless of policy.
func DefaultRetryPolicies() map[ErrorTier]*RetryPolicy {
	return map[ErrorTier]*RetryPolicy{
		TierTransient: {
			MaxAttempts:   3,
			InitialDelay:  200 * time.Millisecond,
			MaxDelay:      5 * time.Second,
			Multiplier:    2.0,
			JitterPercent: 0.1,
		},
		TierRateLimit: {
			MaxAttempts:   4,
			InitialDelay:  1 * time.Second,
			MaxDelay:      30 * time.Second,
			Multiplier:    2.0,
			UseRetryAfter: true,
			JitterPercent: 0.25,
		},
		TierDegrading: {
			MaxAttempts:   2,
			InitialDelay:  2 * time.Second,
			MaxDelay:      20 * time.Second,
			Multiplier:    2.0,
			JitterPercent: 0.1,
		},
		TierPermanent: noRetryPolicy(),
		TierSchema:    noRetryPolicy(),
	}
}

func noRetryPolicy() *RetryPolicy {
	return &RetryPolicy{}
}

// RetryExecutor runs operations with tier-appropriate retry behavior.
// The tier is re-classified from each failure, so an operation that
// starts transient and turns into a daily-quota error stops retrying.
type RetryExecutor struct {
	policies map[ErrorTier]*RetryPolicy
}

// NewRetryExecutor creates an executor, falling back to the default
// policies when nil is given.
func NewRetryExecutor(policies map[ErrorTier]*RetryPolicy) *RetryExecutor {
	if policies == nil {
		policies = DefaultRetryPolicies()
	}
	return &RetryExecutor{policies: policies}
}

// Execute runs fn, retrying per the policy of each failure's tier.
// Returns the last error when attempts are exhausted.
func (e *RetryExecutor) Execute(ctx context.Context, fn func() error) error {
	var lastErr error

	for attempt := 0; ; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if !IsRetryable(lastErr) {
			return lastErr
		}

		policy := e.policy(GetTier(lastErr))
		if attempt >= policy.MaxAttempts {
			return lastErr
		}

		delay := e.delayFor(lastErr, attempt, policy)
		if err := sleepCtx(ctx, delay); err != nil {
			return lastErr
		}
	}
}

func (e *RetryExecutor) policy(tier ErrorTier) *RetryPolicy {
	if policy, ok := e.policies[tier]; ok {
		return policy
	}
	return noRetryPolicy()
}

func (e *RetryExecutor) delayFor(err error, attempt int, policy *RetryPolicy) time.Duration {
	if policy.UseRetryAfter {
		if retryAfter := extractRetryAfter(err); retryAfter > 0 {
			return retryAfter
		}
	}
	return AddJitter(CalculateDelay(attempt, policy), policy.JitterPercent)
}

func extractRetryAfter(err error) time.Duration {
	var te *TieredError
	if errors.As(err, &te) {
		return te.RetryAfter
	}
	return 0
}

func sleepCtx(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
