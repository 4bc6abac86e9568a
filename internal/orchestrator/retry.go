package orchestrator

import (
	"math/rand"
	"time"

	"github.com/flowgate/engine/internal/domain"
)

// parseDurationOr parses s, falling back to def on empty or invalid input.
func parseDurationOr(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

// nextDelay computes the backoff delay before retry attempt n (1-indexed:
// n=1 is the delay before the second overall attempt), per the
// fixed/exponential-with-jitter policy. Exponential successive delays
// satisfy d_{i+1} >= min(2*d_i, maxDelay) pre-jitter.
func nextDelay(policy domain.RetryPolicy, attempt int) time.Duration {
	initial := parseDurationOr(policy.InitialDelay, 0)
	maxDelay := parseDurationOr(policy.MaxDelay, initial)
	if maxDelay <= 0 {
		maxDelay = initial
	}

	var base time.Duration
	switch policy.Backoff {
	case domain.BackoffExponential:
		base = initial
		for i := 1; i < attempt; i++ {
			base *= 2
			if base > maxDelay {
				base = maxDelay
				break
			}
		}
	default: // fixed
		base = initial
	}
	if base > maxDelay {
		base = maxDelay
	}

	return applyJitter(base)
}

// applyJitter spreads base by +/-20%.
func applyJitter(base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	jitterRange := float64(base) * 0.2
	delta := (rand.Float64()*2 - 1) * jitterRange
	result := time.Duration(float64(base) + delta)
	if result < 0 {
		result = 0
	}
	return result
}
