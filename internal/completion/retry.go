package completion

import (
	"time"

	"github.com/vthunder/distill/internal/logging"
	"github.com/vthunder/distill/internal/retry"
)

// OverloadPolicy retries overload responses with linear backoff. Every
// other error is returned on the first attempt.
func OverloadPolicy(subsystem string, attempts int, base time.Duration) retry.Policy {
	return retry.Policy{
		MaxAttempts: attempts,
		Backoff:     retry.Linear(base),
		Retryable:   IsOverloaded,
		OnRetry: func(attempt int, delay time.Duration, err error) {
			logging.Warn(subsystem, "provider overloaded (attempt %d), waiting %s", attempt, delay)
		},
	}
}
