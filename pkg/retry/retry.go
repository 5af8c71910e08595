// Package retry wraps device operations with a retry-with-backoff policy.
// The policy is an explicit value composed with each call site rather than a
// transparent wrapper, so the retry semantics stay visible where the device
// is used.
package retry

import (
	"math"
	"math/rand"
	"time"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
)

// Policy retries an operation with exponential backoff and jitter.
type Policy struct {
	// MaxRetries is the number of retries after the first attempt, so an
	// operation runs at most MaxRetries+1 times.
	MaxRetries int

	// BackoffFactor is the exponential backoff base: the sleep before
	// attempt n is BackoffFactor^n seconds, plus up to one second of jitter.
	BackoffFactor float64

	// Retryable classifies errors. An error outside the retryable set
	// propagates immediately without consuming a retry. A nil Retryable
	// retries everything.
	Retryable func(error) bool

	clock clockwork.Clock
}

// New returns a Policy backed by the real clock.
func New(maxRetries int, backoffFactor float64, retryable func(error) bool) Policy {
	return Policy{
		MaxRetries:    maxRetries,
		BackoffFactor: backoffFactor,
		Retryable:     retryable,
		clock:         clockwork.NewRealClock(),
	}
}

// Do runs op, retrying retryable failures until the budget is exhausted. The
// last error is returned unmodified.
func (policy Policy) Do(name string, op func() error) error {
	clock := policy.clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	var lastErr error
	for attempt := 1; attempt <= policy.MaxRetries+1; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}

		if policy.Retryable != nil && !policy.Retryable(lastErr) {
			return lastErr
		}

		if attempt == policy.MaxRetries+1 {
			log.WithError(lastErr).WithField("op", name).Errorf(
				"Max retries (%d) exceeded", policy.MaxRetries)
			break
		}

		delay := policy.backoff(attempt)
		log.WithError(lastErr).WithField("op", name).Warnf(
			"Attempt %d/%d failed. Retrying in %.2fs",
			attempt, policy.MaxRetries+1, delay.Seconds())
		clock.Sleep(delay)
	}
	return lastErr
}

func (policy Policy) backoff(attempt int) time.Duration {
	seconds := math.Pow(policy.BackoffFactor, float64(attempt)) + rand.Float64()
	return time.Duration(seconds * float64(time.Second))
}
