package retry

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtpsync/mtpsync/pkg/errors"
)

func TestDoSucceedsFirstAttempt(t *testing.T) {
	policy := New(3, 2, nil)

	calls := 0
	err := policy.Do("op", func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoNonRetryableShortCircuits(t *testing.T) {
	policy := New(3, 2, errors.IsDeviceIO)
	terminal := errors.FileNotFound{Path: "/gone"}

	calls := 0
	err := policy.Do("op", func() error {
		calls++
		return terminal
	})
	assert.Equal(t, terminal, err, "the error must propagate unmodified")
	assert.Equal(t, 1, calls, "a non-retryable error must not consume retries")
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	clock := clockwork.NewFakeClock()
	policy := Policy{
		MaxRetries:    3,
		BackoffFactor: 2,
		Retryable:     errors.IsDeviceIO,
		clock:         clock,
	}

	calls := 0
	done := make(chan error)
	go func() {
		done <- policy.Do("op", func() error {
			calls++
			if calls < 3 {
				return errors.DeviceIOError{Op: "upload", Err: errors.New("flaky")}
			}
			return nil
		})
	}()

	// Two failures, so two backoff sleeps. The sleep before attempt n is
	// bounded by factor^n + 1s of jitter.
	for attempt := 1; attempt <= 2; attempt++ {
		clock.BlockUntil(1)
		clock.Advance(time.Duration(1<<uint(attempt))*time.Second + time.Second)
	}

	require.NoError(t, <-done)
	assert.Equal(t, 3, calls)
}

func TestDoExhaustsBudget(t *testing.T) {
	clock := clockwork.NewFakeClock()
	policy := Policy{
		MaxRetries:    2,
		BackoffFactor: 2,
		Retryable:     errors.IsDeviceIO,
		clock:         clock,
	}

	lastErr := errors.DeviceIOError{Op: "mkdir", Err: errors.New("down")}
	calls := 0
	done := make(chan error)
	go func() {
		done <- policy.Do("op", func() error {
			calls++
			return lastErr
		})
	}()

	for attempt := 1; attempt <= 2; attempt++ {
		clock.BlockUntil(1)
		clock.Advance(time.Duration(1<<uint(attempt))*time.Second + time.Second)
	}

	err := <-done
	assert.Equal(t, lastErr, err, "the last error must be returned unmodified")
	assert.Equal(t, 3, calls, "MaxRetries=2 allows three attempts")
}
