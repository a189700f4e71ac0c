package service

import (
	"context"
	"fmt"
	"math"
	mrand "math/rand/v2"
	"time"

	"wallet-service/internal/core/domain"

	"github.com/rs/zerolog"
)

// RetryPolicy bounds how often and how patiently a transient failure is retried.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
	Jitter      bool
}

// DefaultRetryPolicy is 5 attempts with 100ms doubling up to 2s, no jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   100 * time.Millisecond,
		Multiplier:  2,
		MaxDelay:    2 * time.Second,
	}
}

// Delay returns the backoff before the attempt following failed attempt n (1-based),
// without jitter: min(BaseDelay * Multiplier^(n-1), MaxDelay).
func (p RetryPolicy) Delay(n int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	if n < 1 {
		n = 1
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}

	d := float64(p.BaseDelay) * math.Pow(mult, float64(n-1))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	if d >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// ExhaustedError is returned when every attempt failed transiently.
// It matches domain.ErrConcurrencyExhausted and unwraps to the last failure.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

func (e *ExhaustedError) Is(target error) bool {
	return target == domain.ErrConcurrencyExhausted
}

// RetryExecutor runs an operation until it succeeds, fails non-transiently,
// or the attempt budget is spent.
type RetryExecutor struct {
	policy   RetryPolicy
	classify func(error) FailureClass
	sleep    func(ctx context.Context, d time.Duration) error
	log      zerolog.Logger
}

// NewRetryExecutor creates a RetryExecutor. A MaxAttempts below 1 is treated as 1.
func NewRetryExecutor(policy RetryPolicy, log zerolog.Logger) *RetryExecutor {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &RetryExecutor{
		policy:   policy,
		classify: Classify,
		sleep:    sleepWithContext,
		log:      log,
	}
}

// Policy returns the policy the executor applies.
func (r *RetryExecutor) Policy() RetryPolicy {
	return r.policy
}

// Execute runs op with the executor's retry policy.
func (r *RetryExecutor) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	_, err := Retry(ctx, r, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Retry runs op under r's policy and returns its first successful result.
// Permanent and fatal failures are returned unchanged on the attempt they occur.
func Retry[T any](ctx context.Context, r *RetryExecutor, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	for attempt := 1; ; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}

		if class := r.classify(err); class != FailureTransient {
			return zero, err
		}

		if attempt >= r.policy.MaxAttempts {
			r.log.Warn().
				Err(err).
				Int("attempts", attempt).
				Msg("retry budget exhausted")
			return zero, &ExhaustedError{Attempts: attempt, Last: err}
		}

		delay := r.backoff(attempt)
		r.log.Debug().
			Err(err).
			Int("attempt", attempt).
			Dur("delay", delay).
			Msg("transient failure, retrying")

		if sleepErr := r.sleep(ctx, delay); sleepErr != nil {
			return zero, fmt.Errorf("retry interrupted after attempt %d: %w", attempt, sleepErr)
		}
	}
}

func (r *RetryExecutor) backoff(attempt int) time.Duration {
	d := r.policy.Delay(attempt)
	if r.policy.Jitter && d > 0 {
		return time.Duration(mrand.Int64N(int64(d)))
	}
	return d
}

// sleepWithContext sleeps for d unless ctx ends first.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
