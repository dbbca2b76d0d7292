package retry

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"
)

// Config tunes the exponential backoff schedule.
type Config struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	JitterFactor  float64
}

// DefaultConfig covers the common external-call case: three attempts,
// doubling delay, capped at 30s.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:   3,
		BaseDelay:     time.Second,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2.0,
		JitterFactor:  0.2,
	}
}

// Classifier reports whether an error is worth retrying.
type Classifier func(error) bool

// Retrier runs operations with exponential backoff and jitter.
type Retrier struct {
	config      Config
	isRetryable Classifier
	logger      *slog.Logger
}

// New builds a retrier. A nil classifier retries every error.
func New(config Config, classifier Classifier, logger *slog.Logger) *Retrier {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	if config.BackoffFactor <= 0 {
		config.BackoffFactor = 2.0
	}
	return &Retrier{config: config, isRetryable: classifier, logger: logger}
}

// Do invokes the operation until it succeeds, exhausts attempts, or hits
// a non-retryable error. Waits are cancellable via ctx.
func (r *Retrier) Do(ctx context.Context, operation func() error) error {
	var lastErr error

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		lastErr = operation()
		if lastErr == nil {
			return nil
		}

		retryable := r.isRetryable == nil || r.isRetryable(lastErr)
		if attempt == r.config.MaxAttempts || !retryable {
			break
		}

		delay := r.delay(attempt)
		r.warn("operation failed, backing off",
			"attempt", attempt,
			"delay_ms", delay.Milliseconds(),
			"error", lastErr)

		select {
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("after %d attempts: %w", r.config.MaxAttempts, lastErr)
}

func (r *Retrier) delay(attempt int) time.Duration {
	delay := float64(r.config.BaseDelay) * math.Pow(r.config.BackoffFactor, float64(attempt-1))
	if r.config.MaxDelay > 0 && delay > float64(r.config.MaxDelay) {
		delay = float64(r.config.MaxDelay)
	}

	jitter := 1.0 + (rand.Float64()-0.5)*r.config.JitterFactor
	return time.Duration(delay * jitter)
}

func (r *Retrier) warn(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Warn(msg, args...)
	}
}
