package client

import (
	"context"
	"time"

	"github.com/jmgilman/go/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/pm-orchestrator/pkg/ratelimit"
)

// Prometheus metrics for retry operations.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pm_upstream_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pm_upstream_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"error_class"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pm_upstream_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int

	// RateLimitDefault is the wait after a 429 without a usable hint.
	RateLimitDefault time.Duration

	// RateLimitStep is added to RateLimitDefault per attempt.
	RateLimitStep time.Duration

	// BackoffBase is the first backoff for server, network and timeout errors.
	BackoffBase time.Duration

	// MaxBackoff caps the exponential backoff (before jitter).
	MaxBackoff time.Duration

	// Jitter is the upper bound of random time added to every wait.
	Jitter time.Duration
}

// DefaultRetryConfig returns the default retry configuration: five attempts
// in total.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:       4,
		RateLimitDefault: 2 * time.Second,
		RateLimitStep:    500 * time.Millisecond,
		BackoffBase:      500 * time.Millisecond,
		MaxBackoff:       10 * time.Second,
		Jitter:           250 * time.Millisecond,
	}
}

// Attempts returns the total number of attempts allowed.
func (c RetryConfig) Attempts() int {
	if c.MaxRetries < 0 {
		return 1
	}
	return c.MaxRetries + 1
}

// Backoff computes the wait before the retry that follows the given failed
// attempt (1-based).
func (c RetryConfig) Backoff(err error, attempt int) time.Duration {
	var upErr *UpstreamError
	if errors.As(err, &upErr) && upErr.ErrorClass == ErrorClassRateLimit {
		if upErr.RetrySignal == ratelimit.SignalHeader || upErr.RetrySignal == ratelimit.SignalBody {
			return upErr.RetryAfter + ratelimit.Jitter(c.Jitter)
		}
		return c.RateLimitDefault + time.Duration(attempt-1)*c.RateLimitStep + ratelimit.Jitter(c.Jitter)
	}

	backoff := c.BackoffBase
	for i := 1; i < attempt && backoff < c.MaxBackoff; i++ {
		backoff *= 2
	}
	if c.MaxBackoff > 0 && backoff > c.MaxBackoff {
		backoff = c.MaxBackoff
	}
	return backoff + ratelimit.Jitter(c.Jitter)
}

// retryWithBackoff runs fn until it succeeds, fails permanently or the
// attempt budget is spent. The last error is returned unchanged.
func retryWithBackoff(ctx context.Context, cfg RetryConfig, logger zerolog.Logger, fn func(attempt int) error) error {
	attempts := cfg.Attempts()
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn(attempt)
		if err == nil {
			if attempt > 1 {
				logger.Info().
					Int("attempt", attempt).
					Msg("Request succeeded after retry")
			}
			return nil
		}

		lastErr = err
		class := ClassOf(err)

		if !shouldRetry(class) {
			return err
		}

		if attempt >= attempts {
			break
		}

		wait := cfg.Backoff(err, attempt)
		retriesTotal.WithLabelValues(string(class)).Inc()
		retryBackoffSeconds.WithLabelValues(string(class)).Observe(wait.Seconds())

		logger.Warn().
			Err(err).
			Str("error_class", string(class)).
			Int("attempt", attempt).
			Int("max_attempts", attempts).
			Dur("backoff", wait).
			Msg("Retrying request after backoff")

		if err := ratelimit.Sleep(ctx, wait); err != nil {
			logger.Warn().
				Str("error_class", string(class)).
				Int("attempt", attempt).
				Msg("Context cancelled during retry backoff")
			return errors.Wrap(err, CodeTransportFailed, "cancelled during retry backoff")
		}
	}

	class := ClassOf(lastErr)
	retryExhaustedTotal.WithLabelValues(string(class)).Inc()
	logger.Error().
		Err(lastErr).
		Str("error_class", string(class)).
		Int("max_attempts", attempts).
		Msg("Retry attempts exhausted")

	return lastErr
}
