package ratelimit

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// Prometheus metrics for pacing and fan-out limiting.
var (
	pacingDelaySeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pm_pacing_delay_seconds",
		Help:    "Pre-request pacing delay applied before the first attempt",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1},
	})

	limiterWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pm_limiter_wait_seconds",
		Help:    "Time spent waiting for a fan-out slot",
		Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 10},
	})

	limiterInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pm_limiter_in_flight",
		Help: "Upstream calls currently holding a fan-out slot",
	})
)

// DefaultConcurrency is the default number of concurrent upstream calls
// allowed within one preload phase.
const DefaultConcurrency = 2

// Pacer applies a small randomised delay before a request to smooth bursts.
type Pacer struct {
	// Base is the fixed part of the delay.
	Base time.Duration

	// Jitter is the upper bound of the random part of the delay.
	Jitter time.Duration
}

// DefaultPacer returns the pacing used in production.
func DefaultPacer() Pacer {
	return Pacer{
		Base:   50 * time.Millisecond,
		Jitter: 100 * time.Millisecond,
	}
}

// Delay returns the next pacing delay.
func (p Pacer) Delay() time.Duration {
	return p.Base + Jitter(p.Jitter)
}

// Wait sleeps for one pacing delay or until ctx is done.
func (p Pacer) Wait(ctx context.Context) error {
	d := p.Delay()
	if d <= 0 {
		return nil
	}
	pacingDelaySeconds.Observe(d.Seconds())
	return Sleep(ctx, d)
}

// Jitter returns a random duration in [0, max).
func Jitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	// #nosec G404 -- jitter is non-cryptographic timing variance.
	return time.Duration(rand.Int64N(int64(max)))
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Limiter bounds the number of concurrent upstream calls issued by one
// fan-out (for example loading people and projects together). It is a plain
// counting semaphore: callers are admitted in no particular order.
type Limiter struct {
	sem    *semaphore.Weighted
	size   int64
	logger zerolog.Logger
}

// NewLimiter creates a limiter admitting at most n concurrent calls.
// n <= 0 selects DefaultConcurrency.
func NewLimiter(n int, logger zerolog.Logger) *Limiter {
	if n <= 0 {
		n = DefaultConcurrency
	}
	return &Limiter{
		sem:    semaphore.NewWeighted(int64(n)),
		size:   int64(n),
		logger: logger,
	}
}

// Size returns the number of slots.
func (l *Limiter) Size() int {
	return int(l.size)
}

// Do runs fn while holding one slot.
func (l *Limiter) Do(ctx context.Context, fn func(context.Context) error) error {
	start := time.Now()
	if err := l.sem.Acquire(ctx, 1); err != nil {
		l.logger.Debug().Err(err).Msg("Gave up waiting for fan-out slot")
		return err
	}
	limiterWaitSeconds.Observe(time.Since(start).Seconds())
	limiterInFlight.Inc()
	defer func() {
		limiterInFlight.Dec()
		l.sem.Release(1)
	}()
	return fn(ctx)
}
