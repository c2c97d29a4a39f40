// Package executor implements the query patterns exposed to the tool-call
// layer. Every pattern follows one template: build a request context
// labelled with the query, preload the reference collections it needs,
// fetch, filter or aggregate, enrich, then attach the context's metrics
// under "_metadata".
package executor

import (
	"context"
	"net/url"
	"time"

	"github.com/jmgilman/go/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/pm-orchestrator/pkg/client"
	"github.com/Sternrassler/pm-orchestrator/pkg/entity"
	"github.com/Sternrassler/pm-orchestrator/pkg/logging"
	"github.com/Sternrassler/pm-orchestrator/pkg/orchestrator"
)

// Default upstream paths, relative to the account.
const (
	DefaultTodoScope = "projects/recordings.json?type=Todo"
	SearchPath       = "search.json"
)

var (
	executorRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pm_executor_runs_total",
		Help: "Executor invocations by pattern and outcome",
	}, []string{"pattern", "outcome"})

	executorDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pm_executor_duration_seconds",
		Help:    "Executor duration by pattern",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"pattern"})

	executorFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pm_executor_fallbacks_total",
		Help: "Executor invocations answered by the fallback operation",
	}, []string{"pattern"})
)

// Deps are the collaborators shared by every executor run.
type Deps = orchestrator.Deps

// Executor runs the query patterns.
type Executor struct {
	deps   Deps
	logger zerolog.Logger
}

// New creates an executor.
func New(deps Deps) *Executor {
	return &Executor{
		deps:   deps,
		logger: logging.NewLogger("executor"),
	}
}

// run is one pattern invocation.
type run struct {
	rc      *orchestrator.Context
	pattern string
	start   time.Time
}

// begin builds the request context and preloads what the pattern needs.
func (x *Executor) begin(ctx context.Context, pattern, label string, preload orchestrator.PreloadOptions) *run {
	rc := orchestrator.New(x.deps, label)
	rc.PreloadEssentials(ctx, preload)
	return &run{rc: rc, pattern: pattern, start: time.Now()}
}

// finish records the outcome and returns the metrics to attach.
func (r *run) finish(err error) orchestrator.Metrics {
	outcome := "success"
	if err != nil {
		outcome = "error"
		logger := r.rc.Logger()
		logger.Warn().Err(err).Str("pattern", r.pattern).Msg("Executor failed")
	}
	executorRuns.WithLabelValues(r.pattern, outcome).Inc()
	executorDuration.WithLabelValues(r.pattern).Observe(time.Since(r.start).Seconds())
	r.rc.LogSummary()
	return r.rc.Metrics()
}

// records fetches every record under scope, memoised per context.
func (r *run) records(ctx context.Context, scope string, query url.Values) ([]entity.Entity, error) {
	if scope == "" {
		scope = DefaultTodoScope
	}
	raw, err := r.rc.FetchAllCached(ctx, scope, client.Options{Query: query})
	if err != nil {
		return nil, err
	}
	return entity.List(raw), nil
}

func invalidInput(format string, args ...interface{}) error {
	return errors.Newf(errors.CodeInvalidInput, format, args...)
}
