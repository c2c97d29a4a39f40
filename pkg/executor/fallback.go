package executor

import (
	"context"
	"net/url"

	"github.com/jmgilman/go/errors"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/pm-orchestrator/pkg/client"
	"github.com/Sternrassler/pm-orchestrator/pkg/entity"
	"github.com/Sternrassler/pm-orchestrator/pkg/orchestrator"
)

// ListResult is the plain, non-enriched fallback answer.
type ListResult struct {
	Items    []entity.Entity      `json:"items"`
	Count    int                  `json:"count"`
	Fallback bool                 `json:"fallback"`
	Metadata orchestrator.Metrics `json:"_metadata"`
}

// PlainList fetches every record under scope without preloading or
// enrichment. It is the fallback for the enriched patterns.
func (x *Executor) PlainList(ctx context.Context, scope string, query map[string]string) (*ListResult, error) {
	rc := orchestrator.New(x.deps, "list: "+scopeLabel(scope))
	r := &run{rc: rc, pattern: "plain_list", start: rc.StartedAt()}

	opts := client.Options{}
	if len(query) > 0 {
		opts.Query = url.Values{}
		for k, v := range query {
			opts.Query.Set(k, v)
		}
	}
	if scope == "" {
		scope = DefaultTodoScope
	}

	raw, err := rc.FetchAll(ctx, scope, opts)
	if err != nil {
		r.finish(err)
		return nil, err
	}
	items := entity.List(raw)

	return &ListResult{
		Items:    items,
		Count:    len(items),
		Fallback: true,
		Metadata: r.finish(nil),
	}, nil
}

// RunWithFallback runs primary, retries it once on failure, then answers
// with fallback. Invalid input is returned at once since neither a retry
// nor the fallback can fix it. When the fallback fails too, its error is
// returned with the primary error attached as "primary_error".
func RunWithFallback[T any](ctx context.Context, pattern string, primary, fallback func(context.Context) (T, error)) (T, error) {
	logger := log.With().Str("component", "executor").Str("pattern", pattern).Logger()

	result, err := primary(ctx)
	if err == nil {
		return result, nil
	}
	if errors.GetCode(err) == errors.CodeInvalidInput {
		return result, err
	}

	logger.Warn().Err(err).Msg("Executor failed, retrying once")
	result, err = primary(ctx)
	if err == nil {
		return result, nil
	}

	var zero T
	if fallback == nil {
		logger.Error().Err(err).Msg("Executor failed twice, no fallback")
		return zero, err
	}

	executorFallbacks.WithLabelValues(pattern).Inc()
	logger.Warn().Err(err).Msg("Executor failed twice, using fallback")

	result, ferr := fallback(ctx)
	if ferr != nil {
		logger.Error().Err(ferr).Msg("Fallback failed")
		return zero, errors.WithContext(ferr, "primary_error", err.Error())
	}
	return result, nil
}
