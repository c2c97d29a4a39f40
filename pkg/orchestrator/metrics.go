package orchestrator

import (
	"github.com/Sternrassler/pm-orchestrator/pkg/entity"
	"github.com/Sternrassler/pm-orchestrator/pkg/enrich"
)

// Metrics summarise one request context. They are recomputed from the call
// history on every call and only ever grow within the context's lifetime.
type Metrics struct {
	APICallsMade      int     `json:"apiCallsMade"`
	APICallsPrevented int     `json:"apiCallsPrevented"`
	ExecutionTimeMs   int64   `json:"executionTimeMs"`
	CacheHitRate      float64 `json:"cacheHitRate"`
	RequestID         string  `json:"requestId"`
	Query             string  `json:"query"`
}

// Metrics returns the current metrics.
func (c *Context) Metrics() Metrics {
	c.mu.Lock()
	made, prevented := len(c.history), c.prevented
	c.mu.Unlock()

	m := Metrics{
		APICallsMade:      made,
		APICallsPrevented: prevented,
		ExecutionTimeMs:   c.now().Sub(c.started).Milliseconds(),
		RequestID:         c.id,
		Query:             c.label,
	}
	if total := made + prevented; total > 0 {
		m.CacheHitRate = float64(prevented) / float64(total)
	}
	return m
}

// History returns a copy of the calls made so far, in completion order.
func (c *Context) History() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Call(nil), c.history...)
}

// LogSummary logs the query's metrics. Call it once, when the query is
// done.
func (c *Context) LogSummary() {
	m := c.Metrics()
	queryCallsMade.Observe(float64(m.APICallsMade))

	c.logger.Info().
		Int("api_calls", m.APICallsMade).
		Int("calls_prevented", m.APICallsPrevented).
		Int64("duration_ms", m.ExecutionTimeMs).
		Float64("cache_hit_rate", m.CacheHitRate).
		Msg("Query complete")

	if e := c.logger.Debug(); e.Enabled() {
		history := c.History()
		paths := make([]string, 0, len(history))
		for _, call := range history {
			paths = append(paths, call.Path)
		}
		e.Strs("calls", paths).Msg("Query call history")
	}
}

// EnrichObject returns an enriched copy of record resolved against both
// cache tiers.
func (c *Context) EnrichObject(record entity.Entity) entity.Entity {
	return enrich.Object(c, record)
}

// EnrichArray enriches every record of list.
func (c *Context) EnrichArray(list []entity.Entity) []entity.Entity {
	return enrich.Array(c, list)
}
