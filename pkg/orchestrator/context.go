// Package orchestrator provides the per-query request context that wraps
// the transport and the reference cache.
//
// A Context is built at the start of one logical query and discarded at the
// end. It preloads the reference collections the query needs, routes every
// upstream call through itself so they can be counted, keeps a private
// short-lived cache for intermediate results and exposes enrichment bound
// to both cache tiers.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/pm-orchestrator/pkg/cache"
	"github.com/Sternrassler/pm-orchestrator/pkg/client"
	"github.com/Sternrassler/pm-orchestrator/pkg/logging"
	"github.com/Sternrassler/pm-orchestrator/pkg/ratelimit"
)

// DefaultQueryTTL bounds the life of per-query cache entries.
const DefaultQueryTTL = 5 * time.Minute

var (
	queryCallsMade = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pm_query_api_calls",
		Help:    "Upstream calls made per request context",
		Buckets: []float64{0, 1, 2, 3, 5, 10, 20, 50},
	})

	queryCallsPrevented = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pm_query_api_calls_prevented_total",
		Help: "Upstream calls avoided through cache hits",
	})
)

// Transport is the part of the upstream client a request context uses.
type Transport interface {
	Fetch(ctx context.Context, target string, opts client.Options) (*client.Payload, error)
	FetchAll(ctx context.Context, target string, opts client.Options) ([]any, error)
}

// Deps are the long-lived collaborators shared by every request context.
type Deps struct {
	Transport Transport
	Cache     *cache.Reference

	// Limiter bounds fan-out within one context. Nil selects a limiter of
	// ratelimit.DefaultConcurrency.
	Limiter *ratelimit.Limiter

	// QueryTTL applies to the private per-query cache.
	QueryTTL time.Duration

	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

// PreloadOptions selects the reference collections to preload.
type PreloadOptions struct {
	People   bool
	Projects bool
}

// Call is one upstream call recorded in the history.
type Call struct {
	Path     string        `json:"path"`
	At       time.Time     `json:"at"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Context is the per-query request context. It must not be shared between
// unrelated queries.
type Context struct {
	id      string
	label   string
	started time.Time
	now     func() time.Time

	transport Transport
	reference *cache.Reference
	queries   *cache.MemoryStore
	limiter   *ratelimit.Limiter
	logger    zerolog.Logger

	mu        sync.Mutex
	history   []Call
	prevented int
}

// New builds a request context labelled with the query text.
func New(deps Deps, label string) *Context {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	ttl := deps.QueryTTL
	if ttl <= 0 {
		ttl = DefaultQueryTTL
	}

	id := uuid.NewString()
	logger := logging.ForQuery(logging.NewLogger("orchestrator"), label, id)

	limiter := deps.Limiter
	if limiter == nil {
		limiter = ratelimit.NewLimiter(ratelimit.DefaultConcurrency, logger)
	}

	reference := deps.Cache
	if reference == nil {
		reference = cache.NewReference(nil, cache.DefaultConfig(""))
	}

	return &Context{
		id:        id,
		label:     label,
		started:   now(),
		now:       now,
		transport: deps.Transport,
		reference: reference,
		queries:   cache.NewMemoryStore(ttl),
		limiter:   limiter,
		logger:    logger,
	}
}

// RequestID returns the unique id of this context.
func (c *Context) RequestID() string {
	return c.id
}

// Label returns the query label.
func (c *Context) Label() string {
	return c.label
}

// StartedAt returns when the context was created.
func (c *Context) StartedAt() time.Time {
	return c.started
}

// Logger returns the context's logger, tagged with query and request id.
func (c *Context) Logger() zerolog.Logger {
	return c.logger
}

// Reference returns the shared reference cache.
func (c *Context) Reference() *cache.Reference {
	return c.reference
}

// Today returns the context clock's date as YYYY-MM-DD.
func (c *Context) Today() string {
	return c.now().Format(time.DateOnly)
}

// record appends a finished upstream call to the history.
func (c *Context) record(path string, start time.Time, err error) {
	call := Call{Path: path, At: start, Duration: c.now().Sub(start)}
	if err != nil {
		call.Error = err.Error()
	}
	c.mu.Lock()
	c.history = append(c.history, call)
	c.mu.Unlock()

	c.logger.Debug().
		Str("path", path).
		Dur("duration", call.Duration).
		Bool("failed", err != nil).
		Msg("Upstream call")
}

// hit counts one avoided upstream call.
func (c *Context) hit() {
	c.mu.Lock()
	c.prevented++
	c.mu.Unlock()
	queryCallsPrevented.Inc()
}

// Fetch issues one upstream call through the transport and records it.
func (c *Context) Fetch(ctx context.Context, target string, opts client.Options) (*client.Payload, error) {
	start := c.now()
	payload, err := c.transport.Fetch(ctx, target, opts)
	c.record(target, start, err)
	return payload, err
}

// FetchAll issues one paginated upstream call and records it.
func (c *Context) FetchAll(ctx context.Context, target string, opts client.Options) ([]any, error) {
	start := c.now()
	items, err := c.transport.FetchAll(ctx, target, opts)
	c.record(target, start, err)
	return items, err
}

// Cached returns the per-query cached value for key, or runs fetch and
// caches its result. Hits count as prevented calls.
func (c *Context) Cached(key string, fetch func() (any, error)) (any, error) {
	if v, ok := c.queries.Get(key); ok {
		c.hit()
		return v, nil
	}
	v, err := fetch()
	if err != nil {
		return nil, err
	}
	c.queries.Set(key, v, 0)
	return v, nil
}

// FetchAllCached is FetchAll memoised in the per-query cache.
func (c *Context) FetchAllCached(ctx context.Context, target string, opts client.Options) ([]any, error) {
	key := cache.PathKey(target, opts.Query).String()
	v, err := c.Cached(key, func() (any, error) {
		return c.FetchAll(ctx, target, opts)
	})
	if err != nil {
		return nil, err
	}
	items, _ := v.([]any)
	return items, nil
}
