package cache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/Sternrassler/pm-orchestrator/pkg/client"
	"github.com/Sternrassler/pm-orchestrator/pkg/entity"
)

// DefaultCollectionTTL is how long a preloaded collection stays valid.
const DefaultCollectionTTL = time.Hour

// Transport is the part of the upstream client the cache needs.
type Transport interface {
	FetchAll(ctx context.Context, target string, opts client.Options) ([]any, error)
}

// EntityLookup resolves reference entities by id. Implementations never
// fetch; a false result means "not cached".
type EntityLookup interface {
	Person(id string) (entity.Entity, bool)
	Project(id string) (entity.Entity, bool)
}

// Config holds reference cache configuration.
type Config struct {
	// Account namespaces snapshot keys in the shared tier.
	Account string

	// CollectionTTL applies to preloaded entities.
	CollectionTTL time.Duration

	// Collections maps a kind to its upstream collection path.
	Collections map[entity.Kind]string
}

// DefaultConfig returns the default configuration for an account.
func DefaultConfig(account string) Config {
	return Config{
		Account:       account,
		CollectionTTL: DefaultCollectionTTL,
		Collections: map[entity.Kind]string{
			entity.KindPerson:  "people.json",
			entity.KindProject: "projects.json",
		},
	}
}

// Reference is the long-lived collection cache. One instance is owned by
// the process and handed to every request context.
type Reference struct {
	transport Transport
	snapshots *RedisStore
	store     *MemoryStore
	config    Config
	logger    zerolog.Logger
	group     singleflight.Group

	mu          sync.RWMutex
	index       map[entity.Kind]map[string]struct{}
	loadedUntil map[entity.Kind]time.Time
}

// NewReference creates a reference cache. transport may be nil when the
// cache is only filled through Put.
func NewReference(transport Transport, cfg Config) *Reference {
	if cfg.CollectionTTL <= 0 {
		cfg.CollectionTTL = DefaultCollectionTTL
	}
	if cfg.Collections == nil {
		cfg.Collections = DefaultConfig(cfg.Account).Collections
	}
	return &Reference{
		transport:   transport,
		store:       NewMemoryStore(cfg.CollectionTTL),
		config:      cfg,
		logger:      log.With().Str("component", "cache").Logger(),
		index:       make(map[entity.Kind]map[string]struct{}),
		loadedUntil: make(map[entity.Kind]time.Time),
	}
}

// WithSnapshots enables the Redis snapshot tier.
func (r *Reference) WithSnapshots(store *RedisStore) *Reference {
	r.snapshots = store
	return r
}

// Set stores an arbitrary value. ttl <= 0 uses the collection TTL.
func (r *Reference) Set(key string, value any, ttl time.Duration) {
	r.store.Set(key, value, ttl)
}

// Get returns a live value or a miss.
func (r *Reference) Get(key string) (any, bool) {
	return r.store.Get(key)
}

// Has reports whether key holds a live value.
func (r *Reference) Has(key string) bool {
	return r.store.Has(key)
}

// Put stores a single entity of kind, indexed by its id.
func (r *Reference) Put(kind entity.Kind, e entity.Entity) bool {
	id := e.ID()
	if id == "" {
		return false
	}
	r.store.Set(entity.Ref{Kind: kind, ID: id}.String(), e, r.config.CollectionTTL)

	r.mu.Lock()
	ids, ok := r.index[kind]
	if !ok {
		ids = make(map[string]struct{})
		r.index[kind] = ids
	}
	ids[id] = struct{}{}
	r.mu.Unlock()
	return true
}

// Entity returns the cached entity of kind with the given id.
func (r *Reference) Entity(kind entity.Kind, id string) (entity.Entity, bool) {
	v, ok := r.store.Get(entity.Ref{Kind: kind, ID: id}.String())
	if !ok {
		return nil, false
	}
	e, ok := v.(entity.Entity)
	return e, ok
}

// Person implements EntityLookup.
func (r *Reference) Person(id string) (entity.Entity, bool) {
	return r.Entity(entity.KindPerson, id)
}

// Project implements EntityLookup.
func (r *Reference) Project(id string) (entity.Entity, bool) {
	return r.Entity(entity.KindProject, id)
}

// All returns the live cached entities of kind ordered by id.
func (r *Reference) All(kind entity.Kind) []entity.Entity {
	r.mu.RLock()
	ids := make([]string, 0, len(r.index[kind]))
	for id := range r.index[kind] {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)

	out := make([]entity.Entity, 0, len(ids))
	for _, id := range ids {
		v, ok := r.store.Peek(entity.Ref{Kind: kind, ID: id}.String())
		if !ok {
			continue
		}
		if e, ok := v.(entity.Entity); ok {
			out = append(out, e)
		}
	}
	return out
}

// FindByName returns the cached entity of kind whose name equals name,
// ignoring case and surrounding whitespace. It never guesses: fuzzy
// matching belongs to the resolver.
func (r *Reference) FindByName(kind entity.Kind, name string) (entity.Entity, bool) {
	want := NormalizeName(name)
	if want == "" {
		return nil, false
	}
	for _, e := range r.All(kind) {
		if NormalizeName(e.Name()) == want {
			return e, true
		}
	}
	return nil, false
}

// NormalizeName is the form names are compared in: trimmed and lowercased.
func NormalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Loaded reports whether kind was preloaded within the current TTL window.
func (r *Reference) Loaded(kind entity.Kind) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	until, ok := r.loadedUntil[kind]
	return ok && time.Now().Before(until)
}

// CollectionPath returns the upstream path preloaded for kind.
func (r *Reference) CollectionPath(kind entity.Kind) (string, bool) {
	path, ok := r.config.Collections[kind]
	return path, ok
}

// Stats returns hit, miss and eviction counters.
func (r *Reference) Stats() Stats {
	return r.store.Stats()
}

// PreloadCollection loads every entity of kind once per TTL window. A
// second call while the collection is loaded is a no-op unless force is
// set. Concurrent preloads of one kind share a single upstream fetch.
//
// Failures are logged and leave the kind cold. The returned error is for
// reporting only; callers must carry on without the collection.
func (r *Reference) PreloadCollection(ctx context.Context, kind entity.Kind, force bool) error {
	if !force && r.Loaded(kind) {
		CachePreloads.WithLabelValues(string(kind), "skipped").Inc()
		r.logger.Debug().Str("kind", string(kind)).Msg("Collection already loaded")
		return nil
	}

	path, ok := r.config.Collections[kind]
	if !ok {
		return fmt.Errorf("no collection path for kind %q", kind)
	}

	_, err, shared := r.group.Do(string(kind), func() (any, error) {
		if !force && r.Loaded(kind) {
			return nil, nil
		}
		return nil, r.load(ctx, kind, path, force)
	})
	if shared {
		r.logger.Debug().Str("kind", string(kind)).Msg("Joined in-flight preload")
	}
	return err
}

func (r *Reference) load(ctx context.Context, kind entity.Kind, path string, force bool) error {
	key := CollectionKey(r.config.Account, kind)

	if r.snapshots != nil && !force {
		items, remaining, err := r.snapshots.LoadCollection(ctx, key)
		switch {
		case err == nil && remaining > 0:
			r.fill(kind, items, remaining)
			CachePreloads.WithLabelValues(string(kind), "snapshot").Inc()
			r.logger.Info().
				Str("kind", string(kind)).
				Int("count", len(items)).
				Dur("ttl", remaining).
				Msg("Collection loaded from snapshot")
			return nil
		case err != nil && !errors.Is(err, ErrCacheMiss):
			r.logger.Warn().Err(err).Str("kind", string(kind)).Msg("Snapshot read failed")
		}
	}

	if r.transport == nil {
		CachePreloads.WithLabelValues(string(kind), "failed").Inc()
		return fmt.Errorf("preload %s: no transport configured", kind)
	}

	start := time.Now()
	raw, err := r.transport.FetchAll(ctx, path, client.Options{})
	if err != nil {
		CachePreloads.WithLabelValues(string(kind), "failed").Inc()
		r.logger.Warn().
			Err(err).
			Str("kind", string(kind)).
			Str("path", path).
			Msg("Collection preload failed, continuing with cold cache")
		return fmt.Errorf("preload %s: %w", kind, err)
	}

	items := entity.List(raw)
	r.fill(kind, items, r.config.CollectionTTL)
	CachePreloads.WithLabelValues(string(kind), "upstream").Inc()

	r.logger.Info().
		Str("kind", string(kind)).
		Int("count", len(items)).
		Dur("duration", time.Since(start)).
		Msg("Collection preloaded")

	if r.snapshots != nil {
		if err := r.snapshots.SaveCollection(ctx, key, items, r.config.CollectionTTL); err != nil {
			r.logger.Warn().Err(err).Str("kind", string(kind)).Msg("Snapshot write failed")
		}
	}
	return nil
}

// fill replaces the cached collection of kind.
func (r *Reference) fill(kind entity.Kind, items []entity.Entity, ttl time.Duration) {
	r.mu.Lock()
	old := r.index[kind]
	ids := make(map[string]struct{}, len(items))
	for _, e := range items {
		id := e.ID()
		if id == "" {
			continue
		}
		r.store.Set(entity.Ref{Kind: kind, ID: id}.String(), e, ttl)
		ids[id] = struct{}{}
	}
	for id := range old {
		if _, ok := ids[id]; !ok {
			r.store.Delete(entity.Ref{Kind: kind, ID: id}.String())
		}
	}
	r.index[kind] = ids
	r.loadedUntil[kind] = time.Now().Add(ttl)
	r.mu.Unlock()
}
