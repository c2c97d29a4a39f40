package orchestrator

import (
	"context"
	"fmt"

	"github.com/jmgilman/go/errors"
	"golang.org/x/sync/errgroup"

	"github.com/Sternrassler/pm-orchestrator/pkg/cache"
	"github.com/Sternrassler/pm-orchestrator/pkg/client"
	"github.com/Sternrassler/pm-orchestrator/pkg/entity"
	"github.com/Sternrassler/pm-orchestrator/pkg/enrich"
)

// maxOnDemand caps the per-entity fetches one WarmMissing call may issue.
const maxOnDemand = 25

// entityPaths are the single-entity endpoints used for on-demand fetches.
var entityPaths = map[entity.Kind]string{
	entity.KindPerson:  "people/%s.json",
	entity.KindProject: "projects/%s.json",
}

// Person implements cache.EntityLookup over both tiers: the per-query
// cache first, then the reference cache. It never fetches.
func (c *Context) Person(id string) (entity.Entity, bool) {
	return c.lookup(entity.KindPerson, id)
}

// Project implements cache.EntityLookup.
func (c *Context) Project(id string) (entity.Entity, bool) {
	return c.lookup(entity.KindProject, id)
}

func (c *Context) lookup(kind entity.Kind, id string) (entity.Entity, bool) {
	ref := entity.Ref{Kind: kind, ID: id}.String()
	if v, ok := c.queries.Peek(ref); ok {
		if e, ok := v.(entity.Entity); ok {
			c.hit()
			return e, true
		}
	}
	if e, ok := c.reference.Entity(kind, id); ok {
		c.hit()
		return e, true
	}
	return nil, false
}

// FindByName looks a name up in the reference cache. A match counts as
// a prevented call.
func (c *Context) FindByName(kind entity.Kind, name string) (entity.Entity, bool) {
	e, ok := c.reference.FindByName(kind, name)
	if ok {
		c.hit()
	}
	return e, ok
}

// SearchByName is FindByName that falls back to fetching the kind's
// collection when the reference cache holds none. Fetched entities land
// in the per-query cache. A fetch failure is returned, not reported as
// a miss.
func (c *Context) SearchByName(ctx context.Context, kind entity.Kind, name string) (entity.Entity, bool, error) {
	if e, ok := c.FindByName(kind, name); ok {
		return e, true, nil
	}
	if c.reference.Loaded(kind) {
		return nil, false, nil
	}
	path, ok := c.reference.CollectionPath(kind)
	if !ok {
		return nil, false, nil
	}

	items, err := c.FetchAllCached(ctx, path, client.Options{})
	if err != nil {
		return nil, false, err
	}

	want := cache.NormalizeName(name)
	var found entity.Entity
	for _, e := range entity.List(items) {
		if id := e.ID(); id != "" {
			c.queries.Set(entity.Ref{Kind: kind, ID: id}.String(), e, 0)
		}
		if found == nil && cache.NormalizeName(e.Name()) == want {
			found = e
		}
	}
	return found, found != nil, nil
}

// known reports whether either tier holds the entity, without counting.
func (c *Context) known(ref entity.Ref) bool {
	return c.queries.Has(ref.String()) || c.reference.Has(ref.String())
}

// FetchEntity returns the entity from cache or, failing that, fetches it
// from its single-entity endpoint into the per-query cache.
func (c *Context) FetchEntity(ctx context.Context, kind entity.Kind, id string) (entity.Entity, error) {
	if e, ok := c.lookup(kind, id); ok {
		return e, nil
	}

	pattern, ok := entityPaths[kind]
	if !ok {
		return nil, errors.Newf(errors.CodeInvalidInput, "no endpoint for kind %q", kind)
	}

	payload, err := c.Fetch(ctx, fmt.Sprintf(pattern, id), client.Options{})
	if err != nil {
		return nil, err
	}
	e, ok := entity.FromValue(payload.Body)
	if !ok {
		return nil, errors.WithContextMap(
			errors.Newf(errors.CodeNotFound, "%s %s not found", kind, id),
			map[string]interface{}{"kind": string(kind), "id": id},
		)
	}

	c.queries.Set(entity.Ref{Kind: kind, ID: id}.String(), e, 0)
	return e, nil
}

// FetchPerson fetches a person on demand.
func (c *Context) FetchPerson(ctx context.Context, id string) (entity.Entity, error) {
	return c.FetchEntity(ctx, entity.KindPerson, id)
}

// FetchProject fetches a project on demand.
func (c *Context) FetchProject(ctx context.Context, id string) (entity.Entity, error) {
	return c.FetchEntity(ctx, entity.KindProject, id)
}

// WarmMissing fetches, one by one, the people and projects referenced by
// records whose collection is cold in the reference cache. Failures are
// logged; enrichment then simply omits those entities. It returns the
// number of entities fetched.
func (c *Context) WarmMissing(ctx context.Context, records []entity.Entity) int {
	var missing []entity.Ref
	for _, ref := range enrich.References(records) {
		if _, ok := entityPaths[ref.Kind]; !ok {
			continue
		}
		if c.reference.Loaded(ref.Kind) || c.known(ref) {
			continue
		}
		missing = append(missing, ref)
	}
	if len(missing) == 0 {
		return 0
	}
	if len(missing) > maxOnDemand {
		c.logger.Warn().
			Int("missing", len(missing)).
			Int("limit", maxOnDemand).
			Msg("Too many uncached references, fetching only the first")
		missing = missing[:maxOnDemand]
	}

	results := make([]bool, len(missing))
	var g errgroup.Group
	for i, ref := range missing {
		g.Go(func() error {
			return c.limiter.Do(ctx, func(ctx context.Context) error {
				if _, err := c.FetchEntity(ctx, ref.Kind, ref.ID); err != nil {
					c.logger.Warn().
						Err(err).
						Str("kind", string(ref.Kind)).
						Str("id", ref.ID).
						Msg("On-demand fetch failed")
					return nil
				}
				results[i] = true
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		c.logger.Warn().Err(err).Msg("On-demand fetches interrupted")
	}

	fetched := 0
	for _, ok := range results {
		if ok {
			fetched++
		}
	}
	return fetched
}
