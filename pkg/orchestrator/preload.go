package orchestrator

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/Sternrassler/pm-orchestrator/pkg/entity"
)

// PreloadEssentials loads the requested reference collections
// concurrently, bounded by the limiter. Each preload fails on its own: a
// failure is logged and the other collections still load. A collection the
// reference cache already holds counts as a prevented call.
func (c *Context) PreloadEssentials(ctx context.Context, opts PreloadOptions) {
	var kinds []entity.Kind
	if opts.People {
		kinds = append(kinds, entity.KindPerson)
	}
	if opts.Projects {
		kinds = append(kinds, entity.KindProject)
	}
	if len(kinds) == 0 {
		return
	}

	var g errgroup.Group
	for _, kind := range kinds {
		g.Go(func() error {
			if c.reference.Loaded(kind) {
				c.hit()
				return nil
			}

			err := c.limiter.Do(ctx, func(ctx context.Context) error {
				path, _ := c.reference.CollectionPath(kind)
				start := c.now()
				err := c.reference.PreloadCollection(ctx, kind, false)
				c.record(path, start, err)
				return err
			})
			if err != nil {
				c.logger.Warn().
					Err(err).
					Str("kind", string(kind)).
					Msg("Preload failed, falling back to on-demand fetches")
			}
			return nil
		})
	}
	_ = g.Wait()
}
