package pagination

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Config holds aggregation limits.
type Config struct {
	// MaxPages is the safety ceiling on pages followed per aggregation.
	MaxPages int

	// PageDelay is slept between consecutive page requests.
	PageDelay time.Duration
}

// DefaultConfig returns safe defaults for the upstream API.
func DefaultConfig() Config {
	return Config{
		MaxPages:  50,
		PageDelay: 100 * time.Millisecond,
	}
}

// Page is one fetched page.
type Page struct {
	// Body is the decoded JSON payload of the page.
	Body any

	// Next is the absolute URL of the following page, or "" on the last page.
	Next string
}

// PageFetcher fetches a single page by absolute URL.
type PageFetcher interface {
	FetchPage(ctx context.Context, url string) (Page, error)
}

// PageFetcherFunc adapts a function to PageFetcher.
type PageFetcherFunc func(ctx context.Context, url string) (Page, error)

// FetchPage implements PageFetcher.
func (f PageFetcherFunc) FetchPage(ctx context.Context, url string) (Page, error) {
	return f(ctx, url)
}

var linkPart = regexp.MustCompile(`<([^>]*)>\s*((?:;\s*[^;,]+)*)`)

// NextLink returns the rel="next" target of a Link header, or "".
func NextLink(headers http.Header) string {
	for _, value := range headers.Values("Link") {
		for _, m := range linkPart.FindAllStringSubmatch(value, -1) {
			for _, param := range strings.Split(m[2], ";") {
				param = strings.TrimSpace(param)
				name, val, ok := strings.Cut(param, "=")
				if !ok || !strings.EqualFold(strings.TrimSpace(name), "rel") {
					continue
				}
				for _, rel := range strings.Fields(strings.Trim(strings.TrimSpace(val), `"`)) {
					if strings.EqualFold(rel, "next") {
						return m[1]
					}
				}
			}
		}
	}
	return ""
}

// Collect fetches first and every following page, returning the items of all
// array pages concatenated in order. If a page is not an array, aggregation
// stops and that payload is returned as the only element (the first page
// being a single object is the common case).
func Collect(ctx context.Context, fetcher PageFetcher, first string, cfg Config) ([]any, error) {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = DefaultConfig().MaxPages
	}

	start := time.Now()
	var items []any
	url := first

	for page := 1; url != ""; page++ {
		if page > cfg.MaxPages {
			log.Warn().
				Str("endpoint", first).
				Int("max_pages", cfg.MaxPages).
				Int("items", len(items)).
				Msg("Page ceiling reached - returning truncated collection")
			break
		}

		if page > 1 && cfg.PageDelay > 0 {
			timer := time.NewTimer(cfg.PageDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return items, ctx.Err()
			case <-timer.C:
			}
		}

		p, err := fetcher.FetchPage(ctx, url)
		if err != nil {
			return items, fmt.Errorf("fetch page %d: %w", page, err)
		}

		list, ok := p.Body.([]any)
		if !ok {
			if page == 1 {
				log.Debug().Str("endpoint", first).Msg("Response is not a collection - returning single payload")
			} else {
				log.Warn().Str("endpoint", first).Int("page", page).Msg("Non-collection page - stopping aggregation")
			}
			if p.Body == nil {
				return items, nil
			}
			return append(items, p.Body), nil
		}
		items = append(items, list...)

		log.Debug().
			Str("endpoint", first).
			Int("page", page).
			Int("page_items", len(list)).
			Bool("has_next", p.Next != "").
			Msg("Page fetched")

		url = p.Next
	}

	log.Debug().
		Str("endpoint", first).
		Int("items", len(items)).
		Dur("duration", time.Since(start)).
		Msg("Collection complete")

	return items, nil
}
