package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/Sternrassler/pm-orchestrator/pkg/entity"
)

// Key identifies a cached upstream result.
type Key struct {
	// Account is the tenant segment; keys from different accounts never
	// collide in a shared tier.
	Account string

	// Kind is set for reference collections.
	Kind entity.Kind

	// Path is the upstream path relative to the account (e.g. "people.json").
	Path string

	// Query parameters (sorted for determinism).
	Query url.Values
}

// CollectionKey returns the key of a whole reference collection.
func CollectionKey(account string, kind entity.Kind) Key {
	return Key{Account: account, Kind: kind}
}

// PathKey returns the key of a single upstream call result.
func PathKey(path string, query url.Values) Key {
	return Key{Path: path, Query: query}
}

// String generates a deterministic cache key string.
// Format: pm:account:kind:path:query1=val1:query2=val2
//
// Example:
//
//	pm:999:person
//	pm:buckets/1/todolists.json:status=archived
func (k Key) String() string {
	parts := []string{"pm"}

	if k.Account != "" {
		parts = append(parts, k.Account)
	}
	if k.Kind != "" {
		parts = append(parts, string(k.Kind))
	}

	path := strings.Trim(k.Path, "/")
	if path != "" {
		parts = append(parts, path)
	}

	if len(k.Query) > 0 {
		names := make([]string, 0, len(k.Query))
		for name := range k.Query {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			values := append([]string(nil), k.Query[name]...)
			sort.Strings(values)
			parts = append(parts, fmt.Sprintf("%s=%s", name, strings.Join(values, ",")))
		}
	}

	return strings.Join(parts, ":")
}
