// Package pagination aggregates paginated upstream list endpoints.
//
// The upstream advertises the next page with an RFC 8288 Link header:
//
//	Link: <https://api.example.com/123/projects.json?page=2>; rel="next"
//
// Collect follows those links one page at a time, concatenating JSON arrays
// in page order. Pages are fetched sequentially with a short delay between
// them because the upstream rate limit is per token, not per endpoint.
//
// Example usage:
//
//	cfg := pagination.DefaultConfig()
//	items, err := pagination.Collect(ctx, transport, "https://.../people.json", cfg)
//
// Aggregation stops when:
//   - the response carries no rel="next" link
//   - MaxPages pages have been read (the result is marked truncated in logs)
//   - a page is not a JSON array, in which case that payload is returned alone
package pagination
