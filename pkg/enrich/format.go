package enrich

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Sternrassler/pm-orchestrator/pkg/cache"
	"github.com/Sternrassler/pm-orchestrator/pkg/entity"
)

// MaxContentLength bounds the content of a search result.
const MaxContentLength = 200

// Priority levels derived from todo content.
const (
	PriorityUrgent   = "urgent"
	PriorityCritical = "critical"
	PriorityHigh     = "high"
	PriorityLow      = "low"
	PriorityNormal   = "normal"
)

// Checked in order; the first keyword found decides.
var priorityKeywords = []struct {
	re       *regexp.Regexp
	priority string
}{
	{regexp.MustCompile(`(?i)\b(urgent|asap)\b`), PriorityUrgent},
	{regexp.MustCompile(`(?i)\bcritical\b`), PriorityCritical},
	{regexp.MustCompile(`(?i)\bhigh\b`), PriorityHigh},
	{regexp.MustCompile(`(?i)\blow\b`), PriorityLow},
}

var htmlTag = regexp.MustCompile(`<[^>]*>`)

// SearchResult is the display shape of one search hit.
type SearchResult struct {
	ID        string   `json:"id"`
	Type      string   `json:"type,omitempty"`
	Title     string   `json:"title"`
	Content   string   `json:"content,omitempty"`
	URL       string   `json:"url,omitempty"`
	Date      string   `json:"date,omitempty"`
	Assignees []string `json:"assignees,omitempty"`
	Project   string   `json:"project,omitempty"`
	Status    string   `json:"status,omitempty"`
}

// FormatSearchResults enriches records and projects them to SearchResult.
func FormatSearchResults(lookup cache.EntityLookup, records []entity.Entity) []SearchResult {
	enriched := Array(lookup, records)
	out := make([]SearchResult, 0, len(enriched))

	for _, e := range enriched {
		r := SearchResult{
			ID:      e.ID(),
			Type:    e.String("type"),
			Title:   e.String("title"),
			Content: Truncate(plainText(e.String("content")), MaxContentLength),
			URL:     e.String("app_url"),
			Status:  status(e),
		}
		if r.Title == "" {
			r.Title = Truncate(plainText(e.Name()), MaxContentLength)
		}
		if r.URL == "" {
			r.URL = e.String("url")
		}
		for _, field := range []string{"updated_at", "created_at", "due_on"} {
			if d, ok := e[field+"_formatted"].(string); ok {
				r.Date = d
				break
			}
		}
		r.Assignees = names(e["assignees"])
		if p, ok := e["project_details"].(entity.Entity); ok {
			r.Project = p.Name()
		}
		out = append(out, r)
	}
	return out
}

// FormatTodoResults enriches todos and adds "priority", "days_until_due"
// and "overdue".
func FormatTodoResults(lookup cache.EntityLookup, records []entity.Entity, today string) []entity.Entity {
	out := Array(lookup, records)
	for _, e := range out {
		e["priority"] = Priority(e.String("content") + " " + e.String("title") + " " + e.String("description"))

		due := e.String("due_on")
		e["overdue"] = IsOverdue(due, today)
		if days, ok := DaysUntilDue(due, today); ok {
			e["days_until_due"] = days
		}
	}
	return out
}

// Priority classifies free text by keyword.
func Priority(text string) string {
	for _, k := range priorityKeywords {
		if k.re.MatchString(text) {
			return k.priority
		}
	}
	return PriorityNormal
}

// DaysUntilDue returns the whole days from today to due (negative when
// past). Both are YYYY-MM-DD.
func DaysUntilDue(due, today string) (int, bool) {
	d, err := time.Parse(time.DateOnly, due)
	if err != nil {
		return 0, false
	}
	t, err := time.Parse(time.DateOnly, today)
	if err != nil {
		return 0, false
	}
	return int(d.Sub(t).Hours() / 24), true
}

// IsOverdue reports whether due is set and strictly before today. Both are
// fixed-width YYYY-MM-DD strings, so string order is date order.
func IsOverdue(due, today string) bool {
	return due != "" && due < today
}

// Truncate shortens s to at most max runes, ending in "..." when cut.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	if max <= 3 {
		return string(runes[:max])
	}
	return strings.TrimSpace(string(runes[:max-3])) + "..."
}

// GroupBy buckets records by the value at a dotted field path. Records
// without the field go under "".
func GroupBy(records []entity.Entity, field string) map[string][]entity.Entity {
	groups := make(map[string][]entity.Entity)
	for _, e := range records {
		key := groupKey(Value(e, field))
		groups[key] = append(groups[key], e)
	}
	return groups
}

// CountBy counts records by the value at a dotted field path.
func CountBy(records []entity.Entity, field string) map[string]int {
	counts := make(map[string]int)
	for _, e := range records {
		counts[groupKey(Value(e, field))]++
	}
	return counts
}

func groupKey(v any) string {
	switch t := v.(type) {
	case bool:
		if t {
			return "true"
		}
		return "false"
	case string:
		return t
	default:
		return entity.Key(v)
	}
}

func status(e entity.Entity) string {
	if e.Bool("completed") {
		return "completed"
	}
	return e.String("status")
}

func names(v any) []string {
	list, ok := v.([]entity.Entity)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, p := range list {
		if n := p.Name(); n != "" {
			out = append(out, n)
		}
	}
	return out
}

func plainText(s string) string {
	return strings.Join(strings.Fields(htmlTag.ReplaceAllString(s, " ")), " ")
}
