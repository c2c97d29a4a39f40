package executor

import (
	"context"
	"net/url"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/Sternrassler/pm-orchestrator/pkg/entity"
	"github.com/Sternrassler/pm-orchestrator/pkg/enrich"
	"github.com/Sternrassler/pm-orchestrator/pkg/orchestrator"
)

var preloadAll = orchestrator.PreloadOptions{People: true, Projects: true}

// SearchResult is returned by Search.
type SearchResult struct {
	Items    []enrich.SearchResult `json:"items"`
	Count    int                   `json:"count"`
	Query    string                `json:"query"`
	Scope    string                `json:"scope,omitempty"`
	Metadata orchestrator.Metrics  `json:"_metadata"`
}

// Search runs a full-text search, optionally limited to one record type
// ("Todo", "Message", ...; "" or "all" searches everything), and formats
// the hits for display.
func (x *Executor) Search(ctx context.Context, query, scope string) (*SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, invalidInput("search query is required")
	}

	r := x.begin(ctx, "search", "search: "+query, preloadAll)

	params := url.Values{"q": []string{query}}
	if scope != "" && !strings.EqualFold(scope, "all") {
		params.Set("type", scope)
	}

	records, err := r.records(ctx, SearchPath, params)
	if err != nil {
		r.finish(err)
		return nil, err
	}

	r.rc.WarmMissing(ctx, records)
	items := enrich.FormatSearchResults(r.rc, records)

	return &SearchResult{
		Items:    items,
		Count:    len(items),
		Query:    query,
		Scope:    scope,
		Metadata: r.finish(nil),
	}, nil
}

// AssignmentResult is returned by Assignments.
type AssignmentResult struct {
	Assignees    []enrich.AssigneeBucket `json:"assignees"`
	Count        int                     `json:"count"`
	TotalRecords int                     `json:"total_records"`
	Unassigned   int                     `json:"unassigned"`
	Metadata     orchestrator.Metrics    `json:"_metadata"`
}

// Assignments groups every record under scope by assignee.
func (x *Executor) Assignments(ctx context.Context, scope string) (*AssignmentResult, error) {
	r := x.begin(ctx, "assignment", "assignments: "+scopeLabel(scope), preloadAll)

	records, err := r.records(ctx, scope, nil)
	if err != nil {
		r.finish(err)
		return nil, err
	}

	r.rc.WarmMissing(ctx, records)
	report := enrich.FormatAssignmentReport(r.rc, records, r.rc.Today())

	unassigned := 0
	for _, e := range records {
		if len(e.IDs("assignee_ids")) == 0 {
			unassigned++
		}
	}

	return &AssignmentResult{
		Assignees:    report,
		Count:        len(report),
		TotalRecords: len(records),
		Unassigned:   unassigned,
		Metadata:     r.finish(nil),
	}, nil
}

// TimelineResult is returned by Timeline.
type TimelineResult struct {
	Items    []entity.Entity      `json:"items"`
	Count    int                  `json:"count"`
	Start    string               `json:"start"`
	End      string               `json:"end"`
	Metadata orchestrator.Metrics `json:"_metadata"`
}

// Timeline returns the records under scope due between start and end
// inclusive (YYYY-MM-DD), ordered by due date.
func (x *Executor) Timeline(ctx context.Context, scope, start, end string) (*TimelineResult, error) {
	if _, err := time.Parse(time.DateOnly, start); err != nil {
		return nil, invalidInput("start %q is not a YYYY-MM-DD date", start)
	}
	if _, err := time.Parse(time.DateOnly, end); err != nil {
		return nil, invalidInput("end %q is not a YYYY-MM-DD date", end)
	}
	if start > end {
		return nil, invalidInput("start %s is after end %s", start, end)
	}

	r := x.begin(ctx, "timeline", "timeline: "+start+".."+end, preloadAll)

	records, err := r.records(ctx, scope, nil)
	if err != nil {
		r.finish(err)
		return nil, err
	}

	var inRange []entity.Entity
	for _, e := range records {
		due := e.String("due_on")
		if due != "" && start <= due && due <= end {
			inRange = append(inRange, e)
		}
	}
	sort.SliceStable(inRange, func(i, j int) bool {
		return inRange[i].String("due_on") < inRange[j].String("due_on")
	})

	r.rc.WarmMissing(ctx, inRange)
	items := r.rc.EnrichArray(inRange)

	return &TimelineResult{
		Items:    items,
		Count:    len(items),
		Start:    start,
		End:      end,
		Metadata: r.finish(nil),
	}, nil
}

// PersonStats summarises the records assigned to one person.
type PersonStats struct {
	Total      int            `json:"total"`
	Completed  int            `json:"completed"`
	Active     int            `json:"active"`
	Overdue    int            `json:"overdue"`
	ByPriority map[string]int `json:"by_priority"`
}

// PersonResult is returned by PersonFinder. When the name matches nobody,
// only Error, SearchedFor and Metadata are set.
type PersonResult struct {
	Person      entity.Entity        `json:"person,omitempty"`
	Items       []entity.Entity      `json:"items,omitempty"`
	Stats       *PersonStats         `json:"stats,omitempty"`
	Error       string               `json:"error,omitempty"`
	SearchedFor string               `json:"searched_for,omitempty"`
	Metadata    orchestrator.Metrics `json:"_metadata"`
}

// PersonFinder returns the records under scope assigned to the person
// named name. An unknown name is a result, not an error.
func (x *Executor) PersonFinder(ctx context.Context, scope, name string) (*PersonResult, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalidInput("person name is required")
	}

	r := x.begin(ctx, "person_finder", "person: "+name, preloadAll)

	person, ok, err := r.rc.SearchByName(ctx, entity.KindPerson, name)
	if err != nil {
		r.finish(err)
		return nil, err
	}
	if !ok {
		return &PersonResult{
			Error:       "person not found",
			SearchedFor: name,
			Metadata:    r.finish(nil),
		}, nil
	}

	records, err := r.records(ctx, scope, nil)
	if err != nil {
		r.finish(err)
		return nil, err
	}

	id := person.ID()
	var assigned []entity.Entity
	for _, e := range records {
		if slices.Contains(e.IDs("assignee_ids"), id) {
			assigned = append(assigned, e)
		}
	}

	r.rc.WarmMissing(ctx, assigned)
	today := r.rc.Today()
	items := enrich.FormatTodoResults(r.rc, assigned, today)

	stats := &PersonStats{Total: len(items), ByPriority: make(map[string]int)}
	for _, e := range items {
		if e.Bool("completed") {
			stats.Completed++
		} else {
			stats.Active++
		}
		if overdue, _ := e["overdue"].(bool); overdue {
			stats.Overdue++
		}
		stats.ByPriority[e.String("priority")]++
	}

	return &PersonResult{
		Person:   person.Clone(),
		Items:    items,
		Stats:    stats,
		Metadata: r.finish(nil),
	}, nil
}

// Status filters.
const (
	StatusCompleted = "completed"
	StatusActive    = "active"
	StatusArchived  = "archived"
)

// StatusResult is returned by StatusFilter.
type StatusResult struct {
	Items    []entity.Entity      `json:"items"`
	Count    int                  `json:"count"`
	Status   string               `json:"status"`
	Metadata orchestrator.Metrics `json:"_metadata"`
}

// StatusFilter returns the records under scope matching status:
// "completed" has the completion flag set, "active" does not, "archived"
// has status "archived". Any other value returns every record.
func (x *Executor) StatusFilter(ctx context.Context, scope, status string) (*StatusResult, error) {
	status = strings.ToLower(strings.TrimSpace(status))

	r := x.begin(ctx, "status_filter", "status: "+status, preloadAll)

	// Archived records are only listed when asked for explicitly.
	var params url.Values
	if status == StatusArchived {
		params = url.Values{"status": []string{StatusArchived}}
	}

	records, err := r.records(ctx, scope, params)
	if err != nil {
		r.finish(err)
		return nil, err
	}

	filtered := FilterStatus(records, status)
	r.rc.WarmMissing(ctx, filtered)
	items := r.rc.EnrichArray(filtered)

	return &StatusResult{
		Items:    items,
		Count:    len(items),
		Status:   status,
		Metadata: r.finish(nil),
	}, nil
}

// FilterStatus applies the StatusFilter predicate.
func FilterStatus(records []entity.Entity, status string) []entity.Entity {
	var keep func(entity.Entity) bool
	switch status {
	case StatusCompleted:
		keep = func(e entity.Entity) bool { return e.Bool("completed") }
	case StatusActive:
		keep = func(e entity.Entity) bool { return !e.Bool("completed") }
	case StatusArchived:
		keep = func(e entity.Entity) bool { return e.String("status") == StatusArchived }
	default:
		return records
	}

	out := make([]entity.Entity, 0, len(records))
	for _, e := range records {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

func scopeLabel(scope string) string {
	if scope == "" {
		return DefaultTodoScope
	}
	return scope
}
