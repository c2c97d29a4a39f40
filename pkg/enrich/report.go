package enrich

import (
	"sort"

	"github.com/Sternrassler/pm-orchestrator/pkg/cache"
	"github.com/Sternrassler/pm-orchestrator/pkg/entity"
)

// AssignmentStats summarises one assignee's records.
type AssignmentStats struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Overdue   int `json:"overdue"`
}

// AssigneeBucket groups the records assigned to one person.
type AssigneeBucket struct {
	Person  entity.Entity   `json:"person"`
	Records []entity.Entity `json:"records"`
	Stats   AssignmentStats `json:"stats"`
}

// FormatAssignmentReport enriches records and folds them into one bucket
// per assignee, largest first. A record with several assignees counts
// once for each. People missing from the cache get a bucket holding only
// their id.
func FormatAssignmentReport(lookup cache.EntityLookup, records []entity.Entity, today string) []AssigneeBucket {
	enriched := Array(lookup, records)

	buckets := make(map[string]*AssigneeBucket)
	var order []string

	for _, e := range enriched {
		for _, id := range e.IDs("assignee_ids") {
			b, ok := buckets[id]
			if !ok {
				person, found := find(lookup, entity.KindPerson, id)
				if !found {
					person = entity.Entity{"id": id}
				}
				b = &AssigneeBucket{Person: person}
				buckets[id] = b
				order = append(order, id)
			}

			b.Records = append(b.Records, e)
			b.Stats.Total++
			if e.Bool("completed") {
				b.Stats.Completed++
			}
			if IsOverdue(e.String("due_on"), today) {
				b.Stats.Overdue++
			}
		}
	}

	out := make([]AssigneeBucket, 0, len(order))
	for _, id := range order {
		out = append(out, *buckets[id])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Stats.Total > out[j].Stats.Total
	})
	return out
}
