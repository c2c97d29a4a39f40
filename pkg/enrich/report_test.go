package enrich

import (
	"encoding/json"
	"testing"

	"github.com/Sternrassler/pm-orchestrator/pkg/entity"
)

func TestFormatAssignmentReport_Stats(t *testing.T) {
	records := []entity.Entity{
		{"assignee_ids": []any{json.Number("1")}, "completed": false, "due_on": "2024-01-01"},
		{"assignee_ids": []any{json.Number("1")}, "completed": true},
	}

	report := FormatAssignmentReport(testLookup(), records, "2024-06-01")

	if len(report) != 1 {
		t.Fatalf("buckets = %d, want 1", len(report))
	}
	b := report[0]
	if b.Person.Name() != "Ada Lovelace" {
		t.Errorf("person = %v", b.Person)
	}
	want := AssignmentStats{Total: 2, Completed: 1, Overdue: 1}
	if b.Stats != want {
		t.Errorf("stats = %+v, want %+v", b.Stats, want)
	}
	if len(b.Records) != 2 {
		t.Errorf("records = %d, want 2", len(b.Records))
	}
}

func TestFormatAssignmentReport_SortedByTotal(t *testing.T) {
	records := []entity.Entity{
		{"assignee_ids": []any{1}},
		{"assignee_ids": []any{3, 1}},
		{"assignee_ids": []any{3}},
		{"assignee_ids": []any{3}},
		{"title": "unassigned"},
	}

	report := FormatAssignmentReport(testLookup(), records, "2024-06-01")

	if len(report) != 2 {
		t.Fatalf("buckets = %d, want 2", len(report))
	}
	if report[0].Person.ID() != "3" || report[0].Stats.Total != 3 {
		t.Errorf("first bucket = %v %+v", report[0].Person, report[0].Stats)
	}
	if report[1].Person.ID() != "1" || report[1].Stats.Total != 2 {
		t.Errorf("second bucket = %v %+v", report[1].Person, report[1].Stats)
	}
}

func TestFormatAssignmentReport_UncachedPerson(t *testing.T) {
	report := FormatAssignmentReport(testLookup(), []entity.Entity{
		{"assignee_ids": []any{json.Number("42")}},
	}, "2024-06-01")

	if len(report) != 1 || report[0].Person.ID() != "42" {
		t.Fatalf("report = %+v", report)
	}
	if report[0].Person.Name() != "" {
		t.Errorf("placeholder person should carry only the id, got %v", report[0].Person)
	}
}
