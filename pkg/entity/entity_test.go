package entity

import (
	"encoding/json"
	"testing"
)

func TestKey(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"json number", json.Number("1049715913"), "1049715913"},
		{"float integral", float64(42), "42"},
		{"int", 7, "7"},
		{"int64", int64(9007199254740993), "9007199254740993"},
		{"string trimmed", "  abc ", "abc"},
		{"nil", nil, ""},
		{"unsupported", []int{1}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Key(tt.in); got != tt.want {
				t.Errorf("Key(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRefString(t *testing.T) {
	ref := NewRef(KindPerson, json.Number("12"))
	if ref.String() != "person:12" {
		t.Errorf("Ref.String() = %q, want person:12", ref.String())
	}
}

func TestDecodePreservesNumbers(t *testing.T) {
	v, err := Decode([]byte(`[{"id": 1234567890123, "assignee_ids": [1, 2]}]`))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	items := List(v)
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if items[0].ID() != "1234567890123" {
		t.Errorf("ID() = %q", items[0].ID())
	}
	ids := items[0].IDs("assignee_ids")
	if len(ids) != 2 || ids[0] != "1" || ids[1] != "2" {
		t.Errorf("IDs() = %v, want [1 2]", ids)
	}
}

func TestDecodeEmpty(t *testing.T) {
	v, err := Decode([]byte("  "))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if v != nil {
		t.Errorf("expected nil for empty body, got %v", v)
	}
}

func TestCloneIsDeep(t *testing.T) {
	original := Entity{
		"id":           json.Number("1"),
		"assignee_ids": []any{json.Number("1")},
		"bucket":       map[string]any{"id": json.Number("5")},
	}

	clone := original.Clone()
	clone["title"] = "changed"
	clone["assignee_ids"].([]any)[0] = json.Number("99")
	clone.Object("bucket")["id"] = json.Number("77")

	if _, ok := original["title"]; ok {
		t.Error("top-level write leaked into original")
	}
	if original["assignee_ids"].([]any)[0] != json.Number("1") {
		t.Error("slice write leaked into original")
	}
	if original.Object("bucket")["id"] != json.Number("5") {
		t.Error("nested write leaked into original")
	}
}

func TestName(t *testing.T) {
	if got := (Entity{"name": "Ada"}).Name(); got != "Ada" {
		t.Errorf("Name() = %q", got)
	}
	if got := (Entity{"title": "Ship it"}).Name(); got != "Ship it" {
		t.Errorf("Name() = %q", got)
	}
	if got := (Entity{}).Name(); got != "" {
		t.Errorf("Name() = %q", got)
	}
}
