// Package enrich replaces foreign-key fields in upstream records with the
// entities they reference and derives display fields from raw values.
//
// Every function works on deep copies: a record passed in, and every entity
// resolved through the lookup, is cloned before anything is attached, so
// cached entities are never mutated.
package enrich

import (
	"strings"
	"time"

	"github.com/Sternrassler/pm-orchestrator/pkg/cache"
	"github.com/Sternrassler/pm-orchestrator/pkg/entity"
)

// Mapping describes one foreign-key field and where its resolved entity is
// attached.
type Mapping struct {
	// Source is the field holding the id. Dots address nested objects, as
	// in "bucket.id".
	Source string

	// Target is the top-level field the resolved value is written to.
	Target string

	// Kind of the referenced entity.
	Kind entity.Kind

	// Many marks id-array fields; Target then holds a list.
	Many bool
}

// FieldMappings drives Object. Sources missing from a record are skipped.
var FieldMappings = []Mapping{
	{Source: "assignee_ids", Target: "assignees", Kind: entity.KindPerson, Many: true},
	{Source: "subscriber_ids", Target: "subscribers", Kind: entity.KindPerson, Many: true},
	{Source: "creator_id", Target: "creator_details", Kind: entity.KindPerson},
	{Source: "bucket.id", Target: "project_details", Kind: entity.KindProject},
	{Source: "project_id", Target: "project_details", Kind: entity.KindProject},
	{Source: "completion.creator_id", Target: "completed_by", Kind: entity.KindPerson},
}

// DateFields gain a "<field>_formatted" sibling when they parse.
var DateFields = []string{"due_on", "starts_on", "created_at", "updated_at"}

// Object returns an enriched deep copy of record. Ids with no cached entity
// are silently skipped; the source fields are left untouched.
func Object(lookup cache.EntityLookup, record entity.Entity) entity.Entity {
	if record == nil {
		return nil
	}
	out := record.Clone()

	for _, m := range FieldMappings {
		if _, done := out[m.Target]; done {
			continue
		}
		if m.Many {
			ids := idList(out, m.Source)
			if len(ids) == 0 {
				continue
			}
			resolved := make([]entity.Entity, 0, len(ids))
			for _, id := range ids {
				if e, ok := find(lookup, m.Kind, id); ok {
					resolved = append(resolved, e)
				}
			}
			if len(resolved) > 0 {
				out[m.Target] = resolved
			}
			continue
		}

		id := entity.Key(Value(out, m.Source))
		if id == "" {
			continue
		}
		if e, ok := find(lookup, m.Kind, id); ok {
			out[m.Target] = e
		}
	}

	for _, field := range DateFields {
		raw, ok := out[field].(string)
		if !ok {
			continue
		}
		if formatted, ok := FormatDate(raw); ok {
			out[field+"_formatted"] = formatted
		}
	}

	return out
}

// Array enriches every record of list.
func Array(lookup cache.EntityLookup, list []entity.Entity) []entity.Entity {
	out := make([]entity.Entity, 0, len(list))
	for _, record := range list {
		if record == nil {
			continue
		}
		out = append(out, Object(lookup, record))
	}
	return out
}

// References lists the distinct entities the records point at through
// FieldMappings, in first-seen order.
func References(records []entity.Entity) []entity.Ref {
	seen := make(map[entity.Ref]struct{})
	var refs []entity.Ref
	add := func(kind entity.Kind, id string) {
		if id == "" {
			return
		}
		ref := entity.Ref{Kind: kind, ID: id}
		if _, ok := seen[ref]; ok {
			return
		}
		seen[ref] = struct{}{}
		refs = append(refs, ref)
	}

	for _, record := range records {
		for _, m := range FieldMappings {
			if m.Many {
				for _, id := range idList(record, m.Source) {
					add(m.Kind, id)
				}
				continue
			}
			add(m.Kind, entity.Key(Value(record, m.Source)))
		}
	}
	return refs
}

// Value returns the value at a dotted path, or nil.
func Value(record entity.Entity, path string) any {
	current := record
	parts := strings.Split(path, ".")
	for i, part := range parts {
		if current == nil {
			return nil
		}
		if i == len(parts)-1 {
			return current[part]
		}
		current = current.Object(part)
	}
	return nil
}

func idList(record entity.Entity, path string) []string {
	parent := record
	field := path
	if i := strings.LastIndex(path, "."); i >= 0 {
		parent, _ = entity.FromValue(Value(record, path[:i]))
		field = path[i+1:]
	}
	if parent == nil {
		return nil
	}
	return parent.IDs(field)
}

func find(lookup cache.EntityLookup, kind entity.Kind, id string) (entity.Entity, bool) {
	if lookup == nil {
		return nil, false
	}
	var (
		e  entity.Entity
		ok bool
	)
	switch kind {
	case entity.KindPerson:
		e, ok = lookup.Person(id)
	case entity.KindProject:
		e, ok = lookup.Project(id)
	}
	if !ok || e == nil {
		return nil, false
	}
	return e.Clone(), true
}

// FormatDate renders an upstream date ("2006-01-02") or timestamp
// (RFC 3339) for display.
func FormatDate(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t.Format("Jan 2, 2006"), true
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.Format("Jan 2, 2006 3:04 PM"), true
	}
	return "", false
}
