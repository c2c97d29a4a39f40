// Package entity defines the upstream data model shared by the transport,
// cache, enrichment and executor packages.
//
// Upstream records are JSON objects whose relationships are expressed as
// numeric foreign keys. They are kept as generic maps so the enrichment
// pipeline can add sibling fields without a schema per record type.
package entity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Kind tags the type of an upstream entity.
type Kind string

const (
	KindPerson   Kind = "person"
	KindProject  Kind = "project"
	KindTodo     Kind = "todo"
	KindTodoList Kind = "todolist"
	KindComment  Kind = "comment"
	KindMessage  Kind = "message"
)

// Ref is an opaque pointer into the upstream system.
type Ref struct {
	Kind Kind
	ID   string
}

// String returns the canonical "kind:id" form used as a cache key.
func (r Ref) String() string {
	return string(r.Kind) + ":" + r.ID
}

// NewRef builds a Ref from any id representation accepted by Key.
func NewRef(kind Kind, id any) Ref {
	return Ref{Kind: kind, ID: Key(id)}
}

// Entity is a single upstream JSON object.
type Entity map[string]any

// ID returns the canonical string form of the "id" field, or "" if absent.
func (e Entity) ID() string {
	return Key(e["id"])
}

// Name returns the display name of the entity. People and projects use
// "name"; recordings use "title" or "content".
func (e Entity) Name() string {
	for _, field := range []string{"name", "title", "content"} {
		if s, ok := e[field].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// String returns a string field or "".
func (e Entity) String(field string) string {
	s, _ := e[field].(string)
	return s
}

// Bool returns a boolean field or false.
func (e Entity) Bool(field string) bool {
	b, _ := e[field].(bool)
	return b
}

// Object returns a nested object field, or nil.
func (e Entity) Object(field string) Entity {
	switch v := e[field].(type) {
	case Entity:
		return v
	case map[string]any:
		return Entity(v)
	}
	return nil
}

// IDs returns the canonical keys of an id-array field such as
// "assignee_ids". Non-array values yield nil.
func (e Entity) IDs(field string) []string {
	var raw []any
	switch v := e[field].(type) {
	case []any:
		raw = v
	case []string:
		for _, s := range v {
			raw = append(raw, s)
		}
	case []int:
		for _, n := range v {
			raw = append(raw, n)
		}
	case []int64:
		for _, n := range v {
			raw = append(raw, n)
		}
	default:
		return nil
	}
	ids := make([]string, 0, len(raw))
	for _, v := range raw {
		if k := Key(v); k != "" {
			ids = append(ids, k)
		}
	}
	return ids
}

// Clone returns a deep copy of the entity. Enrichment always works on a
// clone so cached entities are never mutated.
func (e Entity) Clone() Entity {
	if e == nil {
		return nil
	}
	out := make(Entity, len(e))
	for k, v := range e {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case Entity:
		return t.Clone()
	case map[string]any:
		return map[string]any(Entity(t).Clone())
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	case []Entity:
		out := make([]Entity, len(t))
		for i, item := range t {
			out[i] = item.Clone()
		}
		return out
	default:
		return v
	}
}

// Key normalises an id value to its canonical string form. JSON numbers,
// Go integers, integral floats and strings are supported; anything else
// yields "".
func Key(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(id)
	case json.Number:
		return id.String()
	case int:
		return strconv.Itoa(id)
	case int64:
		return strconv.FormatInt(id, 10)
	case int32:
		return strconv.FormatInt(int64(id), 10)
	case uint64:
		return strconv.FormatUint(id, 10)
	case float64:
		if id == float64(int64(id)) {
			return strconv.FormatInt(int64(id), 10)
		}
		return strconv.FormatFloat(id, 'f', -1, 64)
	default:
		return ""
	}
}

// Decode parses a JSON document, preserving numbers as json.Number so large
// ids round-trip exactly. Objects decode to Entity-compatible maps.
func Decode(data []byte) (any, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	return v, nil
}

// FromValue converts a decoded JSON value into an Entity if it is an object.
func FromValue(v any) (Entity, bool) {
	switch t := v.(type) {
	case Entity:
		return t, true
	case map[string]any:
		return Entity(t), true
	}
	return nil, false
}

// List converts a decoded JSON array (or slice of Entity) into entities,
// skipping non-object items.
func List(v any) []Entity {
	switch t := v.(type) {
	case []Entity:
		return t
	case []any:
		out := make([]Entity, 0, len(t))
		for _, item := range t {
			if e, ok := FromValue(item); ok {
				out = append(out, e)
			}
		}
		return out
	}
	return nil
}
