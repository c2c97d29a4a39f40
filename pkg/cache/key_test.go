package cache

import (
	"net/url"
	"testing"

	"github.com/Sternrassler/pm-orchestrator/pkg/entity"
)

func TestKey_String(t *testing.T) {
	tests := []struct {
		name string
		key  Key
		want string
	}{
		{
			name: "collection key",
			key:  CollectionKey("999", entity.KindPerson),
			want: "pm:999:person",
		},
		{
			name: "path without query",
			key:  PathKey("/people/42.json", nil),
			want: "pm:people/42.json",
		},
		{
			name: "path with query",
			key: PathKey("projects/recordings.json", url.Values{
				"type": []string{"Todo"},
			}),
			want: "pm:projects/recordings.json:type=Todo",
		},
		{
			name: "query names and values sorted",
			key: PathKey("search.json", url.Values{
				"q":      []string{"launch"},
				"bucket": []string{"7", "3"},
			}),
			want: "pm:search.json:bucket=3,7:q=launch",
		},
		{
			name: "everything",
			key: Key{
				Account: "1",
				Kind:    entity.KindTodo,
				Path:    "buckets/1/todos.json",
				Query:   url.Values{"status": []string{"archived"}},
			},
			want: "pm:1:todo:buckets/1/todos.json:status=archived",
		},
		{
			name: "empty key",
			key:  Key{},
			want: "pm",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.key.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestKey_String_Deterministic(t *testing.T) {
	key := PathKey("search.json", url.Values{
		"a": []string{"1"},
		"b": []string{"2"},
		"c": []string{"3"},
	})

	first := key.String()
	for i := 0; i < 100; i++ {
		if got := key.String(); got != first {
			t.Fatalf("non-deterministic key: %q vs %q", got, first)
		}
	}
}

func TestKey_String_DoesNotMutateQuery(t *testing.T) {
	query := url.Values{"bucket": []string{"9", "1"}}
	_ = PathKey("search.json", query).String()

	if query["bucket"][0] != "9" {
		t.Errorf("query values were reordered: %v", query["bucket"])
	}
}
