package pagination

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"
)

func TestNextLink(t *testing.T) {
	tests := []struct {
		name   string
		values []string
		want   string
	}{
		{
			name:   "single next",
			values: []string{`<https://api.test/1/people.json?page=2>; rel="next"`},
			want:   "https://api.test/1/people.json?page=2",
		},
		{
			name:   "prev and next in one header",
			values: []string{`<https://api.test/p?page=1>; rel="prev", <https://api.test/p?page=3>; rel="next"`},
			want:   "https://api.test/p?page=3",
		},
		{
			name:   "unquoted rel",
			values: []string{`<https://api.test/p?page=2>; rel=next`},
			want:   "https://api.test/p?page=2",
		},
		{
			name:   "multiple rel values",
			values: []string{`<https://api.test/p?page=2>; rel="last next"`},
			want:   "https://api.test/p?page=2",
		},
		{
			name:   "separate header lines",
			values: []string{`<https://api.test/p?page=1>; rel="first"`, `<https://api.test/p?page=9>; rel="next"`},
			want:   "https://api.test/p?page=9",
		},
		{
			name:   "no next",
			values: []string{`<https://api.test/p?page=1>; rel="prev"`},
			want:   "",
		},
		{
			name: "no header",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			for _, v := range tt.values {
				h.Add("Link", v)
			}
			if got := NextLink(h); got != tt.want {
				t.Errorf("NextLink() = %q, want %q", got, tt.want)
			}
		})
	}
}

// pagedFetcher serves numbered pages of two items each.
type pagedFetcher struct {
	pages int
	calls int
	fail  int
}

func (f *pagedFetcher) FetchPage(_ context.Context, url string) (Page, error) {
	f.calls++
	if f.fail == f.calls {
		return Page{}, errors.New("upstream down")
	}
	var n int
	fmt.Sscanf(url, "page=%d", &n)
	p := Page{Body: []any{fmt.Sprintf("p%d-a", n), fmt.Sprintf("p%d-b", n)}}
	if n < f.pages {
		p.Next = fmt.Sprintf("page=%d", n+1)
	}
	return p, nil
}

func TestCollect_FollowsAllPages(t *testing.T) {
	f := &pagedFetcher{pages: 3}

	items, err := Collect(context.Background(), f, "page=1", Config{MaxPages: 10})
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}

	want := []string{"p1-a", "p1-b", "p2-a", "p2-b", "p3-a", "p3-b"}
	if len(items) != len(want) {
		t.Fatalf("got %d items, want %d", len(items), len(want))
	}
	for i, w := range want {
		if items[i] != w {
			t.Errorf("items[%d] = %v, want %s", i, items[i], w)
		}
	}
	if f.calls != 3 {
		t.Errorf("calls = %d, want 3", f.calls)
	}
}

func TestCollect_PageCeiling(t *testing.T) {
	f := &pagedFetcher{pages: 100}

	items, err := Collect(context.Background(), f, "page=1", Config{MaxPages: 4})
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if f.calls != 4 {
		t.Errorf("calls = %d, want 4", f.calls)
	}
	if len(items) != 8 {
		t.Errorf("items = %d, want 8", len(items))
	}
}

func TestCollect_SingleObject(t *testing.T) {
	obj := map[string]any{"id": "1"}
	f := PageFetcherFunc(func(context.Context, string) (Page, error) {
		return Page{Body: obj, Next: "ignored"}, nil
	})

	items, err := Collect(context.Background(), f, "x", DefaultConfig())
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("items = %d, want 1", len(items))
	}
	if got, ok := items[0].(map[string]any); !ok || got["id"] != "1" {
		t.Errorf("items[0] = %v, want the single payload", items[0])
	}
}

func TestCollect_ErrorMidway(t *testing.T) {
	f := &pagedFetcher{pages: 3, fail: 2}

	items, err := Collect(context.Background(), f, "page=1", Config{MaxPages: 10})
	if err == nil {
		t.Fatal("expected error")
	}
	if len(items) != 2 {
		t.Errorf("partial items = %d, want 2", len(items))
	}
}

func TestCollect_ContextCancelledBetweenPages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := PageFetcherFunc(func(context.Context, string) (Page, error) {
		cancel()
		return Page{Body: []any{1}, Next: "more"}, nil
	})

	_, err := Collect(ctx, f, "x", Config{MaxPages: 5, PageDelay: time.Hour})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}
