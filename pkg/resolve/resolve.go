// Package resolve turns a free-text name into exactly one candidate.
//
// Matching runs in three stages, loosest last: exact (trimmed, case as
// written), case-insensitive substring containment, then bounded
// Levenshtein distance over lower-cased names. The
// first stage that matches anything decides. More than one match in that
// stage is an AMBIGUOUS_MATCH error carrying every candidate; no stage
// matching is NO_MATCH. The resolver never picks a best guess.
package resolve

import (
	"sort"
	"strings"

	"github.com/jmgilman/go/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/pm-orchestrator/pkg/entity"
)

// Error codes returned by Resolve.
const (
	// CodeAmbiguousMatch carries "label", "searched_for" and "candidates".
	CodeAmbiguousMatch errors.ErrorCode = "AMBIGUOUS_MATCH"

	// CodeNoMatch carries "label" and "searched_for".
	CodeNoMatch errors.ErrorCode = "NO_MATCH"
)

// Stage names a matching stage.
type Stage string

const (
	// StageExact matches trimmed names case-sensitively.
	StageExact Stage = "exact"
	// StageSubstring matches candidates whose lowercased name contains the
	// lowercased input.
	StageSubstring Stage = "substring"
	// StageFuzzy keeps candidates within an edit distance of
	// max(MinFuzzyDistance, len/2), closest first.
	StageFuzzy Stage = "fuzzy"
	// StageNone reports that no stage produced a candidate.
	StageNone Stage = "none"
)

// MinFuzzyDistance is the smallest edit distance the fuzzy stage accepts.
const MinFuzzyDistance = 3

var resolutions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "pm_resolver_resolutions_total",
	Help: "Entity resolutions by deciding stage and outcome",
}, []string{"stage", "outcome"}) // outcome: "resolved", "ambiguous", "no_match"

// Match is a candidate kept by a stage.
type Match[T any] struct {
	Candidate T
	Name      string
	Distance  int
}

// Resolve returns the single candidate whose name matches text. name
// extracts a candidate's display name; label describes the candidate set in
// errors (e.g. "project").
func Resolve[T any](candidates []T, name func(T) string, text, label string) (T, error) {
	var zero T

	stage, matches := Stages(candidates, name, text)
	logger := log.With().Str("component", "resolver").Str("label", label).Logger()

	switch {
	case len(matches) == 1:
		resolutions.WithLabelValues(string(stage), "resolved").Inc()
		logger.Debug().Str("stage", string(stage)).Str("match", matches[0].Name).Msg("Resolved name")
		return matches[0].Candidate, nil

	case len(matches) > 1:
		resolutions.WithLabelValues(string(stage), "ambiguous").Inc()
		names := make([]string, len(matches))
		found := make([]T, len(matches))
		for i, m := range matches {
			names[i] = m.Name
			found[i] = m.Candidate
		}
		logger.Debug().Str("stage", string(stage)).Strs("candidates", names).Msg("Ambiguous name")
		return zero, errors.WithContextMap(
			errors.Newf(CodeAmbiguousMatch, "%q matches %d %ss", text, len(matches), label),
			map[string]interface{}{
				"label":        label,
				"searched_for": text,
				"stage":        string(stage),
				"candidates":   found,
			},
		)

	default:
		resolutions.WithLabelValues(string(StageNone), "no_match").Inc()
		return zero, errors.WithContextMap(
			errors.Newf(CodeNoMatch, "no %s matches %q", label, text),
			map[string]interface{}{
				"label":        label,
				"searched_for": text,
			},
		)
	}
}

// Stages runs the matching stages in order and returns the first that
// kept any candidate, or StageNone.
func Stages[T any](candidates []T, name func(T) string, text string) (Stage, []Match[T]) {
	want := normalize(text)
	if want == "" {
		return StageNone, nil
	}

	normalized := make([]string, len(candidates))
	for i, c := range candidates {
		normalized[i] = normalize(name(c))
	}

	literal := strings.TrimSpace(text)
	var exact []Match[T]
	for _, c := range candidates {
		if strings.TrimSpace(name(c)) == literal {
			exact = append(exact, Match[T]{Candidate: c, Name: name(c)})
		}
	}
	if len(exact) > 0 {
		return StageExact, exact
	}

	var contains []Match[T]
	for i, c := range candidates {
		if normalized[i] != "" && strings.Contains(normalized[i], want) {
			contains = append(contains, Match[T]{Candidate: c, Name: name(c)})
		}
	}
	if len(contains) > 0 {
		return StageSubstring, contains
	}

	limit := max(MinFuzzyDistance, len([]rune(want))/2)
	var fuzzy []Match[T]
	for i, c := range candidates {
		if normalized[i] == "" {
			continue
		}
		if d := Levenshtein(normalized[i], want); d <= limit {
			fuzzy = append(fuzzy, Match[T]{Candidate: c, Name: name(c), Distance: d})
		}
	}
	if len(fuzzy) > 0 {
		sort.SliceStable(fuzzy, func(i, j int) bool {
			return fuzzy[i].Distance < fuzzy[j].Distance
		})
		return StageFuzzy, fuzzy
	}

	return StageNone, nil
}

// ResolveEntity resolves against entities by their display name.
func ResolveEntity(candidates []entity.Entity, text, label string) (entity.Entity, error) {
	return Resolve(candidates, entity.Entity.Name, text, label)
}

// Candidates extracts the candidate list from an AMBIGUOUS_MATCH error.
func Candidates[T any](err error) []T {
	var pe errors.PlatformError
	if !errors.As(err, &pe) || pe.Code() != CodeAmbiguousMatch {
		return nil
	}
	found, _ := pe.Context()["candidates"].([]T)
	return found
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Levenshtein returns the edit distance between a and b, counted in runes.
func Levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}
