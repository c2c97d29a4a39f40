package executor

import (
	"context"
	stderrors "errors"
	"net/http"
	"testing"

	"github.com/jmgilman/go/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sternrassler/pm-orchestrator/internal/testutil"
)

func TestRunWithFallback_PrimarySucceeds(t *testing.T) {
	calls, fallbacks := 0, 0
	got, err := RunWithFallback(context.Background(), "test",
		func(context.Context) (string, error) { calls++; return "primary", nil },
		func(context.Context) (string, error) { fallbacks++; return "fallback", nil },
	)

	require.NoError(t, err)
	assert.Equal(t, "primary", got)
	assert.Equal(t, 1, calls)
	assert.Zero(t, fallbacks)
}

func TestRunWithFallback_RetriesOnce(t *testing.T) {
	calls := 0
	got, err := RunWithFallback(context.Background(), "test",
		func(context.Context) (string, error) {
			calls++
			if calls == 1 {
				return "", stderrors.New("flaky")
			}
			return "primary", nil
		},
		func(context.Context) (string, error) { return "fallback", nil },
	)

	require.NoError(t, err)
	assert.Equal(t, "primary", got)
	assert.Equal(t, 2, calls)
}

func TestRunWithFallback_UsesFallback(t *testing.T) {
	calls := 0
	got, err := RunWithFallback(context.Background(), "test",
		func(context.Context) (int, error) { calls++; return 0, stderrors.New("down") },
		func(context.Context) (int, error) { return 42, nil },
	)

	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 2, calls)
}

func TestRunWithFallback_InvalidInputShortCircuits(t *testing.T) {
	calls, fallbacks := 0, 0
	_, err := RunWithFallback(context.Background(), "test",
		func(context.Context) (int, error) { calls++; return 0, invalidInput("bad date") },
		func(context.Context) (int, error) { fallbacks++; return 1, nil },
	)

	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))
	assert.Equal(t, 1, calls)
	assert.Zero(t, fallbacks)
}

func TestRunWithFallback_BothFail(t *testing.T) {
	_, err := RunWithFallback(context.Background(), "test",
		func(context.Context) (int, error) { return 0, stderrors.New("primary down") },
		func(context.Context) (int, error) {
			return 0, errors.New(errors.CodeNotFound, "fallback down")
		},
	)

	require.Error(t, err)
	payload := ToErrorPayload(err)
	assert.Equal(t, "primary down", payload.Details["primary_error"])
}

func TestRunWithFallback_NoFallback(t *testing.T) {
	calls := 0
	_, err := RunWithFallback[int](context.Background(), "test",
		func(context.Context) (int, error) { calls++; return 0, stderrors.New("down") },
		nil,
	)

	assert.EqualError(t, err, "down")
	assert.Equal(t, 2, calls)
}

func TestPlainList_NoPreloadNoEnrichment(t *testing.T) {
	mock := newMock(t)
	mock.SetJSON(testutil.Path(recordingsPath), []map[string]any{
		{"id": 1, "assignee_ids": []int{1}},
	})
	x := newTestExecutor(t, mock)

	result, err := x.PlainList(context.Background(), "", map[string]string{"status": "archived"})
	require.NoError(t, err)

	require.Len(t, result.Items, 1)
	assert.True(t, result.Fallback)
	assert.NotContains(t, result.Items[0], "assignees")
	assert.Equal(t, 1, result.Metadata.APICallsMade)
	assert.Zero(t, mock.PathCount(testutil.Path("people.json")))
}

func TestFallback_TimelineToPlainList(t *testing.T) {
	mock := newMock(t)
	mock.SetResponse(testutil.Path(recordingsPath), testutil.NewErrorResponse(http.StatusNotFound, "gone"))
	mock.SetJSON(testutil.Path("projects/archive.json"), []map[string]any{{"id": 9}})
	x := newTestExecutor(t, mock)

	result, err := RunWithFallback(context.Background(), "timeline",
		func(ctx context.Context) (any, error) {
			return x.Timeline(ctx, "", "2024-01-01", "2024-12-31")
		},
		func(ctx context.Context) (any, error) {
			return x.PlainList(ctx, "projects/archive.json", nil)
		},
	)
	require.NoError(t, err)

	list, ok := result.(*ListResult)
	require.True(t, ok)
	assert.Equal(t, 1, list.Count)
	assert.Equal(t, 2, mock.PathCount(testutil.Path(recordingsPath)), "primary is retried once")
}

func TestToErrorPayload(t *testing.T) {
	assert.Nil(t, ToErrorPayload(nil))

	plain := ToErrorPayload(stderrors.New("boom"))
	assert.Equal(t, "UNKNOWN", plain.Code)
	assert.Equal(t, "boom", plain.Message)
	assert.Nil(t, plain.Details)

	coded := ToErrorPayload(errors.WithContext(errors.New(errors.CodeNotFound, "missing"), "id", "7"))
	assert.Equal(t, "NOT_FOUND", coded.Code)
	assert.Equal(t, "missing", coded.Message)
	assert.Equal(t, "7", coded.Details["id"])
}
