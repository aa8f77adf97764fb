package durability_test

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdamache/memorybench/pkg/durability"
)

type fakeCheckpointStore struct {
	byRunID map[string]*durability.Checkpoint
}

func newFakeCheckpointStore() *fakeCheckpointStore {
	return &fakeCheckpointStore{byRunID: make(map[string]*durability.Checkpoint)}
}

func (f *fakeCheckpointStore) Save(_ context.Context, cp *durability.Checkpoint) error {
	f.byRunID[cp.RunID] = cp
	return nil
}

func (f *fakeCheckpointStore) Load(_ context.Context, runID string) (*durability.Checkpoint, error) {
	cp, ok := f.byRunID[runID]
	if !ok {
		return nil, &durability.ErrCheckpointNotFound{RunID: runID}
	}
	return cp, nil
}

func (f *fakeCheckpointStore) ListRunIDs(context.Context) ([]string, error) {
	var ids []string
	for id := range f.byRunID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func TestCheckpoint_RecordCompletionDoesNotMutateReceiver(t *testing.T) {
	cp := durability.NewCheckpoint("run-1", durability.Selections{Providers: []string{"a"}, Benchmarks: []string{"b"}}, 2)
	next := cp.RecordCompletion("a|b|case-1", "pass")

	assert.Empty(t, cp.Completed)
	assert.Equal(t, 0, cp.CompletedCount)
	assert.Len(t, next.Completed, 1)
	assert.Equal(t, 1, next.CompletedCount)
	assert.True(t, next.CompletedKeys()["a|b|case-1"])
}

func TestCheckpoint_Validate(t *testing.T) {
	cp := durability.NewCheckpoint("run-1", durability.Selections{}, 1)
	require.NoError(t, cp.Validate())

	cp.Version = 2
	assert.Error(t, cp.Validate())

	cp.Version = 1
	cp.CompletedCount = 5
	assert.Error(t, cp.Validate())
}

func TestCheckpoint_ValidateSelectionsDiff(t *testing.T) {
	cp := durability.NewCheckpoint("run-1", durability.Selections{
		Providers: []string{"a", "b"}, Benchmarks: []string{"x"},
	}, 1)

	diff := cp.ValidateSelections(durability.Selections{Providers: []string{"a", "b"}, Benchmarks: []string{"x"}})
	assert.True(t, diff.Equal())

	diff = cp.ValidateSelections(durability.Selections{Providers: []string{"a", "c"}, Benchmarks: []string{"x"}})
	assert.False(t, diff.Equal())
	assert.Equal(t, []string{"b"}, diff.MissingProviders)
	assert.Equal(t, []string{"c"}, diff.ExtraProviders)
}

func TestBuildCaseKeyRoundTrip(t *testing.T) {
	key := durability.BuildCaseKey("alpha", "bravo", "case-7")
	assert.Equal(t, "alpha|bravo|case-7", key)

	p, b, c, err := durability.ParseCaseKey(key)
	require.NoError(t, err)
	assert.Equal(t, "alpha", p)
	assert.Equal(t, "bravo", b)
	assert.Equal(t, "case-7", c)
}

func TestParseCaseKey_MalformedErrors(t *testing.T) {
	_, _, _, err := durability.ParseCaseKey("missing-separators")
	assert.Error(t, err)
}

func TestResume_NotFoundListsAvailableRuns(t *testing.T) {
	store := newFakeCheckpointStore()
	store.byRunID["run-old"] = durability.NewCheckpoint("run-old", durability.Selections{}, 1)

	_, err := durability.Resume(context.Background(), store, "run-missing", durability.Selections{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run-old")
}

func TestResume_AlreadyComplete(t *testing.T) {
	store := newFakeCheckpointStore()
	sel := durability.Selections{Providers: []string{"a"}, Benchmarks: []string{"b"}}
	cp := durability.NewCheckpoint("run-1", sel, 1)
	cp = cp.RecordCompletion("a|b|case-1", "pass")
	require.NoError(t, store.Save(context.Background(), cp))

	_, err := durability.Resume(context.Background(), store, "run-1", sel)
	require.Error(t, err)
	var already *durability.ErrRunAlreadyComplete
	assert.ErrorAs(t, err, &already)
}

func TestResume_SelectionMismatch(t *testing.T) {
	store := newFakeCheckpointStore()
	sel := durability.Selections{Providers: []string{"a"}, Benchmarks: []string{"b"}}
	cp := durability.NewCheckpoint("run-1", sel, 2)
	require.NoError(t, store.Save(context.Background(), cp))

	_, err := durability.Resume(context.Background(), store, "run-1", durability.Selections{Providers: []string{"c"}, Benchmarks: []string{"b"}})
	require.Error(t, err)
	var mismatch *durability.ErrSelectionMismatch
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, []string{"a"}, mismatch.Diff.MissingProviders)
}

func TestResume_SuccessReturnsLoadedCheckpoint(t *testing.T) {
	store := newFakeCheckpointStore()
	sel := durability.Selections{Providers: []string{"a"}, Benchmarks: []string{"b"}}
	cp := durability.NewCheckpoint("run-1", sel, 2)
	cp = cp.RecordCompletion("a|b|case-1", "pass")
	require.NoError(t, store.Save(context.Background(), cp))

	loaded, err := durability.Resume(context.Background(), store, "run-1", sel)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.CompletedCount)
}

func TestBuildSummary_GroupsAndAveragesByCombination(t *testing.T) {
	results := []durability.RunCaseResult{
		{ProviderName: "p1", BenchmarkName: "b1", Status: "pass", DurationMs: 100, Scores: map[string]float64{"f1": 1.0}},
		{ProviderName: "p1", BenchmarkName: "b1", Status: "fail", DurationMs: 50, Scores: map[string]float64{"f1": 0.0}},
		{ProviderName: "p2", BenchmarkName: "b1", Status: "error", DurationMs: 10},
	}
	summary := durability.BuildSummary("run-1", results)

	assert.Equal(t, 3, summary.Totals.Cases)
	assert.Equal(t, 1, summary.Totals.Passed)
	assert.Equal(t, 1, summary.Totals.Failed)
	assert.Equal(t, 1, summary.Totals.Errors)
	assert.Equal(t, int64(160), summary.TotalDuration)

	require.Len(t, summary.ByCombination, 2)
	assert.Equal(t, "p1", summary.ByCombination[0].Provider)
	assert.Equal(t, 0.5, summary.ByCombination[0].ScoreAverages["f1"])
	assert.Equal(t, "p2", summary.ByCombination[1].Provider)
}

func TestCaptureEnvironment_PopulatesRuntimeFields(t *testing.T) {
	env := durability.CaptureEnvironment("go", "1.25.6")
	assert.Equal(t, "go", env.RuntimeName)
	assert.Equal(t, "1.25.6", env.RuntimeVersion)
	assert.NotEmpty(t, env.OS)
	assert.NotEmpty(t, env.Arch)
}
