package benchmark

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sdamache/memorybench/pkg/provider"
)

func TestExtractRetrievedIDs_PrefersSessionHeaderOverRecordID(t *testing.T) {
	items := []provider.RetrievalItem{
		{Record: provider.MemoryRecord{ID: "mem-1"}, MatchContext: "=== Session: sess-7 ===\nhello"},
		{Record: provider.MemoryRecord{ID: "mem-2", Context: "=== Session: sess-9 ===\nworld"}},
		{Record: provider.MemoryRecord{ID: "mem-3"}, MatchContext: "no header here"},
	}
	ids := extractRetrievedIDs(items)
	assert.Equal(t, []string{"sess-7", "sess-9", "mem-3"}, ids)
}

func TestDedupe_PreservesFirstOccurrenceOrder(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, dedupe([]string{"a", "b", "a", "c", "b"}))
}

func TestComputeRetrievalMetrics_NoRelevantReturnsZeroValue(t *testing.T) {
	m := computeRetrievalMetrics([]string{"a"}, nil, 5)
	assert.Equal(t, RetrievalMetrics{}, m)
}

func TestComputeRetrievalMetrics_PerfectMatch(t *testing.T) {
	m := computeRetrievalMetrics([]string{"a", "b"}, []string{"a", "b"}, 2)
	assert.Equal(t, 1.0, m.Precision)
	assert.Equal(t, 1.0, m.Recall)
	assert.Equal(t, 1.0, m.F1)
	assert.Equal(t, 1.0, m.CoverageAtK)
	assert.Equal(t, 1.0, m.NDCGAtK)
	assert.Equal(t, 1.0, m.MAP)
}

func TestComputeRetrievalMetrics_PartialMatch(t *testing.T) {
	m := computeRetrievalMetrics([]string{"a", "x"}, []string{"a", "b"}, 2)
	assert.Equal(t, 0.5, m.Precision)
	assert.Equal(t, 0.5, m.Recall)
	assert.InDelta(t, 0.5, m.F1, 1e-9)
}

func TestComputeRetrievalMetrics_DeduplicatesRetrievedIDs(t *testing.T) {
	m := computeRetrievalMetrics([]string{"a", "a", "a"}, []string{"a"}, 3)
	assert.Equal(t, 1.0, m.Recall)
}

func TestComputeNDCG_OrderingMatters(t *testing.T) {
	relevant := map[string]bool{"a": true}
	high := computeNDCG([]string{"a", "b"}, relevant, 2)
	low := computeNDCG([]string{"b", "a"}, relevant, 2)
	assert.Greater(t, high, low)
}

func TestComputeMAP_RewardsEarlyHits(t *testing.T) {
	relevant := map[string]bool{"a": true, "b": true}
	early := computeMAP([]string{"a", "b", "x"}, relevant)
	late := computeMAP([]string{"x", "a", "b"}, relevant)
	assert.Greater(t, early, late)
}
