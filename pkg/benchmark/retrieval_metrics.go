package benchmark

import (
	"math"
	"regexp"

	"github.com/sdamache/memorybench/pkg/provider"
)

// RetrievalMetrics holds the retrieval-quality scores computed against a
// case's declared relevant IDs (§4.B "Score retrieval").
type RetrievalMetrics struct {
	Precision float64
	Recall    float64
	F1        float64
	CoverageAtK float64
	NDCGAtK   float64
	MAP       float64
}

var sessionHeaderPattern = regexp.MustCompile(`=== Session: ([^=]+?) ===`)

// extractRetrievedIDs derives a document/session ID per retrieved item: the
// default extractor looks for a "=== Session: <id> ===" header in the
// matched context, falling back to the record's own ID (§4.B "Retrieval-
// metric ID extraction").
func extractRetrievedIDs(items []provider.RetrievalItem) []string {
	ids := make([]string, 0, len(items))
	for _, it := range items {
		if m := sessionHeaderPattern.FindStringSubmatch(it.MatchContext); m != nil {
			ids = append(ids, m[1])
			continue
		}
		if m := sessionHeaderPattern.FindStringSubmatch(it.Record.Context); m != nil {
			ids = append(ids, m[1])
			continue
		}
		ids = append(ids, it.Record.ID)
	}
	return ids
}

// dedupe preserves first-occurrence order.
func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// computeRetrievalMetrics implements precision/recall/F1/coverage@K/nDCG@K/
// MAP over deduplicated retrieved IDs against the relevant set (§4.B,
// glossary "Retrieval metrics"). k is the retrieval_limit used for the call.
func computeRetrievalMetrics(retrievedInOrder []string, relevant []string, k int) RetrievalMetrics {
	if len(relevant) == 0 {
		return RetrievalMetrics{}
	}
	relevantSet := make(map[string]bool, len(relevant))
	for _, r := range relevant {
		relevantSet[r] = true
	}

	dedup := dedupe(retrievedInOrder)

	relevantRetrieved := 0
	for _, id := range dedup {
		if relevantSet[id] {
			relevantRetrieved++
		}
	}

	var precision float64
	if len(retrievedInOrder) > 0 {
		precision = float64(relevantRetrieved) / float64(len(retrievedInOrder))
	}

	recall := float64(relevantRetrieved) / float64(len(relevant))

	var f1 float64
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}

	coverage := float64(relevantRetrieved) / float64(len(relevant))

	ndcg := computeNDCG(dedup, relevantSet, k)
	mapScore := computeMAP(dedup, relevantSet)

	return RetrievalMetrics{
		Precision:   precision,
		Recall:      recall,
		F1:          f1,
		CoverageAtK: coverage,
		NDCGAtK:     ndcg,
		MAP:         mapScore,
	}
}

func computeNDCG(retrieved []string, relevant map[string]bool, k int) float64 {
	if k <= 0 || k > len(retrieved) {
		k = len(retrieved)
	}
	var dcg float64
	counted := make(map[string]bool)
	for i := 0; i < k; i++ {
		id := retrieved[i]
		if relevant[id] && !counted[id] {
			counted[id] = true
			dcg += 1 / math.Log2(float64(i)+2)
		}
	}

	relCount := len(relevant)
	if relCount > k {
		relCount = k
	}
	var idcg float64
	for i := 0; i < relCount; i++ {
		idcg += 1 / math.Log2(float64(i)+2)
	}
	if idcg == 0 {
		return 0
	}
	return dcg / idcg
}

func computeMAP(retrieved []string, relevant map[string]bool) float64 {
	counted := make(map[string]bool)
	var sumPrecisions float64
	var hits int
	for i, id := range retrieved {
		if relevant[id] && !counted[id] {
			counted[id] = true
			hits++
			sumPrecisions += float64(hits) / float64(i+1)
		}
	}
	if len(relevant) == 0 {
		return 0
	}
	return sumPrecisions / float64(len(relevant))
}
