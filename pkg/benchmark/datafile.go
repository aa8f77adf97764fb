package benchmark

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// record is a single raw JSON object from a data file.
type record map[string]any

// loadDataFile reads a data file that is either a JSON array of objects or
// newline-delimited JSON (§6 "Data file").
func loadDataFile(path string) ([]record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("benchmark: reading data file %s: %w", path, err)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("benchmark: data file %s is empty", path)
	}

	if trimmed[0] == '[' {
		var recs []record
		if err := json.Unmarshal(trimmed, &recs); err != nil {
			return nil, fmt.Errorf("benchmark: parsing JSON array data file %s: %w", path, err)
		}
		return recs, nil
	}

	var recs []record
	scanner := bufio.NewScanner(bytes.NewReader(trimmed))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var r record
		if err := json.Unmarshal([]byte(line), &r); err != nil {
			return nil, fmt.Errorf("benchmark: parsing JSONL data file %s: %w", path, err)
		}
		recs = append(recs, r)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("benchmark: scanning JSONL data file %s: %w", path, err)
	}
	return recs, nil
}

// recordID returns item.id, falling back to item.question_id, falling back
// to "case_{index}" (§6).
func recordID(r record, index int) string {
	if v, ok := r["id"]; ok {
		if s := stringify(v); s != "" {
			return s
		}
	}
	if v, ok := r["question_id"]; ok {
		if s := stringify(v); s != "" {
			return s
		}
	}
	return fmt.Sprintf("case_%d", index)
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return fmt.Sprintf("%v", t)
	default:
		return ""
	}
}

// buildCases turns raw data-file records into Case values, applying the
// manifest's optional flatten transform (§3 BenchmarkCase, §4.B "Case
// enumeration", §8 scenario S6).
func buildCases(m *Manifest, recs []record) ([]Case, error) {
	var cases []Case
	for i, r := range recs {
		parentID := recordID(r, i)
		if m.Flatten == nil {
			cases = append(cases, Case{
				ID:       parentID,
				Input:    map[string]any(r),
				Expected: r[m.Query.ExpectedAnswerField],
				Metadata: map[string]any{},
			})
			continue
		}

		items, ok := r[m.Flatten.Field].([]any)
		if !ok {
			continue
		}
		max := m.Flatten.MaxItems
		if max <= 0 || max > len(items) {
			max = len(items)
		}
		for idx := 0; idx < max; idx++ {
			child := map[string]any{}
			for _, field := range m.Flatten.PromoteFields {
				if nested, ok := items[idx].(map[string]any); ok {
					if v, ok := nested[field]; ok {
						child[field] = v
					}
				}
			}
			// Carry the parent record forward so ingestion strategies that
			// read session/content fields from the top-level record still
			// find them; promoted fields take precedence.
			for k, v := range r {
				if _, exists := child[k]; !exists && k != m.Flatten.Field {
					child[k] = v
				}
			}
			cases = append(cases, Case{
				ID:       fmt.Sprintf("%s_q%d", parentID, idx),
				Input:    child,
				Expected: child[m.Query.ExpectedAnswerField],
				Metadata: map[string]any{"parent_id": parentID, "flatten_index": idx},
			})
		}
	}
	return cases, nil
}
