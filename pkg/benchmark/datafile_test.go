package benchmark

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDataFile_JSONArray(t *testing.T) {
	path := writeTempFile(t, "data.json", `[{"id": "1", "content": "a"}, {"id": "2", "content": "b"}]`)
	recs, err := loadDataFile(path)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "1", recs[0]["id"])
}

func TestLoadDataFile_JSONL(t *testing.T) {
	path := writeTempFile(t, "data.jsonl", "{\"id\": \"1\"}\n{\"id\": \"2\"}\n\n")
	recs, err := loadDataFile(path)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "2", recs[1]["id"])
}

func TestLoadDataFile_EmptyFileErrors(t *testing.T) {
	path := writeTempFile(t, "empty.json", "   ")
	_, err := loadDataFile(path)
	assert.Error(t, err)
}

func TestRecordID_FallsBackThroughIDThenQuestionIDThenIndex(t *testing.T) {
	assert.Equal(t, "abc", recordID(record{"id": "abc"}, 3))
	assert.Equal(t, "q1", recordID(record{"question_id": "q1"}, 3))
	assert.Equal(t, "case_3", recordID(record{}, 3))
}

func TestBuildCases_NoFlattenUsesWholeRecord(t *testing.T) {
	m := &Manifest{Query: QueryConfig{ExpectedAnswerField: "answer"}}
	recs := []record{{"id": "1", "answer": "42"}}
	cases, err := buildCases(m, recs)
	require.NoError(t, err)
	require.Len(t, cases, 1)
	assert.Equal(t, "1", cases[0].ID)
	assert.Equal(t, "42", cases[0].Expected)
}

func TestBuildCases_FlattenExpandsArrayField(t *testing.T) {
	m := &Manifest{
		Query:   QueryConfig{ExpectedAnswerField: "answer"},
		Flatten: &FlattenConfig{Field: "questions", PromoteFields: []string{"answer"}},
	}
	recs := []record{{
		"id": "parent",
		"questions": []any{
			map[string]any{"answer": "one"},
			map[string]any{"answer": "two"},
		},
	}}
	cases, err := buildCases(m, recs)
	require.NoError(t, err)
	require.Len(t, cases, 2)
	assert.Equal(t, "parent_q0", cases[0].ID)
	assert.Equal(t, "one", cases[0].Expected)
	assert.Equal(t, "parent_q1", cases[1].ID)
	assert.Equal(t, "two", cases[1].Expected)
	assert.Equal(t, "parent", cases[0].Metadata["parent_id"])
}

func TestBuildCases_FlattenRespectsMaxItems(t *testing.T) {
	m := &Manifest{
		Query:   QueryConfig{ExpectedAnswerField: "answer"},
		Flatten: &FlattenConfig{Field: "questions", MaxItems: 1},
	}
	recs := []record{{
		"id": "parent",
		"questions": []any{
			map[string]any{"answer": "one"},
			map[string]any{"answer": "two"},
		},
	}}
	cases, err := buildCases(m, recs)
	require.NoError(t, err)
	assert.Len(t, cases, 1)
}
