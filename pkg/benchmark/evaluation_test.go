package benchmark

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvaluator_ExactMatch(t *testing.T) {
	ev, err := newEvaluator(EvaluationConfig{Protocol: "exact-match"}, nil, nil)
	require.NoError(t, err)
	_, ok := ev.(*exactMatchEvaluator)
	assert.True(t, ok)
}

func TestNewEvaluator_RejectsUnimplementedDeletionCheck(t *testing.T) {
	_, err := newEvaluator(EvaluationConfig{Protocol: "deletion-check"}, nil, nil)
	assert.Error(t, err)
}

func TestNewEvaluator_RejectsUnknownProtocol(t *testing.T) {
	_, err := newEvaluator(EvaluationConfig{Protocol: "made-up"}, nil, nil)
	assert.Error(t, err)
}

func TestExactMatchEvaluator_ExactAndCaseInsensitive(t *testing.T) {
	ev := &exactMatchEvaluator{cfg: EvaluationConfig{}}
	out, err := ev.evaluate(context.Background(), EvalInput{Expected: "Paris", Generated: "paris"})
	require.NoError(t, err)
	assert.Equal(t, 1.0, out.Correctness)
}

func TestExactMatchEvaluator_ContainedSubstringScoresLower(t *testing.T) {
	ev := &exactMatchEvaluator{cfg: EvaluationConfig{}}
	out, err := ev.evaluate(context.Background(), EvalInput{Expected: "Paris", Generated: "The capital is Paris, France"})
	require.NoError(t, err)
	assert.Equal(t, 0.9, out.Correctness)
}

func TestExactMatchEvaluator_NoOverlapScoresZero(t *testing.T) {
	ev := &exactMatchEvaluator{cfg: EvaluationConfig{}}
	out, err := ev.evaluate(context.Background(), EvalInput{Expected: "Paris", Generated: "unrelated words here"})
	require.NoError(t, err)
	assert.Equal(t, 0.0, out.Correctness)
}

func TestExactMatchEvaluator_FaithfulnessFromRetrievedContext(t *testing.T) {
	ev := &exactMatchEvaluator{cfg: EvaluationConfig{}}
	out, err := ev.evaluate(context.Background(), EvalInput{
		Expected:         "Paris",
		Generated:        "Paris",
		RetrievedContext: []string{"unrelated", "the capital of France is Paris"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1.0, out.Faithfulness)
}

type fakeJudge struct {
	resp JudgeResponse
	err  error
}

func (f fakeJudge) Judge(context.Context, string) (JudgeResponse, error) { return f.resp, f.err }

func TestLLMJudgeEvaluator_ClampsAndPassesThroughReasoning(t *testing.T) {
	ev := &llmJudgeEvaluator{
		cfg:   EvaluationConfig{Protocol: "llm-as-judge"},
		judge: fakeJudge{resp: JudgeResponse{Correctness: 1.5, Faithfulness: -0.2, Reasoning: "looks right"}},
	}
	out, err := ev.evaluate(context.Background(), EvalInput{Question: "q"})
	require.NoError(t, err)
	assert.Equal(t, 1.0, out.Correctness)
	assert.Equal(t, 0.0, out.Faithfulness)
	assert.Equal(t, "looks right", out.Reasoning)
	assert.False(t, out.JudgeError)
}

func TestLLMJudgeEvaluator_JudgeErrorIsReportedNotFatal(t *testing.T) {
	ev := &llmJudgeEvaluator{
		cfg:   EvaluationConfig{Protocol: "llm-as-judge"},
		judge: fakeJudge{err: assertErr("judge unavailable")},
	}
	out, err := ev.evaluate(context.Background(), EvalInput{Question: "q"})
	require.NoError(t, err)
	assert.True(t, out.JudgeError)
}

func TestLLMJudgeEvaluator_RenderPromptIncludesTypeInstructions(t *testing.T) {
	ev := &llmJudgeEvaluator{
		cfg:          EvaluationConfig{Protocol: "llm-as-judge"},
		instructions: map[string]string{"temporal": "focus on dates"},
	}
	prompt := ev.renderPrompt(EvalInput{Question: "when?", QuestionType: "temporal"})
	assert.Contains(t, prompt, "focus on dates")
}

type assertErrType string

func (e assertErrType) Error() string { return string(e) }

func assertErr(msg string) error { return assertErrType(msg) }

func TestLoadTypeInstructions_EmptyPathIsNoop(t *testing.T) {
	m, err := loadTypeInstructions("")
	require.NoError(t, err)
	assert.Nil(t, m)
}
