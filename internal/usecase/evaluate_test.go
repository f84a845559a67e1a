package usecase

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"retrieval/internal/domain"
)

func TestExactMatch(t *testing.T) {
	assert.Equal(t, 1.0, ExactMatch("  Hello \n World", "hello world"))
	assert.Equal(t, 0.0, ExactMatch("hello", "hello world"))
	assert.Equal(t, 0.0, ExactMatch("", ""), "empty gold never matches")
}

func TestF1Score(t *testing.T) {
	assert.InDelta(t, 0.8, F1Score("the cat sat", "The cat"), 1e-9)
	assert.InDelta(t, 1.0, F1Score("a a b", "b a a"), 1e-9)
	assert.Equal(t, 0.0, F1Score("dog", "cat"))
	assert.Equal(t, 0.0, F1Score("", "cat"))
	assert.Equal(t, 0.0, F1Score("cat", "  "))
}

func TestParseQuestion(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "python repr takes last user turn",
			raw:  `[{'role': 'user', 'content': 'first'}, {'role': 'assistant', 'content': 'ok'}, {'role': 'user', 'content': "it's second"}]`,
			want: "it's second",
		},
		{
			name: "json list",
			raw:  `[{"role": "user", "content": "renew a permit?"}]`,
			want: "renew a permit?",
		},
		{
			name: "escapes",
			raw:  `[{'role': 'user', 'content': 'line\nnext \'quoted\' caf\xe9'}]`,
			want: "line\nnext 'quoted' café",
		},
		{
			name: "no user turn",
			raw:  `[{'role': 'assistant', 'content': 'hi'}]`,
			want: `[{'role': 'assistant', 'content': 'hi'}]`,
		},
		{
			name: "plain text",
			raw:  "How do I renew?",
			want: "How do I renew?",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseQuestion(tt.raw))
		})
	}
}

func TestParseAnswer(t *testing.T) {
	assert.Equal(t, "yes", ParseAnswer(`['yes', 'no']`))
	assert.Equal(t, "a", ParseAnswer(`["a"]`))
	assert.Equal(t, "42", ParseAnswer(`[42]`))
	assert.Equal(t, "[]", ParseAnswer(`[]`))
	assert.Equal(t, "not a list", ParseAnswer("not a list"))
}

func evalTable() domain.Table {
	return domain.Table{
		Header: []string{"id", "messages", "answers"},
		Rows: [][]string{
			{"1", `[{'role': 'user', 'content': 'How do I renew?'}]`, `['use the portal']`},
			{"2", "", `['dropped']`},
			{"3", `[{'role': 'user', 'content': 'Where is the office?'}]`, `['downtown']`},
			{"4", `[{'role': 'user', 'content': 'Third?'}]`, `['third']`},
		},
	}
}

func TestEvaluate(t *testing.T) {
	retriever := &stubRetriever{contexts: []string{"ctx one", "ctx two"}}
	answers := NewAnswerUseCase(retriever, &stubLLM{reply: "Use the portal"}, 3)
	report := filepath.Join(t.TempDir(), "reports", "eval.csv")

	result, err := NewEvaluator(retriever, answers, 3, nil).Evaluate(evalTable(), 2, report)
	require.NoError(t, err)

	require.Len(t, result.Samples, 2, "empty rows are dropped before the sample cap")
	assert.Equal(t, "How do I renew?", result.Samples[0].Question)
	assert.Equal(t, "Where is the office?", result.Samples[1].Question)
	assert.Equal(t, 1.0, result.Samples[0].EM)
	assert.Equal(t, 0.0, result.Samples[1].EM)
	assert.InDelta(t, 0.5, result.AvgEM, 1e-9)
	assert.InDelta(t, 0.5, result.AvgF1, 1e-9)

	records := readRows(t, report)
	require.Len(t, records, 3)
	assert.Equal(t, reportHeader, records[0])
	assert.Equal(t, []string{"How do I renew?", "use the portal", "Use the portal", "1", "1", "ctx one ||| ctx two"}, records[1])
}

func TestEvaluateRecordsSampleErrors(t *testing.T) {
	retriever := &stubRetriever{err: errors.New("boom")}
	answers := NewAnswerUseCase(retriever, &stubLLM{}, 3)
	report := filepath.Join(t.TempDir(), "eval.csv")

	result, err := NewEvaluator(retriever, answers, 3, nil).Evaluate(evalTable(), 0, report)
	require.NoError(t, err)

	require.Len(t, result.Samples, 3)
	for _, s := range result.Samples {
		assert.Equal(t, "ERROR: boom", s.Predict)
		assert.Empty(t, s.Contexts)
	}
	assert.Zero(t, result.AvgEM)
}

func TestEvaluateEmptyAndMissingColumns(t *testing.T) {
	e := NewEvaluator(&stubRetriever{}, NewAnswerUseCase(&stubRetriever{}, &stubLLM{}, 3), 3, nil)

	result, err := e.Evaluate(domain.Table{Header: []string{"messages", "answers"}}, 50, "")
	require.NoError(t, err)
	assert.Empty(t, result.Samples)
	assert.Zero(t, result.AvgF1)
	assert.Zero(t, result.AvgEM)

	_, err = e.Evaluate(domain.Table{Header: []string{"question"}}, 50, "")
	assert.Error(t, err)
}
