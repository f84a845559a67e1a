package usecase

import (
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"retrieval/internal/domain"
	"retrieval/internal/port"
)

//go:embed templates/answer_prompt.txt
var answerPrompt string

var answerTemplate = template.Must(template.New("answer").Funcs(template.FuncMap{
	"join": strings.Join,
}).Parse(answerPrompt))

// AnswerUseCase retrieves contexts for a question and asks the LLM to
// answer from them.
type AnswerUseCase struct {
	retriever port.Retriever
	llm       port.LLM
	topK      int
}

func NewAnswerUseCase(retriever port.Retriever, llm port.LLM, topK int) *AnswerUseCase {
	if topK <= 0 {
		topK = 3
	}
	return &AnswerUseCase{retriever: retriever, llm: llm, topK: topK}
}

// Answer runs retrieval then generation for query.
func (u *AnswerUseCase) Answer(query string) (*domain.Answer, error) {
	contexts, err := u.retriever.Search(query, u.topK)
	if err != nil {
		return nil, fmt.Errorf("retrieval failed: %w", err)
	}

	text, err := u.Generate(query, contexts)
	if err != nil {
		return nil, err
	}
	return &domain.Answer{Query: query, Text: text, Contexts: contexts}, nil
}

// Generate answers query from the given contexts. An empty completion
// becomes domain.NoAnswer.
func (u *AnswerUseCase) Generate(query string, contexts []string) (string, error) {
	prompt, err := BuildPrompt(query, contexts)
	if err != nil {
		return "", err
	}

	out, err := u.llm.Generate(prompt)
	if err != nil {
		return "", fmt.Errorf("generation failed: %w", err)
	}
	if out = strings.TrimSpace(out); out == "" {
		return domain.NoAnswer, nil
	}
	return out, nil
}

func BuildPrompt(query string, contexts []string) (string, error) {
	var sb strings.Builder
	data := struct {
		Query    string
		Contexts []string
	}{Query: query, Contexts: contexts}

	if err := answerTemplate.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("failed to render prompt: %w", err)
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}
