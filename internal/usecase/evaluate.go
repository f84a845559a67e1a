package usecase

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"retrieval/internal/domain"
	"retrieval/internal/port"
)

var reportHeader = []string{"question", "ground_truth_answer", "generated_answer", "f1", "em", "contexts"}

// Generator answers a question from retrieved contexts.
type Generator interface {
	Generate(query string, contexts []string) (string, error)
}

// Evaluator replays dataset questions through retrieval and generation and
// scores the answers against the gold ones.
type Evaluator struct {
	retriever port.Retriever
	generator Generator
	topK      int
	logger    *slog.Logger
}

func NewEvaluator(retriever port.Retriever, generator Generator, topK int, logger *slog.Logger) *Evaluator {
	if topK <= 0 {
		topK = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{retriever: retriever, generator: generator, topK: topK, logger: logger}
}

// Evaluate scores up to maxSamples rows that carry both messages and
// answers, writes a per-sample CSV report to reportPath and returns the
// averages. A failing sample is scored with an "ERROR: ..." prediction.
func (e *Evaluator) Evaluate(table domain.Table, maxSamples int, reportPath string) (*domain.EvalReport, error) {
	msgCol := slices.Index(table.Header, "messages")
	ansCol := slices.Index(table.Header, "answers")
	if msgCol < 0 || ansCol < 0 {
		return nil, fmt.Errorf("evaluation set needs messages and answers columns, got %v", table.Header)
	}

	report := &domain.EvalReport{ReportPath: reportPath}
	for _, row := range table.Rows {
		if maxSamples > 0 && len(report.Samples) >= maxSamples {
			break
		}
		rawMsg, rawAns := cell(row, msgCol), cell(row, ansCol)
		if strings.TrimSpace(rawMsg) == "" || strings.TrimSpace(rawAns) == "" {
			continue
		}

		sample := e.evaluateOne(ParseQuestion(rawMsg), ParseAnswer(rawAns))
		if len(report.Samples) < 3 {
			e.logger.Debug("evaluation sample",
				"question", sample.Question, "gold", sample.Gold, "predict", sample.Predict,
				"f1", sample.F1, "em", sample.EM)
		}
		report.Samples = append(report.Samples, sample)
		report.AvgF1 += sample.F1
		report.AvgEM += sample.EM
	}

	if n := len(report.Samples); n > 0 {
		report.AvgF1 /= float64(n)
		report.AvgEM /= float64(n)
	}

	if err := writeReport(reportPath, report.Samples); err != nil {
		return nil, fmt.Errorf("failed to write report: %w", err)
	}
	e.logger.Info("evaluation finished", "samples", len(report.Samples), "f1", report.AvgF1, "em", report.AvgEM)
	return report, nil
}

func (e *Evaluator) evaluateOne(question, gold string) domain.EvalSample {
	sample := domain.EvalSample{Question: question, Gold: gold}

	contexts, err := e.retriever.Search(question, e.topK)
	if err == nil {
		sample.Predict, err = e.generator.Generate(question, contexts)
	}
	if err != nil {
		e.logger.Warn("evaluation sample failed", "question", question, "error", err)
		sample.Predict = "ERROR: " + err.Error()
		contexts = nil
	}
	sample.Contexts = contexts

	sample.F1 = F1Score(sample.Predict, gold)
	sample.EM = ExactMatch(sample.Predict, gold)
	return sample
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

func writeReport(path string, samples []domain.EvalSample) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(reportHeader); err != nil {
		return err
	}
	for _, s := range samples {
		record := []string{
			s.Question,
			s.Gold,
			s.Predict,
			strconv.FormatFloat(s.F1, 'f', -1, 64),
			strconv.FormatFloat(s.EM, 'f', -1, 64),
			strings.Join(s.Contexts, " ||| "),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}

// normalizeAnswer lowercases and collapses whitespace.
func normalizeAnswer(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// ExactMatch is 1 when the normalized strings are equal; an empty gold
// answer never matches.
func ExactMatch(pred, gold string) float64 {
	if gold == "" {
		return 0
	}
	if normalizeAnswer(pred) == normalizeAnswer(gold) {
		return 1
	}
	return 0
}

// F1Score is the token-overlap F1 between the normalized strings.
func F1Score(pred, gold string) float64 {
	predTokens := strings.Fields(normalizeAnswer(pred))
	goldTokens := strings.Fields(normalizeAnswer(gold))
	if len(predTokens) == 0 || len(goldTokens) == 0 {
		return 0
	}

	counts := make(map[string]int, len(goldTokens))
	for _, t := range goldTokens {
		counts[t]++
	}
	common := 0
	for _, t := range predTokens {
		if counts[t] > 0 {
			common++
			counts[t]--
		}
	}
	if common == 0 {
		return 0
	}

	precision := float64(common) / float64(len(predTokens))
	recall := float64(common) / float64(len(goldTokens))
	return 2 * precision * recall / (precision + recall)
}

// ParseQuestion returns the content of the last user message of a message
// list, or raw when raw is not such a list.
func ParseQuestion(raw string) string {
	v, err := parseListLiteral(raw)
	if err != nil {
		return raw
	}
	list, ok := v.([]any)
	if !ok {
		return raw
	}
	question, found := "", false
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok || m["role"] != "user" {
			continue
		}
		question, found = stringify(m["content"]), true
	}
	if !found {
		return raw
	}
	return question
}

// ParseAnswer returns the first element of an answer list, or raw.
func ParseAnswer(raw string) string {
	v, err := parseListLiteral(raw)
	if err != nil {
		return raw
	}
	switch v := v.(type) {
	case []any:
		if len(v) > 0 {
			return stringify(v[0])
		}
	case string:
		return v
	}
	return raw
}

func stringify(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
