package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"retrieval/internal/domain"
	"retrieval/internal/usecase"
)

var (
	askText string
	askJSON bool
)

var askCmd = &cobra.Command{
	Use:   "ask",
	Short: "Answer a question from the retrieved passages",
	Long: `Retrieve the top passages for a question and ask the configured chat
model to answer from them.

Examples:
  rag ask -q "How do I renew my registration?"
  rag ask -q "What documents do I need?" --json`,
	RunE: runAsk,
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Ask questions interactively",
	Long: `Start an interactive session. Each line is answered from the retrieved
passages, which are printed after the answer. Type 'exit' or 'quit' to leave.`,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(chatCmd)
	askCmd.Flags().StringVarP(&askText, "query", "q", "", "question (required)")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output as JSON")
	askCmd.MarkFlagRequired("query")
}

func newAnswerer() (*usecase.AnswerUseCase, error) {
	cfg := GetConfig()

	model, err := newLLM(cfg)
	if err != nil {
		return nil, err
	}

	p, err := newPipeline(cfg, newProgress("Embedding"))
	if err != nil {
		return nil, err
	}
	if _, err := p.ensure(false); err != nil {
		return nil, err
	}

	retriever, _ := p.retriever(cfg)
	return usecase.NewAnswerUseCase(retriever, model, cfg.Retrieve.TopK), nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	answerer, err := newAnswerer()
	if err != nil {
		return err
	}

	answer, err := answerer.Answer(strings.TrimSpace(askText))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if askJSON {
		output, _ := json.MarshalIndent(answer, "", "  ")
		fmt.Fprintln(out, string(output))
		return nil
	}
	printAnswer(out, answer)
	return nil
}

func runChat(cmd *cobra.Command, args []string) error {
	answerer, err := newAnswerer()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Ready. Ask a question (or 'exit' to quit).")

	scanner := bufio.NewScanner(cmd.InOrStdin())
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for {
		fmt.Fprint(out, "\n> ")
		if !scanner.Scan() {
			break
		}

		query := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(query) {
		case "exit", "quit":
			fmt.Fprintln(out, "Bye.")
			return nil
		case "":
			fmt.Fprintln(out, "Please enter a non-empty question.")
			continue
		}

		answer, err := answerer.Answer(query)
		if err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
			continue
		}
		if len(answer.Contexts) == 0 {
			fmt.Fprintln(out, "No passages found for this question.")
			continue
		}
		printAnswer(out, answer)
	}
	return scanner.Err()
}

func printAnswer(out io.Writer, answer *domain.Answer) {
	fmt.Fprintf(out, "\nAnswer:\n%s\n", answer.Text)
	if len(answer.Contexts) == 0 {
		return
	}

	fmt.Fprintln(out, "\nPassages used:")
	for i, ctx := range answer.Contexts {
		fmt.Fprintf(out, "\n--- Context %d ---\n", i+1)
		fmt.Fprintln(out, strings.ReplaceAll(preview(ctx, 400), "\n", " "))
	}
}
