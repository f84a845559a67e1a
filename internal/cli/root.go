package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"retrieval/config"
)

var (
	cfgFile string
	cfg     *config.Config
	rootDir string
	verbose bool
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "rag",
	Short: "Passage retrieval and question answering over a tabular corpus",
	Long: `RAG ingests a CSV corpus into composite documents, chunks and embeds them
into an exact nearest-neighbor index, and answers questions from the
retrieved passages.

Example usage:
  rag build                          # Build or reuse the index
  rag query -q "renew a license"     # Show the nearest passages
  rag ask -q "How do I renew?"       # Retrieve and generate an answer
  rag serve                          # Serve /ask, /healthz and /metrics
  rag partition --budget 1048576     # Write train/validation/test slices`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error

		if rootDir == "" {
			rootDir, err = os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get working directory: %w", err)
			}
		}

		// API keys may live in a dotenv file next to the config.
		if err := godotenv.Load(filepath.Join(rootDir, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load .env: %w", err)
		}

		if cfgFile != "" {
			cfg, err = config.Load(cfgFile)
		} else {
			cfg, err = config.LoadFromDir(rootDir)
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg.Resolve(rootDir)

		logger = newLogger(cfg.Logging.Level, verbose)
		slog.SetDefault(logger)
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./rag.yaml)")
	rootCmd.PersistentFlags().StringVarP(&rootDir, "dir", "d", "", "root directory (default is current directory)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

func newLogger(level string, verbose bool) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	if verbose {
		lvl = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func GetConfig() *config.Config {
	return cfg
}

func GetRootDir() string {
	return rootDir
}
