package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"retrieval/internal/server"
	"retrieval/internal/usecase"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve question answering over HTTP",
	Long: `Start the HTTP server. The index is loaded or built in the background;
POST /ask answers 503 until it is ready. GET /healthz reports readiness and
GET /metrics exposes Prometheus metrics.

Examples:
  rag serve
  rag serve --addr 127.0.0.1:9000`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	model, err := newLLM(cfg)
	if err != nil {
		return err
	}
	p, err := newPipeline(cfg, nil)
	if err != nil {
		return err
	}

	retriever, queryCache := p.retriever(cfg)
	answerer := usecase.NewAnswerUseCase(retriever, model, cfg.Retrieve.TopK)
	ready := usecase.NewReadiness()

	metrics := server.NewMetrics()
	metrics.WatchCache(queryCache.Stats)
	srv := server.New(answerer, ready, server.Options{Addr: addr, Logger: logger, Metrics: metrics})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		err := ready.Run(func() error {
			result, err := p.ensure(false)
			if err != nil {
				return err
			}
			retriever.Invalidate()
			metrics.IndexChunks.Set(float64(p.index.Len()))
			logger.Info("index ready", "chunks", result.Chunks, "rebuilt", result.Rebuilt, "location", p.artifacts.Location())
			return nil
		})
		if err != nil {
			logger.Error("index preparation failed", "error", err)
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
