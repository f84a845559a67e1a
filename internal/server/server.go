package server

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"retrieval/internal/domain"
	"retrieval/internal/usecase"
)

//go:embed templates/index.html
var indexPage []byte

// Answerer runs retrieval plus generation for one question.
type Answerer interface {
	Answer(query string) (*domain.Answer, error)
}

type Options struct {
	Addr    string
	Logger  *slog.Logger
	Metrics *Metrics
}

// Server exposes question answering over HTTP. Requests to /ask are refused
// with 503 until readiness reports Ready.
type Server struct {
	answerer Answerer
	ready    *usecase.Readiness
	metrics  *Metrics
	logger   *slog.Logger

	handler    http.Handler
	httpServer *http.Server
}

func New(answerer Answerer, ready *usecase.Readiness, opts Options) *Server {
	s := &Server{
		answerer: answerer,
		ready:    ready,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
	}
	if s.metrics == nil {
		s.metrics = NewMetrics()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /ask", s.handleAsk)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", s.metrics.Handler())

	// Recovery is outermost so it also covers the logging layer.
	var handler http.Handler = mux
	handler = s.loggingMiddleware(handler)
	handler = s.recoveryMiddleware(handler)
	s.handler = handler

	s.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Run serves until Shutdown is called.
func (s *Server) Run() error {
	s.logger.Info("HTTP server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexPage)
}

type askRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	if !s.ready.Ready() {
		writeError(w, http.StatusServiceUnavailable, "index not ready: "+s.ready.State().String())
		return
	}

	query, err := readQuery(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if query == "" {
		writeError(w, http.StatusBadRequest, "no question provided")
		return
	}

	answer, err := s.answerer.Answer(query)
	if err != nil {
		s.logger.Error("failed to answer", "query", query, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if answer.Contexts == nil {
		answer.Contexts = []string{}
	}
	writeJSON(w, http.StatusOK, answer)
}

// readQuery accepts a JSON body {"text": ...} or a form field "text".
func readQuery(w http.ResponseWriter, r *http.Request) (string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var req askRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
			return "", fmt.Errorf("invalid JSON body: %w", err)
		}
		return strings.TrimSpace(req.Text), nil
	}
	return strings.TrimSpace(r.FormValue("text")), nil
}

type healthResponse struct {
	State string    `json:"state"`
	Since time.Time `json:"since"`
	Error string    `json:"error,omitempty"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		State: s.ready.State().String(),
		Since: s.ready.Since(),
	}
	if err := s.ready.Err(); err != nil {
		resp.Error = err.Error()
	}

	status, ready := http.StatusOK, 1.0
	if !s.ready.Ready() {
		status, ready = http.StatusServiceUnavailable, 0
	}
	s.metrics.Ready.Set(ready)
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
