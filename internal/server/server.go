// Package server exposes ticket processing over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Fazeel-AIML/Support-Ticket-Resolution-Agent/internal/memory"
	"github.com/Fazeel-AIML/Support-Ticket-Resolution-Agent/internal/ticket"
	"github.com/Fazeel-AIML/Support-Ticket-Resolution-Agent/internal/version"
)

// maxTicketBodySize limits ticket request bodies.
const maxTicketBodySize = 1 << 20

// Processor resolves one ticket.
type Processor interface {
	ProcessTicket(ctx context.Context, input any) ticket.RunState
}

// Server serves the ticket API.
type Server struct {
	proc     Processor
	history  *memory.Store
	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

// New returns a Server. history and gatherer may be nil, which disables the
// history and metrics endpoints.
func New(proc Processor, history *memory.Store, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{proc: proc, history: history, gatherer: gatherer, logger: logger}
}

// Handler returns the HTTP routes:
//
//	POST /v1/tickets               process a ticket, respond with its RunState
//	GET  /v1/runs/{id}/history     interaction history of a run
//	GET  /healthz                  liveness
//	GET  /metrics                  Prometheus metrics
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/tickets", s.handleTicket)
	mux.HandleFunc("GET /v1/runs/{id}/history", s.handleHistory)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return s.logRequests(mux)
}

func (s *Server) handleTicket(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxTicketBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "read request body")
		return
	}
	if !json.Valid(body) {
		writeError(w, http.StatusBadRequest, "request body must be JSON")
		return
	}

	// A run always completes; a disconnecting client does not abort it.
	state := s.proc.ProcessTicket(context.WithoutCancel(r.Context()), json.RawMessage(body))
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, "history is not enabled")
		return
	}
	conv, ok := s.history.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": version.Current})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"elapsed", time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
