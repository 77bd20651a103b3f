package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	assemblyservice "condominia/contexts/governance/assembly-service"
	_ "condominia/internal/platform/httpserver/docs"
	"condominia/internal/platform/metrics"

	httpSwagger "github.com/swaggo/http-swagger"
)

type Server struct {
	mux      *http.ServeMux
	handler  http.Handler
	http     *http.Server
	logger   *slog.Logger
	addr     string
	assembly assemblyservice.Module
	metrics  *metrics.Metrics
}

func New(
	assembly assemblyservice.Module,
	collectors *metrics.Metrics,
	logger *slog.Logger,
	addr string,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if addr == "" {
		addr = ":8080"
	}
	if collectors == nil {
		collectors = metrics.New()
	}

	s := &Server{
		mux:      http.NewServeMux(),
		logger:   logger,
		addr:     addr,
		assembly: assembly,
		metrics:  collectors,
	}
	s.registerRoutes()
	s.handler = s.instrument(s.mux)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) Start() error {
	s.logger.Info("http server starting",
		"event", "http_server_starting",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"addr", s.addr,
	)
	s.http = &http.Server{
		Addr:              s.addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	s.mux.Handle("/swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
	s.mux.Handle("GET /metrics", s.metrics.Handler())
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	s.mux.HandleFunc("POST /api/v1/assemblies", s.handleCreateAssembly)
	s.mux.HandleFunc("GET /api/v1/assemblies", s.handleListAssemblies)
	s.mux.HandleFunc("GET /api/v1/assemblies/{assembly_id}", s.handleGetAssembly)
	s.mux.HandleFunc("PATCH /api/v1/assemblies/{assembly_id}", s.handleUpdateAssembly)
	s.mux.HandleFunc("DELETE /api/v1/assemblies/{assembly_id}", s.handleDeleteAssembly)
	s.mux.HandleFunc("POST /api/v1/assemblies/{assembly_id}/begin", s.handleBeginAssembly)
	s.mux.HandleFunc("POST /api/v1/assemblies/{assembly_id}/complete", s.handleCompleteAssembly)
	s.mux.HandleFunc("POST /api/v1/assemblies/{assembly_id}/cancel", s.handleCancelAssembly)

	s.mux.HandleFunc("POST /api/v1/assemblies/{assembly_id}/attendance", s.handleCheckIn)
	s.mux.HandleFunc("POST /api/v1/assemblies/{assembly_id}/attendance/verify", s.handleVerifyAttendance)
	s.mux.HandleFunc("GET /api/v1/assemblies/{assembly_id}/attendance", s.handleListAttendance)
	s.mux.HandleFunc("GET /api/v1/assemblies/{assembly_id}/quorum", s.handleQuorum)

	s.mux.HandleFunc("POST /api/v1/assemblies/{assembly_id}/agenda/{numeral}/votes", s.handleCastVote)
	s.mux.HandleFunc("GET /api/v1/assemblies/{assembly_id}/agenda/{numeral}/tally", s.handleTally)
	s.mux.HandleFunc("GET /api/v1/assemblies/{assembly_id}/results", s.handleResults)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// instrument records every request against the matched route pattern, so
// path parameters never become metric labels.
func (s *Server) instrument(next *http.ServeMux) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		s.metrics.ObserveRequest(r.Method, route, recorder.status, time.Since(started))
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func decodeJSON(r *http.Request, target any) error {
	if r.Body == nil {
		return errors.New("request body is required")
	}
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

func headerValue(r *http.Request, name string) string {
	return strings.TrimSpace(r.Header.Get(name))
}
