// Package dashboard serves devrig's local HTTP and WebSocket surface:
// read-only queries over the embedded telemetry store, the running
// project's service and cluster inventory, and the manifest editor's
// optimistic-concurrency config endpoint. It never mutates a running
// project beyond rewriting the manifest file itself; starting,
// stopping, and rebuilding resources stays the orchestrator's job.
package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/steveyackey/devrig/internal/state"
	"github.com/steveyackey/devrig/internal/telemetry"
)

// Dependencies are the running project's read surfaces the dashboard
// queries against. ConfigPath and StateDir are fixed at construction;
// Store and Events come from the project's telemetry.Collector.
type Dependencies struct {
	Store      *telemetry.Store
	Events     *telemetry.Broadcaster
	ConfigPath string
	StateDir   string
}

// Server is devrig's dashboard HTTP server: a chi router over
// Dependencies, bound to one TCP port.
type Server struct {
	port int
	deps Dependencies
	mux  chi.Router
}

// New builds a Server listening on port, wiring every route in
// Router.
func New(port int, deps Dependencies) *Server {
	s := &Server{port: port, deps: deps}
	s.mux = s.buildRouter()
	return s
}

// Router returns the dashboard's chi router, for tests that want to
// exercise routes with httptest without binding a real port.
func (s *Server) Router() chi.Router { return s.mux }

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "PUT", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/traces", s.handleListTraces)
		r.Get("/traces/{id}", s.handleGetTrace)
		r.Get("/traces/{id}/related", s.handleGetRelated)
		r.Get("/logs", s.handleListLogs)
		r.Get("/metrics", s.handleListMetrics)
		r.Get("/metrics/series", s.handleMetricSeries)
		r.Get("/config", s.handleGetConfig)
		r.Put("/config", s.handlePutConfig)
		r.Get("/services", s.handleGetServices)
		r.Get("/cluster", s.handleGetCluster)
	})
	r.Get("/ws", s.handleWebSocket)

	return r
}

// Start binds the dashboard's listener and serves until ctx is
// cancelled, mirroring the telemetry Collector's bind-then-goroutine
// shape.
func (s *Server) Start(ctx context.Context) error {
	httpSrv := &http.Server{
		Addr:    fmt.Sprintf("0.0.0.0:%d", s.port),
		Handler: s.mux,
	}
	lis, err := net.Listen("tcp", httpSrv.Addr)
	if err != nil {
		return fmt.Errorf("binding dashboard port %d: %w", s.port, err)
	}
	go func() {
		if err := httpSrv.Serve(lis); err != nil && err != http.ErrServerClosed {
			slog.Debug("dashboard server stopped", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()
	slog.Info("dashboard started", "port", s.port)
	return nil
}

func (s *Server) loadProjectState() *state.ProjectState {
	if s.deps.StateDir == "" {
		return nil
	}
	ps, err := state.Load(s.deps.StateDir)
	if err != nil || ps == nil {
		return nil
	}
	return ps
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = encodeJSON(w, body)
}
