package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
)

const sweepInterval = 30 * time.Second

// Collector coordinates telemetry storage with the OTLP gRPC and HTTP
// receivers that feed it: a small struct owning its background
// goroutines and stopping them on a shared context.
type Collector struct {
	store    *Store
	events   *Broadcaster
	grpcPort int
	httpPort int
}

// NewCollector builds a Collector bounded by maxSpans/maxLogs/
// maxMetrics and retention, serving OTLP on grpcPort and httpPort.
func NewCollector(grpcPort, httpPort, maxSpans, maxLogs, maxMetrics int, retention time.Duration) *Collector {
	return &Collector{
		store:    NewStore(maxSpans, maxLogs, maxMetrics, retention),
		events:   NewBroadcaster(),
		grpcPort: grpcPort,
		httpPort: httpPort,
	}
}

// Store returns the collector's telemetry store, for the dashboard's
// query handlers and the process-log bridge's inserts.
func (c *Collector) Store() *Store { return c.store }

// Events returns the collector's live-event broadcaster, for the
// dashboard's websocket handler and the process-log bridge's inserts.
func (c *Collector) Events() *Broadcaster { return c.events }

// Start launches the OTLP gRPC server, the OTLP HTTP server, and the
// 30-second sweeper as goroutines, all stopping when ctx is cancelled.
// It returns once both listeners are bound, or an error if either
// fails to bind.
func (c *Collector) Start(ctx context.Context) error {
	grpcLis, err := net.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", c.grpcPort))
	if err != nil {
		return fmt.Errorf("binding OTLP gRPC port %d: %w", c.grpcPort, err)
	}
	grpcSrv := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	c.RegisterGRPC(grpcSrv)
	go func() {
		if err := grpcSrv.Serve(grpcLis); err != nil {
			slog.Debug("OTLP gRPC server stopped", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		grpcSrv.GracefulStop()
	}()
	slog.Debug("OTLP gRPC receiver started", "port", c.grpcPort)

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf("0.0.0.0:%d", c.httpPort),
		Handler: c.HTTPRouter(),
	}
	httpLis, err := net.Listen("tcp", httpSrv.Addr)
	if err != nil {
		grpcSrv.Stop()
		return fmt.Errorf("binding OTLP HTTP port %d: %w", c.httpPort, err)
	}
	go func() {
		if err := httpSrv.Serve(httpLis); err != nil && err != http.ErrServerClosed {
			slog.Debug("OTLP HTTP server stopped", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()
	slog.Debug("OTLP HTTP receiver started", "port", c.httpPort)

	go c.runSweeper(ctx)

	return nil
}

func (c *Collector) runSweeper(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.store.SweepExpired(time.Now())
		case <-ctx.Done():
			return
		}
	}
}
