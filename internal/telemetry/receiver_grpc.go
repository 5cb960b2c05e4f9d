package telemetry

import (
	"context"

	collogs "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	colmetrics "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	coltrace "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	"google.golang.org/grpc"
)

// traceReceiver implements the OTLP TraceService gRPC interface
// against one Collector's store and event broadcaster. It is a
// distinct type per service because each OTLP service interface
// defines its own "Export" method with a different request type;
// Go cannot dispatch three same-named methods off one receiver type.
type traceReceiver struct {
	coltrace.UnimplementedTraceServiceServer
	store  *Store
	events *Broadcaster
}

type metricsReceiver struct {
	colmetrics.UnimplementedMetricsServiceServer
	store  *Store
	events *Broadcaster
}

type logsReceiver struct {
	collogs.UnimplementedLogsServiceServer
	store  *Store
	events *Broadcaster
}

// RegisterGRPC registers c's receivers against srv, so a single
// grpc.Server can serve all three OTLP services.
func (c *Collector) RegisterGRPC(srv *grpc.Server) {
	coltrace.RegisterTraceServiceServer(srv, &traceReceiver{store: c.store, events: c.events})
	colmetrics.RegisterMetricsServiceServer(srv, &metricsReceiver{store: c.store, events: c.events})
	collogs.RegisterLogsServiceServer(srv, &logsReceiver{store: c.store, events: c.events})
}

func (r *traceReceiver) Export(ctx context.Context, req *coltrace.ExportTraceServiceRequest) (*coltrace.ExportTraceServiceResponse, error) {
	ingestTraces(r.store, r.events, req.GetResourceSpans())
	return &coltrace.ExportTraceServiceResponse{}, nil
}

func (r *metricsReceiver) Export(ctx context.Context, req *colmetrics.ExportMetricsServiceRequest) (*colmetrics.ExportMetricsServiceResponse, error) {
	ingestMetrics(r.store, r.events, req.GetResourceMetrics())
	return &colmetrics.ExportMetricsServiceResponse{}, nil
}

func (r *logsReceiver) Export(ctx context.Context, req *collogs.ExportLogsServiceRequest) (*collogs.ExportLogsServiceResponse, error) {
	ingestLogs(r.store, r.events, req.GetResourceLogs())
	return &collogs.ExportLogsServiceResponse{}, nil
}
