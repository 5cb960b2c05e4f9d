package telemetry

import (
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	collogs "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	colmetrics "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	coltrace "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

// HTTPRouter returns the chi router serving OTLP/HTTP ingest for c's
// store: POST /v1/traces, /v1/metrics, /v1/logs, accepting both
// application/x-protobuf and application/json bodies.
func (c *Collector) HTTPRouter() chi.Router {
	r := chi.NewRouter()
	r.Post("/v1/traces", c.postTraces)
	r.Post("/v1/metrics", c.postMetrics)
	r.Post("/v1/logs", c.postLogs)
	return r
}

func isJSON(contentType string) bool {
	return strings.Contains(contentType, "json")
}

func (c *Collector) postTraces(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var req coltrace.ExportTraceServiceRequest
	if isJSON(r.Header.Get("Content-Type")) {
		err = protojson.Unmarshal(body, &req)
	} else {
		err = proto.Unmarshal(body, &req)
	}
	if err != nil {
		http.Error(w, "decode error: "+err.Error(), http.StatusBadRequest)
		return
	}

	ingestTraces(c.store, c.events, req.GetResourceSpans())
	writeOTLPResponse(w, &coltrace.ExportTraceServiceResponse{})
}

func (c *Collector) postMetrics(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var req colmetrics.ExportMetricsServiceRequest
	if isJSON(r.Header.Get("Content-Type")) {
		err = protojson.Unmarshal(body, &req)
	} else {
		err = proto.Unmarshal(body, &req)
	}
	if err != nil {
		http.Error(w, "decode error: "+err.Error(), http.StatusBadRequest)
		return
	}

	ingestMetrics(c.store, c.events, req.GetResourceMetrics())
	writeOTLPResponse(w, &colmetrics.ExportMetricsServiceResponse{})
}

func (c *Collector) postLogs(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var req collogs.ExportLogsServiceRequest
	if isJSON(r.Header.Get("Content-Type")) {
		err = protojson.Unmarshal(body, &req)
	} else {
		err = proto.Unmarshal(body, &req)
	}
	if err != nil {
		http.Error(w, "decode error: "+err.Error(), http.StatusBadRequest)
		return
	}

	ingestLogs(c.store, c.events, req.GetResourceLogs())
	writeOTLPResponse(w, &collogs.ExportLogsServiceResponse{})
}

func writeOTLPResponse(w http.ResponseWriter, msg proto.Message) {
	bytes, err := proto.Marshal(msg)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/x-protobuf")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(bytes)
}
