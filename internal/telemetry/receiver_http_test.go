package telemetry

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	comv1 "go.opentelemetry.io/proto/otlp/common/v1"
	resv1 "go.opentelemetry.io/proto/otlp/resource/v1"
	tracev1 "go.opentelemetry.io/proto/otlp/trace/v1"
	coltrace "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

func exportRequest(serviceName, operation string) *coltrace.ExportTraceServiceRequest {
	now := time.Now()
	return &coltrace.ExportTraceServiceRequest{
		ResourceSpans: []*tracev1.ResourceSpans{{
			Resource: &resv1.Resource{
				Attributes: []*comv1.KeyValue{{
					Key:   "service.name",
					Value: &comv1.AnyValue{Value: &comv1.AnyValue_StringValue{StringValue: serviceName}},
				}},
			},
			ScopeSpans: []*tracev1.ScopeSpans{{
				Spans: []*tracev1.Span{{
					TraceId:           []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10},
					SpanId:            []byte{0x11, 0x12, 0x13, 0x14, 0x15, 0x16, 0x17, 0x18},
					Name:              operation,
					Kind:              tracev1.Span_SPAN_KIND_SERVER,
					StartTimeUnixNano: uint64(now.UnixNano()),
					EndTimeUnixNano:   uint64(now.Add(25 * time.Millisecond).UnixNano()),
					Status:            &tracev1.Status{Code: tracev1.Status_STATUS_CODE_OK},
				}},
			}},
		}},
	}
}

// Ingesting one span over OTLP/HTTP and querying it back must yield a
// summary with the hex-encoded trace id and the root operation name.
func TestOTLPHTTPRoundTrip(t *testing.T) {
	collector := NewCollector(0, 0, 100, 100, 100, time.Hour)
	srv := httptest.NewServer(collector.HTTPRouter())
	defer srv.Close()

	encoded, err := proto.Marshal(exportRequest("api", "GET /orders"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(srv.URL+"/v1/traces", "application/x-protobuf", bytes.NewReader(encoded))
	if err != nil {
		t.Fatalf("POST /v1/traces: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	traces := collector.Store().QueryTraces(TraceQuery{})
	if len(traces) != 1 {
		t.Fatalf("expected 1 trace summary, got %d", len(traces))
	}
	got := traces[0]
	if got.TraceID != "0102030405060708090a0b0c0d0e0f10" {
		t.Errorf("trace id = %q, want the hex-encoded id", got.TraceID)
	}
	if got.RootOperation != "GET /orders" {
		t.Errorf("root operation = %q, want GET /orders", got.RootOperation)
	}
	if len(got.Services) != 1 || got.Services[0] != "api" {
		t.Errorf("services = %v, want [api]", got.Services)
	}
}

// The same request body as JSON must decode to the same stored record.
func TestOTLPHTTPAcceptsJSON(t *testing.T) {
	collector := NewCollector(0, 0, 100, 100, 100, time.Hour)
	srv := httptest.NewServer(collector.HTTPRouter())
	defer srv.Close()

	encoded, err := protojson.Marshal(exportRequest("worker", "consume job"))
	if err != nil {
		t.Fatalf("protojson marshal: %v", err)
	}
	resp, err := http.Post(srv.URL+"/v1/traces", "application/json", bytes.NewReader(encoded))
	if err != nil {
		t.Fatalf("POST /v1/traces: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if got := collector.Store().SpanCount(); got != 1 {
		t.Fatalf("SpanCount() = %d, want 1", got)
	}
}

func TestOTLPHTTPRejectsGarbage(t *testing.T) {
	collector := NewCollector(0, 0, 100, 100, 100, time.Hour)
	srv := httptest.NewServer(collector.HTTPRouter())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/traces", "application/json", bytes.NewReader([]byte("{nope")))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}
