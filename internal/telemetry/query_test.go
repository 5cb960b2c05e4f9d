package telemetry

import (
	"testing"
	"time"
)

func seedTraceStore(t *testing.T) (*Store, time.Time) {
	t.Helper()
	store := NewStore(100, 100, 100, time.Hour)
	base := time.Now().Add(-time.Minute)

	// Trace A: api -> postgres, root "GET /orders", one errored child.
	store.InsertSpan(StoredSpan{
		TraceID: "aaaa", SpanID: "a1", ServiceName: "api",
		OperationName: "GET /orders",
		StartTime:     base, EndTime: base.Add(80 * time.Millisecond), DurationMs: 80,
		Status: SpanStatusOK, Kind: SpanKindServer,
	})
	store.InsertSpan(StoredSpan{
		TraceID: "aaaa", SpanID: "a2", ParentSpanID: "a1", ServiceName: "postgres",
		OperationName: "SELECT orders",
		StartTime:     base.Add(10 * time.Millisecond), EndTime: base.Add(50 * time.Millisecond), DurationMs: 40,
		Status: SpanStatusError, Kind: SpanKindClient,
	})

	// Trace B: worker only, clean and quick.
	store.InsertSpan(StoredSpan{
		TraceID: "bbbb", SpanID: "b1", ServiceName: "worker",
		OperationName: "consume job",
		StartTime:     base.Add(5 * time.Second), EndTime: base.Add(5*time.Second + 3*time.Millisecond), DurationMs: 3,
		Status: SpanStatusOK, Kind: SpanKindConsumer,
	})

	return store, base
}

func TestQueryTracesGroupsAndSortsDescending(t *testing.T) {
	store, _ := seedTraceStore(t)
	traces := store.QueryTraces(TraceQuery{})
	if len(traces) != 2 {
		t.Fatalf("expected 2 trace summaries, got %d", len(traces))
	}
	if traces[0].TraceID != "bbbb" {
		t.Errorf("most recent trace should sort first, got %s", traces[0].TraceID)
	}
	a := traces[1]
	if a.RootOperation != "GET /orders" {
		t.Errorf("root operation = %q, want the parentless span's name", a.RootOperation)
	}
	if !a.HasError {
		t.Error("a trace with an errored span must set the error bit")
	}
	if a.DurationMs != 80 {
		t.Errorf("duration should be the max across spans, got %d", a.DurationMs)
	}
	if len(a.Services) != 2 {
		t.Errorf("services = %v, want api and postgres", a.Services)
	}
}

func TestQueryTracesFilters(t *testing.T) {
	store, _ := seedTraceStore(t)

	if got := store.QueryTraces(TraceQuery{Status: "error"}); len(got) != 1 || got[0].TraceID != "aaaa" {
		t.Errorf("status=error should match only trace aaaa, got %v", got)
	}
	if got := store.QueryTraces(TraceQuery{Status: "ok"}); len(got) != 1 || got[0].TraceID != "bbbb" {
		t.Errorf("status=ok should match only trace bbbb, got %v", got)
	}
	if got := store.QueryTraces(TraceQuery{Service: "worker"}); len(got) != 1 || got[0].TraceID != "bbbb" {
		t.Errorf("service filter wrong: %v", got)
	}
	if got := store.QueryTraces(TraceQuery{MinDurationMs: 50}); len(got) != 1 || got[0].TraceID != "aaaa" {
		t.Errorf("min-duration filter wrong: %v", got)
	}
	if got := store.QueryTraces(TraceQuery{Search: "orders"}); len(got) != 1 || got[0].TraceID != "aaaa" {
		t.Errorf("root-operation substring filter wrong: %v", got)
	}
	if got := store.QueryTraces(TraceQuery{Limit: 1}); len(got) != 1 {
		t.Errorf("limit not applied: %v", got)
	}
}

func TestGetTraceReturnsAllSpans(t *testing.T) {
	store, _ := seedTraceStore(t)
	detail, ok := store.GetTrace("aaaa")
	if !ok {
		t.Fatal("GetTrace(aaaa) not found")
	}
	if len(detail.Spans) != 2 {
		t.Errorf("expected 2 spans, got %d", len(detail.Spans))
	}
	if _, ok := store.GetTrace("ffff"); ok {
		t.Error("GetTrace of an unknown id should report not-found")
	}
}

func TestQueryLogsSeverityAndSourceFilters(t *testing.T) {
	store := NewStore(10, 100, 10, time.Hour)
	now := time.Now()
	attrs := func(source string) []Attribute {
		return []Attribute{{Key: "log.source", Value: source}}
	}
	store.InsertLog(StoredLog{Timestamp: now, ServiceName: "api", Severity: SeverityDebug, Body: "starting up", Attributes: attrs("stdout")})
	store.InsertLog(StoredLog{Timestamp: now, ServiceName: "api", Severity: SeverityError, Body: "DB connection refused", Attributes: attrs("stderr")})
	store.InsertLog(StoredLog{Timestamp: now, ServiceName: "postgres", Severity: SeverityInfo, Body: "ready to accept connections", Attributes: attrs("docker")})
	store.InsertLog(StoredLog{Timestamp: now, ServiceName: "api", Severity: SeverityWarn, Body: "slow query", Attributes: attrs("otlp"), TraceID: "aaaa"})

	if got := store.QueryLogs(LogQuery{Severity: "warn"}); len(got) != 2 {
		t.Errorf("severity>=warn should match 2 logs, got %d", len(got))
	}
	if got := store.QueryLogs(LogQuery{Source: "process"}); len(got) != 2 {
		t.Errorf("the process alias should match stdout and stderr, got %d", len(got))
	}
	if got := store.QueryLogs(LogQuery{Source: "docker"}); len(got) != 1 || got[0].ServiceName != "postgres" {
		t.Errorf("docker source filter wrong: %v", got)
	}
	if got := store.QueryLogs(LogQuery{Search: "db CONNECTION"}); len(got) != 1 {
		t.Errorf("body search should be case-insensitive, got %d", len(got))
	}
	if got := store.QueryLogs(LogQuery{TraceID: "aaaa"}); len(got) != 1 || got[0].Body != "slow query" {
		t.Errorf("trace filter wrong: %v", got)
	}
}

func TestQueryMetricsFilters(t *testing.T) {
	store := NewStore(10, 10, 100, time.Hour)
	now := time.Now()
	store.InsertMetric(StoredMetric{Timestamp: now, ServiceName: "api", MetricName: "http.requests", MetricType: MetricCounter, Value: 12})
	store.InsertMetric(StoredMetric{Timestamp: now, ServiceName: "api", MetricName: "heap.bytes", MetricType: MetricGauge, Value: 1024})

	if got := store.QueryMetrics(MetricQuery{Name: "requests"}); len(got) != 1 {
		t.Errorf("name substring filter wrong: %v", got)
	}
	if got := store.QueryMetrics(MetricQuery{MetricType: "gauge"}); len(got) != 1 || got[0].MetricName != "heap.bytes" {
		t.Errorf("type filter wrong: %v", got)
	}
}

func TestGetRelatedUsesServiceSetAndWindow(t *testing.T) {
	store, base := seedTraceStore(t)
	// Inside trace aaaa's window and service set.
	store.InsertLog(StoredLog{Timestamp: base.Add(20 * time.Millisecond), ServiceName: "api", Severity: SeverityInfo, Body: "handling request"})
	// Right service, but far outside the ±5s window.
	store.InsertLog(StoredLog{Timestamp: base.Add(time.Minute), ServiceName: "api", Severity: SeverityInfo, Body: "much later"})
	// Inside the window, wrong service.
	store.InsertLog(StoredLog{Timestamp: base, ServiceName: "worker", Severity: SeverityInfo, Body: "unrelated"})

	related := store.GetRelated("aaaa")
	if len(related.Logs) != 1 || related.Logs[0].Body != "handling request" {
		t.Errorf("related logs = %v, want only the in-window api log", related.Logs)
	}
}
