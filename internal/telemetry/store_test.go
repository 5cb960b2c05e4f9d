package telemetry

import (
	"testing"
	"time"
)

func TestInsertSpanEvictsOldestAtCapacity(t *testing.T) {
	store := NewStore(3, 10, 10, time.Hour)
	base := time.Now()

	for i, traceID := range []string{"t1", "t2", "t3", "t4"} {
		store.InsertSpan(StoredSpan{
			TraceID:     traceID,
			ServiceName: "svc",
			StartTime:   base.Add(time.Duration(i) * time.Second),
			EndTime:     base.Add(time.Duration(i) * time.Second),
		})
	}

	if got := store.SpanCount(); got != 3 {
		t.Fatalf("SpanCount() = %d, want 3", got)
	}
	if got := store.TraceCount(); got != 3 {
		t.Fatalf("TraceCount() = %d, want 3", got)
	}
	if _, ok := store.traceIndex["t1"]; ok {
		t.Errorf("trace_index still references evicted trace t1")
	}
	for _, id := range []string{"t2", "t3", "t4"} {
		if _, ok := store.traceIndex[id]; !ok {
			t.Errorf("trace_index missing retained trace %s", id)
		}
	}
}

func TestInsertSpanTracksErrorSpans(t *testing.T) {
	store := NewStore(10, 10, 10, time.Hour)
	ok := store.InsertSpan(StoredSpan{TraceID: "a", ServiceName: "svc", Status: SpanStatusOK})
	errored := store.InsertSpan(StoredSpan{TraceID: "b", ServiceName: "svc", Status: SpanStatusError})

	if _, present := store.errorSpans[ok.RecordID]; present {
		t.Errorf("error_spans incorrectly contains an OK span")
	}
	if _, present := store.errorSpans[errored.RecordID]; !present {
		t.Errorf("error_spans missing the errored span")
	}
}

func TestInsertSpanTracksServiceSpanIndex(t *testing.T) {
	store := NewStore(10, 10, 10, time.Hour)
	store.InsertSpan(StoredSpan{TraceID: "a", ServiceName: "api"})
	store.InsertSpan(StoredSpan{TraceID: "b", ServiceName: "api"})
	store.InsertSpan(StoredSpan{TraceID: "c", ServiceName: "worker"})

	if got := len(store.serviceSpanIndex["api"]); got != 2 {
		t.Errorf("service_span_index[api] has %d ids, want 2", got)
	}
	if got := len(store.serviceSpanIndex["worker"]); got != 1 {
		t.Errorf("service_span_index[worker] has %d ids, want 1", got)
	}
}

func TestEvictionCleansAllIndexes(t *testing.T) {
	store := NewStore(1, 10, 10, time.Hour)
	store.InsertSpan(StoredSpan{TraceID: "a", ServiceName: "svc", Status: SpanStatusError})
	store.InsertSpan(StoredSpan{TraceID: "b", ServiceName: "svc", Status: SpanStatusOK})

	if _, ok := store.traceIndex["a"]; ok {
		t.Errorf("trace_index still references evicted trace a")
	}
	if len(store.errorSpans) != 0 {
		t.Errorf("error_spans not cleaned on eviction: %v", store.errorSpans)
	}
	if ids := store.serviceSpanIndex["svc"]; len(ids) != 1 {
		t.Errorf("service_span_index[svc] = %v, want exactly the surviving span", ids)
	}
}

func TestInsertLogEvictsAndReindexes(t *testing.T) {
	store := NewStore(10, 2, 10, time.Hour)
	store.InsertLog(StoredLog{ServiceName: "api", Body: "one"})
	store.InsertLog(StoredLog{ServiceName: "api", Body: "two"})
	store.InsertLog(StoredLog{ServiceName: "api", Body: "three"})

	if got := store.LogCount(); got != 2 {
		t.Fatalf("LogCount() = %d, want 2", got)
	}
	if got := len(store.serviceLogIndex["api"]); got != 2 {
		t.Errorf("service_log_index[api] has %d ids, want 2", got)
	}
	if store.logs[0].Body != "two" {
		t.Errorf("oldest log survived eviction unexpectedly: %+v", store.logs)
	}
}

func TestSweepExpiredEvictsOnlyStaleRecords(t *testing.T) {
	store := NewStore(10, 10, 10, time.Minute)
	now := time.Now()

	store.InsertSpan(StoredSpan{TraceID: "old", ServiceName: "svc", StartTime: now.Add(-2 * time.Hour)})
	store.InsertSpan(StoredSpan{TraceID: "fresh", ServiceName: "svc", StartTime: now})

	store.SweepExpired(now)

	if got := store.SpanCount(); got != 1 {
		t.Fatalf("SpanCount() after sweep = %d, want 1", got)
	}
	if _, ok := store.traceIndex["old"]; ok {
		t.Errorf("trace_index still references swept trace")
	}
	if _, ok := store.traceIndex["fresh"]; !ok {
		t.Errorf("trace_index missing fresh trace after sweep")
	}
}

func TestServiceNamesIsSortedUnionAcrossBuffers(t *testing.T) {
	store := NewStore(10, 10, 10, time.Hour)
	store.InsertSpan(StoredSpan{TraceID: "a", ServiceName: "worker"})
	store.InsertLog(StoredLog{ServiceName: "api"})
	store.InsertMetric(StoredMetric{ServiceName: "api"})

	got := store.ServiceNames()
	want := []string{"api", "worker"}
	if len(got) != len(want) {
		t.Fatalf("ServiceNames() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ServiceNames() = %v, want %v", got, want)
		}
	}
}
