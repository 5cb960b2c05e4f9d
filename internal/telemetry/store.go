package telemetry

import (
	"sort"
	"sync"
	"time"
)

// Store is the bounded, indexed, in-memory ring-buffer store behind
// devrig's telemetry collector. All mutation happens under one
// reader-writer lock; the caller (the OTLP receivers and the
// process-log bridge) is responsible for emitting live events only
// after releasing the write lock so a slow subscriber never blocks ingest.
type Store struct {
	mu sync.RWMutex

	spans   []StoredSpan
	logs    []StoredLog
	metrics []StoredMetric
	nextID  uint64

	traceIndex         map[string][]uint64
	serviceSpanIndex   map[string][]uint64
	errorSpans         map[uint64]struct{}
	serviceLogIndex    map[string][]uint64
	serviceMetricIndex map[string][]uint64

	maxSpans   int
	maxLogs    int
	maxMetrics int
	retention  time.Duration
}

// NewStore builds an empty Store bounded by maxSpans/maxLogs/maxMetrics
// entries per buffer, retaining records for retention before the
// sweeper evicts them on age alone.
func NewStore(maxSpans, maxLogs, maxMetrics int, retention time.Duration) *Store {
	return &Store{
		nextID:             1,
		traceIndex:         map[string][]uint64{},
		serviceSpanIndex:   map[string][]uint64{},
		errorSpans:         map[uint64]struct{}{},
		serviceLogIndex:    map[string][]uint64{},
		serviceMetricIndex: map[string][]uint64{},
		maxSpans:           maxSpans,
		maxLogs:            maxLogs,
		maxMetrics:         maxMetrics,
		retention:          retention,
	}
}

func (s *Store) nextRecordID() uint64 {
	id := s.nextID
	s.nextID++
	return id
}

func removeID(ids []uint64, id uint64) []uint64 {
	out := ids[:0]
	for _, existing := range ids {
		if existing != id {
			out = append(out, existing)
		}
	}
	return out
}

// InsertSpan assigns span a record id, evicts the oldest span if the
// buffer is at capacity (cleaning its index entries in the same
// critical section per the eviction invariant), indexes the new span,
// and returns it with its assigned id.
func (s *Store) InsertSpan(span StoredSpan) StoredSpan {
	s.mu.Lock()
	defer s.mu.Unlock()

	span.RecordID = s.nextRecordID()

	if len(s.spans) >= s.maxSpans {
		evicted := s.spans[0]
		s.spans = s.spans[1:]
		s.removeSpanFromIndexes(evicted)
	}

	s.traceIndex[span.TraceID] = append(s.traceIndex[span.TraceID], span.RecordID)
	s.serviceSpanIndex[span.ServiceName] = append(s.serviceSpanIndex[span.ServiceName], span.RecordID)
	if span.Status == SpanStatusError {
		s.errorSpans[span.RecordID] = struct{}{}
	}

	s.spans = append(s.spans, span)
	return span
}

func (s *Store) removeSpanFromIndexes(span StoredSpan) {
	if ids, ok := s.traceIndex[span.TraceID]; ok {
		ids = removeID(ids, span.RecordID)
		if len(ids) == 0 {
			delete(s.traceIndex, span.TraceID)
		} else {
			s.traceIndex[span.TraceID] = ids
		}
	}
	if ids, ok := s.serviceSpanIndex[span.ServiceName]; ok {
		ids = removeID(ids, span.RecordID)
		if len(ids) == 0 {
			delete(s.serviceSpanIndex, span.ServiceName)
		} else {
			s.serviceSpanIndex[span.ServiceName] = ids
		}
	}
	delete(s.errorSpans, span.RecordID)
}

// InsertLog assigns log a record id, evicts+reindexes on overflow, and
// returns it with its assigned id.
func (s *Store) InsertLog(log StoredLog) StoredLog {
	s.mu.Lock()
	defer s.mu.Unlock()

	log.RecordID = s.nextRecordID()

	if len(s.logs) >= s.maxLogs {
		evicted := s.logs[0]
		s.logs = s.logs[1:]
		s.removeLogFromIndexes(evicted)
	}

	s.serviceLogIndex[log.ServiceName] = append(s.serviceLogIndex[log.ServiceName], log.RecordID)
	s.logs = append(s.logs, log)
	return log
}

func (s *Store) removeLogFromIndexes(log StoredLog) {
	if ids, ok := s.serviceLogIndex[log.ServiceName]; ok {
		ids = removeID(ids, log.RecordID)
		if len(ids) == 0 {
			delete(s.serviceLogIndex, log.ServiceName)
		} else {
			s.serviceLogIndex[log.ServiceName] = ids
		}
	}
}

// InsertMetric assigns metric a record id, evicts+reindexes on
// overflow, and returns it with its assigned id.
func (s *Store) InsertMetric(metric StoredMetric) StoredMetric {
	s.mu.Lock()
	defer s.mu.Unlock()

	metric.RecordID = s.nextRecordID()

	if len(s.metrics) >= s.maxMetrics {
		evicted := s.metrics[0]
		s.metrics = s.metrics[1:]
		s.removeMetricFromIndexes(evicted)
	}

	s.serviceMetricIndex[metric.ServiceName] = append(s.serviceMetricIndex[metric.ServiceName], metric.RecordID)
	s.metrics = append(s.metrics, metric)
	return metric
}

func (s *Store) removeMetricFromIndexes(metric StoredMetric) {
	if ids, ok := s.serviceMetricIndex[metric.ServiceName]; ok {
		ids = removeID(ids, metric.RecordID)
		if len(ids) == 0 {
			delete(s.serviceMetricIndex, metric.ServiceName)
		} else {
			s.serviceMetricIndex[metric.ServiceName] = ids
		}
	}
}

// SweepExpired evicts every record in every buffer whose timestamp is
// older than now-retention, front to back, cleaning indexes as it
// goes. Intended to be called on a 30-second tick under the same write
// lock as inserts.
func (s *Store) SweepExpired(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-s.retention)

	for len(s.spans) > 0 && s.spans[0].StartTime.Before(cutoff) {
		evicted := s.spans[0]
		s.spans = s.spans[1:]
		s.removeSpanFromIndexes(evicted)
	}
	for len(s.logs) > 0 && s.logs[0].Timestamp.Before(cutoff) {
		evicted := s.logs[0]
		s.logs = s.logs[1:]
		s.removeLogFromIndexes(evicted)
	}
	for len(s.metrics) > 0 && s.metrics[0].Timestamp.Before(cutoff) {
		evicted := s.metrics[0]
		s.metrics = s.metrics[1:]
		s.removeMetricFromIndexes(evicted)
	}
}

// SpanCount, LogCount, MetricCount report the current occupancy of
// each ring buffer.
func (s *Store) SpanCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.spans)
}

func (s *Store) LogCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.logs)
}

func (s *Store) MetricCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.metrics)
}

// TraceCount reports the number of distinct trace ids currently
// indexed.
func (s *Store) TraceCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.traceIndex)
}

// ServiceNames returns the sorted union of every service name with at
// least one span, log, or metric currently retained.
func (s *Store) ServiceNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := map[string]struct{}{}
	for name := range s.serviceSpanIndex {
		seen[name] = struct{}{}
	}
	for name := range s.serviceLogIndex {
		seen[name] = struct{}{}
	}
	for name := range s.serviceMetricIndex {
		seen[name] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
