// Package telemetry is devrig's embedded OTLP collector: a bounded,
// in-memory store of spans, logs, and metrics ingested from supervised
// services and the process-log bridge, queried by the dashboard and
// pushed live over a websocket.
package telemetry

import (
	"time"
)

// SpanStatus mirrors the OTLP span status code.
type SpanStatus string

const (
	SpanStatusUnset SpanStatus = "unset"
	SpanStatusOK    SpanStatus = "ok"
	SpanStatusError SpanStatus = "error"
)

// SpanKind mirrors the OTLP span kind.
type SpanKind string

const (
	SpanKindInternal SpanKind = "internal"
	SpanKindServer   SpanKind = "server"
	SpanKindClient   SpanKind = "client"
	SpanKindProducer SpanKind = "producer"
	SpanKindConsumer SpanKind = "consumer"
)

// Attribute is a flattened OTLP key-value pair.
type Attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// StoredSpan is one span retained in the trace ring buffer.
type StoredSpan struct {
	RecordID      uint64      `json:"record_id"`
	TraceID       string      `json:"trace_id"`
	SpanID        string      `json:"span_id"`
	ParentSpanID  string      `json:"parent_span_id,omitempty"`
	ServiceName   string      `json:"service_name"`
	OperationName string      `json:"operation_name"`
	StartTime     time.Time   `json:"start_time"`
	EndTime       time.Time   `json:"end_time"`
	DurationMs    int64       `json:"duration_ms"`
	Status        SpanStatus  `json:"status"`
	StatusMessage string      `json:"status_message,omitempty"`
	Attributes    []Attribute `json:"attributes"`
	Kind          SpanKind    `json:"kind"`
}

// LogSeverity is the six-level OTLP-bucketed log severity, ordered
// Trace < Debug < Info < Warn < Error < Fatal.
type LogSeverity int

const (
	SeverityTrace LogSeverity = iota
	SeverityDebug
	SeverityInfo
	SeverityWarn
	SeverityError
	SeverityFatal
)

func (s LogSeverity) String() string {
	switch s {
	case SeverityTrace:
		return "trace"
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarn:
		return "warn"
	case SeverityError:
		return "error"
	case SeverityFatal:
		return "fatal"
	default:
		return "info"
	}
}

// SeverityFromNumber buckets an OTLP severity_number (1-24) into one
// of the six LogSeverity levels.
func SeverityFromNumber(n int32) LogSeverity {
	switch {
	case n >= 1 && n <= 4:
		return SeverityTrace
	case n >= 5 && n <= 8:
		return SeverityDebug
	case n >= 9 && n <= 12:
		return SeverityInfo
	case n >= 13 && n <= 16:
		return SeverityWarn
	case n >= 17 && n <= 20:
		return SeverityError
	case n >= 21 && n <= 24:
		return SeverityFatal
	default:
		return SeverityInfo
	}
}

// ParseSeverity parses a case-insensitive severity name, defaulting to
// Trace (the most permissive "at least this level" bound) for anything
// unrecognized, matching the query filter's minimum-severity semantics.
func ParseSeverity(s string) LogSeverity {
	switch toLower(s) {
	case "trace":
		return SeverityTrace
	case "debug":
		return SeverityDebug
	case "info":
		return SeverityInfo
	case "warn", "warning":
		return SeverityWarn
	case "error":
		return SeverityError
	case "fatal":
		return SeverityFatal
	default:
		return SeverityTrace
	}
}

func toLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 32
		}
	}
	return string(b)
}

// StoredLog is one log record retained in the log ring buffer.
type StoredLog struct {
	RecordID    uint64      `json:"record_id"`
	Timestamp   time.Time   `json:"timestamp"`
	ServiceName string      `json:"service_name"`
	Severity    LogSeverity `json:"severity"`
	Body        string      `json:"body"`
	TraceID     string      `json:"trace_id,omitempty"`
	SpanID      string      `json:"span_id,omitempty"`
	Attributes  []Attribute `json:"attributes"`
}

// AttrValue returns the first attribute value matching key, and
// whether it was found.
func (l StoredLog) AttrValue(key string) (string, bool) {
	for _, a := range l.Attributes {
		if a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}

// MetricType mirrors the three OTLP metric data-point shapes devrig
// retains a flattened point for.
type MetricType string

const (
	MetricGauge     MetricType = "gauge"
	MetricCounter   MetricType = "counter"
	MetricHistogram MetricType = "histogram"
)

// StoredMetric is one flattened data point retained in the metric ring
// buffer (a Histogram collapses to its running sum, one stored
// point per OTLP data point).
type StoredMetric struct {
	RecordID    uint64      `json:"record_id"`
	Timestamp   time.Time   `json:"timestamp"`
	ServiceName string      `json:"service_name"`
	MetricName  string      `json:"metric_name"`
	MetricType  MetricType  `json:"metric_type"`
	Value       float64     `json:"value"`
	Attributes  []Attribute `json:"attributes"`
	Unit        string      `json:"unit,omitempty"`
}

// EventKind tags the variant of one TelemetryEvent.
type EventKind string

const (
	EventTraceUpdate          EventKind = "trace_update"
	EventLogRecord            EventKind = "log_record"
	EventMetricUpdate         EventKind = "metric_update"
	EventServiceStatusChange  EventKind = "service_status_change"
)

// TelemetryEvent is one live-push notification fanned out to dashboard
// websocket subscribers after a write lock is released.
type TelemetryEvent struct {
	Type EventKind `json:"type"`

	// TraceUpdate
	TraceID    string `json:"trace_id,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
	HasError   bool   `json:"has_error,omitempty"`

	// LogRecord
	Severity string `json:"severity,omitempty"`
	Body     string `json:"body,omitempty"`

	// MetricUpdate
	Name  string  `json:"name,omitempty"`
	Value float64 `json:"value,omitempty"`

	// Shared by TraceUpdate/LogRecord/MetricUpdate/ServiceStatusChange
	Service string `json:"service,omitempty"`

	// ServiceStatusChange
	Status string `json:"status,omitempty"`
}
