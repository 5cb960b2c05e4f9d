package telemetry

import (
	"encoding/hex"
	"fmt"
	"time"

	commonv1 "go.opentelemetry.io/proto/otlp/common/v1"
	logsv1 "go.opentelemetry.io/proto/otlp/logs/v1"
	metricsv1 "go.opentelemetry.io/proto/otlp/metrics/v1"
	tracev1 "go.opentelemetry.io/proto/otlp/trace/v1"
)

const maxConvertedAttributes = 20

// extractServiceName returns the resource's "service.name" attribute,
// or "unknown" if absent.
func extractServiceName(attrs []*commonv1.KeyValue) string {
	for _, kv := range attrs {
		if kv.GetKey() == "service.name" {
			if s := kv.GetValue().GetStringValue(); s != "" {
				return s
			}
			return "unknown"
		}
	}
	return "unknown"
}

// convertAttributes flattens up to max OTLP attributes into simple
// string key-value pairs.
func convertAttributes(attrs []*commonv1.KeyValue, max int) []Attribute {
	if len(attrs) > max {
		attrs = attrs[:max]
	}
	out := make([]Attribute, 0, len(attrs))
	for _, kv := range attrs {
		out = append(out, Attribute{Key: kv.GetKey(), Value: anyValueToString(kv.GetValue())})
	}
	return out
}

func anyValueToString(v *commonv1.AnyValue) string {
	switch val := v.GetValue().(type) {
	case *commonv1.AnyValue_StringValue:
		return val.StringValue
	case *commonv1.AnyValue_IntValue:
		return fmt.Sprintf("%d", val.IntValue)
	case *commonv1.AnyValue_DoubleValue:
		return fmt.Sprintf("%v", val.DoubleValue)
	case *commonv1.AnyValue_BoolValue:
		return fmt.Sprintf("%v", val.BoolValue)
	case nil:
		return ""
	default:
		return "<complex>"
	}
}

func nanosToTime(nanos uint64) time.Time {
	if nanos == 0 {
		return time.Now().UTC()
	}
	return time.Unix(0, int64(nanos)).UTC()
}

// protoSpanToStored converts one OTLP span into a StoredSpan with
// RecordID left zero (assigned by Store.InsertSpan).
func protoSpanToStored(span *tracev1.Span, serviceName string) StoredSpan {
	traceID := hex.EncodeToString(span.GetTraceId())
	spanID := hex.EncodeToString(span.GetSpanId())
	var parentSpanID string
	if len(span.GetParentSpanId()) > 0 {
		parentSpanID = hex.EncodeToString(span.GetParentSpanId())
	}

	start := nanosToTime(span.GetStartTimeUnixNano())
	end := nanosToTime(span.GetEndTimeUnixNano())
	durationMs := int64(0)
	if span.GetEndTimeUnixNano() > span.GetStartTimeUnixNano() {
		durationMs = int64((span.GetEndTimeUnixNano() - span.GetStartTimeUnixNano()) / 1_000_000)
	}

	status := SpanStatusUnset
	var statusMessage string
	if s := span.GetStatus(); s != nil {
		switch s.GetCode() {
		case tracev1.Status_STATUS_CODE_OK:
			status = SpanStatusOK
		case tracev1.Status_STATUS_CODE_ERROR:
			status = SpanStatusError
		default:
			status = SpanStatusUnset
		}
		statusMessage = s.GetMessage()
	}

	kind := SpanKindInternal
	switch span.GetKind() {
	case tracev1.Span_SPAN_KIND_SERVER:
		kind = SpanKindServer
	case tracev1.Span_SPAN_KIND_CLIENT:
		kind = SpanKindClient
	case tracev1.Span_SPAN_KIND_PRODUCER:
		kind = SpanKindProducer
	case tracev1.Span_SPAN_KIND_CONSUMER:
		kind = SpanKindConsumer
	}

	return StoredSpan{
		TraceID:       traceID,
		SpanID:        spanID,
		ParentSpanID:  parentSpanID,
		ServiceName:   serviceName,
		OperationName: span.GetName(),
		StartTime:     start,
		EndTime:       end,
		DurationMs:    durationMs,
		Status:        status,
		StatusMessage: statusMessage,
		Attributes:    convertAttributes(span.GetAttributes(), maxConvertedAttributes),
		Kind:          kind,
	}
}

// protoLogToStored converts one OTLP log record into a StoredLog with
// RecordID left zero.
func protoLogToStored(log *logsv1.LogRecord, serviceName string) StoredLog {
	var timestamp time.Time
	switch {
	case log.GetTimeUnixNano() > 0:
		timestamp = nanosToTime(log.GetTimeUnixNano())
	case log.GetObservedTimeUnixNano() > 0:
		timestamp = nanosToTime(log.GetObservedTimeUnixNano())
	default:
		timestamp = time.Now().UTC()
	}

	severity := SeverityFromNumber(int32(log.GetSeverityNumber()))

	body := anyValueToString(log.GetBody())

	var traceID, spanID string
	if len(log.GetTraceId()) > 0 {
		traceID = hex.EncodeToString(log.GetTraceId())
	}
	if len(log.GetSpanId()) > 0 {
		spanID = hex.EncodeToString(log.GetSpanId())
	}

	return StoredLog{
		Timestamp:   timestamp,
		ServiceName: serviceName,
		Severity:    severity,
		Body:        body,
		TraceID:     traceID,
		SpanID:      spanID,
		Attributes:  convertAttributes(log.GetAttributes(), maxConvertedAttributes),
	}
}

// protoMetricsToStored flattens one OTLP metric's data points
// (Gauge/Sum/Histogram) into StoredMetric entries, one per point.
func protoMetricsToStored(metric *metricsv1.Metric, serviceName string) []StoredMetric {
	name := metric.GetName()
	unit := metric.GetUnit()

	var results []StoredMetric
	appendPoints := func(points []*metricsv1.NumberDataPoint, metricType MetricType) {
		for _, dp := range points {
			results = append(results, StoredMetric{
				Timestamp:   nanosToTime(dp.GetTimeUnixNano()),
				ServiceName: serviceName,
				MetricName:  name,
				MetricType:  metricType,
				Value:       numberDataPointValue(dp),
				Attributes:  convertAttributes(dp.GetAttributes(), maxConvertedAttributes),
				Unit:        unit,
			})
		}
	}

	switch {
	case metric.GetGauge() != nil:
		appendPoints(metric.GetGauge().GetDataPoints(), MetricGauge)
	case metric.GetSum() != nil:
		appendPoints(metric.GetSum().GetDataPoints(), MetricCounter)
	case metric.GetHistogram() != nil:
		for _, dp := range metric.GetHistogram().GetDataPoints() {
			results = append(results, StoredMetric{
				Timestamp:   nanosToTime(dp.GetTimeUnixNano()),
				ServiceName: serviceName,
				MetricName:  name,
				MetricType:  MetricHistogram,
				Value:       dp.GetSum(),
				Attributes:  convertAttributes(dp.GetAttributes(), maxConvertedAttributes),
				Unit:        unit,
			})
		}
	}

	return results
}

func numberDataPointValue(dp *metricsv1.NumberDataPoint) float64 {
	switch v := dp.GetValue().(type) {
	case *metricsv1.NumberDataPoint_AsDouble:
		return v.AsDouble
	case *metricsv1.NumberDataPoint_AsInt:
		return float64(v.AsInt)
	default:
		return 0
	}
}
