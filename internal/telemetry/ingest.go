package telemetry

import (
	logsv1 "go.opentelemetry.io/proto/otlp/logs/v1"
	metricsv1 "go.opentelemetry.io/proto/otlp/metrics/v1"
	tracev1 "go.opentelemetry.io/proto/otlp/trace/v1"
)

// ingestTraces stores every span in resourceSpans and fans out a
// TraceUpdate per span only after every insert has released the
// store's write lock, shared by both the gRPC and HTTP receivers.
func ingestTraces(store *Store, events *Broadcaster, resourceSpans []*tracev1.ResourceSpans) {
	var pending []TelemetryEvent
	for _, rs := range resourceSpans {
		serviceName := extractServiceName(rs.GetResource().GetAttributes())
		for _, ss := range rs.GetScopeSpans() {
			for _, span := range ss.GetSpans() {
				stored := store.InsertSpan(protoSpanToStored(span, serviceName))
				pending = append(pending, TelemetryEvent{
					Type:       EventTraceUpdate,
					TraceID:    stored.TraceID,
					Service:    stored.ServiceName,
					DurationMs: stored.DurationMs,
					HasError:   stored.Status == SpanStatusError,
				})
			}
		}
	}
	for _, event := range pending {
		events.Publish(event)
	}
}

// ingestMetrics stores every data point in resourceMetrics and fans
// out a MetricUpdate per point.
func ingestMetrics(store *Store, events *Broadcaster, resourceMetrics []*metricsv1.ResourceMetrics) {
	var pending []TelemetryEvent
	for _, rm := range resourceMetrics {
		serviceName := extractServiceName(rm.GetResource().GetAttributes())
		for _, sm := range rm.GetScopeMetrics() {
			for _, metric := range sm.GetMetrics() {
				for _, point := range protoMetricsToStored(metric, serviceName) {
					stored := store.InsertMetric(point)
					pending = append(pending, TelemetryEvent{
						Type:    EventMetricUpdate,
						Name:    stored.MetricName,
						Value:   stored.Value,
						Service: stored.ServiceName,
					})
				}
			}
		}
	}
	for _, event := range pending {
		events.Publish(event)
	}
}

// ingestLogs stores every log record in resourceLogs, tagging each
// with log.source=otlp, and fans out a LogRecord event per record.
func ingestLogs(store *Store, events *Broadcaster, resourceLogs []*logsv1.ResourceLogs) {
	var pending []TelemetryEvent
	for _, rl := range resourceLogs {
		serviceName := extractServiceName(rl.GetResource().GetAttributes())
		for _, sl := range rl.GetScopeLogs() {
			for _, logRecord := range sl.GetLogRecords() {
				converted := protoLogToStored(logRecord, serviceName)
				converted.Attributes = append(converted.Attributes, Attribute{Key: "log.source", Value: "otlp"})
				stored := store.InsertLog(converted)
				pending = append(pending, TelemetryEvent{
					Type:     EventLogRecord,
					TraceID:  stored.TraceID,
					Severity: stored.Severity.String(),
					Body:     stored.Body,
					Service:  stored.ServiceName,
				})
			}
		}
	}
	for _, event := range pending {
		events.Publish(event)
	}
}
