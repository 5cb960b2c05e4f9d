package telemetry

import (
	"sort"
	"strings"
	"time"
)

// TraceQuery filters the trace-summary list the dashboard's
// /api/traces endpoint returns.
type TraceQuery struct {
	Service       string
	Status        string // "error" | "ok"
	MinDurationMs int64
	Search        string
	Since         time.Time
	Limit         int
}

// LogQuery filters the log list the dashboard's /api/logs endpoint
// returns.
type LogQuery struct {
	Service  string
	Severity string
	Search   string
	TraceID  string
	Since    time.Time
	Limit    int
	// Source filters by the log.source attribute: "process" (the
	// synthetic alias matching stdout or stderr), "stdout", "stderr",
	// "docker", "otlp", or empty for all.
	Source string
}

// MetricQuery filters the metric list the dashboard's /api/metrics
// endpoint returns.
type MetricQuery struct {
	Name       string
	MetricType string
	Service    string
	Since      time.Time
	Limit      int
}

// MetricSeriesQuery selects one (metric_name, service_name) series for
// a time-series chart.
type MetricSeriesQuery struct {
	Name    string
	Service string
	Since   time.Time
}

// MetricSeriesPoint is one (time, value) sample of a series.
type MetricSeriesPoint struct {
	T int64   `json:"t"` // unix milliseconds
	V float64 `json:"v"`
}

// MetricSeries is one metric's ordered points for one service.
type MetricSeries struct {
	MetricName  string              `json:"metric_name"`
	ServiceName string              `json:"service_name"`
	MetricType  MetricType          `json:"metric_type"`
	Unit        string              `json:"unit,omitempty"`
	Points      []MetricSeriesPoint `json:"points"`
}

// TraceSummary is one row of the trace list: one per distinct trace
// id, aggregated across its spans.
type TraceSummary struct {
	TraceID       string    `json:"trace_id"`
	Services      []string  `json:"services"`
	RootOperation string    `json:"root_operation"`
	DurationMs    int64     `json:"duration_ms"`
	SpanCount     int       `json:"span_count"`
	HasError      bool      `json:"has_error"`
	StartTime     time.Time `json:"start_time"`
}

// TraceDetail is every retained span belonging to one trace id.
type TraceDetail struct {
	TraceID string       `json:"trace_id"`
	Spans   []StoredSpan `json:"spans"`
}

// RelatedTelemetry is the logs and metrics devrig considers related to
// one trace: same service set, inside the trace's time window ± 5s.
type RelatedTelemetry struct {
	Logs    []StoredLog    `json:"logs"`
	Metrics []StoredMetric `json:"metrics"`
}

// SystemStatus is the dashboard's /api/status summary.
type SystemStatus struct {
	SpanCount   int      `json:"span_count"`
	LogCount    int      `json:"log_count"`
	MetricCount int      `json:"metric_count"`
	Services    []string `json:"services"`
	TraceCount  int      `json:"trace_count"`
}

// QueryTraces groups the store's spans by trace id into summaries,
// applies query's filters, sorts by start time descending, and
// truncates to query.Limit (default 100).
func (s *Store) QueryTraces(query TraceQuery) []TraceSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := query.Limit
	if limit <= 0 {
		limit = 100
	}

	byTrace := map[string][]StoredSpan{}
	order := []string{}
	for _, span := range s.spans {
		if _, ok := byTrace[span.TraceID]; !ok {
			order = append(order, span.TraceID)
		}
		byTrace[span.TraceID] = append(byTrace[span.TraceID], span)
	}

	summaries := make([]TraceSummary, 0, len(order))
	for _, traceID := range order {
		spans := byTrace[traceID]

		serviceSet := map[string]struct{}{}
		hasError := false
		var root *StoredSpan
		for i := range spans {
			span := &spans[i]
			serviceSet[span.ServiceName] = struct{}{}
			if span.Status == SpanStatusError {
				hasError = true
			}
			if span.ParentSpanID == "" && root == nil {
				root = span
			}
		}
		if root == nil {
			root = &spans[0]
			for i := range spans {
				if spans[i].StartTime.Before(root.StartTime) {
					root = &spans[i]
				}
			}
		}

		services := make([]string, 0, len(serviceSet))
		for name := range serviceSet {
			services = append(services, name)
		}
		sort.Strings(services)

		var durationMs int64
		for _, span := range spans {
			d := span.EndTime.Sub(root.StartTime).Milliseconds()
			if d < 0 {
				d = 0
			}
			if d > durationMs {
				durationMs = d
			}
		}

		summary := TraceSummary{
			TraceID:       traceID,
			Services:      services,
			RootOperation: root.OperationName,
			DurationMs:    durationMs,
			SpanCount:     len(spans),
			HasError:      hasError,
			StartTime:     root.StartTime,
		}

		if query.Service != "" && !containsString(summary.Services, query.Service) {
			continue
		}
		if query.Status == "error" && !summary.HasError {
			continue
		}
		if query.Status == "ok" && summary.HasError {
			continue
		}
		if query.MinDurationMs > 0 && summary.DurationMs < query.MinDurationMs {
			continue
		}
		if query.Search != "" && !strings.Contains(strings.ToLower(summary.RootOperation), strings.ToLower(query.Search)) {
			continue
		}
		if !query.Since.IsZero() && summary.StartTime.Before(query.Since) {
			continue
		}

		summaries = append(summaries, summary)
	}

	sort.Slice(summaries, func(i, j int) bool { return summaries[i].StartTime.After(summaries[j].StartTime) })
	if len(summaries) > limit {
		summaries = summaries[:limit]
	}
	return summaries
}

// GetTrace returns every retained span for traceID, or false if none
// are currently retained (already evicted or never seen).
func (s *Store) GetTrace(traceID string) (TraceDetail, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids, ok := s.traceIndex[traceID]
	if !ok || len(ids) == 0 {
		return TraceDetail{}, false
	}
	idSet := make(map[uint64]struct{}, len(ids))
	for _, id := range ids {
		idSet[id] = struct{}{}
	}
	var spans []StoredSpan
	for _, span := range s.spans {
		if _, ok := idSet[span.RecordID]; ok {
			spans = append(spans, span)
		}
	}
	if len(spans) == 0 {
		return TraceDetail{}, false
	}
	return TraceDetail{TraceID: traceID, Spans: spans}, true
}

// QueryLogs returns the most-recent-first logs matching query,
// truncated to query.Limit (default 200).
func (s *Store) QueryLogs(query LogQuery) []StoredLog {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := query.Limit
	if limit <= 0 {
		limit = 200
	}

	var minSeverity LogSeverity
	if query.Severity != "" {
		minSeverity = ParseSeverity(query.Severity)
	}

	var results []StoredLog
	for i := len(s.logs) - 1; i >= 0 && len(results) < limit; i-- {
		log := s.logs[i]
		if query.Service != "" && log.ServiceName != query.Service {
			continue
		}
		if query.Severity != "" && log.Severity < minSeverity {
			continue
		}
		if query.Search != "" && !strings.Contains(strings.ToLower(log.Body), strings.ToLower(query.Search)) {
			continue
		}
		if query.TraceID != "" && log.TraceID != query.TraceID {
			continue
		}
		if !query.Since.IsZero() && log.Timestamp.Before(query.Since) {
			continue
		}
		if query.Source != "" {
			source, _ := log.AttrValue("log.source")
			if query.Source == "process" {
				if source != "stdout" && source != "stderr" {
					continue
				}
			} else if source != query.Source {
				continue
			}
		}
		results = append(results, log)
	}
	return results
}

// QueryMetrics returns the most-recent-first metrics matching query,
// truncated to query.Limit (default 500).
func (s *Store) QueryMetrics(query MetricQuery) []StoredMetric {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := query.Limit
	if limit <= 0 {
		limit = 500
	}

	var results []StoredMetric
	for i := len(s.metrics) - 1; i >= 0 && len(results) < limit; i-- {
		m := s.metrics[i]
		if query.Name != "" && !strings.Contains(strings.ToLower(m.MetricName), strings.ToLower(query.Name)) {
			continue
		}
		if query.MetricType != "" && !strings.EqualFold(string(m.MetricType), query.MetricType) {
			continue
		}
		if query.Service != "" && m.ServiceName != query.Service {
			continue
		}
		if !query.Since.IsZero() && m.Timestamp.Before(query.Since) {
			continue
		}
		results = append(results, m)
	}
	return results
}

// GetStatus reports the store's current occupancy and known services.
func (s *Store) GetStatus() SystemStatus {
	return SystemStatus{
		SpanCount:   s.SpanCount(),
		LogCount:    s.LogCount(),
		MetricCount: s.MetricCount(),
		Services:    s.ServiceNames(),
		TraceCount:  s.TraceCount(),
	}
}

// QueryMetricSeries groups query.Name's (optionally query.Service
// filtered) data points by (metric_name, service_name) into ordered
// time series within query.Since (default: the last 5 minutes).
func (s *Store) QueryMetricSeries(query MetricSeriesQuery) []MetricSeries {
	s.mu.RLock()
	defer s.mu.RUnlock()

	since := query.Since
	if since.IsZero() {
		since = time.Now().Add(-5 * time.Minute)
	}

	type key struct{ metric, service string }
	groups := map[key][]StoredMetric{}
	var order []key
	for _, m := range s.metrics {
		if m.MetricName != query.Name {
			continue
		}
		if query.Service != "" && m.ServiceName != query.Service {
			continue
		}
		if m.Timestamp.Before(since) {
			continue
		}
		k := key{m.MetricName, m.ServiceName}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], m)
	}

	series := make([]MetricSeries, 0, len(order))
	for _, k := range order {
		metrics := groups[k]
		sort.Slice(metrics, func(i, j int) bool { return metrics[i].Timestamp.Before(metrics[j].Timestamp) })

		points := make([]MetricSeriesPoint, 0, len(metrics))
		for _, m := range metrics {
			points = append(points, MetricSeriesPoint{T: m.Timestamp.UnixMilli(), V: m.Value})
		}

		series = append(series, MetricSeries{
			MetricName:  k.metric,
			ServiceName: k.service,
			MetricType:  metrics[0].MetricType,
			Unit:        metrics[0].Unit,
			Points:      points,
		})
	}

	sort.Slice(series, func(i, j int) bool { return series[i].ServiceName < series[j].ServiceName })
	return series
}

// GetRelated returns the logs and metrics from traceID's service set,
// inside its span time window widened by a 5-second buffer on each
// side.
func (s *Store) GetRelated(traceID string) RelatedTelemetry {
	detail, ok := s.GetTrace(traceID)
	if !ok {
		return RelatedTelemetry{}
	}

	services := map[string]struct{}{}
	minTime := detail.Spans[0].StartTime
	maxTime := detail.Spans[0].EndTime
	for _, span := range detail.Spans {
		services[span.ServiceName] = struct{}{}
		if span.StartTime.Before(minTime) {
			minTime = span.StartTime
		}
		if span.EndTime.After(maxTime) {
			maxTime = span.EndTime
		}
	}

	const buffer = 5 * time.Second
	windowStart := minTime.Add(-buffer)
	windowEnd := maxTime.Add(buffer)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var logs []StoredLog
	for _, l := range s.logs {
		if _, ok := services[l.ServiceName]; !ok {
			continue
		}
		if l.Timestamp.Before(windowStart) || l.Timestamp.After(windowEnd) {
			continue
		}
		logs = append(logs, l)
	}

	var metrics []StoredMetric
	for _, m := range s.metrics {
		if _, ok := services[m.ServiceName]; !ok {
			continue
		}
		if m.Timestamp.Before(windowStart) || m.Timestamp.After(windowEnd) {
			continue
		}
		metrics = append(metrics, m)
	}

	return RelatedTelemetry{Logs: logs, Metrics: metrics}
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
