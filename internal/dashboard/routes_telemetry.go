package dashboard

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/steveyackey/devrig/internal/telemetry"
)

func queryInt(r *http.Request, key string) int64 {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func querySince(r *http.Request) time.Time {
	v := r.URL.Query().Get("since")
	if v == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}
	}
	return t
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Store.GetStatus())
}

func (s *Server) handleListTraces(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	traces := s.deps.Store.QueryTraces(telemetry.TraceQuery{
		Service:       q.Get("service"),
		Status:        q.Get("status"),
		MinDurationMs: queryInt(r, "min_duration_ms"),
		Search:        q.Get("search"),
		Since:         querySince(r),
		Limit:         int(queryInt(r, "limit")),
	})
	writeJSON(w, http.StatusOK, traces)
}

func (s *Server) handleGetTrace(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	detail, ok := s.deps.Store.GetTrace(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "trace not found"})
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleGetRelated(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	writeJSON(w, http.StatusOK, s.deps.Store.GetRelated(id))
}

func (s *Server) handleListLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	logs := s.deps.Store.QueryLogs(telemetry.LogQuery{
		Service:  q.Get("service"),
		Severity: q.Get("severity"),
		Search:   q.Get("search"),
		TraceID:  q.Get("trace_id"),
		Since:    querySince(r),
		Limit:    int(queryInt(r, "limit")),
		Source:   q.Get("source"),
	})
	writeJSON(w, http.StatusOK, logs)
}

func (s *Server) handleListMetrics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	metrics := s.deps.Store.QueryMetrics(telemetry.MetricQuery{
		Name:       q.Get("name"),
		MetricType: q.Get("type"),
		Service:    q.Get("service"),
		Since:      querySince(r),
		Limit:      int(queryInt(r, "limit")),
	})
	writeJSON(w, http.StatusOK, metrics)
}

func (s *Server) handleMetricSeries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	series := s.deps.Store.QueryMetricSeries(telemetry.MetricSeriesQuery{
		Name:    q.Get("name"),
		Service: q.Get("service"),
		Since:   querySince(r),
	})
	writeJSON(w, http.StatusOK, series)
}
