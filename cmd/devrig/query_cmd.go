package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"text/tabwriter"
	"time"

	"github.com/steveyackey/devrig/internal/orchestrator"
	"github.com/steveyackey/devrig/internal/state"
	"github.com/steveyackey/devrig/internal/telemetry"
)

// QueryCmd is a terminal surface over the same query API the dashboard
// serves, for users who'd rather not open a browser.
type QueryCmd struct {
	Traces  QueryTracesCmd  `cmd:"" help:"list recent trace summaries"`
	Logs    QueryLogsCmd    `cmd:"" help:"list recent log records"`
	Metrics QueryMetricsCmd `cmd:"" help:"list recent metric points"`
}

// dashboardBase finds the running project's dashboard address from its
// persisted state.
func dashboardBase(cctx *Context) (string, error) {
	o, err := orchestrator.FromConfig(cctx.ConfigPath)
	if err != nil {
		return "", err
	}
	ps, err := state.Load(o.StateDir())
	if err != nil {
		return "", err
	}
	if ps == nil || ps.Dashboard == nil {
		return "", fmt.Errorf("no running dashboard found; run `devrig up` first")
	}
	return fmt.Sprintf("http://localhost:%d", ps.Dashboard.Port), nil
}

func fetchJSON(base, path string, params url.Values, out any) error {
	u := base + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(u)
	if err != nil {
		return fmt.Errorf("querying %s: %w", u, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("querying %s: unexpected status %s", u, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type QueryTracesCmd struct {
	Service string `help:"filter by service name"`
	Status  string `help:"filter by status (error, ok)"`
	Search  string `help:"substring filter on the root operation name"`
	Limit   int    `default:"20" help:"maximum traces to print"`
}

func (c *QueryTracesCmd) Run(cctx *Context) error {
	base, err := dashboardBase(cctx)
	if err != nil {
		return err
	}
	params := url.Values{}
	if c.Service != "" {
		params.Set("service", c.Service)
	}
	if c.Status != "" {
		params.Set("status", c.Status)
	}
	if c.Search != "" {
		params.Set("search", c.Search)
	}
	params.Set("limit", fmt.Sprintf("%d", c.Limit))

	var traces []telemetry.TraceSummary
	if err := fetchJSON(base, "/api/traces", params, &traces); err != nil {
		return err
	}
	if len(traces) == 0 {
		fmt.Println("no traces found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TRACE\tROOT\tSERVICES\tDURATION\tSTATUS\tSTART")
	for _, t := range traces {
		status := "ok"
		if t.HasError {
			status = "error"
		}
		fmt.Fprintf(w, "%.16s\t%s\t%d\t%dms\t%s\t%s\n",
			t.TraceID, t.RootOperation, len(t.Services), t.DurationMs, status,
			t.StartTime.Local().Format("15:04:05.000"))
	}
	return w.Flush()
}

type QueryLogsCmd struct {
	Service  string `help:"filter by service name"`
	Severity string `help:"minimum severity (trace, debug, info, warn, error, fatal)"`
	Search   string `help:"case-insensitive substring filter on the body"`
	Source   string `help:"filter by log.source (otlp, stdout, stderr, docker, process)"`
	Limit    int    `default:"50" help:"maximum log records to print"`
}

func (c *QueryLogsCmd) Run(cctx *Context) error {
	base, err := dashboardBase(cctx)
	if err != nil {
		return err
	}
	params := url.Values{}
	if c.Service != "" {
		params.Set("service", c.Service)
	}
	if c.Severity != "" {
		params.Set("severity", c.Severity)
	}
	if c.Search != "" {
		params.Set("search", c.Search)
	}
	if c.Source != "" {
		params.Set("source", c.Source)
	}
	params.Set("limit", fmt.Sprintf("%d", c.Limit))

	var logs []telemetry.StoredLog
	if err := fetchJSON(base, "/api/logs", params, &logs); err != nil {
		return err
	}
	for i := len(logs) - 1; i >= 0; i-- {
		l := logs[i]
		fmt.Printf("%s %-5s [%s] %s\n",
			l.Timestamp.Local().Format("15:04:05.000"), l.Severity.String(), l.ServiceName, l.Body)
	}
	return nil
}

type QueryMetricsCmd struct {
	Name    string `help:"substring filter on the metric name"`
	Service string `help:"filter by service name"`
	Type    string `help:"filter by metric type (gauge, counter, histogram)"`
	Limit   int    `default:"50" help:"maximum metric points to print"`
}

func (c *QueryMetricsCmd) Run(cctx *Context) error {
	base, err := dashboardBase(cctx)
	if err != nil {
		return err
	}
	params := url.Values{}
	if c.Name != "" {
		params.Set("name", c.Name)
	}
	if c.Service != "" {
		params.Set("service", c.Service)
	}
	if c.Type != "" {
		params.Set("type", c.Type)
	}
	params.Set("limit", fmt.Sprintf("%d", c.Limit))

	var metrics []telemetry.StoredMetric
	if err := fetchJSON(base, "/api/metrics", params, &metrics); err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tSERVICE\tNAME\tTYPE\tVALUE")
	for _, m := range metrics {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%g\n",
			m.Timestamp.Local().Format("15:04:05"), m.ServiceName, m.MetricName, m.MetricType, m.Value)
	}
	return w.Flush()
}
