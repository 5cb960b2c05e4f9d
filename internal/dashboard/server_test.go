package dashboard

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/steveyackey/devrig/internal/state"
	"github.com/steveyackey/devrig/internal/telemetry"
)

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	dir := t.TempDir()
	configPath := filepath.Join(dir, "devrig.toml")
	if err := os.WriteFile(configPath, []byte("project = \"demo\"\n"), 0o644); err != nil {
		t.Fatalf("writing config fixture: %v", err)
	}

	store := telemetry.NewStore(100, 100, 100, time.Hour)
	srv := New(0, Dependencies{
		Store:      store,
		Events:     telemetry.NewBroadcaster(),
		ConfigPath: configPath,
		StateDir:   dir,
	})
	return srv, configPath
}

func TestHandleStatusReportsStoreCounts(t *testing.T) {
	srv, _ := newTestServer(t)
	srv.deps.Store.InsertSpan(telemetry.StoredSpan{TraceID: "t1", ServiceName: "api"})

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got telemetry.SystemStatus
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if got.SpanCount != 1 || got.TraceCount != 1 {
		t.Errorf("got %+v, want span_count=1 trace_count=1", got)
	}
}

func TestHandleGetTraceNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/traces/missing", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestHandleGetConfigReturnsContentAndHash(t *testing.T) {
	srv, configPath := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/config", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got ConfigResponse
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	raw, _ := os.ReadFile(configPath)
	if got.Content != string(raw) {
		t.Errorf("content = %q, want %q", got.Content, string(raw))
	}
	if got.Hash != computeConfigHash(string(raw)) {
		t.Errorf("hash mismatch")
	}
}

func TestHandlePutConfigRejectsStaleHash(t *testing.T) {
	srv, _ := newTestServer(t)

	body := `{"content":"project = \"demo\"\nnew = true\n","hash":"0000"}`
	req := httptest.NewRequest(http.MethodPut, "/api/config", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}

func TestHandlePutConfigAppliesMatchingHash(t *testing.T) {
	srv, configPath := newTestServer(t)
	raw, _ := os.ReadFile(configPath)
	hash := computeConfigHash(string(raw))

	newContent := "project = \"demo\"\nnew = true\n"
	body, _ := json.Marshal(configUpdateRequest{Content: newContent, Hash: hash})
	req := httptest.NewRequest(http.MethodPut, "/api/config", strings.NewReader(string(body)))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	written, _ := os.ReadFile(configPath)
	if string(written) != newContent {
		t.Errorf("config file = %q, want %q", string(written), newContent)
	}
}

func TestHandlePutConfigRejectsInvalidTOML(t *testing.T) {
	srv, configPath := newTestServer(t)
	raw, _ := os.ReadFile(configPath)
	hash := computeConfigHash(string(raw))

	body, _ := json.Marshal(configUpdateRequest{Content: "not [ valid toml", Hash: hash})
	req := httptest.NewRequest(http.MethodPut, "/api/config", strings.NewReader(string(body)))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if unchanged, _ := os.ReadFile(configPath); string(unchanged) != string(raw) {
		t.Errorf("config file was modified despite invalid TOML")
	}
}

func TestHandleGetServicesSortsByKindThenName(t *testing.T) {
	srv, _ := newTestServer(t)
	ps := &state.ProjectState{
		Slug: "demo",
		Services: map[string]state.ServiceState{
			"web":      {Kind: state.KindService, Port: 8080},
			"postgres": {Kind: state.KindInfra, Port: 5432},
			"api":      {Kind: state.KindService, Port: 8081},
		},
	}
	if err := state.Save(srv.deps.StateDir, ps); err != nil {
		t.Fatalf("saving state fixture: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/services", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	var got []ServiceInfo
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d services, want 3", len(got))
	}
	if got[0].Kind != "infra" || got[1].Name != "api" || got[2].Name != "web" {
		t.Errorf("unexpected ordering: %+v", got)
	}
}

func TestHandleGetClusterReturnsNullWithoutClusterState(t *testing.T) {
	srv, _ := newTestServer(t)
	ps := &state.ProjectState{Slug: "demo"}
	if err := state.Save(srv.deps.StateDir, ps); err != nil {
		t.Fatalf("saving state fixture: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/cluster", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if strings.TrimSpace(rec.Body.String()) != "null" {
		t.Errorf("body = %q, want null", rec.Body.String())
	}
}
