package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	now := time.Now().UTC().Truncate(time.Second)
	ps := &ProjectState{
		Slug:       "demo-abcd1234",
		ConfigPath: "/work/demo/devrig.toml",
		Services: map[string]ServiceState{
			"api":      {Kind: KindService, PID: 4242, Port: 3000},
			"postgres": {Kind: KindInfra, ContainerID: "deadbeef", Port: 5432, InitCompleted: true},
		},
		StickyPorts: map[string]int{"api": 3000},
		Network:     "devrig-demo-abcd1234-net",
		StartedAt:   now,
	}

	if err := Save(dir, ps); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got == nil {
		t.Fatal("Load returned nil for a saved state")
	}
	if got.Slug != ps.Slug || got.Network != ps.Network {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if svc := got.Services["postgres"]; !svc.InitCompleted || svc.ContainerID != "deadbeef" {
		t.Errorf("container state lost in round trip: %+v", svc)
	}
	if !got.StartedAt.Equal(now) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, now)
	}
}

func TestSaveLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	if err := Save(dir, &ProjectState{Slug: "x"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Errorf("temp file %s left behind after Save", e.Name())
		}
	}
}

func TestLoadMissingReturnsNil(t *testing.T) {
	got, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != nil {
		t.Errorf("Load of a missing file = %+v, want nil", got)
	}
}

func TestLoadCorruptReturnsNil(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "state.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	got, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != nil {
		t.Errorf("Load of a corrupt file = %+v, want nil", got)
	}
}

func TestRegistryRegisterUnregisterCleanup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "instances.json")

	liveStateDir := t.TempDir()
	if err := Save(liveStateDir, &ProjectState{Slug: "live"}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reg := LoadRegistry(path)
	reg.Register(InstanceEntry{Slug: "live", StateDir: liveStateDir, StartedAt: time.Now()})
	reg.Register(InstanceEntry{Slug: "gone", StateDir: filepath.Join(dir, "nope"), StartedAt: time.Now()})
	if err := reg.Save(path); err != nil {
		t.Fatalf("Save registry: %v", err)
	}

	reloaded := LoadRegistry(path)
	if len(reloaded.Instances) != 2 {
		t.Fatalf("expected 2 instances, got %d", len(reloaded.Instances))
	}

	// Re-registering the same slug upserts rather than duplicating.
	reloaded.Register(InstanceEntry{Slug: "live", StateDir: liveStateDir, StartedAt: time.Now()})
	if len(reloaded.Instances) != 2 {
		t.Errorf("Register should upsert by slug, got %d entries", len(reloaded.Instances))
	}

	reloaded.Cleanup()
	if len(reloaded.Instances) != 1 || reloaded.Instances[0].Slug != "live" {
		t.Errorf("Cleanup should drop entries with no state file: %+v", reloaded.Instances)
	}

	reloaded.Unregister("live")
	if len(reloaded.Instances) != 0 {
		t.Errorf("Unregister left entries behind: %+v", reloaded.Instances)
	}
}
