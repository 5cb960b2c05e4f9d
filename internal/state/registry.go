package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// InstanceEntry is one project's row in the global instance registry,
// used by `devrig ls` to list every devrig project running on the
// machine regardless of which directory the CLI is invoked from.
type InstanceEntry struct {
	Slug       string    `json:"slug"`
	ConfigPath string    `json:"config_path"`
	StateDir   string    `json:"state_dir"`
	StartedAt  time.Time `json:"started_at"`
}

// InstanceRegistry is the process-wide table of running devrig
// projects, persisted at "~/.devrig/instances.json".
type InstanceRegistry struct {
	Instances []InstanceEntry `json:"instances"`
}

// RegistryPath returns the global registry file path, rooted under
// home (pass os.UserHomeDir()'s result; callers own the fallback for
// when that fails).
func RegistryPath(home string) string {
	return filepath.Join(home, ".devrig", "instances.json")
}

// LoadRegistry reads the registry file at path, returning an empty
// registry if it doesn't exist or fails to parse.
func LoadRegistry(path string) *InstanceRegistry {
	raw, err := os.ReadFile(path)
	if err != nil {
		return &InstanceRegistry{}
	}
	var r InstanceRegistry
	if err := json.Unmarshal(raw, &r); err != nil {
		return &InstanceRegistry{}
	}
	return &r
}

// Save atomically writes the registry to path.
func (r *InstanceRegistry) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating registry directory: %w", err)
	}
	content, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding instance registry: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, content, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	return os.Rename(tmp, path)
}

// Register upserts entry by slug.
func (r *InstanceRegistry) Register(entry InstanceEntry) {
	for i, e := range r.Instances {
		if e.Slug == entry.Slug {
			r.Instances[i] = entry
			return
		}
	}
	r.Instances = append(r.Instances, entry)
}

// Unregister removes the entry for slug, if present.
func (r *InstanceRegistry) Unregister(slug string) {
	out := r.Instances[:0]
	for _, e := range r.Instances {
		if e.Slug != slug {
			out = append(out, e)
		}
	}
	r.Instances = out
}

// Cleanup drops entries whose state file no longer exists, pruning
// stale registrations left behind by a crashed or kill -9'd instance.
func (r *InstanceRegistry) Cleanup() {
	out := r.Instances[:0]
	for _, e := range r.Instances {
		if _, err := os.Stat(filepath.Join(e.StateDir, "state.json")); err == nil {
			out = append(out, e)
		}
	}
	r.Instances = out
}
