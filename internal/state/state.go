// Package state persists the on-disk record of a running devrig
// project: which ports it holds, which processes it owns, and when it
// started. Writes are atomic (write-to-temp, then rename) so a crash
// mid-write never leaves a half-written state.json behind.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ResourceKind tags a ServiceState with which manifest section it was
// started from, so the dashboard's /api/services route can group and
// label them without re-parsing the manifest.
type ResourceKind string

const (
	KindService ResourceKind = "service"
	KindInfra   ResourceKind = "infra"
	KindCompose ResourceKind = "compose"
)

// ServiceState is the persisted record of one running resource: a
// process, a container, or a compose-bridged service.
type ServiceState struct {
	Kind            ResourceKind   `json:"kind"`
	PID             int            `json:"pid,omitempty"`
	Port            int            `json:"port,omitempty"`
	PortAuto        bool           `json:"port_auto,omitempty"`
	ContainerID     string         `json:"container_id,omitempty"`
	ContainerName   string         `json:"container_name,omitempty"`
	NamedPorts      map[string]int `json:"named_ports,omitempty"`
	InitCompleted   bool           `json:"init_completed,omitempty"`
	InitCompletedAt *time.Time     `json:"init_completed_at,omitempty"`
}

// DeployState is the persisted record of one cluster deploy's most
// recent build: the image tag it's running under and when it was
// deployed. The dashboard's cluster view reads it; `devrig up` does not
// read it back to skip or flag a rebuild.
type DeployState struct {
	ImageTag     string    `json:"image_tag"`
	LastDeployed time.Time `json:"last_deployed"`
}

// AddonState is the persisted record of one installed cluster addon.
type AddonState struct {
	AddonType   string    `json:"addon_type"`
	Namespace   string    `json:"namespace"`
	InstalledAt time.Time `json:"installed_at"`
}

// ClusterState is the persisted record of the project's ephemeral
// cluster, present only when the manifest declares a [cluster] table.
type ClusterState struct {
	ClusterName     string                `json:"cluster_name"`
	KubeconfigPath  string                `json:"kubeconfig_path"`
	RegistryName    string                `json:"registry_name,omitempty"`
	RegistryPort    int                   `json:"registry_port,omitempty"`
	InstalledAddons map[string]AddonState `json:"installed_addons,omitempty"`
}

// DashboardState records which ports the dashboard and its embedded
// OTLP receivers bound, so the CLI's query commands can find them
// without re-deriving sticky allocations.
type DashboardState struct {
	Port     int `json:"port"`
	GRPCPort int `json:"grpc_port"`
	HTTPPort int `json:"http_port"`
}

// ProjectState is the full on-disk snapshot of one running project,
// written to "<project>/.devrig/state.json".
type ProjectState struct {
	Slug        string                  `json:"slug"`
	ConfigPath  string                  `json:"config_path"`
	Services    map[string]ServiceState `json:"services"`
	StickyPorts map[string]int          `json:"sticky_ports,omitempty"`
	Deploys     map[string]DeployState  `json:"deploys,omitempty"`
	Network     string                  `json:"network,omitempty"`
	Cluster     *ClusterState           `json:"cluster,omitempty"`
	Dashboard   *DashboardState         `json:"dashboard,omitempty"`
	StartedAt   time.Time               `json:"started_at"`
}

// DirFor returns the state directory for a project rooted at
// projectDir (the directory containing the manifest).
func DirFor(projectDir string) string {
	return filepath.Join(projectDir, ".devrig")
}

// Save atomically writes s to "<stateDir>/state.json".
func Save(stateDir string, s *ProjectState) error {
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return fmt.Errorf("creating state directory %s: %w", stateDir, err)
	}
	content, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding project state: %w", err)
	}
	path := filepath.Join(stateDir, "state.json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, content, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("renaming %s to %s: %w", tmp, path, err)
	}
	return nil
}

// Load reads the state file under stateDir, returning (nil, nil) if it
// doesn't exist or can't be parsed — a missing or corrupt state file
// means "no project is currently known to be running here", which
// callers treat the same way.
func Load(stateDir string) (*ProjectState, error) {
	raw, err := os.ReadFile(filepath.Join(stateDir, "state.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading state file: %w", err)
	}
	var s ProjectState
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, nil
	}
	return &s, nil
}

// Remove deletes the state file and, if now empty, the state
// directory itself.
func Remove(stateDir string) error {
	path := filepath.Join(stateDir, "state.json")
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing %s: %w", path, err)
	}
	_ = os.Remove(stateDir) // best-effort; fails silently if non-empty
	return nil
}
