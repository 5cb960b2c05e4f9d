package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/steveyackey/devrig/internal/buildkit"
	"github.com/steveyackey/devrig/internal/config"
	"github.com/steveyackey/devrig/internal/state"
)

// Deploy builds the image for one [cluster.deploys.<name>] entry, pushes
// it to the local registry when one is available, and applies its
// manifests. configDir anchors the entry's relative context/manifest
// paths. now is the build timestamp, threaded in rather than read from
// the clock so callers stay deterministic.
func (m *Manager) Deploy(ctx context.Context, name string, d config.DeployConfig, configDir string, registryPort int, now time.Time) (state.DeployState, error) {
	spec := buildkit.Spec{
		Name:       name,
		Context:    filepath.Join(configDir, d.Context),
		Dockerfile: d.Dockerfile,
	}
	result, err := buildkit.BuildAndPush(ctx, spec, registryPort, now)
	if err != nil {
		return state.DeployState{}, fmt.Errorf("deploying %s: %w", name, err)
	}

	for _, manifest := range d.Manifests {
		if _, err := m.Kubectl(ctx, "apply", "-f", filepath.Join(configDir, manifest)); err != nil {
			return state.DeployState{}, fmt.Errorf("applying manifests for %s: %w", name, err)
		}
	}

	slog.Info("cluster deploy applied", "deploy", name, "tag", result.Tag, "pushed", result.Pushed)
	return state.DeployState{ImageTag: result.Tag, LastDeployed: now}, nil
}

// Rebuild re-runs Deploy for name and, on success, restarts its
// deployment so the running pods pick up the freshly pushed image —
// used by the file watcher when one of the deploy's watch paths changes.
func (m *Manager) Rebuild(ctx context.Context, name string, d config.DeployConfig, configDir string, registryPort int, now time.Time) (state.DeployState, error) {
	ds, err := m.Deploy(ctx, name, d, configDir, registryPort, now)
	if err != nil {
		return state.DeployState{}, err
	}
	if err := m.RolloutRestart(ctx, "", name); err != nil {
		return state.DeployState{}, fmt.Errorf("restarting deployment %s after rebuild: %w", name, err)
	}
	slog.Info("deployment restarted after rebuild", "deploy", name)
	return ds, nil
}

// BuildImage builds and, when a registry is available, pushes one
// [cluster.builds.<name>] entry without applying any manifests — used
// for images other cluster-deploy manifests reference but that don't
// have a deployment of their own to manage.
func (m *Manager) BuildImage(ctx context.Context, name string, b config.ImageBuildConfig, configDir string, registryPort int, now time.Time) (state.DeployState, error) {
	spec := buildkit.Spec{
		Name:       name,
		Context:    filepath.Join(configDir, b.Context),
		Dockerfile: b.Dockerfile,
	}
	result, err := buildkit.BuildAndPush(ctx, spec, registryPort, now)
	if err != nil {
		return state.DeployState{}, fmt.Errorf("building image %s: %w", name, err)
	}
	return state.DeployState{ImageTag: result.Tag, LastDeployed: now}, nil
}
