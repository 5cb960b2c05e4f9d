package cluster

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/steveyackey/devrig/internal/config"
	"github.com/steveyackey/devrig/internal/graph"
)

// InstallOrder returns the addons of cfg in install order, honoring each
// addon's depends_on edges via Kahn's algorithm with an alphabetical
// tie-break, the same shape graph.TopoSort uses for the main resource
// graph.
func InstallOrder(addons map[string]config.AddonConfig) ([]string, error) {
	nodes, err := graph.AddonGraph(addons).TopoSort()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(nodes))
	for i, n := range nodes {
		names[i] = n.Name
	}
	return names, nil
}

// InstallAddon installs one addon by type, resolving relative chart and
// manifest paths against configDir.
func (m *Manager) InstallAddon(ctx context.Context, name string, a config.AddonConfig, configDir string) error {
	switch a.Type {
	case config.AddonHelm:
		return m.installHelmAddon(ctx, name, a, configDir)
	case config.AddonManifest:
		return m.ApplyManifests(ctx, []string{resolvePath(configDir, a.Path)})
	case config.AddonKustomize:
		return m.ApplyKustomize(ctx, resolvePath(configDir, a.Path))
	default:
		return fmt.Errorf("addon %s: unsupported type %q", name, a.Type)
	}
}

func (m *Manager) installHelmAddon(ctx context.Context, name string, a config.AddonConfig, configDir string) error {
	chart := a.Chart
	switch {
	case strings.HasPrefix(chart, "oci://"):
		// used directly, no repo add/update needed
	case a.Repo != "":
		repoName := name
		if idx := strings.Index(chart, "/"); idx > 0 {
			repoName = chart[:idx]
		}
		if _, err := m.Helm(ctx, "repo", "add", repoName, a.Repo, "--force-update"); err != nil {
			return fmt.Errorf("adding helm repo for addon %s: %w", name, err)
		}
		if _, err := m.Helm(ctx, "repo", "update", repoName); err != nil {
			return fmt.Errorf("updating helm repo for addon %s: %w", name, err)
		}
	default:
		chart = resolvePath(configDir, chart)
	}

	resolvedValuesFiles := make([]string, len(a.ValuesFiles))
	for i, f := range a.ValuesFiles {
		resolvedValuesFiles[i] = resolvePath(configDir, f)
	}

	addon := a
	addon.Chart = chart
	addon.ValuesFiles = resolvedValuesFiles
	if _, err := m.HelmUpgradeInstall(ctx, name, addon); err != nil {
		return fmt.Errorf("installing helm addon %s: %w", name, err)
	}
	return nil
}

func resolvePath(configDir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(configDir, path)
}

// UninstallAddon removes one previously-installed addon by type,
// mirroring InstallAddon's dispatch. Manifest/kustomize uninstalls
// resolve relative paths against configDir the same way their install
// counterparts do, since the on-disk files may still be present even
// though the cluster they targeted is about to be deleted.
func (m *Manager) UninstallAddon(ctx context.Context, name string, a config.AddonConfig, configDir string) error {
	switch a.Type {
	case config.AddonHelm:
		_, err := m.Helm(ctx, append([]string{"uninstall", name}, namespaceFlag(a.Namespace)...)...)
		return err
	case config.AddonManifest:
		return m.deleteManifests(ctx, []string{resolvePath(configDir, a.Path)})
	case config.AddonKustomize:
		_, err := m.Kubectl(ctx, "delete", "-k", resolvePath(configDir, a.Path), "--ignore-not-found")
		return err
	default:
		return fmt.Errorf("addon %s: unsupported type %q", name, a.Type)
	}
}

// UninstallAddons uninstalls every addon in reverse install order
// (dependents before their dependencies), collecting rather than
// aborting on individual failures so one broken addon doesn't block
// the rest of a `devrig delete` from cleaning up.
func (m *Manager) UninstallAddons(ctx context.Context, addons map[string]config.AddonConfig, configDir string) error {
	order, err := InstallOrder(addons)
	if err != nil {
		return err
	}
	var errs []string
	for i := len(order) - 1; i >= 0; i-- {
		name := order[i]
		if err := m.UninstallAddon(ctx, name, addons[name], configDir); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", name, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("uninstalling addons: %s", strings.Join(errs, "; "))
	}
	return nil
}

func namespaceFlag(namespace string) []string {
	if namespace == "" {
		return nil
	}
	return []string{"--namespace", namespace}
}

func (m *Manager) deleteManifests(ctx context.Context, paths []string) error {
	for _, path := range paths {
		if _, err := m.Kubectl(ctx, "delete", "-f", path, "--ignore-not-found"); err != nil {
			return err
		}
	}
	return nil
}

