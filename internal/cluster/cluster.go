// Package cluster manages the lifecycle of a project's ephemeral k3d
// Kubernetes cluster: create/delete, kubeconfig retrieval and the
// mandatory API-server-port rewrite, and a thin kubectl/helm CLI
// wrapper, mirroring the container driver's shell-out-and-parse shape.
package cluster

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"sigs.k8s.io/yaml"

	"github.com/steveyackey/devrig/internal/config"
	"github.com/steveyackey/devrig/internal/devrigerr"
)

// Manager drives one project's k3d cluster.
type Manager struct {
	ClusterName    string
	Slug           string
	KubeconfigPath string
	NetworkName    string
	Config         config.ClusterConfig
}

// New builds a Manager. stateDir is the project's ".devrig" directory,
// where the kubeconfig is written.
func New(slug string, cfg config.ClusterConfig, stateDir, networkName string) *Manager {
	name := cfg.Name
	if name == "" {
		name = fmt.Sprintf("devrig-%s", slug)
	}
	return &Manager{
		ClusterName:    name,
		Slug:           slug,
		KubeconfigPath: filepath.Join(stateDir, "kubeconfig"),
		NetworkName:    networkName,
		Config:         cfg,
	}
}

func (m *Manager) runK3d(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "k3d", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", &devrigerr.DriverError{Driver: "k3d", Op: strings.Join(args, " "), Stderr: string(out), Wrapped: err}
	}
	return string(out), nil
}

type k3dClusterListEntry struct {
	Name string `json:"name"`
}

// Exists reports whether the cluster already exists.
func (m *Manager) Exists(ctx context.Context) (bool, error) {
	out, err := m.runK3d(ctx, "cluster", "list", "-o", "json")
	if err != nil {
		return false, err
	}
	var clusters []k3dClusterListEntry
	if err := json.Unmarshal([]byte(out), &clusters); err != nil {
		return false, fmt.Errorf("parsing k3d cluster list: %w", err)
	}
	for _, c := range clusters {
		if c.Name == m.ClusterName {
			return true, nil
		}
	}
	return false, nil
}

// Create brings up the cluster if it doesn't already exist.
func (m *Manager) Create(ctx context.Context) error {
	exists, err := m.Exists(ctx)
	if err != nil {
		return err
	}
	if exists {
		slog.Info("cluster already exists, skipping create", "cluster", m.ClusterName)
		return nil
	}

	args := []string{
		"cluster", "create", m.ClusterName,
		"--network", m.NetworkName,
		"--agents", fmt.Sprintf("%d", m.Config.Agents),
		"--kubeconfig-update-default=false",
		"--kubeconfig-switch-context=false",
		"--api-port", "127.0.0.1:0",
	}
	for name, port := range m.Config.Ports {
		args = append(args, "-p", fmt.Sprintf("%d:%s", port, name))
	}
	if m.Config.Registry {
		args = append(args, "--registry-create", fmt.Sprintf("k3d-%s-reg:0.0.0.0:0", m.ClusterName))
	}

	if _, err := m.runK3d(ctx, args...); err != nil {
		return err
	}
	slog.Info("cluster created", "cluster", m.ClusterName)
	return nil
}

// Delete tears down the cluster and removes the local kubeconfig.
func (m *Manager) Delete(ctx context.Context) error {
	if _, err := m.runK3d(ctx, "cluster", "delete", m.ClusterName); err != nil {
		return err
	}
	slog.Info("cluster deleted", "cluster", m.ClusterName)
	if err := os.Remove(m.KubeconfigPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing kubeconfig: %w", err)
	}
	return nil
}

// WriteKubeconfig retrieves the cluster's kubeconfig from k3d, writes
// it to KubeconfigPath, and fixes any unresolved ":0" API server port.
func (m *Manager) WriteKubeconfig(ctx context.Context) error {
	content, err := m.runK3d(ctx, "kubeconfig", "get", m.ClusterName)
	if err != nil {
		return err
	}
	if err := os.WriteFile(m.KubeconfigPath, []byte(content), 0o600); err != nil {
		return fmt.Errorf("writing kubeconfig: %w", err)
	}
	if err := m.fixKubeconfigPort(ctx); err != nil {
		return err
	}
	slog.Info("kubeconfig written", "path", m.KubeconfigPath)
	return nil
}

// fixKubeconfigPort discovers the real API server port from the k3d
// serverlb container and rewrites any "https://127.0.0.1:0" /
// "https://0.0.0.0:0" server URL k3d left unresolved. This rewrite is
// mandatory: kubectl/client-go cannot reach the cluster through a
// server URL whose port is literally 0.
func (m *Manager) fixKubeconfigPort(ctx context.Context) error {
	raw, err := os.ReadFile(m.KubeconfigPath)
	if err != nil {
		return fmt.Errorf("reading kubeconfig for port fix: %w", err)
	}
	content := string(raw)

	needsFix := false
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "server:") && strings.HasSuffix(trimmed, ":0") {
			needsFix = true
			break
		}
	}
	if !needsFix {
		return nil
	}

	slog.Warn("kubeconfig contains unresolved port 0, discovering actual API server port")
	container := fmt.Sprintf("k3d-%s-serverlb", m.ClusterName)
	cmd := exec.CommandContext(ctx, "docker", "inspect", container, "--format", `{{(index .NetworkSettings.Ports "6443/tcp" 0).HostPort}}`)
	out, err := cmd.Output()
	if err != nil {
		return fmt.Errorf("inspecting serverlb container %s for API port: %w", container, err)
	}
	actualPort := strings.TrimSpace(string(out))
	if actualPort == "" || actualPort == "0" {
		return fmt.Errorf("API server port could not be resolved (got %q)", actualPort)
	}

	fixed := strings.NewReplacer(
		"https://127.0.0.1:0", fmt.Sprintf("https://127.0.0.1:%s", actualPort),
		"https://0.0.0.0:0", fmt.Sprintf("https://127.0.0.1:%s", actualPort),
	).Replace(content)

	if err := os.WriteFile(m.KubeconfigPath, []byte(fixed), 0o600); err != nil {
		return fmt.Errorf("writing fixed kubeconfig: %w", err)
	}
	slog.Info("fixed kubeconfig API server port", "port", actualPort)
	return nil
}

// Kubectl runs kubectl against this cluster's kubeconfig.
func (m *Manager) Kubectl(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "kubectl", args...)
	cmd.Env = append(os.Environ(), "KUBECONFIG="+m.KubeconfigPath)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", &devrigerr.DriverError{Driver: "kubectl", Op: strings.Join(args, " "), Stderr: string(out), Wrapped: err}
	}
	return string(out), nil
}

// Helm runs helm against this cluster's kubeconfig, shelling out rather
// than linking helm.sh/helm's SDK — the same CLI-first approach the
// container and cluster drivers already use.
func (m *Manager) Helm(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "helm", args...)
	cmd.Env = append(os.Environ(), "KUBECONFIG="+m.KubeconfigPath)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", &devrigerr.DriverError{Driver: "helm", Op: strings.Join(args, " "), Stderr: string(out), Wrapped: err}
	}
	return string(out), nil
}

// HelmUpgradeInstall runs `helm upgrade --install` for one addon.
func (m *Manager) HelmUpgradeInstall(ctx context.Context, release string, addon config.AddonConfig) (string, error) {
	args := []string{"upgrade", "--install", release, addon.Chart}
	if addon.Repo != "" {
		args = append(args, "--repo", addon.Repo)
	}
	if addon.Namespace != "" {
		args = append(args, "--namespace", addon.Namespace, "--create-namespace")
	}
	if addon.Version != "" {
		args = append(args, "--version", addon.Version)
	}
	if addon.Wait {
		args = append(args, "--wait")
		if addon.TimeoutSecs > 0 {
			args = append(args, "--timeout", fmt.Sprintf("%ds", addon.TimeoutSecs))
		}
	}
	if addon.SkipCRDs {
		args = append(args, "--skip-crds")
	}
	for _, f := range addon.ValuesFiles {
		args = append(args, "--values", f)
	}

	// Flat scalars and arrays go through --set; nested tables can't be
	// expressed on the command line, so they're written to a temporary
	// values file instead.
	nested := map[string]any{}
	keys := make([]string, 0, len(addon.Values))
	for k := range addon.Values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if sub, ok := addon.Values[k].(map[string]any); ok {
			nested[k] = sub
			continue
		}
		args = append(args, "--set", fmt.Sprintf("%s=%s", k, helmSetValue(addon.Values[k])))
	}
	if len(nested) > 0 {
		encoded, err := yaml.Marshal(nested)
		if err != nil {
			return "", fmt.Errorf("encoding values for addon %s: %w", release, err)
		}
		tmp, err := os.CreateTemp("", "devrig-values-*.yaml")
		if err != nil {
			return "", fmt.Errorf("writing values file for addon %s: %w", release, err)
		}
		defer os.Remove(tmp.Name())
		if _, err := tmp.Write(encoded); err != nil {
			tmp.Close()
			return "", fmt.Errorf("writing values file for addon %s: %w", release, err)
		}
		tmp.Close()
		args = append(args, "--values", tmp.Name())
	}

	return m.Helm(ctx, args...)
}

// helmSetValue renders one decoded TOML value the way `helm --set`
// expects it on the command line: scalars print bare, arrays become
// helm's "{a,b,c}" list syntax.
func helmSetValue(v any) string {
	switch t := v.(type) {
	case []any:
		items := make([]string, len(t))
		for i, item := range t {
			items[i] = helmSetValue(item)
		}
		return "{" + strings.Join(items, ",") + "}"
	default:
		return fmt.Sprintf("%v", t)
	}
}

// ApplyManifests applies a list of manifest/kustomize paths via
// kubectl apply.
func (m *Manager) ApplyManifests(ctx context.Context, paths []string) error {
	for _, path := range paths {
		if _, err := m.Kubectl(ctx, "apply", "-f", path); err != nil {
			return err
		}
	}
	return nil
}

// ApplyKustomize applies one kustomize directory.
func (m *Manager) ApplyKustomize(ctx context.Context, path string) error {
	_, err := m.Kubectl(ctx, "apply", "-k", path)
	return err
}

// RolloutRestart restarts a deployment so it picks up a freshly-pushed
// image after a watch-triggered rebuild.
func (m *Manager) RolloutRestart(ctx context.Context, namespace, deployment string) error {
	args := []string{"rollout", "restart", "deployment/" + deployment}
	if namespace != "" {
		args = append([]string{"-n", namespace}, args...)
	}
	_, err := m.Kubectl(ctx, args...)
	return err
}
