package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/goombaio/namegenerator"
)

// Forward describes one active kubectl port-forward: localPort on the
// host tunneled to a Kubernetes resource's port inside the cluster.
type Forward struct {
	Name       string // addon.port_forward key, or a generated name for anonymous forwards
	Resource   string // e.g. "svc/grafana"
	LocalPort  int
	RemotePort int
}

const (
	forwardMinDelay = 500 * time.Millisecond
	forwardMaxDelay = 10 * time.Second
)

// PortForwardManager supervises one `kubectl port-forward` subprocess per
// Forward, respawning it with jittered exponential backoff whenever it
// exits — the API server proxy a port-forward rides on drops the
// connection on any cluster hiccup, so a bare one-shot exec would leave
// the tunnel dead until the next `devrig up`.
type PortForwardManager struct {
	manager *Manager
	namegen namegenerator.Generator

	mu        sync.Mutex
	cancelFns map[string]context.CancelFunc
}

// NewPortForwardManager builds a manager bound to m's kubeconfig. seed
// drives the anonymous-forward namer; callers pass a fixed seed so
// forward names stay stable across a project's lifetime instead of
// changing on every `devrig up`.
func NewPortForwardManager(m *Manager, seed int64) *PortForwardManager {
	return &PortForwardManager{
		manager:   m,
		namegen:   namegenerator.NewNameGenerator(seed),
		cancelFns: map[string]context.CancelFunc{},
	}
}

// ParseAddonForwards expands one addon's port_forward map ("host:target"
// strings keyed by resource) into Forward values, naming any entry whose
// key is blank with a generated name so every tunnel has something to log.
func (pf *PortForwardManager) ParseAddonForwards(addonName string, spec map[string]string) ([]Forward, error) {
	forwards := make([]Forward, 0, len(spec))
	for resource, mapping := range spec {
		var local, remote int
		if _, err := fmt.Sscanf(mapping, "%d:%d", &local, &remote); err != nil {
			return nil, fmt.Errorf("addon %s port_forward %q: expected \"localPort:remotePort\"", addonName, mapping)
		}
		name := resource
		if name == "" {
			name = pf.namegen.Generate()
		}
		forwards = append(forwards, Forward{Name: name, Resource: resource, LocalPort: local, RemotePort: remote})
	}
	return forwards, nil
}

// Start launches and supervises one Forward in the background. Calling
// Start twice for the same name replaces the prior supervised process.
func (pf *PortForwardManager) Start(ctx context.Context, f Forward) {
	pf.mu.Lock()
	if cancel, ok := pf.cancelFns[f.Name]; ok {
		cancel()
	}
	runCtx, cancel := context.WithCancel(ctx)
	pf.cancelFns[f.Name] = cancel
	pf.mu.Unlock()

	go pf.supervise(runCtx, f)
}

// StopAll cancels every supervised forward.
func (pf *PortForwardManager) StopAll() {
	pf.mu.Lock()
	defer pf.mu.Unlock()
	for name, cancel := range pf.cancelFns {
		cancel()
		delete(pf.cancelFns, name)
	}
}

func (pf *PortForwardManager) supervise(ctx context.Context, f Forward) {
	delay := forwardMinDelay
	for {
		if ctx.Err() != nil {
			return
		}
		start := time.Now()
		err := pf.runOnce(ctx, f)
		if ctx.Err() != nil {
			return
		}
		if time.Since(start) > 30*time.Second {
			// Ran healthily for a while before exiting; treat as a fresh
			// run and reset backoff rather than escalating delay.
			delay = forwardMinDelay
		}
		if err != nil {
			slog.Warn("port-forward exited, respawning", "forward", f.Name, "error", err, "retry_in", delay)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(jittered(delay)):
		}
		delay *= 2
		if delay > forwardMaxDelay {
			delay = forwardMaxDelay
		}
	}
}

func (pf *PortForwardManager) runOnce(ctx context.Context, f Forward) error {
	args := []string{"port-forward", f.Resource, fmt.Sprintf("%d:%d", f.LocalPort, f.RemotePort)}
	cmd := exec.CommandContext(ctx, "kubectl", args...)
	cmd.Env = append(cmd.Env, "KUBECONFIG="+pf.manager.KubeconfigPath)
	out, err := cmd.CombinedOutput()
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("kubectl port-forward %s: %w: %s", f.Resource, err, out)
	}
	return nil
}

