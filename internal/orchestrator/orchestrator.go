// Package orchestrator drives a project from a validated manifest to a
// fully running development environment and back down again. It owns
// the phased startup sequence: Docker network, compose bridge, managed
// containers, ephemeral cluster, template expansion, embedded
// telemetry and dashboard, and finally the supervised service
// processes — then waits for a shutdown signal and tears everything
// down in dependency order.
//
// Each phase is a thin coordinator over one of the project's other
// packages (internal/config, internal/graph, internal/ports,
// internal/template, internal/containerdriver, internal/compose,
// internal/cluster, internal/buildkit, internal/telemetry,
// internal/dashboard, internal/watcher, internal/supervisor), matching
// the container and cluster drivers' shell-out-and-coordinate style
// rather than folding everything into one function.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/steveyackey/devrig/internal/config"
	"github.com/steveyackey/devrig/internal/containerdriver"
	"github.com/steveyackey/devrig/internal/ports"
	"github.com/steveyackey/devrig/internal/state"
	"github.com/steveyackey/devrig/internal/supervisor"
	"github.com/steveyackey/devrig/internal/template"
	"github.com/steveyackey/devrig/internal/watcher"
)

const shutdownGrace = 10 * time.Second

// Orchestrator drives one project's full lifecycle: up, stop, and
// delete.
type Orchestrator struct {
	cfg       *config.Configuration
	identity  config.ProjectIdentity
	configDir string
	stateDir  string

	driver  *containerdriver.Driver
	secrets *template.Secrets

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	svcWg  sync.WaitGroup

	logsCh          chan supervisor.LogLine
	tracingShutdown func(context.Context) error

	mu             sync.Mutex
	portForwardMgr portForwardStopper
	supervisors    map[string]*supervisor.Supervisor
}

// portForwardStopper is the minimal surface the shutdown path needs
// from a *cluster.PortForwardManager.
type portForwardStopper interface {
	StopAll()
}

// FromConfig loads and validates the manifest at configPath and builds
// an Orchestrator around it, deriving the project's identity and its
// ".devrig" state directory from the manifest's canonical location.
func FromConfig(configPath string) (*Orchestrator, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	identity, err := config.NewProjectIdentity(cfg)
	if err != nil {
		return nil, err
	}
	configDir := identity.ConfigPath
	if idx := strings.LastIndexByte(configDir, '/'); idx >= 0 {
		configDir = configDir[:idx]
	}
	return &Orchestrator{
		cfg:       cfg,
		identity:  identity,
		configDir: configDir,
		stateDir:  state.DirFor(configDir),
		driver:    containerdriver.New(""),
		secrets:   template.NewSecrets(),
	}, nil
}

// Identity returns the project's resolved identity.
func (o *Orchestrator) Identity() config.ProjectIdentity { return o.identity }

// StateDir returns the project's ".devrig" directory.
func (o *Orchestrator) StateDir() string { return o.stateDir }

// runState carries everything one phase hands to the next through a
// single Start call. It is never shared across processes — Stop and
// Delete reconstruct what they need from persisted state.ProjectState
// instead, since they're typically invoked from a separate `devrig`
// process than the one that called Start.
type runState struct {
	launchOrder []graphNode
	allocator   *ports.Allocator
	prevState   *state.ProjectState
	networkName string
	hasDocker   bool

	globalEnv  map[string]string
	serviceEnv map[string]map[string]string

	composeOut map[string]composeService
	dockerOut  map[string]dockerResult
	resolved   map[string]resolvedPort
	cluster    *clusterResult

	dashPort int
	grpcPort int
	httpPort int
}

// Start runs every phase in order: network, compose, containers,
// cluster, templates, dashboard/telemetry, then supervised services.
// serviceFilter, if non-empty, narrows the launch order to the named
// resources plus their transitive dependencies, which limits the
// containers started, the cluster deploys run and the services spawned;
// compose, image builds, addons and port-forwards still run in full.
// Start blocks until a shutdown signal arrives or
// every supervised service has exited, then tears down what it started.
func (o *Orchestrator) Start(parent context.Context, serviceFilter []string) error {
	ctx, cancel := context.WithCancel(parent)
	o.ctx = ctx
	o.cancel = cancel
	o.supervisors = map[string]*supervisor.Supervisor{}

	rs := &runState{
		composeOut: map[string]composeService{},
		dockerOut:  map[string]dockerResult{},
		resolved:   map[string]resolvedPort{},
	}

	if err := o.phaseZero(rs, serviceFilter); err != nil {
		cancel()
		return err
	}

	rs.networkName = containerdriver.NetworkName(o.identity.Slug)
	rs.hasDocker = o.hasDockerResources()
	if rs.hasDocker {
		if err := o.driver.EnsureNetwork(ctx, rs.networkName, containerdriver.Labels(o.identity.Slug, "network")); err != nil {
			cancel()
			return fmt.Errorf("ensuring project network: %w", err)
		}
	}

	if err := o.phaseCompose(ctx, rs); err != nil {
		cancel()
		return err
	}

	if err := o.phaseContainers(ctx, rs); err != nil {
		cancel()
		return err
	}

	if err := o.phaseCluster(ctx, rs); err != nil {
		cancel()
		return err
	}

	if err := o.phaseTemplates(rs); err != nil {
		cancel()
		return err
	}

	dash, err := o.phaseDashboard(ctx, rs)
	if err != nil {
		cancel()
		return err
	}

	names := o.phaseServiceNames(rs)
	if err := o.phaseServices(rs, dash, names); err != nil {
		cancel()
		return err
	}

	if err := o.persistState(rs, dash); err != nil {
		slog.Warn("failed to persist project state", "error", err)
	}

	// Manifest edits are surfaced, never auto-applied: the watcher just
	// tells the user a diff is waiting.
	o.spawn(func(ctx context.Context) {
		err := watcher.WatchConfigFile(ctx, o.identity.ConfigPath, func() {
			fmt.Println("devrig: manifest changed on disk; run `devrig config diff` to see what would change")
		})
		if err != nil {
			slog.Debug("config watcher stopped", "error", err)
		}
	})

	o.printSummary(rs, dash, names)

	o.waitForShutdown(len(names) > 0)
	o.gracefulShutdown(rs)
	return nil
}

func (o *Orchestrator) hasDockerResources() bool {
	return len(o.cfg.Containers) > 0 || o.cfg.Compose != nil || o.cfg.Cluster != nil
}

func (o *Orchestrator) spawn(fn func(ctx context.Context)) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		fn(o.ctx)
	}()
}

// waitForShutdown blocks until an interrupt/TERM signal arrives or,
// when the run owns service processes, every supervisor has returned
// on its own. Background watchers and the log pipeline run until
// cancelled, so only the supervisor wait group decides "everything
// exited".
func (o *Orchestrator) waitForShutdown(hasServices bool) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	done := make(chan struct{})
	if hasServices {
		go func() {
			o.svcWg.Wait()
			close(done)
		}()
	}

	select {
	case <-sigCh:
		slog.Info("shutdown signal received")
	case <-done:
		slog.Info("all supervised services exited")
	}
}

// gracefulShutdown cancels every spawned goroutine, waits up to
// shutdownGrace for them to exit, then stops (but does not remove) the
// containers this run started, preserving their volumes.
func (o *Orchestrator) gracefulShutdown(rs *runState) {
	o.cancel()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownGrace):
		slog.Warn("supervised tasks did not exit within the shutdown grace period", "grace_period", shutdownGrace)
	}

	o.mu.Lock()
	pf := o.portForwardMgr
	o.mu.Unlock()
	if pf != nil {
		pf.StopAll()
	}

	if o.tracingShutdown != nil {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = o.tracingShutdown(flushCtx)
		cancel()
	}

	for name, res := range rs.dockerOut {
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := o.driver.Stop(stopCtx, res.ContainerID); err != nil {
			slog.Warn("failed to stop container", "resource", name, "error", err)
		}
		cancel()
	}
}

func (o *Orchestrator) printSummary(rs *runState, dash *dashboardResult, names []string) {
	type row struct{ label, status string }
	var rows []row

	for name, res := range rs.dockerOut {
		status := "running"
		if res.Port != 0 {
			status = fmt.Sprintf("running (port %d)", res.Port)
		}
		rows = append(rows, row{fmt.Sprintf("[container] %s", name), status})
	}
	for name := range rs.composeOut {
		rows = append(rows, row{fmt.Sprintf("[compose] %s", name), "running"})
	}
	if rs.cluster != nil {
		for name, ds := range rs.cluster.deployStates {
			rows = append(rows, row{fmt.Sprintf("[cluster] %s", name), fmt.Sprintf("deployed (%s)", ds.ImageTag)})
		}
		for name := range rs.cluster.installedAddons {
			rows = append(rows, row{fmt.Sprintf("[addon] %s", name), "installed"})
		}
	}
	if dash != nil && dash.enabled {
		rows = append(rows, row{"[dashboard]", fmt.Sprintf("http://localhost:%d", dash.port)})
		rows = append(rows, row{"[otel] grpc", fmt.Sprintf("localhost:%d", dash.grpcPort)})
		rows = append(rows, row{"[otel] http", fmt.Sprintf("localhost:%d", dash.httpPort)})
	}
	for _, name := range names {
		status := "running"
		if rp, ok := rs.resolved[name]; ok && rp.Port != 0 {
			status = fmt.Sprintf("running (port %d)", rp.Port)
		}
		rows = append(rows, row{name, status})
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].label < rows[j].label })

	fmt.Printf("\ndevrig: %s is up\n", o.identity.Name)
	for _, r := range rows {
		fmt.Printf("  %-40s %s\n", r.label, r.status)
	}
	fmt.Println()
}

func stableSeed(id string) int64 {
	var n int64
	for _, c := range id {
		n = n*131 + int64(c)
	}
	if n < 0 {
		n = -n
	}
	return n
}
