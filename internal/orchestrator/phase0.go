package orchestrator

import (
	"fmt"
	"os"
	"strings"

	"github.com/steveyackey/devrig/internal/config"
	"github.com/steveyackey/devrig/internal/graph"
	"github.com/steveyackey/devrig/internal/ports"
	"github.com/steveyackey/devrig/internal/state"
)

// phaseZero builds the dependency graph, loads any previous run's
// state for sticky port reuse, narrows the launch order to
// serviceFilter's transitive dependencies when requested, and runs a
// port-conflict precheck before any side effect happens.
func (o *Orchestrator) phaseZero(rs *runState, serviceFilter []string) error {
	g := graph.FromConfig(o.cfg)
	order, err := g.TopoSort()
	if err != nil {
		return err
	}
	rs.launchOrder = order

	if len(serviceFilter) > 0 {
		filtered, err := o.filterLaunchOrder(order, serviceFilter)
		if err != nil {
			return err
		}
		rs.launchOrder = filtered
	}

	if err := o.expandProjectEnv(rs); err != nil {
		return err
	}

	prev, err := state.Load(o.stateDir)
	if err != nil {
		return err
	}
	rs.prevState = prev

	if len(rs.launchOrder) == 0 && !o.dashboardEnabled() {
		return fmt.Errorf("nothing to start: the manifest declares no services, containers, compose services, or cluster deploys, and the dashboard is disabled")
	}

	if err := os.MkdirAll(o.stateDir, 0o755); err != nil {
		return fmt.Errorf("creating state directory %s: %w", o.stateDir, err)
	}

	sticky := map[string]int{}
	if prev != nil && prev.StickyPorts != nil {
		sticky = prev.StickyPorts
	}
	rs.allocator = ports.NewAllocator(sticky)

	return o.preflightPortConflicts()
}

// dependsOnMap flattens every resource's depends_on edges into one
// name-keyed map, for walking dependencies backward from a filter set —
// something graph.Graph doesn't expose directly since it only tracks
// forward (dependency -> dependents) edges for topological sort.
func dependsOnMap(cfg *config.Configuration) map[string][]string {
	m := map[string][]string{}
	for name, s := range cfg.Services {
		m[name] = s.DependsOn
	}
	for name, c := range cfg.Containers {
		m[name] = c.DependsOn
	}
	if cfg.Cluster != nil {
		for name, d := range cfg.Cluster.Deploys {
			m[name] = d.DependsOn
		}
	}
	return m
}

func (o *Orchestrator) filterLaunchOrder(order []graphNode, filter []string) ([]graphNode, error) {
	known := map[string]bool{}
	for _, n := range order {
		known[n.Name] = true
	}
	for _, name := range filter {
		if !known[name] {
			return nil, fmt.Errorf("requested service %q is not declared in the manifest", name)
		}
	}

	deps := dependsOnMap(o.cfg)
	needed := map[string]bool{}
	var visit func(string)
	visit = func(name string) {
		if needed[name] {
			return
		}
		needed[name] = true
		for _, dep := range deps[name] {
			visit(dep)
		}
	}
	for _, name := range filter {
		visit(name)
	}

	filtered := make([]graphNode, 0, len(needed))
	for _, n := range order {
		if needed[n.Name] {
			filtered = append(filtered, n)
		}
	}
	return filtered, nil
}

// preflightPortConflicts checks every fixed (non-auto) port the
// manifest declares against the host before anything starts, so a busy
// port fails fast with every conflict listed at once instead of one
// resource at a time mid-startup.
func (o *Orchestrator) preflightPortConflicts() error {
	type want struct {
		resource string
		port     int
	}
	var reqs []want

	for name, s := range o.cfg.Services {
		if s.Port != nil && !s.Port.Auto {
			reqs = append(reqs, want{name, s.Port.Fixed})
		}
	}
	for name, c := range o.cfg.Containers {
		if c.Port != nil && !c.Port.Auto {
			reqs = append(reqs, want{name, c.Port.Fixed})
		}
		for alias, p := range c.Ports {
			if !p.Auto {
				reqs = append(reqs, want{fmt.Sprintf("%s.%s", name, alias), p.Fixed})
			}
		}
	}

	var conflicts []string
	for _, r := range reqs {
		if !ports.CheckAvailable(r.port) {
			conflicts = append(conflicts, fmt.Sprintf("%s wants port %d, which is already in use", r.resource, r.port))
		}
	}
	if len(conflicts) > 0 {
		return fmt.Errorf("port conflicts detected before startup:\n  - %s", strings.Join(conflicts, "\n  - "))
	}
	return nil
}
