// Package graph builds the unified dependency graph over a project's
// services, containers, compose services, and cluster deploys, and
// resolves a deterministic startup order from it.
package graph

import (
	"container/heap"
	"fmt"
	"sort"
	"strings"

	"github.com/steveyackey/devrig/internal/config"
)

// Node is one resource in the dependency graph.
type Node struct {
	Name string
	Kind config.ResourceKind
}

// Graph is a directed graph where an edge A -> B means "B depends on
// A" (A must start first). Node names are unique across all four
// resource kinds.
type Graph struct {
	nodes map[string]Node
	edges map[string][]string // dependency -> dependents
	order []string            // insertion order, for stable iteration
}

// New builds an empty graph.
func New() *Graph {
	return &Graph{nodes: map[string]Node{}, edges: map[string][]string{}}
}

// AddNode registers a resource. Calling it twice with the same name is
// a no-op (compose services and cluster deploys may be declared with
// overlapping names across sections in degenerate manifests; config.Validate
// already rejects true duplicates).
func (g *Graph) AddNode(name string, kind config.ResourceKind) {
	if _, ok := g.nodes[name]; ok {
		return
	}
	g.nodes[name] = Node{Name: name, Kind: kind}
	g.order = append(g.order, name)
}

// AddEdge records that dependent depends on dependency: dependency must
// start first.
func (g *Graph) AddEdge(dependency, dependent string) {
	g.edges[dependency] = append(g.edges[dependency], dependent)
}

// FromConfig builds the unified graph for a validated configuration.
// Config validation has already confirmed every depends_on target
// exists, so edge construction here cannot fail.
func FromConfig(cfg *config.Configuration) *Graph {
	g := New()

	for name := range cfg.Containers {
		g.AddNode(name, config.KindContainer)
	}
	if cfg.Compose != nil {
		for _, name := range cfg.Compose.Services {
			g.AddNode(name, config.KindComposeService)
		}
	}
	if cfg.Cluster != nil {
		for name := range cfg.Cluster.Deploys {
			g.AddNode(name, config.KindClusterDeploy)
		}
	}
	for name := range cfg.Services {
		g.AddNode(name, config.KindService)
	}

	for name, c := range cfg.Containers {
		for _, dep := range c.DependsOn {
			g.AddEdge(dep, name)
		}
	}
	if cfg.Cluster != nil {
		for name, d := range cfg.Cluster.Deploys {
			for _, dep := range d.DependsOn {
				g.AddEdge(dep, name)
			}
		}
	}
	for name, s := range cfg.Services {
		for _, dep := range s.DependsOn {
			g.AddEdge(dep, name)
		}
	}

	return g
}

// AddonGraph builds a separate, smaller dependency graph over one
// project's cluster addons. Addons live in their own name namespace
// (config.Validate never checks an addon name against service/container
// names), so they get their own graph rather than being folded into
// FromConfig's unified one.
func AddonGraph(addons map[string]config.AddonConfig) *Graph {
	g := New()
	for name := range addons {
		g.AddNode(name, config.KindAddon)
	}
	for name, a := range addons {
		for _, dep := range a.DependsOn {
			g.AddEdge(dep, name)
		}
	}
	return g
}

// CycleError reports a cycle found during topological sort, naming one
// full loop in the cycle for diagnostic purposes.
type CycleError struct {
	Cycle []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected: %s", strings.Join(e.Cycle, " -> "))
}

// stringHeap is a min-heap of node names, used so Kahn's algorithm
// always picks the alphabetically-first ready node, making the start
// order fully deterministic regardless of manifest declaration order.
type stringHeap []string

func (h stringHeap) Len() int            { return len(h) }
func (h stringHeap) Less(i, j int) bool  { return h[i] < h[j] }
func (h stringHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *stringHeap) Push(x any)         { *h = append(*h, x.(string)) }
func (h *stringHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// TopoSort returns a startup order (dependencies before dependents)
// using Kahn's algorithm with an alphabetical tie-break among nodes
// that become ready simultaneously. Returns a *CycleError if the graph
// is not a DAG.
func (g *Graph) TopoSort() ([]Node, error) {
	inDegree := map[string]int{}
	for _, name := range g.order {
		inDegree[name] = 0
	}
	for _, dependents := range g.edges {
		for _, d := range dependents {
			inDegree[d]++
		}
	}

	ready := &stringHeap{}
	for _, name := range g.order {
		if inDegree[name] == 0 {
			heap.Push(ready, name)
		}
	}

	var result []Node
	for ready.Len() > 0 {
		name := heap.Pop(ready).(string)
		result = append(result, g.nodes[name])

		dependents := append([]string(nil), g.edges[name]...)
		sort.Strings(dependents)
		for _, d := range dependents {
			inDegree[d]--
			if inDegree[d] == 0 {
				heap.Push(ready, d)
			}
		}
	}

	if len(result) != len(g.order) {
		return nil, &CycleError{Cycle: g.findCycle()}
	}
	return result, nil
}

// findCycle does a DFS from every unvisited node to surface one
// concrete cycle for the error message; it's only called once TopoSort
// has already established a cycle exists.
func (g *Graph) findCycle() []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := map[string]int{}
	var path []string

	var visit func(name string) []string
	visit = func(name string) []string {
		color[name] = gray
		path = append(path, name)
		dependents := append([]string(nil), g.edges[name]...)
		sort.Strings(dependents)
		for _, d := range dependents {
			switch color[d] {
			case white:
				if cyc := visit(d); cyc != nil {
					return cyc
				}
			case gray:
				start := 0
				for i, n := range path {
					if n == d {
						start = i
						break
					}
				}
				cyc := append([]string(nil), path[start:]...)
				return append(cyc, d)
			}
		}
		path = path[:len(path)-1]
		color[name] = black
		return nil
	}

	for _, name := range g.order {
		if color[name] == white {
			if cyc := visit(name); cyc != nil {
				return cyc
			}
		}
	}
	return nil
}

// ShutdownOrder is TopoSort reversed: dependents stop before their
// dependencies.
func (g *Graph) ShutdownOrder() ([]Node, error) {
	order, err := g.TopoSort()
	if err != nil {
		return nil, err
	}
	reversed := make([]Node, len(order))
	for i, n := range order {
		reversed[len(order)-1-i] = n
	}
	return reversed, nil
}

// TransitiveDependents returns every node reachable from names by
// following dependency edges forward (i.e. everything that would need
// to restart if one of names changed), including names themselves.
func (g *Graph) TransitiveDependents(names ...string) []string {
	seen := map[string]bool{}
	var visit func(string)
	visit = func(n string) {
		if seen[n] {
			return
		}
		seen[n] = true
		for _, d := range g.edges[n] {
			visit(d)
		}
	}
	for _, n := range names {
		visit(n)
	}
	out := make([]string, 0, len(seen))
	for _, n := range g.order {
		if seen[n] {
			out = append(out, n)
		}
	}
	return out
}
