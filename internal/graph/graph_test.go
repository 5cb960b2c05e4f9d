package graph

import (
	"testing"

	"github.com/steveyackey/devrig/internal/config"
)

func linearConfig() *config.Configuration {
	return &config.Configuration{
		Project: "demo",
		Services: map[string]config.ServiceConfig{
			"a": {Command: "run-a"},
			"b": {Command: "run-b", DependsOn: []string{"a"}},
			"c": {Command: "run-c", DependsOn: []string{"b"}},
		},
	}
}

func TestTopoSortLinearChain(t *testing.T) {
	nodes, err := FromConfig(linearConfig()).TopoSort()
	if err != nil {
		t.Fatalf("TopoSort: %v", err)
	}
	got := make([]string, len(nodes))
	for i, n := range nodes {
		got[i] = n.Name
	}
	want := []string{"a", "b", "c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestTopoSortPlacesDependenciesFirstAcrossKinds(t *testing.T) {
	cfg := &config.Configuration{
		Project: "demo",
		Services: map[string]config.ServiceConfig{
			"api": {Command: "api", DependsOn: []string{"postgres", "worker-image"}},
		},
		Containers: map[string]config.ContainerConfig{
			"postgres": {Image: "postgres:16"},
		},
		Cluster: &config.ClusterConfig{
			Deploys: map[string]config.DeployConfig{
				"worker-image": {Context: "./worker"},
			},
		},
	}
	nodes, err := FromConfig(cfg).TopoSort()
	if err != nil {
		t.Fatalf("TopoSort: %v", err)
	}
	pos := map[string]int{}
	for i, n := range nodes {
		pos[n.Name] = i
	}
	if pos["postgres"] > pos["api"] || pos["worker-image"] > pos["api"] {
		t.Errorf("dependencies must precede api: %v", nodes)
	}
}

func TestTopoSortTieBreaksAlphabetically(t *testing.T) {
	cfg := &config.Configuration{
		Project: "demo",
		Services: map[string]config.ServiceConfig{
			"zeta":  {Command: "z"},
			"alpha": {Command: "a"},
			"mid":   {Command: "m"},
		},
	}
	nodes, err := FromConfig(cfg).TopoSort()
	if err != nil {
		t.Fatalf("TopoSort: %v", err)
	}
	want := []string{"alpha", "mid", "zeta"}
	for i, n := range nodes {
		if n.Name != want[i] {
			t.Fatalf("independent nodes must sort alphabetically, got %v", nodes)
		}
	}
}

func TestTopoSortDetectsCycle(t *testing.T) {
	cfg := &config.Configuration{
		Project: "demo",
		Services: map[string]config.ServiceConfig{
			"a": {Command: "a", DependsOn: []string{"b"}},
			"b": {Command: "b", DependsOn: []string{"a"}},
		},
	}
	_, err := FromConfig(cfg).TopoSort()
	if err == nil {
		t.Fatal("expected a cycle error")
	}
	var cycleErr *CycleError
	if !asCycleError(err, &cycleErr) {
		t.Fatalf("expected *CycleError, got %T: %v", err, err)
	}
}

func TestTopoSortSelfLoopIsACycle(t *testing.T) {
	cfg := &config.Configuration{
		Project: "demo",
		Services: map[string]config.ServiceConfig{
			"selfish": {Command: "x", DependsOn: []string{"selfish"}},
		},
	}
	if _, err := FromConfig(cfg).TopoSort(); err == nil {
		t.Fatal("a node depending on itself must be reported as a cycle")
	}
}

func TestTransitiveDependents(t *testing.T) {
	g := FromConfig(linearConfig())
	deps := g.TransitiveDependents("a")
	found := map[string]bool{}
	for _, d := range deps {
		found[d] = true
	}
	if !found["b"] || !found["c"] {
		t.Errorf("TransitiveDependents(a) = %v, want b and c included", deps)
	}
}

func asCycleError(err error, target **CycleError) bool {
	ce, ok := err.(*CycleError)
	if ok {
		*target = ce
	}
	return ok
}
