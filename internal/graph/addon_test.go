package graph

import (
	"testing"

	"github.com/steveyackey/devrig/internal/config"
)

func TestAddonGraphOrdersByDependency(t *testing.T) {
	addons := map[string]config.AddonConfig{
		"ingress":  {Type: config.AddonHelm, DependsOn: []string{"cert-manager"}},
		"cert-manager": {Type: config.AddonHelm},
		"dashboard": {Type: config.AddonHelm, DependsOn: []string{"ingress"}},
	}

	nodes, err := AddonGraph(addons).TopoSort()
	if err != nil {
		t.Fatalf("TopoSort: %v", err)
	}
	if len(nodes) != 3 {
		t.Fatalf("expected 3 nodes, got %d", len(nodes))
	}
	pos := map[string]int{}
	for i, n := range nodes {
		pos[n.Name] = i
	}
	if pos["cert-manager"] > pos["ingress"] {
		t.Errorf("cert-manager must install before ingress: %v", nodes)
	}
	if pos["ingress"] > pos["dashboard"] {
		t.Errorf("ingress must install before dashboard: %v", nodes)
	}
	for _, n := range nodes {
		if n.Kind != config.KindAddon {
			t.Errorf("node %s has kind %s, want %s", n.Name, n.Kind, config.KindAddon)
		}
	}
}

func TestAddonGraphDetectsCycle(t *testing.T) {
	addons := map[string]config.AddonConfig{
		"a": {Type: config.AddonHelm, DependsOn: []string{"b"}},
		"b": {Type: config.AddonHelm, DependsOn: []string{"a"}},
	}
	if _, err := AddonGraph(addons).TopoSort(); err == nil {
		t.Fatal("expected a cycle error, got nil")
	}
}
