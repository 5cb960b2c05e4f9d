package orchestrator

import "testing"

func TestSplitVolume(t *testing.T) {
	source, target, ok := splitVolume("pgdata:/var/lib/postgresql/data")
	if !ok || source != "pgdata" || target != "/var/lib/postgresql/data" {
		t.Errorf("splitVolume = (%q, %q, %v)", source, target, ok)
	}
	if _, _, ok := splitVolume("no-separator"); ok {
		t.Error("a spec without ':' must be rejected")
	}
}

func TestIsBindMount(t *testing.T) {
	cases := map[string]bool{
		"/var/data":    true,
		"./local":      true,
		"../sibling":   true,
		"pgdata":       false,
		"cache-volume": false,
		".hidden":      false,
	}
	for source, want := range cases {
		if got := isBindMount(source); got != want {
			t.Errorf("isBindMount(%q) = %v, want %v", source, got, want)
		}
	}
}
