package watcher

import "testing"

func TestShouldIgnoreDirectories(t *testing.T) {
	cases := []struct {
		path string
		want bool
	}{
		{"src/.git/config", true},
		{".git/HEAD", true},
		{"target/debug/build", true},
		{"frontend/node_modules/react/index.js", true},
		{"app/__pycache__/module.py", true},
		{".devrig/state.json", true},
		{".claude/settings.json", true},
	}
	for _, c := range cases {
		if got := shouldIgnore(c.path); got != c.want {
			t.Errorf("shouldIgnore(%q) = %v, want %v", c.path, got, c.want)
		}
	}
}

func TestShouldIgnoreExtensions(t *testing.T) {
	cases := []struct {
		path string
		want bool
	}{
		{"src/main.go.swp", true},
		{"src/main.go.swo", true},
		{"data/output.tmp", true},
		{"app/module.pyc", true},
		{"app/module.pyo", true},
	}
	for _, c := range cases {
		if got := shouldIgnore(c.path); got != c.want {
			t.Errorf("shouldIgnore(%q) = %v, want %v", c.path, got, c.want)
		}
	}
}

func TestShouldNotIgnoreNormalFiles(t *testing.T) {
	cases := []string{
		"src/main.go",
		"devrig.toml",
		"frontend/src/App.tsx",
		"Dockerfile",
	}
	for _, path := range cases {
		if shouldIgnore(path) {
			t.Errorf("shouldIgnore(%q) = true, want false", path)
		}
	}
}
