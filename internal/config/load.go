package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Load parses a devrig manifest from path, sets its absolute Path, and
// runs Validate. Parse errors and validation errors are both surfaced
// before any side effect runs.
func Load(path string) (*Configuration, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving manifest path: %w", err)
	}

	var cfg Configuration
	md, err := toml.DecodeFile(abs, &cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", abs, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return nil, fmt.Errorf("parsing manifest %s: unknown key(s): %s", abs, strings.Join(keys, ", "))
	}
	cfg.Path = abs

	if report := Validate(&cfg); report.HasErrors() {
		return nil, report
	}
	return &cfg, nil
}

// ReadEnvFile parses a simple KEY=VALUE env file (used both for the
// project-level env_file and the compose env_file), ignoring blank lines
// and '#' comments, the same format virtually every dotenv
// consumer accepts.
func ReadEnvFile(path string) (map[string]string, error) {
	out := map[string]string{}
	if path == "" {
		return out, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, fmt.Errorf("reading env file %s: %w", path, err)
	}
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		k = strings.TrimSpace(k)
		v = strings.TrimSpace(v)
		v = strings.Trim(v, `"'`)
		out[k] = v
	}
	return out, nil
}
