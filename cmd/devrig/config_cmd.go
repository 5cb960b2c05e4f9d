package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/steveyackey/devrig/internal/config"
	"github.com/steveyackey/devrig/internal/orchestrator"
)

type ConfigCmd struct {
	Diff     ConfigDiffCmd     `cmd:"" help:"show what changed between the running project's applied manifest and the file on disk"`
	Validate ConfigValidateCmd `cmd:"" help:"parse and validate the manifest without starting anything"`
}

type ConfigValidateCmd struct{}

func (c *ConfigValidateCmd) Run(cctx *Context) error {
	cfg, err := config.Load(cctx.ConfigPath)
	if err != nil {
		return err
	}
	fmt.Printf("devrig: %s is valid (%d services, %d containers)\n",
		cctx.ConfigPath, len(cfg.Services), len(cfg.Containers))
	return nil
}

type ConfigDiffCmd struct{}

func (c *ConfigDiffCmd) Run(cctx *Context) error {
	o, err := orchestrator.FromConfig(cctx.ConfigPath)
	if err != nil {
		return err
	}

	applied, err := os.ReadFile(filepath.Join(o.StateDir(), "applied.toml"))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("no applied manifest snapshot found; run `devrig up` first")
		}
		return err
	}
	current, err := os.ReadFile(o.Identity().ConfigPath)
	if err != nil {
		return err
	}

	diff := diffLines(string(applied), string(current))
	if len(diff) == 0 {
		fmt.Println("no changes since the last up")
		return nil
	}
	for _, line := range diff {
		fmt.Println(line)
	}
	return nil
}

// diffLines produces a minimal line diff (LCS-based) between two
// documents, rendered with -/+ prefixes. Small manifests make the
// quadratic table fine here.
func diffLines(before, after string) []string {
	a := strings.Split(strings.TrimSuffix(before, "\n"), "\n")
	b := strings.Split(strings.TrimSuffix(after, "\n"), "\n")

	lcs := make([][]int, len(a)+1)
	for i := range lcs {
		lcs[i] = make([]int, len(b)+1)
	}
	for i := len(a) - 1; i >= 0; i-- {
		for j := len(b) - 1; j >= 0; j-- {
			if a[i] == b[j] {
				lcs[i][j] = lcs[i+1][j+1] + 1
			} else if lcs[i+1][j] >= lcs[i][j+1] {
				lcs[i][j] = lcs[i+1][j]
			} else {
				lcs[i][j] = lcs[i][j+1]
			}
		}
	}

	var out []string
	changed := false
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			i++
			j++
		case lcs[i+1][j] >= lcs[i][j+1]:
			out = append(out, "- "+a[i])
			changed = true
			i++
		default:
			out = append(out, "+ "+b[j])
			changed = true
			j++
		}
	}
	for ; i < len(a); i++ {
		out = append(out, "- "+a[i])
		changed = true
	}
	for ; j < len(b); j++ {
		out = append(out, "+ "+b[j])
		changed = true
	}
	if !changed {
		return nil
	}
	return out
}
