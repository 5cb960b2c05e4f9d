package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"

	"github.com/steveyackey/devrig/internal/config"
)

type diagnosticCheck struct {
	ID          string
	Description string
	Run         func(context.Context) error
}

func binaryCheck(id, binary string, args ...string) diagnosticCheck {
	return diagnosticCheck{
		ID:          id,
		Description: fmt.Sprintf("%s is installed and responding", binary),
		Run: func(ctx context.Context) error {
			cmd := exec.CommandContext(ctx, binary, args...)
			out, err := cmd.CombinedOutput()
			if err != nil {
				return fmt.Errorf("%s %v failed: %w (%s)", binary, args, err, string(out))
			}
			return nil
		},
	}
}

// checksFor builds the diagnostic list from what the manifest actually
// uses: no cluster table means no k3d/kubectl/helm requirement.
func checksFor(cfg *config.Configuration) []diagnosticCheck {
	checks := []diagnosticCheck{
		binaryCheck("docker", "docker", "info"),
	}
	if cfg.Compose != nil {
		checks = append(checks, binaryCheck("docker-compose", "docker", "compose", "version"))
	}
	if cfg.Cluster != nil {
		checks = append(checks,
			binaryCheck("k3d", "k3d", "version"),
			binaryCheck("kubectl", "kubectl", "version", "--client"),
		)
		if len(cfg.Cluster.Addons) > 0 {
			checks = append(checks, binaryCheck("helm", "helm", "version"))
		}
	}
	return checks
}

type DoctorCmd struct{}

func (c *DoctorCmd) Run(cctx *Context) error {
	cfg, err := config.Load(cctx.ConfigPath)
	if err != nil {
		return err
	}

	ctx := context.Background()
	var errs []error
	for _, check := range checksFor(cfg) {
		if err := check.Run(ctx); err != nil {
			fmt.Printf("  ✗ %s\n", check.Description)
			slog.ErrorContext(ctx, "diagnosticCheck failed", "name", check.ID, "error", err)
			errs = append(errs, fmt.Errorf("check failed %q: %w", check.ID, err))
			continue
		}
		fmt.Printf("  ✓ %s\n", check.Description)
		slog.InfoContext(ctx, "diagnosticCheck passed", "name", check.ID)
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	fmt.Println("devrig: all checks passed")
	return nil
}
