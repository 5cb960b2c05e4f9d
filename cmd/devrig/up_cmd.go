package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/steveyackey/devrig/internal/lock"
	"github.com/steveyackey/devrig/internal/orchestrator"
)

type UpCmd struct {
	Services []string `arg:"" optional:"" help:"limit startup to these services plus their transitive dependencies"`
}

func (c *UpCmd) Run(cctx *Context) error {
	o, err := orchestrator.FromConfig(cctx.ConfigPath)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(o.StateDir(), 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	lk, err := lock.Acquire(lock.PathFor(o.StateDir()))
	if err != nil {
		var held *lock.ErrHeld
		if errors.As(err, &held) {
			return fmt.Errorf("project %s is already running (%v); stop it first or wait for it to exit", o.Identity().Slug, held)
		}
		return err
	}
	defer lk.Release()

	return o.Start(context.Background(), c.Services)
}
