package main

import (
	"context"
	"fmt"

	"github.com/steveyackey/devrig/internal/orchestrator"
)

type DeleteCmd struct {
	Force bool `short:"f" help:"delete even if a live devrig process appears to own the project"`
}

func (c *DeleteCmd) Run(cctx *Context) error {
	o, err := orchestrator.FromConfig(cctx.ConfigPath)
	if err != nil {
		return err
	}
	if !c.Force {
		if err := refuseIfRunning(o.StateDir()); err != nil {
			return err
		}
	}
	if err := o.Delete(context.Background()); err != nil {
		return err
	}
	fmt.Printf("devrig: %s deleted\n", o.Identity().Name)
	return nil
}
