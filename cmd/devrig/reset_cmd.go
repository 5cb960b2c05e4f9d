package main

import (
	"fmt"

	"github.com/steveyackey/devrig/internal/orchestrator"
)

type ResetCmd struct{}

func (c *ResetCmd) Run(cctx *Context) error {
	o, err := orchestrator.FromConfig(cctx.ConfigPath)
	if err != nil {
		return err
	}
	if err := refuseIfRunning(o.StateDir()); err != nil {
		return err
	}
	if err := o.Reset(); err != nil {
		return err
	}
	fmt.Printf("devrig: init flags cleared for %s; init scripts will run on the next up\n", o.Identity().Name)
	return nil
}
