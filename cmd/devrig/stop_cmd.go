package main

import (
	"context"
	"fmt"

	"github.com/steveyackey/devrig/internal/lock"
	"github.com/steveyackey/devrig/internal/orchestrator"
)

type StopCmd struct{}

func (c *StopCmd) Run(cctx *Context) error {
	o, err := orchestrator.FromConfig(cctx.ConfigPath)
	if err != nil {
		return err
	}
	if err := o.Stop(context.Background()); err != nil {
		return err
	}
	fmt.Printf("devrig: %s stopped\n", o.Identity().Name)
	return nil
}

// refuseIfRunning guards the destructive commands: when the project's
// lock file names a PID that is still alive, a `devrig up` owns the
// project and reset/delete must not race it.
func refuseIfRunning(stateDir string) error {
	pid, err := lock.ReadHolder(lock.PathFor(stateDir))
	if err != nil || pid == 0 {
		return nil
	}
	if lock.IsLive(pid) {
		return fmt.Errorf("project appears to be running (pid %d); stop it first", pid)
	}
	return nil
}
