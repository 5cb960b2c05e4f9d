package main

import (
	"fmt"
	"sort"

	"github.com/steveyackey/devrig/internal/orchestrator"
)

type EnvCmd struct {
	Service string `arg:"" help:"service name whose injected environment to print"`
}

func (c *EnvCmd) Run(cctx *Context) error {
	o, err := orchestrator.FromConfig(cctx.ConfigPath)
	if err != nil {
		return err
	}
	env, err := o.PreviewEnv(c.Service)
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("%s=%s\n", k, env[k])
	}
	return nil
}
