package main

import (
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/creack/pty"
	"golang.org/x/term"

	"github.com/steveyackey/devrig/internal/orchestrator"
	"github.com/steveyackey/devrig/internal/state"
)

type ExecCmd struct {
	Resource string   `arg:"" help:"container resource name from the manifest"`
	Command  []string `arg:"" optional:"" passthrough:"" help:"command to run (defaults to sh)"`
}

func (c *ExecCmd) Run(cctx *Context) error {
	o, err := orchestrator.FromConfig(cctx.ConfigPath)
	if err != nil {
		return err
	}
	ps, err := state.Load(o.StateDir())
	if err != nil {
		return err
	}
	if ps == nil {
		return fmt.Errorf("no running project found; run `devrig up` first")
	}
	ss, ok := ps.Services[c.Resource]
	if !ok || ss.ContainerID == "" {
		return fmt.Errorf("%q is not a running container in this project", c.Resource)
	}

	command := c.Command
	if len(command) == 0 {
		command = []string{"sh"}
	}

	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	args := []string{"exec", "-i"}
	if interactive {
		args = append(args, "-t")
	}
	args = append(args, ss.ContainerID)
	args = append(args, command...)
	cmd := exec.Command("docker", args...)

	if !interactive {
		cmd.Stdin = os.Stdin
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		return cmd.Run()
	}

	// Interactive sessions run through a pseudo-terminal so programs
	// like psql and redis-cli behave as if run directly.
	ptmx, err := pty.Start(cmd)
	if err != nil {
		return fmt.Errorf("starting pseudo-terminal: %w", err)
	}
	defer ptmx.Close()

	if size, err := pty.GetsizeFull(os.Stdin); err == nil {
		_ = pty.Setsize(ptmx, size)
	}

	oldState, err := term.MakeRaw(int(os.Stdin.Fd()))
	if err != nil {
		return fmt.Errorf("entering raw terminal mode: %w", err)
	}
	defer term.Restore(int(os.Stdin.Fd()), oldState)

	go func() { _, _ = io.Copy(ptmx, os.Stdin) }()
	_, _ = io.Copy(os.Stdout, ptmx)

	return cmd.Wait()
}
