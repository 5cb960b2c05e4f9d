package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/steveyackey/devrig/internal/cluster"
	"github.com/steveyackey/devrig/internal/containerdriver"
	"github.com/steveyackey/devrig/internal/orchestrator"
	"github.com/steveyackey/devrig/internal/state"
	"github.com/steveyackey/devrig/sshimmer"
)

// ForwardCmd tunnels a local port into a managed container over SSH,
// covering the ports devrig never published to the host: devrig mints
// a CA-signed host key, installs it (plus its own user CA) into the
// container, starts an sshd against them, and relays the local port
// through it — no TOFU prompt, no published port.
type ForwardCmd struct {
	LocalPort  int    `arg:"" help:"local port to listen on (127.0.0.1)"`
	Resource   string `arg:"" help:"container resource name from the manifest"`
	RemotePort int    `arg:"" help:"port inside the container to relay to"`
}

func (c *ForwardCmd) Run(cctx *Context) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	s, err := sshimmer.NewLocalSSHimmer(ctx)
	if err != nil {
		return fmt.Errorf("loading SSH certificate authority: %w", err)
	}

	driver := containerdriver.New("")
	ip, err := driver.ContainerIP(ctx, ss.ContainerID, ps.Network)
	if err != nil {
		return err
	}

	// The host certificate's principal must match the address we dial.
	keys, err := s.NewKeys(ctx, ip)
	if err != nil {
		return fmt.Errorf("issuing host keys for %s: %w", c.Resource, err)
	}
	if err := driver.ProvisionSSH(ctx, ss.ContainerID, keys); err != nil {
		return fmt.Errorf("provisioning sshd in %s: %w", c.Resource, err)
	}

	// Best effort: make plain `ssh` work against the container too, by
	// ensuring the user's ssh config includes devrig's generated one.
	if fix, err := sshimmer.CheckSSHReachability(ctx, c.Resource); err == nil && fix != nil {
		if err := fix(); err != nil {
			fmt.Fprintf(os.Stderr, "devrig: could not update ~/.ssh/config: %v\n", err)
		}
	}

	sshAddr := fmt.Sprintf("%s:22", ip)
	fmt.Printf("devrig: forwarding 127.0.0.1:%d -> %s port %d (ctrl-c to stop)\n", c.LocalPort, c.Resource, c.RemotePort)
	if err := cluster.SSHFallbackForward(ctx, s, c.LocalPort, sshAddr, c.RemotePort); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
