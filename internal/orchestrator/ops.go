package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/steveyackey/devrig/internal/cluster"
	"github.com/steveyackey/devrig/internal/compose"
	"github.com/steveyackey/devrig/internal/state"
)

// Stop shuts down a previously started project from its persisted
// state: supervised processes get SIGTERM to their process groups, and
// every labeled container is stopped with its volumes preserved, so a
// later `devrig up` resumes where this run left off.
func (o *Orchestrator) Stop(ctx context.Context) error {
	ps, err := state.Load(o.stateDir)
	if err != nil {
		return err
	}
	if ps == nil {
		return fmt.Errorf("no running project found under %s", o.stateDir)
	}

	for name, svc := range ps.Services {
		if svc.Kind != state.KindService || svc.PID == 0 {
			continue
		}
		if err := syscall.Kill(-svc.PID, syscall.SIGTERM); err != nil {
			slog.Debug("signaling service process group failed", "service", name, "pid", svc.PID, "error", err)
		}
	}

	ids, err := o.driver.Labeled(ctx, o.identity.Slug)
	if err != nil {
		return fmt.Errorf("listing project containers: %w", err)
	}
	for _, id := range ids {
		if err := o.driver.Stop(ctx, id); err != nil {
			slog.Warn("failed to stop container", "container", id, "error", err)
		}
	}
	return nil
}

// Reset clears every container's init-completed flag so init scripts
// run again on the next start. It refuses nothing else: state is
// otherwise preserved.
func (o *Orchestrator) Reset() error {
	ps, err := state.Load(o.stateDir)
	if err != nil {
		return err
	}
	if ps == nil {
		return fmt.Errorf("no project state found under %s", o.stateDir)
	}
	for name, svc := range ps.Services {
		if svc.Kind != state.KindInfra {
			continue
		}
		svc.InitCompleted = false
		svc.InitCompletedAt = nil
		ps.Services[name] = svc
	}
	return state.Save(o.stateDir, ps)
}

// Delete tears the project down completely: every labeled container,
// volume, and network goes, the cluster is deleted, the compose stack
// is brought down, the state directory is removed, and the instance is
// dropped from the global registry. Every step runs even when an
// earlier one fails; the first failure is reported at the end.
func (o *Orchestrator) Delete(ctx context.Context) error {
	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	ids, err := o.driver.Labeled(ctx, o.identity.Slug)
	record(err)
	g, gctx := errgroup.WithContext(ctx)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			if err := o.driver.Stop(gctx, id); err != nil {
				slog.Debug("stop before remove failed", "container", id, "error", err)
			}
			return o.driver.Remove(gctx, id)
		})
	}
	record(g.Wait())

	vols, err := o.driver.LabeledVolumes(ctx, o.identity.Slug)
	record(err)
	for _, vol := range vols {
		record(o.driver.RemoveVolume(ctx, vol))
	}

	if o.cfg.Cluster != nil {
		mgr := cluster.New(o.identity.Slug, *o.cfg.Cluster, o.stateDir, "")
		if err := mgr.Delete(ctx); err != nil {
			slog.Warn("cluster delete failed", "cluster", mgr.ClusterName, "error", err)
			record(err)
		}
	}

	if o.cfg.Compose != nil {
		composeFile := resolveConfigPath(o.configDir, o.cfg.Compose.Path)
		if err := compose.Down(ctx, composeFile, o.identity.Slug); err != nil {
			slog.Warn("compose down failed", "error", err)
			record(err)
		}
	}

	nets, err := o.driver.LabeledNetworks(ctx, o.identity.Slug)
	record(err)
	for _, net := range nets {
		record(o.driver.RemoveNetwork(ctx, net))
	}

	record(os.RemoveAll(o.stateDir))
	o.unregisterInstance()
	return firstErr
}

func (o *Orchestrator) unregisterInstance() {
	home, err := os.UserHomeDir()
	if err != nil {
		return
	}
	path := state.RegistryPath(home)
	reg := state.LoadRegistry(path)
	reg.Unregister(o.identity.Slug)
	reg.Cleanup()
	if err := reg.Save(path); err != nil {
		slog.Warn("could not update instance registry", "error", err)
	}
}
