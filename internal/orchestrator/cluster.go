package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/steveyackey/devrig/internal/cluster"
	"github.com/steveyackey/devrig/internal/config"
	"github.com/steveyackey/devrig/internal/state"
	"github.com/steveyackey/devrig/internal/watcher"
)

// phaseCluster creates the manifest's ephemeral cluster, if declared,
// discovers its local registry, builds and deploys every image in
// dependency order, installs addons, starts watch-triggered rebuilders
// for deploys that declared watch paths, and starts any addon port
// forwards.
func (o *Orchestrator) phaseCluster(ctx context.Context, rs *runState) error {
	if o.cfg.Cluster == nil {
		return nil
	}
	cc := o.cfg.Cluster
	mgr := cluster.New(o.identity.Slug, *cc, o.stateDir, rs.networkName)

	if err := mgr.Create(ctx); err != nil {
		return fmt.Errorf("creating cluster: %w", err)
	}
	if err := mgr.WriteKubeconfig(ctx); err != nil {
		return fmt.Errorf("writing kubeconfig: %w", err)
	}

	var registryPort int
	if cc.Registry {
		port, err := mgr.RegistryPort(ctx)
		if err != nil {
			return fmt.Errorf("discovering local registry port: %w", err)
		}
		if err := mgr.WaitForRegistry(ctx, port); err != nil {
			return fmt.Errorf("waiting for local registry: %w", err)
		}
		registryPort = port
	}

	now := time.Now()
	deployStates := map[string]state.DeployState{}

	for name, b := range cc.Builds {
		ds, err := mgr.BuildImage(ctx, name, b, o.configDir, registryPort, now)
		if err != nil {
			return fmt.Errorf("building image %s: %w", name, err)
		}
		deployStates[name] = ds
	}

	for _, node := range rs.launchOrder {
		if node.Kind != config.KindClusterDeploy {
			continue
		}
		d := cc.Deploys[node.Name]
		ds, err := mgr.Deploy(ctx, node.Name, d, o.configDir, registryPort, now)
		if err != nil {
			return fmt.Errorf("deploying %s: %w", node.Name, err)
		}
		deployStates[node.Name] = ds
	}

	for _, node := range rs.launchOrder {
		if node.Kind != config.KindClusterDeploy {
			continue
		}
		d := cc.Deploys[node.Name]
		if len(d.Watch) == 0 {
			continue
		}
		name := node.Name
		dd := d
		contextDir := filepath.Join(o.configDir, dd.Context)
		o.spawn(func(ctx context.Context) {
			rebuild := func(rctx context.Context) error {
				_, err := mgr.Rebuild(rctx, name, dd, o.configDir, registryPort, time.Now())
				return err
			}
			if err := watcher.WatchAndRebuild(ctx, name, contextDir, rebuild); err != nil {
				slog.Warn("deploy watcher stopped", "deploy", name, "error", err)
			}
		})
	}

	// Build-only images rebuild on change too; they just have no
	// workload to rollout-restart afterwards.
	for name, b := range cc.Builds {
		if len(b.Watch) == 0 {
			continue
		}
		buildName := name
		bb := b
		contextDir := filepath.Join(o.configDir, bb.Context)
		o.spawn(func(ctx context.Context) {
			rebuild := func(rctx context.Context) error {
				_, err := mgr.BuildImage(rctx, buildName, bb, o.configDir, registryPort, time.Now())
				return err
			}
			if err := watcher.WatchAndRebuild(ctx, buildName, contextDir, rebuild); err != nil {
				slog.Warn("image watcher stopped", "image", buildName, "error", err)
			}
		})
	}

	addonOrder, err := cluster.InstallOrder(cc.Addons)
	if err != nil {
		return fmt.Errorf("resolving addon install order: %w", err)
	}
	installedAddons := map[string]state.AddonState{}
	for _, name := range addonOrder {
		addon := cc.Addons[name]
		if err := mgr.InstallAddon(ctx, name, addon, o.configDir); err != nil {
			return fmt.Errorf("installing addon %s: %w", name, err)
		}
		installedAddons[name] = state.AddonState{AddonType: string(addon.Type), Namespace: addon.Namespace, InstalledAt: now}
	}

	pfMgr := cluster.NewPortForwardManager(mgr, stableSeed(o.identity.ID))
	for name, addon := range cc.Addons {
		if len(addon.PortForward) == 0 {
			continue
		}
		forwards, err := pfMgr.ParseAddonForwards(name, addon.PortForward)
		if err != nil {
			return fmt.Errorf("parsing port forwards for addon %s: %w", name, err)
		}
		for _, f := range forwards {
			pfMgr.Start(ctx, f)
		}
	}
	o.mu.Lock()
	o.portForwardMgr = pfMgr
	o.mu.Unlock()

	rs.cluster = &clusterResult{
		manager:         mgr,
		registryPort:    registryPort,
		deployStates:    deployStates,
		installedAddons: installedAddons,
	}
	return nil
}
