package orchestrator

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/steveyackey/devrig/internal/compose"
)

// phaseCompose brings up the manifest's compose stack, if declared,
// and bridges every resulting container onto devrig's project network
// so devrig-managed containers and services can reach it by container
// name.
func (o *Orchestrator) phaseCompose(ctx context.Context, rs *runState) error {
	if o.cfg.Compose == nil {
		return nil
	}
	cc := o.cfg.Compose

	composeFile := resolveConfigPath(o.configDir, cc.Path)
	envFile := ""
	if cc.EnvFile != "" {
		envFile = resolveConfigPath(o.configDir, cc.EnvFile)
	}

	declared, err := compose.DeclaredServices(composeFile)
	if err != nil {
		return err
	}
	declaredSet := map[string]bool{}
	for _, name := range declared {
		declaredSet[name] = true
	}
	var unknown []string
	for _, name := range cc.Services {
		if !declaredSet[name] {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		return fmt.Errorf("compose file %s does not declare service(s): %s", composeFile, strings.Join(unknown, ", "))
	}

	if err := compose.Up(ctx, composeFile, o.identity.Slug, cc.Services, envFile); err != nil {
		return fmt.Errorf("bringing up compose stack: %w", err)
	}

	services, err := compose.PS(ctx, composeFile, o.identity.Slug)
	if err != nil {
		return fmt.Errorf("listing compose services: %w", err)
	}

	for _, svc := range services {
		rs.composeOut[svc.Service] = svc
		port := 0
		for _, pub := range svc.Publishers {
			port = pub.PublishedPort
			break
		}
		rs.resolved[svc.Service] = resolvedPort{Port: port, Kind: "compose_service"}

		if check, ok := cc.ReadyChecks[svc.Service]; ok {
			if err := o.driver.RunReadyCheck(ctx, svc.ID, check, port, svc.Service); err != nil {
				return fmt.Errorf("compose service %s did not become ready: %w", svc.Service, err)
			}
		}
	}

	if err := compose.BridgeContainers(ctx, rs.networkName, services); err != nil {
		return fmt.Errorf("bridging compose containers onto project network: %w", err)
	}
	return nil
}

func resolveConfigPath(configDir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(configDir, path)
}
