package orchestrator

import (
	"fmt"

	"github.com/steveyackey/devrig/internal/config"
	"github.com/steveyackey/devrig/internal/state"
)

// PreviewEnv computes the environment devrig would inject into one
// service without starting anything. Ports come from the last run's
// persisted state where available (sticky auto ports, dashboard
// ports); fixed ports come straight from the manifest; a resource that
// has never run and has no fixed port appears host-only.
func (o *Orchestrator) PreviewEnv(service string) (map[string]string, error) {
	if _, ok := o.cfg.Services[service]; !ok {
		return nil, fmt.Errorf("service %q is not declared in the manifest", service)
	}

	rs := &runState{
		composeOut: map[string]composeService{},
		dockerOut:  map[string]dockerResult{},
		resolved:   map[string]resolvedPort{},
	}
	if err := o.expandProjectEnv(rs); err != nil {
		return nil, err
	}

	ps, err := state.Load(o.stateDir)
	if err != nil {
		return nil, err
	}

	portFromState := func(name string, fallback *config.Port) (int, map[string]int) {
		if ps != nil {
			if ss, ok := ps.Services[name]; ok && (ss.Port != 0 || len(ss.NamedPorts) > 0) {
				return ss.Port, ss.NamedPorts
			}
		}
		if fallback != nil && !fallback.Auto {
			return fallback.Fixed, nil
		}
		return 0, nil
	}

	for name, svc := range o.cfg.Services {
		port, _ := portFromState(name, svc.Port)
		rs.resolved[name] = resolvedPort{Port: port, Kind: config.KindService, Env: rs.serviceEnv[name]}
	}
	for name, cc := range o.cfg.Containers {
		port, named := portFromState(name, cc.Port)
		if named == nil {
			named = map[string]int{}
			for alias, p := range cc.Ports {
				if !p.Auto {
					named[alias] = p.Fixed
				}
			}
		}
		rs.resolved[name] = resolvedPort{
			Port: port, Named: named,
			Kind: config.KindContainer, Image: cc.Image, Env: cc.Env,
		}
	}
	if ps != nil {
		for name, ss := range ps.Services {
			if ss.Kind == state.KindCompose {
				rs.resolved[name] = resolvedPort{Port: ss.Port, Kind: config.KindComposeService}
			}
		}
	}

	var dash *dashboardResult
	switch {
	case ps != nil && ps.Dashboard != nil:
		dash = &dashboardResult{
			enabled:  true,
			port:     ps.Dashboard.Port,
			grpcPort: ps.Dashboard.GRPCPort,
			httpPort: ps.Dashboard.HTTPPort,
		}
	case o.dashboardEnabled():
		ocfg := o.otelConfig()
		dash = &dashboardResult{
			enabled:  true,
			port:     o.dashboardConfig().PortOrDefault(),
			grpcPort: ocfg.GRPCPort,
			httpPort: ocfg.HTTPPort,
		}
	}

	return o.injectedEnv(service, rs, dash), nil
}
