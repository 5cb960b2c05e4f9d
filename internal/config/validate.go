package config

import (
	"fmt"
	"strings"

	"github.com/steveyackey/devrig/internal/devrigerr"
)

// Validate checks every manifest invariant: dependency targets
// must exist, fixed ports must not collide, names must be unique across
// all four resource kinds, commands must be non-empty, and restart
// policies must be well-formed. All violations are collected into one
// report rather than failing on the first (mirrors the template
// resolver's two-pass aggregation).
func Validate(c *Configuration) *devrigerr.ConfigReport {
	report := &devrigerr.ConfigReport{}

	names := map[string]ResourceKind{}
	addName := func(name string, kind ResourceKind, field string) {
		if existing, ok := names[name]; ok {
			report.Add(field, "name %q is already used by a %s resource; names must be unique across services, containers, compose services, and cluster deploys", name, existing)
			return
		}
		names[name] = kind
	}

	for name, svc := range c.Services {
		field := fmt.Sprintf("services.%s", name)
		addName(name, KindService, field)
		if strings.TrimSpace(svc.Command) == "" {
			report.Add(field+".command", "command must not be empty")
		}
		if svc.Restart != nil {
			validateRestartPolicy(report, field+".restart", *svc.Restart)
		}
	}

	for name, ctr := range c.Containers {
		field := fmt.Sprintf("containers.%s", name)
		addName(name, KindContainer, field)
		if strings.TrimSpace(ctr.Image) == "" {
			report.Add(field+".image", "image must not be empty")
		}
		if ctr.ReadyCheck != nil {
			validateReadyCheck(report, field+".ready_check", *ctr.ReadyCheck)
		}
	}

	if c.Compose != nil {
		for _, svc := range c.Compose.Services {
			addName(svc, KindComposeService, "compose.services")
		}
	}

	if c.Cluster != nil {
		for name := range c.Cluster.Deploys {
			addName(name, KindClusterDeploy, fmt.Sprintf("cluster.deploys.%s", name))
		}
		for name, addon := range c.Cluster.Addons {
			field := fmt.Sprintf("cluster.addons.%s", name)
			validateAddon(report, field, addon)
		}
	}

	// Pass 2: every depends_on target must be a known node.
	checkDeps := func(field string, deps []string) {
		for _, dep := range deps {
			if _, ok := names[dep]; !ok {
				report.Add(field, "depends_on target %q is not a declared service, container, compose service, or cluster deploy", dep)
			}
		}
	}
	for name, svc := range c.Services {
		checkDeps(fmt.Sprintf("services.%s.depends_on", name), svc.DependsOn)
	}
	for name, ctr := range c.Containers {
		checkDeps(fmt.Sprintf("containers.%s.depends_on", name), ctr.DependsOn)
	}
	if c.Cluster != nil {
		for name, dep := range c.Cluster.Deploys {
			checkDeps(fmt.Sprintf("cluster.deploys.%s.depends_on", name), dep.DependsOn)
		}

		// Addons live in their own namespace (global name uniqueness does
		// not span into cluster.addons), so their depends_on targets are checked
		// against each other rather than against `names`.
		for name, addon := range c.Cluster.Addons {
			for _, dep := range addon.DependsOn {
				if _, ok := c.Cluster.Addons[dep]; !ok {
					report.Add(fmt.Sprintf("cluster.addons.%s.depends_on", name), "depends_on target %q is not a declared addon", dep)
				}
			}
		}
	}

	// Pass 3: no two fixed ports collide.
	fixedPorts := map[int][]string{}
	record := func(resource string, p *Port) {
		if p == nil || p.Auto || p.Fixed == 0 {
			return
		}
		fixedPorts[p.Fixed] = append(fixedPorts[p.Fixed], resource)
	}
	for name, svc := range c.Services {
		record(name, svc.Port)
	}
	for name, ctr := range c.Containers {
		record(name, ctr.Port)
		for pname, p := range ctr.Ports {
			pp := p
			record(fmt.Sprintf("%s.%s", name, pname), &pp)
		}
	}
	for port, owners := range fixedPorts {
		if len(owners) > 1 {
			report.Add("ports", "port %d is declared by more than one resource: %s", port, strings.Join(owners, ", "))
		}
	}

	if strings.TrimSpace(c.Project) == "" {
		report.Add("project", "project name must not be empty")
	}

	return report
}

func validateRestartPolicy(report *devrigerr.ConfigReport, field string, r RestartConfig) {
	switch r.Policy {
	case "", RestartAlways, RestartOnFailure, RestartNever:
	default:
		report.Add(field+".policy", "invalid restart policy %q: must be always, on-failure, or never", r.Policy)
	}
	if r.MaxRestarts < 0 {
		report.Add(field+".max_restarts", "must be >= 0")
	}
	if r.StartupMaxRestarts < 0 {
		report.Add(field+".startup_max_restarts", "must be >= 0")
	}
}

func validateReadyCheck(report *devrigerr.ConfigReport, field string, r ReadyCheck) {
	switch r.Type {
	case ReadyPgIsReady, ReadyTCP:
	case ReadyCmd:
		if strings.TrimSpace(r.Command) == "" {
			report.Add(field+".command", "cmd ready check requires a command")
		}
	case ReadyHTTP:
		if strings.TrimSpace(r.URL) == "" {
			report.Add(field+".url", "http ready check requires a url")
		}
	case ReadyLog:
		if strings.TrimSpace(r.Pattern) == "" {
			report.Add(field+".pattern", "log ready check requires a pattern")
		}
	default:
		report.Add(field+".type", "invalid ready check type %q: must be pg_isready, cmd, http, tcp, or log", r.Type)
	}
}

func validateAddon(report *devrigerr.ConfigReport, field string, a AddonConfig) {
	switch a.Type {
	case AddonHelm:
		if strings.TrimSpace(a.Chart) == "" {
			report.Add(field+".chart", "helm addon requires a chart")
		}
	case AddonManifest, AddonKustomize:
		if strings.TrimSpace(a.Path) == "" {
			report.Add(field+".path", "%s addon requires a path", a.Type)
		}
	default:
		report.Add(field+".type", "invalid addon type %q: must be helm, manifest, or kustomize", a.Type)
	}
}
