package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/steveyackey/devrig/internal/config"
	"github.com/steveyackey/devrig/internal/containerdriver"
	"github.com/steveyackey/devrig/internal/state"
)

// phaseContainers starts every [containers.<name>] entry in dependency
// order: allocates its ports, pulls and creates the container, runs its
// ready check, and finally its one-time init scripts.
func (o *Orchestrator) phaseContainers(ctx context.Context, rs *runState) error {
	for _, node := range rs.launchOrder {
		if node.Kind != config.KindContainer {
			continue
		}
		cc := o.cfg.Containers[node.Name]
		res, err := o.startContainer(ctx, rs, node.Name, cc)
		if err != nil {
			return fmt.Errorf("starting container %s: %w", node.Name, err)
		}
		rs.dockerOut[node.Name] = res
		rs.resolved[node.Name] = resolvedPort{
			Port: res.Port, Auto: res.PortAuto, Named: res.Named,
			Kind: config.KindContainer, Image: cc.Image, Env: cc.Env,
		}
	}
	return nil
}

func (o *Orchestrator) startContainer(ctx context.Context, rs *runState, name string, cc config.ContainerConfig) (dockerResult, error) {
	var mainPort int
	var mainAuto bool
	var mappings []containerdriver.PortMapping

	if cc.Port != nil {
		alloc, err := rs.allocator.Resolve(name, fixedPortOf(cc.Port))
		if err != nil {
			return dockerResult{}, err
		}
		mainPort, mainAuto = alloc.Port, alloc.Auto
		mappings = append(mappings, containerdriver.PortMapping{ContainerPort: alloc.Port, HostPort: alloc.Port})
	}

	named := map[string]int{}
	for alias, p := range cc.Ports {
		resourceName := fmt.Sprintf("%s.%s", name, alias)
		alloc, err := rs.allocator.Resolve(resourceName, fixedPortOf(&p))
		if err != nil {
			return dockerResult{}, err
		}
		named[alias] = alloc.Port
		mappings = append(mappings, containerdriver.PortMapping{ContainerPort: p.Fixed, HostPort: alloc.Port})
	}

	var volumes []containerdriver.VolumeBind
	for _, v := range cc.Volumes {
		source, target, ok := splitVolume(v)
		if !ok {
			continue
		}
		if isBindMount(source) {
			volumes = append(volumes, containerdriver.VolumeBind{Source: source, Target: target})
			continue
		}
		// Named volumes are project-prefixed and labeled so `devrig
		// delete` can find them again by label selector.
		volName := fmt.Sprintf("devrig-%s-%s", o.identity.Slug, source)
		if err := o.driver.EnsureVolume(ctx, volName, containerdriver.Labels(o.identity.Slug, name)); err != nil {
			return dockerResult{}, fmt.Errorf("ensuring volume %s for %s: %w", volName, name, err)
		}
		volumes = append(volumes, containerdriver.VolumeBind{Source: volName, Target: target})
	}

	if cc.Registry != nil {
		if host := registryHostFrom(cc.Image); host != "" {
			if err := o.driver.RegistryLogin(ctx, host, cc.Registry.Username, cc.Registry.Password); err != nil {
				return dockerResult{}, fmt.Errorf("logging into registry for %s: %w", name, err)
			}
		}
	}
	if !o.driver.ImageExists(ctx, cc.Image) {
		if err := o.driver.Pull(ctx, cc.Image); err != nil {
			return dockerResult{}, fmt.Errorf("pulling image %s: %w", cc.Image, err)
		}
	}

	spec := containerdriver.CreateSpec{
		Name: name, Slug: o.identity.Slug, Image: cc.Image, Env: cc.Env,
		Ports: mappings, Volumes: volumes, Network: rs.networkName,
		Command: cc.Command, Entrypoint: cc.Entrypoint,
	}
	id, err := o.driver.Create(ctx, spec)
	if err != nil {
		return dockerResult{}, err
	}
	if err := o.driver.Start(ctx, id); err != nil {
		return dockerResult{}, err
	}

	if cc.ReadyCheck != nil {
		if err := o.driver.RunReadyCheck(ctx, id, *cc.ReadyCheck, mainPort, name); err != nil {
			return dockerResult{}, err
		}
	}

	res := dockerResult{ContainerID: id, Port: mainPort, PortAuto: mainAuto, Named: named}

	// Init scripts are one-shot per project: once a prior run recorded
	// them as completed, restarts never re-run them until `devrig reset`
	// clears the flag.
	if prev, ok := prevContainerState(rs.prevState, name); ok && prev.InitCompleted {
		res.InitCompleted = true
		res.InitCompletedAt = prev.InitCompletedAt
		return res, nil
	}
	if len(cc.InitScripts) > 0 {
		if err := o.driver.RunInitScripts(ctx, id, cc.Image, cc.Env, cc.InitScripts); err != nil {
			return dockerResult{}, err
		}
		now := time.Now()
		res.InitCompleted = true
		res.InitCompletedAt = &now
	}

	return res, nil
}

func prevContainerState(prev *state.ProjectState, name string) (state.ServiceState, bool) {
	if prev == nil {
		return state.ServiceState{}, false
	}
	ss, ok := prev.Services[name]
	return ss, ok
}

func fixedPortOf(p *config.Port) *int {
	if p == nil || p.Auto {
		return nil
	}
	f := p.Fixed
	return &f
}

func splitVolume(v string) (source, target string, ok bool) {
	parts := strings.SplitN(v, ":", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// isBindMount reports whether a volume source is a host path rather
// than a named volume: absolute paths and explicit ./ or ../ relative
// paths pass through unmodified.
func isBindMount(source string) bool {
	return strings.HasPrefix(source, "/") ||
		strings.HasPrefix(source, "./") ||
		strings.HasPrefix(source, "../")
}

// registryHostFrom extracts the registry hostname from an image
// reference, returning "" for unqualified Docker Hub images that don't
// need an explicit login target.
func registryHostFrom(image string) string {
	parts := strings.SplitN(image, "/", 2)
	if len(parts) == 2 && (strings.Contains(parts[0], ".") || strings.Contains(parts[0], ":")) {
		return parts[0]
	}
	return ""
}
