// Package containerdriver manages the lifecycle of a project's managed
// container workloads by shelling out to a Docker-CLI-compatible
// binary (docker, podman, or nerdctl), driving external tools via
// os/exec and slog rather than linking a heavyweight client SDK.
package containerdriver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/steveyackey/devrig/internal/devrigerr"
	"github.com/steveyackey/devrig/options"
)

// PortMapping binds one container port to a host port.
type PortMapping struct {
	ContainerPort int
	HostPort      int
}

// VolumeBind mounts a named volume (or bind path) at a container path.
type VolumeBind struct {
	Source string
	Target string
}

// CreateSpec describes everything needed to create and start one
// container.
type CreateSpec struct {
	Name       string // bare resource name, e.g. "postgres"
	Slug       string // project slug, e.g. "myapp-a1b2c3d4"
	Image      string
	Env        map[string]string
	Ports      []PortMapping
	Volumes    []VolumeBind
	Network    string
	Command    []string
	Entrypoint []string
}

// ContainerName returns the deterministic container name for one
// resource within a project, matching "devrig-{slug}-{name}".
func ContainerName(slug, name string) string {
	return fmt.Sprintf("devrig-%s-%s", slug, name)
}

// NetworkName returns the deterministic project network name.
func NetworkName(slug string) string {
	return fmt.Sprintf("devrig-%s-net", slug)
}

// Labels returns the standard resource labels devrig stamps onto every
// container, volume, and network it creates, so `devrig reset`/`delete`
// can find and clean them up by label selector alone.
func Labels(slug, name string) map[string]string {
	return map[string]string{
		"devrig.project":    slug,
		"devrig.service":    name,
		"devrig.managed-by": "devrig",
	}
}

// Driver talks to a Docker-CLI-compatible container engine.
type Driver struct {
	// Binary is the CLI to invoke: "docker" by default, overridable for
	// nerdctl/podman compatibility.
	Binary string
}

// New returns a Driver using binary (falls back to "docker" if empty).
func New(binary string) *Driver {
	if binary == "" {
		binary = "docker"
	}
	return &Driver{Binary: binary}
}

func (d *Driver) run(ctx context.Context, op string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, d.Binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	slog.Debug("container driver exec", "binary", d.Binary, "args", args)
	if err := cmd.Run(); err != nil {
		return "", &devrigerr.DriverError{Driver: d.Binary, Op: op, Stderr: stderr.String(), Wrapped: err}
	}
	return strings.TrimSpace(stdout.String()), nil
}

// ImageExists reports whether image is present in the local image
// cache, so Pull can skip a network round trip for images already
// fetched.
func (d *Driver) ImageExists(ctx context.Context, image string) bool {
	_, err := d.run(ctx, "image-inspect", "image", "inspect", image)
	return err == nil
}

// Pull fetches image. It does not authenticate; logging in to a private
// registry is a separate RegistryLogin call.
func (d *Driver) Pull(ctx context.Context, image string) error {
	_, err := d.run(ctx, "pull", "pull", image)
	return err
}

// RegistryLogin authenticates the driver's CLI against a registry host
// using a username/password pair before a Pull/Push against a private
// image.
func (d *Driver) RegistryLogin(ctx context.Context, registry, username, password string) error {
	cmd := exec.CommandContext(ctx, d.Binary, "login", registry, "-u", username, "--password-stdin")
	cmd.Stdin = strings.NewReader(password)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return &devrigerr.DriverError{Driver: d.Binary, Op: "login", Stderr: stderr.String(), Wrapped: err}
	}
	return nil
}

// EnsureNetwork creates the project network if it doesn't already
// exist; idempotent.
func (d *Driver) EnsureNetwork(ctx context.Context, name string, labels map[string]string) error {
	if _, err := d.run(ctx, "network-inspect", "network", "inspect", name); err == nil {
		return nil
	}
	args := []string{"network", "create"}
	for k, v := range labels {
		args = append(args, "--label", fmt.Sprintf("%s=%s", k, v))
	}
	args = append(args, name)
	_, err := d.run(ctx, "network-create", args...)
	return err
}

// EnsureVolume creates a named volume if it doesn't already exist.
func (d *Driver) EnsureVolume(ctx context.Context, name string, labels map[string]string) error {
	if _, err := d.run(ctx, "volume-inspect", "volume", "inspect", name); err == nil {
		return nil
	}
	args := []string{"volume", "create"}
	for k, v := range labels {
		args = append(args, "--label", fmt.Sprintf("%s=%s", k, v))
	}
	args = append(args, name)
	_, err := d.run(ctx, "volume-create", args...)
	return err
}

// createArgs builds the `docker create` argument list for spec via
// options.ToArgs, kept separate from Create so the flag-building logic
// is testable without shelling out.
func createArgs(spec CreateSpec) []string {
	publish := make([]string, 0, len(spec.Ports))
	for _, p := range spec.Ports {
		publish = append(publish, fmt.Sprintf("127.0.0.1:%d:%d", p.HostPort, p.ContainerPort))
	}
	volume := make([]string, 0, len(spec.Volumes))
	for _, v := range spec.Volumes {
		volume = append(volume, fmt.Sprintf("%s:%s", v.Source, v.Target))
	}
	var entrypoint string
	if len(spec.Entrypoint) > 0 {
		entrypoint = strings.Join(spec.Entrypoint, " ")
	}

	opts := options.CreateContainer{
		ProcessOptions: options.ProcessOptions{
			Env: spec.Env,
		},
		ManagementOptions: options.ManagementOptions{
			Name:       ContainerName(spec.Slug, spec.Name),
			Network:    spec.Network,
			Label:      Labels(spec.Slug, spec.Name),
			Publish:    publish,
			Volume:     volume,
			Entrypoint: entrypoint,
		},
	}

	args := append([]string{"create"}, options.ToArgs(&opts)...)
	args = append(args, spec.Image)
	args = append(args, spec.Command...)
	return args
}

// Create builds (but does not start) a container from spec, returning
// its engine-assigned id.
func (d *Driver) Create(ctx context.Context, spec CreateSpec) (string, error) {
	id, err := d.run(ctx, "create", createArgs(spec)...)
	if err != nil {
		return "", err
	}
	return id, nil
}

// Start starts a previously-created container.
func (d *Driver) Start(ctx context.Context, id string) error {
	_, err := d.run(ctx, "start", "start", id)
	return err
}

// Stop sends a graceful stop to the container, with the engine's own
// SIGTERM-then-SIGKILL grace period.
func (d *Driver) Stop(ctx context.Context, id string) error {
	_, err := d.run(ctx, "stop", "stop", id)
	return err
}

// Remove deletes the container, forcing removal if it's still running.
func (d *Driver) Remove(ctx context.Context, id string) error {
	_, err := d.run(ctx, "rm", "rm", "-f", id)
	return err
}

// RemoveVolume deletes a named volume.
func (d *Driver) RemoveVolume(ctx context.Context, name string) error {
	_, err := d.run(ctx, "volume-rm", "volume", "rm", "-f", name)
	return err
}

// RemoveNetwork deletes the project network.
func (d *Driver) RemoveNetwork(ctx context.Context, name string) error {
	_, err := d.run(ctx, "network-rm", "network", "rm", name)
	return err
}

// Exec runs command inside the running container id and returns its
// exit code and combined output.
func (d *Driver) Exec(ctx context.Context, id string, command []string) (int, string, error) {
	args := append([]string{"exec", id}, command...)
	cmd := exec.CommandContext(ctx, d.Binary, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	code := 0
	if exitErr, ok := err.(*exec.ExitError); ok {
		code = exitErr.ExitCode()
	} else if err != nil {
		return -1, out.String(), &devrigerr.DriverError{Driver: d.Binary, Op: "exec", Wrapped: err}
	}
	return code, out.String(), nil
}

// Labeled lists container ids matching a "devrig.project=<slug>" label
// selector, for bulk teardown in `devrig down`/`reset`/`delete`.
func (d *Driver) Labeled(ctx context.Context, slug string) ([]string, error) {
	out, err := d.run(ctx, "ps-filter", "ps", "-aq", "--filter", fmt.Sprintf("label=devrig.project=%s", slug))
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// LabeledVolumes lists volume names matching the project's label
// selector.
func (d *Driver) LabeledVolumes(ctx context.Context, slug string) ([]string, error) {
	out, err := d.run(ctx, "volume-ls", "volume", "ls", "-q", "--filter", fmt.Sprintf("label=devrig.project=%s", slug))
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// LabeledNetworks lists network names matching the project's label
// selector.
func (d *Driver) LabeledNetworks(ctx context.Context, slug string) ([]string, error) {
	out, err := d.run(ctx, "network-ls", "network", "ls", "-q", "--filter", fmt.Sprintf("label=devrig.project=%s", slug))
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// inspectResult is the subset of `docker inspect` output this package
// reads back after creating a container.
type inspectResult struct {
	State struct {
		Running bool `json:"Running"`
		Pid     int  `json:"Pid"`
	} `json:"State"`
}

// IsRunning reports whether the container id is currently running.
func (d *Driver) IsRunning(ctx context.Context, id string) (bool, error) {
	out, err := d.run(ctx, "inspect", "inspect", id)
	if err != nil {
		return false, err
	}
	var results []inspectResult
	if err := json.Unmarshal([]byte(out), &results); err != nil || len(results) == 0 {
		return false, fmt.Errorf("parsing inspect output for %s: %w", id, err)
	}
	return results[0].State.Running, nil
}
