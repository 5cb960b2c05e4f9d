// Package compose bridges a project's docker-compose-managed services
// onto devrig's own Docker network by shelling out to the `docker
// compose` CLI plugin, matching the container driver's shell-out-and-parse
// style rather than linking a compose implementation.
package compose

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/steveyackey/devrig/internal/devrigerr"
)

// Publisher is one published port mapping reported by `docker compose ps`.
type Publisher struct {
	TargetPort    int `json:"TargetPort"`
	PublishedPort int `json:"PublishedPort"`
}

// Service is one row of `docker compose ps --format json`, either
// decoded from a top-level JSON array or from newline-delimited JSON
// objects depending on the installed compose plugin's version.
type Service struct {
	ID         string      `json:"ID"`
	Name       string      `json:"Name"`
	Service    string      `json:"Service"`
	State      string      `json:"State"`
	Health     string      `json:"Health"`
	Publishers []Publisher `json:"Publishers"`
}

func run(ctx context.Context, op string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "docker", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	slog.Debug("compose exec", "args", args)
	if err := cmd.Run(); err != nil {
		return "", &devrigerr.DriverError{Driver: "docker compose", Op: op, Stderr: stderr.String(), Wrapped: err}
	}
	return stdout.String(), nil
}

// DeclaredServices parses the compose file directly and returns its
// declared service names, sorted. Used both to validate the manifest's
// selected-service subset before anything starts and to implement
// "empty selection means every service".
func DeclaredServices(composeFile string) ([]string, error) {
	raw, err := os.ReadFile(composeFile)
	if err != nil {
		return nil, fmt.Errorf("reading compose file %s: %w", composeFile, err)
	}
	var doc struct {
		Services map[string]any `yaml:"services"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parsing compose file %s: %w", composeFile, err)
	}
	names := make([]string, 0, len(doc.Services))
	for name := range doc.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Up brings up services (or every service in the file, if services is
// empty) in detached mode, scoped under projectName so its containers,
// network, and volumes don't collide with any other compose project on
// the host.
func Up(ctx context.Context, composeFile, projectName string, services []string, envFile string) error {
	args := []string{"compose", "-f", composeFile, "-p", projectName}
	if envFile != "" {
		args = append(args, "--env-file", envFile)
	}
	args = append(args, "up", "-d")
	args = append(args, services...)
	_, err := run(ctx, "up", args...)
	return err
}

// Down tears down projectName's compose stack, removing any container
// left orphaned by a manifest edit that dropped a service between runs.
func Down(ctx context.Context, composeFile, projectName string) error {
	_, err := run(ctx, "down", "compose", "-f", composeFile, "-p", projectName, "down", "--remove-orphans")
	return err
}

// PS returns the current state of every container in projectName's
// compose stack, parsing whichever of the two output shapes the
// installed compose plugin emits.
func PS(ctx context.Context, composeFile, projectName string) ([]Service, error) {
	out, err := run(ctx, "ps", "compose", "-f", composeFile, "-p", projectName, "ps", "--format", "json")
	if err != nil {
		return nil, err
	}
	return parsePS(out)
}

func parsePS(out string) ([]Service, error) {
	trimmed := strings.TrimSpace(out)
	if trimmed == "" {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var services []Service
		if err := json.Unmarshal([]byte(trimmed), &services); err != nil {
			return nil, fmt.Errorf("parsing compose ps JSON array: %w", err)
		}
		return services, nil
	}

	var services []Service
	for _, line := range strings.Split(trimmed, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var svc Service
		if err := json.Unmarshal([]byte(line), &svc); err != nil {
			return nil, fmt.Errorf("parsing compose ps line %q: %w", line, err)
		}
		services = append(services, svc)
	}
	return services, nil
}

// BridgeContainers attaches every compose-managed container onto
// devrig's project network by container id, so devrig-managed
// containers and services can reach compose services by container
// name instead of a published host port. Connecting a container that's
// already a network member is a no-op error from docker's perspective,
// so a per-container failure here is logged and skipped rather than
// aborting the whole bridge.
func BridgeContainers(ctx context.Context, network string, services []Service) error {
	for _, svc := range services {
		if svc.ID == "" {
			continue
		}
		if _, err := run(ctx, "network-connect", "network", "connect", network, svc.ID); err != nil {
			slog.Warn("failed to bridge compose container onto project network", "service", svc.Service, "container", svc.ID, "network", network, "error", err)
		}
	}
	return nil
}
