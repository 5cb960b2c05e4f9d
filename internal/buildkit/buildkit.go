// Package buildkit builds images for cluster deploys with a local `docker
// build`, then tags and pushes the result with go-containerregistry rather
// than shelling out to `docker push` a second time — letting the build
// step stay CLI-driven (buildkit's daemon does the actual building) while
// the push step talks directly to the registry's HTTP API.
package buildkit

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/daemon"
	"github.com/google/go-containerregistry/pkg/v1/remote"

	"github.com/steveyackey/devrig/internal/devrigerr"
)

// Spec describes one image to build.
type Spec struct {
	Name       string // logical name, e.g. the [cluster.deploys.<name>] key
	Context    string // build context directory, absolute
	Dockerfile string // relative to Context, or absolute
}

// Result is the outcome of a Build: the tag the image was built (and, if
// a registry was available, pushed) under.
type Result struct {
	Tag         string
	Pushed      bool
	BuiltAt     time.Time
}

// Tag computes the image reference for spec: "localhost:{port}/{name}:{ts}"
// when a local registry is available, else a local-only
// "devrig-{name}:latest" tag that never leaves the docker daemon.
func Tag(spec Spec, registryPort int, now time.Time) string {
	if registryPort > 0 {
		return fmt.Sprintf("localhost:%d/%s:%d", registryPort, spec.Name, now.Unix())
	}
	return fmt.Sprintf("devrig-%s:latest", spec.Name)
}

// Build runs `docker build` for spec, tagging the result with tag. The
// actual build stays shelled out to the docker CLI/buildkit daemon, which
// already does caching, layer dedup, and BuildKit frontend parsing far
// better than this package should try to reimplement.
func Build(ctx context.Context, spec Spec, tag string) error {
	dockerfile := spec.Dockerfile
	if dockerfile == "" {
		dockerfile = "Dockerfile"
	}
	cmd := exec.CommandContext(ctx, "docker", "build", "-t", tag, "-f", dockerfile, ".")
	cmd.Dir = spec.Context
	out, err := cmd.CombinedOutput()
	if err != nil {
		return &devrigerr.DriverError{Driver: "docker", Op: "build " + spec.Name, Stderr: string(out), Wrapped: err}
	}
	slog.Debug("image built", "name", spec.Name, "tag", tag)
	return nil
}

// Push reads the freshly-built image back out of the local docker daemon
// and writes it to the registry named in tag, using go-containerregistry's
// daemon/remote packages instead of a second `docker push` shell-out.
func Push(ctx context.Context, tag string) error {
	ref, err := name.ParseReference(tag)
	if err != nil {
		return fmt.Errorf("parsing image tag %q: %w", tag, err)
	}

	img, err := daemon.Image(ref, daemon.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("reading %q from local docker daemon: %w", tag, err)
	}

	if err := remote.Write(ref, img, remote.WithContext(ctx)); err != nil {
		return fmt.Errorf("pushing %q: %w", tag, err)
	}
	slog.Debug("image pushed", "tag", tag)
	return nil
}

// BuildAndPush builds spec and, when registryPort is non-zero, pushes it.
// It mirrors the build-then-maybe-push shape every cluster deploy/image
// entry needs, whether or not the project's cluster has a local registry.
func BuildAndPush(ctx context.Context, spec Spec, registryPort int, now time.Time) (Result, error) {
	tag := Tag(spec, registryPort, now)
	if err := Build(ctx, spec, tag); err != nil {
		return Result{}, err
	}
	result := Result{Tag: tag, BuiltAt: now}
	if registryPort == 0 {
		return result, nil
	}
	if err := Push(ctx, tag); err != nil {
		return Result{}, err
	}
	result.Pushed = true
	return result, nil
}
