package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
)

const (
	registryMinDelay = 250 * time.Millisecond
	registryMaxDelay = 3 * time.Second
	registryWait     = 15 * time.Second
)

// registryBreakers holds one circuit breaker per cluster, keyed by slug,
// so a registry that's flapping across several devrig invocations doesn't
// get hammered with a fresh probe storm every time. A single process only
// ever drives one project, but the map keeps this safe if that changes.
var registryBreakers = map[string]*gobreaker.CircuitBreaker{}

func registryBreakerFor(slug string) *gobreaker.CircuitBreaker {
	if cb, ok := registryBreakers[slug]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        fmt.Sprintf("registry-%s", slug),
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("registry circuit breaker state change", "breaker", name, "from", from, "to", to)
		},
	})
	registryBreakers[slug] = cb
	return cb
}

// RegistryPort looks up the host port for the k3d-managed local registry
// container. k3d prepends "k3d-" to the name passed to --registry-create.
func (m *Manager) RegistryPort(ctx context.Context) (int, error) {
	container := fmt.Sprintf("k3d-devrig-%s-reg", m.Slug)
	cmd := exec.CommandContext(ctx, "docker", "inspect", container, "--format", `{{(index .NetworkSettings.Ports "5000/tcp" 0).HostPort}}`)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("inspecting registry container %s: %w", container, err)
	}
	port, err := strconv.Atoi(strings.TrimSpace(string(out)))
	if err != nil {
		return 0, fmt.Errorf("parsing registry port: %w", err)
	}
	return port, nil
}

// WaitForRegistry polls the registry's /v2/ endpoint with jittered
// exponential backoff until it answers successfully or 15s elapses. Each
// attempt is routed through a per-project circuit breaker: once five
// consecutive probes fail the breaker opens and short-circuits further
// attempts for its cooldown window instead of continuing to dial a
// registry container that crashed or never started, surfacing that as a
// clear "circuit open" error rather than a confusing string of dial
// timeouts.
func (m *Manager) WaitForRegistry(ctx context.Context, port int) error {
	url := fmt.Sprintf("http://localhost:%d/v2/", port)
	breaker := registryBreakerFor(m.Slug)

	ctx, cancel := context.WithTimeout(ctx, registryWait)
	defer cancel()

	client := &http.Client{Timeout: 2 * time.Second}
	delay := registryMinDelay
	var lastErr error
	for {
		_, err := breaker.Execute(func() (any, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return nil, err
			}
			resp, err := client.Do(req)
			if err != nil {
				return nil, err
			}
			defer resp.Body.Close()
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				return nil, fmt.Errorf("registry returned status %d", resp.StatusCode)
			}
			return nil, nil
		})
		if err == nil {
			slog.Info("registry is ready", "port", port)
			return nil
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return fmt.Errorf("registry on port %d did not become ready within %s: %w", port, registryWait, lastErr)
		case <-time.After(jittered(delay)):
		}
		delay *= 2
		if delay > registryMaxDelay {
			delay = registryMaxDelay
		}
	}
}

func jittered(d time.Duration) time.Duration {
	return time.Duration(rand.Int63n(int64(d)))
}
