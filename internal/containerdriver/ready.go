package containerdriver

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"os/exec"
	"strings"
	"time"

	"github.com/steveyackey/devrig/internal/config"
	"github.com/steveyackey/devrig/internal/devrigerr"
)

const (
	readyMinDelay = 250 * time.Millisecond
	readyMaxDelay = 3 * time.Second
)

// RunReadyCheck dispatches to the strategy named by check.Type and
// retries until it succeeds, check.Timeout() elapses, or ctx is
// cancelled. The log strategy streams container output directly
// instead of retrying a point-in-time probe, matching how a "wait for
// this line" check has to work.
func (d *Driver) RunReadyCheck(ctx context.Context, id string, check config.ReadyCheck, hostPort int, name string) error {
	timeout := time.Duration(check.Timeout()) * time.Second
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if check.Type == config.ReadyLog {
		return d.runLogCheck(ctx, id, check.Pattern, name)
	}

	delay := readyMinDelay
	var lastErr error
	for {
		err := d.runSingleCheck(ctx, id, check, hostPort)
		if err == nil {
			return nil
		}
		lastErr = err
		slog.Debug("ready check attempt failed", "resource", name, "error", err, "retry_in", delay)

		select {
		case <-ctx.Done():
			return &devrigerr.ReadyCheckError{Resource: name, Strategy: string(check.Type), Timeout: timeout.String(), LastErr: lastErr}
		case <-time.After(jittered(delay)):
		}
		delay *= 2
		if delay > readyMaxDelay {
			delay = readyMaxDelay
		}
	}
}

func jittered(d time.Duration) time.Duration {
	return time.Duration(rand.Int63n(int64(d)))
}

func (d *Driver) runSingleCheck(ctx context.Context, id string, check config.ReadyCheck, hostPort int) error {
	switch check.Type {
	case config.ReadyPgIsReady:
		code, out, err := d.Exec(ctx, id, []string{"pg_isready", "-h", "localhost", "-q", "-t", "2"})
		if err != nil {
			return err
		}
		if code != 0 {
			return fmt.Errorf("pg_isready exited %d: %s", code, out)
		}
		return nil

	case config.ReadyCmd:
		code, out, err := d.Exec(ctx, id, []string{"sh", "-c", check.Command})
		if err != nil {
			return err
		}
		if code != 0 {
			return fmt.Errorf("ready check command exited %d: %s", code, out)
		}
		if check.Expect != "" && !strings.Contains(out, check.Expect) {
			return fmt.Errorf("ready check output %q did not contain expected %q", out, check.Expect)
		}
		return nil

	case config.ReadyHTTP:
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, check.URL, nil)
		if err != nil {
			return err
		}
		client := &http.Client{Timeout: 2 * time.Second}
		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("http ready check: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("http ready check returned status %d", resp.StatusCode)
		}
		return nil

	case config.ReadyTCP:
		if hostPort == 0 {
			return fmt.Errorf("tcp ready check requires a resolved port")
		}
		d := net.Dialer{Timeout: 2 * time.Second}
		conn, err := d.DialContext(ctx, "tcp", fmt.Sprintf("127.0.0.1:%d", hostPort))
		if err != nil {
			return fmt.Errorf("tcp connect failed: %w", err)
		}
		return conn.Close()

	default:
		return fmt.Errorf("unsupported ready check type %q", check.Type)
	}
}

// runLogCheck streams the container's combined logs and waits for
// pattern to appear, rather than polling with repeated execs: a
// point-in-time exec cannot see output a process already flushed
// before the probe ran.
func (d *Driver) runLogCheck(ctx context.Context, id, pattern, name string) error {
	cmd := exec.CommandContext(ctx, d.Binary, "logs", "-f", id)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	cmd.Stderr = cmd.Stdout
	if err := cmd.Start(); err != nil {
		return err
	}
	defer cmd.Wait()
	defer cmd.Process.Kill()

	scanner := bufio.NewScanner(stdout)
	found := make(chan struct{}, 1)
	go func() {
		for scanner.Scan() {
			if strings.Contains(scanner.Text(), pattern) {
				found <- struct{}{}
				return
			}
		}
	}()

	select {
	case <-found:
		return nil
	case <-ctx.Done():
		return &devrigerr.ReadyCheckError{Resource: name, Strategy: "log", Timeout: "n/a", LastErr: fmt.Errorf("pattern %q not observed before timeout", pattern)}
	}
}
