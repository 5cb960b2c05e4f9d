package containerdriver

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/steveyackey/devrig/internal/devrigerr"
)

// FollowLogs streams a container's combined stdout/stderr from since
// onward, calling fn once per line, until the stream ends or ctx is
// cancelled. Starting at since (rather than the container's full
// history) means a reattach after an engine hiccup only carries logs
// produced after the attach.
func (d *Driver) FollowLogs(ctx context.Context, id string, since time.Time, fn func(line string)) error {
	args := []string{"logs", "--follow", "--since", since.UTC().Format(time.RFC3339), id}
	cmd := exec.CommandContext(ctx, d.Binary, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("opening log pipe for %s: %w", id, err)
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		return &devrigerr.DriverError{Driver: d.Binary, Op: "logs", Wrapped: err}
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		fn(scanner.Text())
	}

	if err := cmd.Wait(); err != nil && ctx.Err() == nil {
		return &devrigerr.DriverError{Driver: d.Binary, Op: "logs", Wrapped: err}
	}
	return nil
}
