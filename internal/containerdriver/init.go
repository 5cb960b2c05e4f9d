package containerdriver

import (
	"context"
	"strings"

	"github.com/steveyackey/devrig/internal/devrigerr"
)

// RunInitScripts executes a container's one-time init_scripts in order,
// stopping at the first failure. A postgres image gets its scripts run
// through psql as POSTGRES_USER (defaulting to "postgres") instead of a
// bare shell, since SQL init scripts need a SQL client to run.
func (d *Driver) RunInitScripts(ctx context.Context, id, image string, env map[string]string, scripts []string) error {
	for i, script := range scripts {
		var cmd []string
		if strings.HasPrefix(image, "postgres") {
			user := env["POSTGRES_USER"]
			if user == "" {
				user = "postgres"
			}
			cmd = []string{"psql", "-U", user, "-c", script}
		} else {
			cmd = []string{"sh", "-c", script}
		}

		code, out, err := d.Exec(ctx, id, cmd)
		if err != nil {
			return err
		}
		if code != 0 {
			return &devrigerr.InitScriptError{Resource: id, Index: i, ExitCode: code, Script: script, Output: out}
		}
	}
	return nil
}
