package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/steveyackey/devrig/internal/state"
)

type LsCmd struct{}

func (c *LsCmd) Run(cctx *Context) error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("locating home directory: %w", err)
	}
	path := state.RegistryPath(home)
	reg := state.LoadRegistry(path)
	reg.Cleanup()

	if len(reg.Instances) == 0 {
		fmt.Println("no devrig projects found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SLUG\tSTARTED\tMANIFEST")
	for _, inst := range reg.Instances {
		fmt.Fprintf(w, "%s\t%s\t%s\n", inst.Slug, inst.StartedAt.Format("2006-01-02 15:04:05"), inst.ConfigPath)
	}
	return w.Flush()
}
