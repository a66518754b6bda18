package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ayusman/blinkwatch/internal/hook"
)

var hooksCmd = &cobra.Command{
	Use:   "hooks",
	Short: "List the fade hooks that run would load",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := runOpts.HookDir
		if dir == "" {
			dir = filepath.Join(dataDir, "hooks")
		}
		m := hook.NewManager(dir)
		if err := m.Discover(); err != nil {
			return fmt.Errorf("failed to load hooks: %w", err)
		}

		hooks := m.List()
		if len(hooks) == 0 {
			fmt.Printf("No hooks found in %s.\n", dir)
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "NAME\tVERSION\tEVENTS\tDESCRIPTION")
		fmt.Fprintln(w, "----\t-------\t------\t-----------")
		for _, h := range hooks {
			events := "all"
			if len(h.Manifest.Events) > 0 {
				events = strings.Join(h.Manifest.Events, ",")
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", h.Manifest.Name, h.Manifest.Version, events, h.Manifest.Description)
		}
		return w.Flush()
	},
}

func init() {
	hooksCmd.Flags().StringVar(&runOpts.HookDir, "hook-dir", "", "directory of fade hooks (default: <data-dir>/hooks)")
	rootCmd.AddCommand(hooksCmd)
}
