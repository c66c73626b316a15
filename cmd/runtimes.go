package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
)

var runtimesCmd = &cobra.Command{
	Use:   "runtimes",
	Short: "Measure how long the new checker takes on every selected project",
	Args:  cobra.NoArgs,
	RunE: withEnvironment(func(ctx context.Context, env *environment, _ []string) error {
		projects, _, err := env.selectProjects()
		if err != nil {
			return err
		}

		checker, err := env.installer.Setup(ctx, filepath.Join(env.cfg.BaseDir, "new_checker"), env.cfg.RuntimeSelector(), false)
		if err != nil {
			return err
		}

		runtimes, err := env.workspace.MeasureRuntimes(ctx, env.scheduler(), projects, checker)
		if err != nil {
			return err
		}

		for _, r := range runtimes {
			if r.Err != nil {
				fmt.Printf("%10s  %s (%v)\n", "failed", r.Project.Location, r.Err)
				continue
			}
			fmt.Printf("%9.2fs  %s\n", r.Runtime, r.Project.Location)
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(runtimesCmd)
}
