package cmd

import (
	"context"
	"fmt"

	"github.com/DominicWuest/typeprimer/pkg/primer"
	"github.com/spf13/cobra"
)

var coverageCmd = &cobra.Command{
	Use:   "coverage",
	Short: "Count the source files and lines of the selected projects",
	Args:  cobra.NoArgs,
	RunE: withEnvironment(func(ctx context.Context, env *environment, _ []string) error {
		projects, _, err := env.selectProjects()
		if err != nil {
			return err
		}

		coverage, err := env.workspace.Coverage(ctx, env.scheduler(), projects)
		if err != nil {
			return err
		}

		files, lines := 0, 0
		for _, c := range coverage {
			if c.Err != nil {
				env.log.WithField("project", c.Project.Name).Errorf("Failed to count sources - %v", c.Err)
				continue
			}
			fmt.Printf("%8d files %10d lines  %s\n", c.Files, c.Lines, c.Project.Location)
			files += c.Files
			lines += c.Lines
		}
		fmt.Printf("\nChecking %d projects, %d files, %d lines\n", len(coverage), files, lines)
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(coverageCmd)

	coverageCmd.Flags().StringSlice("source-extensions", primer.DefaultConfig().SourceExtensions, "The extensions of counted source files")
}
