package cmd

import (
	"context"
	"fmt"

	"github.com/DominicWuest/typeprimer/pkg/primer"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check whether the expected success of every selected project is still accurate",
	Long: `Check whether the expected success of every selected project is still accurate.

A project is considered to succeed if any of the probed checker releases reports no errors on it.
Every project whose expectation disagrees is listed, and the exit code is 1 if there is any.`,
	Args: cobra.NoArgs,
	RunE: withEnvironment(func(ctx context.Context, env *environment, _ []string) error {
		projects, _, err := env.selectProjects()
		if err != nil {
			return err
		}

		env.log.Infof("Installing %d checker releases...", len(env.cfg.ProbeRevisions))
		checkers, err := env.installer.SetupMany(ctx, env.cfg.ProbeRevisions)
		if err != nil {
			return err
		}

		diagnostics, err := env.workspace.ValidateExpectedSuccess(ctx, env.scheduler(), projects, checkers)
		if err != nil {
			return err
		}
		for _, d := range diagnostics {
			fmt.Println(d)
		}
		if len(diagnostics) > 0 {
			exitCode = primer.ExitRegression
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringSlice("probe-revisions", primer.DefaultConfig().ProbeRevisions, "The checker releases tried on every project")
}
