package cmd

import (
	"context"
	"fmt"

	"github.com/DominicWuest/typeprimer/pkg/primer"
	"github.com/spf13/cobra"
)

var bisectCmd = &cobra.Command{
	Use:   "bisect",
	Short: "Find the revision that changed the checker's output on the selected projects",
	Long: `Find the revision that changed the checker's output on the selected projects.

The old checker is installed from source and its output is recorded as the good baseline.
The history up to the new checker is then binary searched for the first revision whose output
differs from the baseline, or, if --bisect-output is set, whose output matches the pattern.

If --old-typeshed is set, typeshed's history from the old to the new typeshed revision is
searched instead, with the old checker fixed.`,
	Args: cobra.NoArgs,
	RunE: withEnvironment(func(ctx context.Context, env *environment, _ []string) error {
		projects, corpus, err := env.selectProjects()
		if err != nil {
			return err
		}

		bisector := &primer.Bisector{
			Config:   env.cfg,
			Projects: projects,

			Workspace: env.workspace,
			Installer: env.installer,
			Probe:     corpus.Probe,

			Log:     env.log,
			Metrics: env.metrics,
			Tracker: env.tracker,
		}

		oc, err := bisector.Run(ctx)
		if err != nil {
			return err
		}

		fmt.Print(oc.Report)
		if len(oc.PossibleOtherRevisions) > 0 {
			fmt.Println("\nThe following revisions could not be tested and may be the first bad one as well:")
			for _, rev := range oc.PossibleOtherRevisions {
				fmt.Println(rev)
			}
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(bisectCmd)

	defaults := primer.DefaultConfig()
	bisectCmd.Flags().String("bisect-output", defaults.BisectOutput, "A regex marking a revision bad if any project's output matches it")
	bisectCmd.Flags().String("on-inconclusive", defaults.OnInconclusive, "What to do with revisions that cannot be tested, abort or skip")
}
