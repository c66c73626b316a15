package cmd

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/DominicWuest/typeprimer/pkg/primer"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	verbosity  int
	quiet      bool
	configFile string
	servePort  int

	// The exit code of a command that completed without error
	exitCode int
)

var rootCmd = &cobra.Command{
	Use:   "typeprimer",
	Short: "Run two versions of a type checker over a corpus of projects and report how their output differs",
	Long: `Run two versions of a type checker over a corpus of projects and report how their output differs.

The new and old checker are installed into their own virtualenvs, every selected project is checked
out and checked with both of them, and the differences are reported as soon as a project is done.
The exit code is 1 if any project's output changed, 2 if a project or checker could not be set up
and 70 if typeprimer itself failed.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runPrimer,
}

// Execute runs the command line and returns the process exit code.
func Execute() (code int) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "typeprimer crashed - %v\n%s", r, debug.Stack())
			code = primer.ExitCrash
		}
	}()

	if err := rootCmd.Execute(); err != nil {
		logrus.Error(err)
		return primer.ExitCode(err)
	}
	return exitCode
}

func init() {
	flags := rootCmd.PersistentFlags()
	defaults := primer.DefaultConfig()

	flags.CountVarP(&verbosity, "verbose", "v", "Increase the verbosity, can be repeated")
	flags.BoolVarP(&quiet, "quiet", "q", false, "Discard all logs")
	flags.StringVar(&configFile, "config", "", "Read settings from this yaml file. Flags take precedence")
	flags.IntVar(&servePort, "serve-port", -1, "Serve the progress of the run on this port. 0 picks a free port, -1 disables the server")

	// Checker
	flags.String("repo", defaults.Repo, "The repository of the checker")
	flags.String("new", defaults.NewChecker, "The revision or date of the new checker. Defaults to the repository's default head")
	flags.String("old", defaults.OldChecker, "The revision or date of the old checker. Defaults to the most recent tag")
	flags.String("package", defaults.PackageName, "The name of the checker's prebuilt package")
	flags.String("executable", defaults.ExecutableName, "The name of the checker's executable")
	flags.Int("compile-level", defaults.CompileLevel, "Compile the checker with this optimisation level, -1 to not compile it")
	flags.String("python", defaults.Python, "The interpreter used to create virtualenvs")

	// Typeshed
	flags.String("custom-typeshed-repo", defaults.TypeshedRepo, "The repository of typeshed")
	flags.String("new-typeshed", defaults.NewTypeshed, "The typeshed revision used by the new checker")
	flags.String("old-typeshed", defaults.OldTypeshed, "The typeshed revision used by the old checker")
	flags.StringSlice("new-checker-path", defaults.NewCheckerPath, "Additional module search paths of the new checker")
	flags.StringSlice("old-checker-path", defaults.OldCheckerPath, "Additional module search paths of the old checker")
	flags.String("typeshed-flag", defaults.TypeshedFlag, "The checker's flag selecting a custom typeshed")
	flags.String("path-env-var", defaults.PathEnvVar, "The environment variable holding the checker's module search path")

	// Projects
	flags.String("base-dir", defaults.BaseDir, "The directory holding checkers and projects")
	flags.Bool("clear", defaults.Clear, "Remove the base directory before and after the run")
	flags.String("projects", defaults.ProjectsFile, "The yaml file listing the corpus")
	flags.String("local-project", defaults.LocalProject, "Only check this local project")
	flags.StringP("project-selector", "k", defaults.ProjectSelector, "Only check projects whose location matches this regex")
	flags.Bool("expected-success", defaults.ExpectedSuccessOnly, "Only check projects expected to succeed")
	flags.String("project-date", defaults.ProjectDate, "Check out every project as of this date")
	flags.Int("num-shards", defaults.NumShards, "Split the selected projects into this many shards")
	flags.Int("shard-index", defaults.ShardIndex, "Only check the shard with this index")

	// Execution
	flags.UintP("concurrency", "j", defaults.MaxConcurrent, "The maximum amount of projects checked at once, 0 for no limit")
	flags.String("fault-policy", defaults.FaultPolicy, "What to do once a project failed, isolate or fail-fast")
	flags.String("docker-image", defaults.DockerImage, "Run every command in a container of this image")
	flags.Bool("debug", defaults.Debug, "Log the output of every checker run")

	// Output of the default command
	rootCmd.Flags().String("output", defaults.Output, "The output format, full, diff or concise")
	rootCmd.Flags().StringSlice("concise-args", defaults.ConciseArgs, "Arguments passed to the checkers for concise output")
	rootCmd.Flags().Bool("old-success", defaults.OldSuccessOnly, "Only report projects the old checker succeeded on")
}
