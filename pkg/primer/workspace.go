package primer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/otiai10/copy"
	"github.com/sirupsen/logrus"
)

// A Workspace prepares projects inside the base directory and runs checkers against them.
type Workspace struct {
	Config *Config
	Runner ProcessRunner

	Log     *logrus.Logger
	Metrics *Metrics // Optional
}

// NewWorkspace creates a workspace. A nil log mutes it.
func NewWorkspace(config *Config, runner ProcessRunner, log *logrus.Logger) *Workspace {
	if log == nil {
		log = logrus.New()
		log.SetOutput(io.Discard)
	}
	return &Workspace{Config: config, Runner: runner, Log: log}
}

// A PreparedProject is a project whose sources are checked out and ready to be checked.
// Its directory is owned by the project and never shared with another one.
type PreparedProject struct {
	Project Project
	Dir     string // The checkout of the project
	Python  string // The interpreter of the project's virtualenv, or the configured interpreter if the project has no dependencies
}

// SetupProject checks out the project's sources and installs its dependencies.
// Every failure is returned as a [SetupFailedError].
func (w *Workspace) SetupProject(ctx context.Context, p Project) (*PreparedProject, error) {
	log := w.Log.WithField("project", p.Name)
	parentDir := filepath.Join(w.Config.ProjectsDir(), p.Name)

	prepared := &PreparedProject{Project: p, Python: w.Config.Python}

	if p.IsLocal() {
		prepared.Dir = filepath.Join(parentDir, repoDirName(p.Location))
		if err := os.RemoveAll(prepared.Dir); err != nil {
			return nil, &SetupFailedError{Subject: p.Name, Err: err}
		}
		if err := copy.Copy(p.Location, prepared.Dir); err != nil {
			return nil, &SetupFailedError{Subject: p.Name, Err: errors.Join(fmt.Errorf("couldn't copy %s", p.Location), err)}
		}
	} else {
		revision := p.Revision
		if revision == "" {
			revision = DefaultHead
		}
		dir, err := EnsureRepoAtRevision(ctx, p.Location, parentDir, revision)
		if err != nil {
			return nil, &SetupFailedError{Subject: p.Name, Err: err}
		}
		prepared.Dir = dir
	}

	if len(p.Deps) > 0 {
		venvDir := filepath.Join(parentDir, "_venv")
		if _, err := RunChecked(ctx, w.Runner, Command{Args: []string{w.Config.Python, "-m", "venv", "--clear", venvDir}}); err != nil {
			return nil, &SetupFailedError{Subject: p.Name, Err: err}
		}
		args := append([]string{filepath.Join(binDir(venvDir), "pip"), "install"}, p.Deps...)
		if _, err := RunChecked(ctx, w.Runner, Command{Args: args, Dir: prepared.Dir}); err != nil {
			return nil, &SetupFailedError{Subject: p.Name, Err: err}
		}
		prepared.Python = filepath.Join(binDir(venvDir), "python")
	}

	log.Debugf("Project ready at %s", prepared.Dir)
	return prepared, nil
}

// shellQuote quotes s for use as a single word in a POSIX shell command
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// CheckCommand renders the command checking the project with the passed invocation.
func (pp *PreparedProject) CheckCommand(inv Invocation, typeshedFlag string) string {
	cmd := strings.NewReplacer(
		"{checker}", shellQuote(inv.Checker),
		"{python}", shellQuote(pp.Python),
	).Replace(pp.Project.Command)

	for _, arg := range inv.ExtraArgs {
		cmd += " " + shellQuote(arg)
	}
	if inv.TypeshedDir != "" {
		cmd += fmt.Sprintf(" %s %s", typeshedFlag, shellQuote(inv.TypeshedDir))
	}
	return cmd
}

// CheckProject runs the checker against an already prepared project.
// A checker reporting errors is a normal result; only failing to run the checker at all returns an error.
func (w *Workspace) CheckProject(ctx context.Context, pp *PreparedProject, inv Invocation) (CheckResult, error) {
	cmd := Command{
		Args: []string{"sh", "-c", pp.CheckCommand(inv, w.Config.TypeshedFlag)},
		Dir:  pp.Dir,
	}
	if len(inv.CheckerPath) > 0 {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", w.Config.PathEnvVar, strings.Join(inv.CheckerPath, string(os.PathListSeparator))))
	}

	start := time.Now()
	res, err := w.Runner.Run(ctx, cmd)
	runtime := time.Since(start)
	if err != nil {
		return CheckResult{}, err
	}

	result := CheckResult{
		Command:         cmd.Args[2],
		Success:         res.ExitCode == 0,
		Output:          res.Stderr + res.Stdout,
		Runtime:         runtime,
		ExpectedSuccess: pp.Project.ExpectedSuccess,
	}
	w.Metrics.observeCheck(result)

	w.Log.WithField("project", pp.Project.Name).Debugf("Checked in %.2fs, success: %t", runtime.Seconds(), result.Success)
	return result, nil
}

// SetupAll prepares every project concurrently. The first failure aborts all other setups.
func (w *Workspace) SetupAll(ctx context.Context, s Scheduler, projects []Project) (map[string]*PreparedProject, error) {
	s.Policy = FailFast
	outcomes, err := Collect(ctx, s, projects, w.SetupProject)
	if err != nil {
		return nil, err
	}
	prepared := make(map[string]*PreparedProject, len(outcomes))
	for name, o := range outcomes {
		prepared[name] = o.Value
	}
	return prepared, nil
}

// CheckAll runs the checker against every prepared project concurrently and returns the results keyed by project name.
func (w *Workspace) CheckAll(ctx context.Context, s Scheduler, prepared map[string]*PreparedProject, projects []Project, inv Invocation) (map[string]CheckResult, error) {
	outcomes, err := Collect(ctx, s, projects, func(ctx context.Context, p Project) (CheckResult, error) {
		return w.CheckProject(ctx, prepared[p.Name], inv)
	})
	if err != nil {
		return nil, err
	}
	results := make(map[string]CheckResult, len(outcomes))
	for name, o := range outcomes {
		if o.Err != nil {
			return nil, &ProjectError{Project: name, Err: o.Err}
		}
		results[name] = o.Value
	}
	return results, nil
}
