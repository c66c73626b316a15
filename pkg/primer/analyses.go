package primer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"

	"golang.org/x/sync/errgroup"
)

// A ProjectRuntime is the time the checker took for one project.
type ProjectRuntime struct {
	Project Project
	Runtime float64 // In seconds
	Err     error
}

// MeasureRuntimes checks every project with the passed checker and returns the runtimes, slowest first.
// Projects that failed to set up are listed last with their error.
func (w *Workspace) MeasureRuntimes(ctx context.Context, s Scheduler, projects []Project, checker *Checker) ([]ProjectRuntime, error) {
	s.Policy = IsolateFaults
	outcomes, err := Collect(ctx, s, projects, func(ctx context.Context, p Project) (CheckResult, error) {
		pp, err := w.SetupProject(ctx, p)
		if err != nil {
			return CheckResult{}, err
		}
		return w.CheckProject(ctx, pp, Invocation{Checker: checker.Exe})
	})
	if err != nil {
		return nil, err
	}

	runtimes := make([]ProjectRuntime, 0, len(outcomes))
	for _, o := range outcomes {
		runtimes = append(runtimes, ProjectRuntime{Project: o.Project, Runtime: o.Value.Runtime.Seconds(), Err: o.Err})
	}
	sort.Slice(runtimes, func(i, j int) bool {
		if (runtimes[i].Err == nil) != (runtimes[j].Err == nil) {
			return runtimes[i].Err == nil
		}
		if runtimes[i].Runtime != runtimes[j].Runtime {
			return runtimes[i].Runtime > runtimes[j].Runtime
		}
		return runtimes[i].Project.Location > runtimes[j].Project.Location
	})
	return runtimes, nil
}

// A ProjectCoverage counts the source files of one project.
type ProjectCoverage struct {
	Project Project
	Files   int
	Lines   int
	Err     error
}

// Coverage counts the source files and lines below the source roots of every project, sorted by lines descending.
// Files are counted if their extension is one of the configured source extensions.
func (w *Workspace) Coverage(ctx context.Context, s Scheduler, projects []Project) ([]ProjectCoverage, error) {
	s.Policy = IsolateFaults
	outcomes, err := Collect(ctx, s, projects, func(ctx context.Context, p Project) (ProjectCoverage, error) {
		pp, err := w.SetupProject(ctx, p)
		if err != nil {
			return ProjectCoverage{}, err
		}
		return countSources(pp, w.Config.SourceExtensions)
	})
	if err != nil {
		return nil, err
	}

	coverage := make([]ProjectCoverage, 0, len(outcomes))
	for _, o := range outcomes {
		c := o.Value
		c.Project = o.Project
		c.Err = o.Err
		coverage = append(coverage, c)
	}
	sort.Slice(coverage, func(i, j int) bool {
		if coverage[i].Lines != coverage[j].Lines {
			return coverage[i].Lines > coverage[j].Lines
		}
		return coverage[i].Project.Location < coverage[j].Project.Location
	})
	return coverage, nil
}

// countSources counts the source files below the project's source roots, counting files reachable from two roots once
func countSources(pp *PreparedProject, extensions []string) (ProjectCoverage, error) {
	c := ProjectCoverage{Project: pp.Project}
	seen := make(map[string]bool)

	for _, root := range pp.Project.Paths {
		err := filepath.WalkDir(filepath.Join(pp.Dir, root), func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if d.Name() == ".git" {
					return filepath.SkipDir
				}
				return nil
			}
			if seen[path] || !slices.Contains(extensions, filepath.Ext(path)) {
				return nil
			}
			seen[path] = true

			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			c.Files++
			c.Lines += lineCount(data)
			return nil
		})
		if err != nil {
			return c, errors.Join(fmt.Errorf("couldn't walk source root %s", root), err)
		}
	}
	return c, nil
}

func lineCount(data []byte) int {
	lines := bytes.Count(data, []byte("\n"))
	if len(data) > 0 && data[len(data)-1] != '\n' {
		lines++
	}
	return lines
}

// SetupMany installs the checker at every selector concurrently, each into its own directory.
func (i *Installer) SetupMany(ctx context.Context, selectors []string) ([]*Checker, error) {
	checkers := make([]*Checker, len(selectors))
	g, gctx := errgroup.WithContext(ctx)
	for n, selector := range selectors {
		g.Go(func() error {
			var err error
			checkers[n], err = i.Setup(gctx, filepath.Join(i.Config.BaseDir, "checker_"+selector), selector, false)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return checkers, nil
}

// ValidateExpectedSuccess checks whether the expected success of every project is still accurate.
// A project is considered successful if any of the passed checkers succeeds on it, trying them in order.
// One diagnostic is returned for every inaccurate project, in the order of the passed projects.
// Projects that failed to set up yield a diagnostic rather than an error.
func (w *Workspace) ValidateExpectedSuccess(ctx context.Context, s Scheduler, projects []Project, checkers []*Checker) ([]string, error) {
	s.Policy = IsolateFaults
	exes := make([]string, len(checkers))
	for n, c := range checkers {
		exes[n] = c.Exe
	}

	outcomes, err := Collect(ctx, s, projects, func(ctx context.Context, p Project) (string, error) {
		pp, err := w.SetupProject(ctx, p)
		if err != nil {
			return "", err
		}
		return FirstSuccess(ctx, exes, func(ctx context.Context, checker string) (CheckResult, error) {
			res, err := w.CheckProject(ctx, pp, Invocation{Checker: checker})
			if err == nil && w.Config.Debug {
				w.Log.WithField("project", p.Name).Debug(res)
			}
			return res, err
		})
	})
	if err != nil {
		return nil, err
	}

	var diagnostics []string
	for _, p := range projects {
		o := outcomes[p.Name]
		var setupErr *SetupFailedError
		switch {
		case errors.As(o.Err, &setupErr):
			diagnostics = append(diagnostics, fmt.Sprintf("Project %s could not be set up: %v", p.Location, setupErr.Err))
		case o.Err != nil:
			return nil, &ProjectError{Project: p.Name, Err: o.Err}
		case o.Value != "" && !p.ExpectedSuccess:
			diagnostics = append(diagnostics, fmt.Sprintf("Project %s succeeded with %s, but is not marked as expecting success", p.Location, o.Value))
		case o.Value == "" && p.ExpectedSuccess:
			diagnostics = append(diagnostics, fmt.Sprintf("Project %s did not succeed, but is marked as expecting success", p.Location))
		}
	}
	return diagnostics, nil
}
