package primer

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// A PrimerResult holds the old and new result of checking one project.
type PrimerResult struct {
	Project    Project
	Old        CheckResult
	New        CheckResult
	Comparison Comparison
}

// HasDiff reports whether the old and new checker disagree on the project.
func (r PrimerResult) HasDiff() bool {
	return r.Comparison.Classification != Equivalent
}

// Invocations returns how the new and the old checker are invoked against every project.
func (c *Config) Invocations(newChecker, oldChecker *Checker, newTypeshed, oldTypeshed string) (newInv, oldInv Invocation) {
	var extra []string
	if c.Output == "concise" {
		extra = c.ConciseArgs
	}
	newInv = Invocation{Checker: newChecker.Exe, TypeshedDir: newTypeshed, CheckerPath: c.NewCheckerPath, ExtraArgs: extra}
	oldInv = Invocation{Checker: oldChecker.Exe, TypeshedDir: oldTypeshed, CheckerPath: c.OldCheckerPath, ExtraArgs: extra}
	return newInv, oldInv
}

// RunDifferential sets up every project and checks it with the new and then the old checker.
// Outcomes are delivered in the order of completion, so fast projects can be reported right away.
func (w *Workspace) RunDifferential(ctx context.Context, s Scheduler, projects []Project, newInv, oldInv Invocation) <-chan Outcome[PrimerResult] {
	return Stream(ctx, s, projects, func(ctx context.Context, p Project) (PrimerResult, error) {
		pp, err := w.SetupProject(ctx, p)
		if err != nil {
			return PrimerResult{}, err
		}

		// Both checkers run in the project's directory, so they must not run at the same time
		result := PrimerResult{Project: p}
		if result.New, err = w.CheckProject(ctx, pp, newInv); err != nil {
			return PrimerResult{}, err
		}
		if result.Old, err = w.CheckProject(ctx, pp, oldInv); err != nil {
			return PrimerResult{}, err
		}

		result.Comparison = Compare(result.Old, result.New)
		if result.HasDiff() {
			w.Metrics.observeDiff()
		}
		return result, nil
	})
}

// Report consumes the outcomes of a differential run, writing every result in the configured output format to out.
// The returned code is [ExitRegression] if any reported project's output changed.
//
// A fault under [FailFast] stops the report immediately and is returned.
// Under [IsolateFaults], faults are reported inline and returned joined once all outcomes were consumed.
func (w *Workspace) Report(out io.Writer, outcomes <-chan Outcome[PrimerResult], policy FaultPolicy, tracker *Tracker) (int, error) {
	retcode := ExitNoRegression
	var faults []error

	for o := range outcomes {
		tracker.AddResult(o)

		if o.Err != nil {
			fault := &ProjectError{Project: o.Project.Name, Err: o.Err}
			if policy == FailFast {
				return retcode, fault
			}
			w.Log.WithField("project", o.Project.Name).Errorf("Failed - %v", o.Err)
			fmt.Fprintf(out, "%s\n%v\n\n", o.Project.Location, o.Err)
			faults = append(faults, fault)
			continue
		}

		result := o.Value
		if w.Config.OldSuccessOnly && !result.Old.Success {
			continue
		}

		switch w.Config.Output {
		case "full":
			fmt.Fprintln(out, result.FormatFull())
		case "diff":
			fmt.Fprintln(out, result.FormatDiff())
		case "concise":
			if concise := result.FormatConcise(); concise != "" {
				fmt.Fprintln(out, concise)
				fmt.Fprintln(out)
			}
		}

		if result.HasDiff() {
			retcode = ExitRegression
		}
	}

	return retcode, errors.Join(faults...)
}
