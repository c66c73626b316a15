package primer

import (
	"errors"
	"fmt"
	"strings"
)

// Exit codes of a typeprimer invocation
const (
	ExitNoRegression = 0  // No project's output changed
	ExitRegression   = 1  // At least one project's output changed
	ExitSetupFailure = 2  // A project or checker could not be set up
	ExitCrash        = 70 // typeprimer itself failed
)

var (
	ErrNoProjectsSelected = errors.New("no projects selected")
	ErrBaselineNotGood    = errors.New("results of the good revision are not classified as good")
	ErrInconclusive       = errors.New("bisection step was inconclusive")
	ErrTypeshedBisect     = errors.New("invalid combination of checker and typeshed selectors for bisection")
	ErrTaskPanicked       = errors.New("task panicked")
)

// A CommandFailedError is returned when an external command exited with a nonzero status.
// The captured output is kept verbatim.
type CommandFailedError struct {
	Args     []string
	Dir      string
	ExitCode int
	Stdout   string
	Stderr   string
}

func (e *CommandFailedError) Error() string {
	msg := fmt.Sprintf("command %q exited with status %d", strings.Join(e.Args, " "), e.ExitCode)
	if e.Dir != "" {
		msg += fmt.Sprintf(" in %s", e.Dir)
	}
	if e.Stderr != "" {
		msg += "\nstderr:\n" + e.Stderr
	}
	if e.Stdout != "" {
		msg += "\nstdout:\n" + e.Stdout
	}
	return msg
}

// A SetupFailedError is returned when the environment for a project or checker could not be prepared.
type SetupFailedError struct {
	Subject string // The project or checker that failed to set up
	Err     error
}

func (e *SetupFailedError) Error() string {
	return fmt.Sprintf("setup of %s failed - %v", e.Subject, e.Err)
}

func (e *SetupFailedError) Unwrap() error {
	return e.Err
}

// A ProjectError attributes a fault to the project during whose task it occurred.
type ProjectError struct {
	Project string
	Err     error
}

func (e *ProjectError) Error() string {
	return fmt.Sprintf("project %s - %v", e.Project, e.Err)
}

func (e *ProjectError) Unwrap() error {
	return e.Err
}

// ExitCode maps the error ending an invocation to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitNoRegression
	}
	var setupErr *SetupFailedError
	if errors.As(err, &setupErr) {
		return ExitSetupFailure
	}
	return ExitCrash
}
