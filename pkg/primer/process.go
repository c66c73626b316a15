package primer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"
)

// A Command is an external command to be run.
type Command struct {
	Args []string // The program followed by its arguments
	Dir  string   // The working directory. Empty for the current one
	Env  []string // Environment variables in KEY=VALUE form, added to the inherited environment
}

func (c Command) String() string {
	return strings.Join(c.Args, " ")
}

// A ProcessResult holds the captured outcome of a command that ran to completion.
type ProcessResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// A ProcessRunner runs external commands.
// Run only returns an error if the command could not be run at all; a nonzero exit status is reported through the result.
type ProcessRunner interface {
	Run(ctx context.Context, cmd Command) (*ProcessResult, error)
}

// RunChecked runs the passed command and returns a [CommandFailedError] if it exited with a nonzero status.
func RunChecked(ctx context.Context, runner ProcessRunner, cmd Command) (*ProcessResult, error) {
	res, err := runner.Run(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return res, &CommandFailedError{
			Args:     cmd.Args,
			Dir:      cmd.Dir,
			ExitCode: res.ExitCode,
			Stdout:   res.Stdout,
			Stderr:   res.Stderr,
		}
	}
	return res, nil
}

// An ExecRunner runs commands as processes on this machine.
type ExecRunner struct {
	Log *logrus.Logger // The log to which every command gets traced
}

// NewExecRunner returns an ExecRunner logging to the passed log. A nil log mutes it.
func NewExecRunner(log *logrus.Logger) *ExecRunner {
	if log == nil {
		log = logrus.New()
		log.SetOutput(io.Discard)
	}
	return &ExecRunner{Log: log}
}

func (r *ExecRunner) Run(ctx context.Context, cmd Command) (*ProcessResult, error) {
	if len(cmd.Args) == 0 {
		return nil, errors.New("empty command")
	}

	c := exec.CommandContext(ctx, cmd.Args[0], cmd.Args[1:]...)
	c.Dir = cmd.Dir
	c.Env = append(os.Environ(), cmd.Env...)

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	r.Log.WithField("dir", cmd.Dir).Tracef("Running %s", cmd)

	err := c.Run()
	res := &ProcessResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && ctx.Err() == nil {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	} else if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to run %s", cmd), err)
	}

	return res, nil
}
