package primer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecRunner(t *testing.T) {
	runner := NewExecRunner(nil)
	ctx := context.Background()

	t.Run("Output is captured", func(t *testing.T) {
		res, err := runner.Run(ctx, Command{Args: []string{"sh", "-c", "echo out; echo err >&2; exit 3"}})
		require.Nil(t, err)
		assert.Equal(t, 3, res.ExitCode)
		assert.Equal(t, "out\n", res.Stdout)
		assert.Equal(t, "err\n", res.Stderr)
	})

	t.Run("Environment and directory are passed", func(t *testing.T) {
		dir := t.TempDir()
		require.Nil(t, os.WriteFile(filepath.Join(dir, "marker"), nil, 0644))
		res, err := runner.Run(ctx, Command{Args: []string{"sh", "-c", "echo $FOO; ls"}, Dir: dir, Env: []string{"FOO=bar"}})
		require.Nil(t, err)
		assert.Equal(t, "bar\nmarker\n", res.Stdout)
	})

	t.Run("Missing program is an error", func(t *testing.T) {
		_, err := runner.Run(ctx, Command{Args: []string{"/nonexistent/program"}})
		assert.NotNil(t, err)
	})

	t.Run("Empty command is an error", func(t *testing.T) {
		_, err := runner.Run(ctx, Command{})
		assert.NotNil(t, err)
	})
}

func TestRunChecked(t *testing.T) {
	runner := NewExecRunner(nil)

	_, err := RunChecked(context.Background(), runner, Command{Args: []string{"sh", "-c", "echo broken >&2; exit 1"}})
	var cmdErr *CommandFailedError
	require.True(t, errors.As(err, &cmdErr))
	assert.Equal(t, 1, cmdErr.ExitCode)
	assert.Equal(t, "broken\n", cmdErr.Stderr)
	assert.Contains(t, err.Error(), "exited with status 1")

	res, err := RunChecked(context.Background(), runner, Command{Args: []string{"true"}})
	assert.Nil(t, err)
	assert.Equal(t, 0, res.ExitCode)
}

func TestExitCode(t *testing.T) {
	values := []struct {
		err      error
		expected int
	}{
		{nil, ExitNoRegression},
		{&SetupFailedError{Subject: "black", Err: errors.New("clone failed")}, ExitSetupFailure},
		{&ProjectError{Project: "black", Err: &SetupFailedError{Subject: "black", Err: errors.New("clone failed")}}, ExitSetupFailure},
		{errors.Join(errors.New("other"), &SetupFailedError{Subject: "checker"}), ExitSetupFailure},
		{ErrBaselineNotGood, ExitCrash},
		{errors.New("crashed"), ExitCrash},
	}

	for i, v := range values {
		assert.Equalf(t, v.expected, ExitCode(v.err), "wrong exit code for test %d", i)
	}
}
