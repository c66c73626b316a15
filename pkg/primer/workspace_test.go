package primer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner answers commands with a canned function instead of running them
type fakeRunner struct {
	run func(cmd Command) (*ProcessResult, error)

	mu       sync.Mutex
	commands []Command
}

func (r *fakeRunner) Run(_ context.Context, cmd Command) (*ProcessResult, error) {
	r.mu.Lock()
	r.commands = append(r.commands, cmd)
	r.mu.Unlock()
	return r.run(cmd)
}

// checkerRunner fails every check whose command starts with one of the failing checkers
func checkerRunner(failing ...string) *fakeRunner {
	return &fakeRunner{run: func(cmd Command) (*ProcessResult, error) {
		for _, checker := range failing {
			if strings.HasPrefix(cmd.Args[len(cmd.Args)-1], shellQuote(checker)) {
				return &ProcessResult{ExitCode: 1, Stdout: "a.py:1: error: x\n"}, nil
			}
		}
		return &ProcessResult{Stdout: "Success: no issues found\n"}, nil
	}}
}

func testConfig(t *testing.T) *Config {
	cfg := DefaultConfig()
	cfg.BaseDir = t.TempDir()
	return &cfg
}

// localProject creates a project directory holding the passed files
func localProject(t *testing.T, files map[string]string) Project {
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.Nil(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.Nil(t, os.WriteFile(path, []byte(content), 0644))
	}
	return ProjectFromLocation(dir)
}

func TestCheckCommand(t *testing.T) {
	pp := &PreparedProject{
		Project: Project{Command: "{checker} --python-executable {python} src"},
		Python:  "/venv/bin/python",
	}

	t.Run("Placeholders are substituted", func(t *testing.T) {
		cmd := pp.CheckCommand(Invocation{Checker: "/bin/mypy"}, "--custom-typeshed-dir")
		assert.Equal(t, "'/bin/mypy' --python-executable '/venv/bin/python' src", cmd)
	})

	t.Run("Extra arguments and typeshed are appended", func(t *testing.T) {
		cmd := pp.CheckCommand(Invocation{Checker: "mypy", ExtraArgs: []string{"--no-pretty"}, TypeshedDir: "/ts"}, "--custom-typeshed-dir")
		assert.Equal(t, "'mypy' --python-executable '/venv/bin/python' src '--no-pretty' --custom-typeshed-dir '/ts'", cmd)
	})

	t.Run("Quotes are escaped", func(t *testing.T) {
		assert.Equal(t, `'it'\''s'`, shellQuote("it's"))
	})
}

func TestSetupProject(t *testing.T) {
	t.Run("Local project is copied", func(t *testing.T) {
		cfg := testConfig(t)
		p := localProject(t, map[string]string{"a.py": "x = 1\n"})
		w := NewWorkspace(cfg, checkerRunner(), nil)

		pp, err := w.SetupProject(context.Background(), p)
		require.Nil(t, err)
		assert.True(t, strings.HasPrefix(pp.Dir, cfg.ProjectsDir()))
		assert.FileExists(t, filepath.Join(pp.Dir, "a.py"))
		assert.Equal(t, cfg.Python, pp.Python)
	})

	t.Run("Dependencies are installed into a virtualenv", func(t *testing.T) {
		cfg := testConfig(t)
		p := localProject(t, nil)
		p.Deps = []string{"attrs"}
		runner := checkerRunner()
		w := NewWorkspace(cfg, runner, nil)

		pp, err := w.SetupProject(context.Background(), p)
		require.Nil(t, err)
		assert.Equal(t, filepath.Join(binDir(filepath.Join(cfg.ProjectsDir(), p.Name, "_venv")), "python"), pp.Python)
		require.Len(t, runner.commands, 2)
		assert.Contains(t, runner.commands[1].Args, "attrs")
	})

	t.Run("Failing dependency install is a setup failure", func(t *testing.T) {
		cfg := testConfig(t)
		p := localProject(t, nil)
		p.Deps = []string{"attrs"}
		w := NewWorkspace(cfg, &fakeRunner{run: func(Command) (*ProcessResult, error) {
			return &ProcessResult{ExitCode: 1}, nil
		}}, nil)

		_, err := w.SetupProject(context.Background(), p)
		var setupErr *SetupFailedError
		assert.True(t, errors.As(err, &setupErr))
		assert.Equal(t, ExitSetupFailure, ExitCode(err))
	})

	t.Run("Missing local project is a setup failure", func(t *testing.T) {
		w := NewWorkspace(testConfig(t), checkerRunner(), nil)
		_, err := w.SetupProject(context.Background(), ProjectFromLocation(filepath.Join(t.TempDir(), "missing")))
		var setupErr *SetupFailedError
		assert.True(t, errors.As(err, &setupErr))
	})
}

func TestCheckProject(t *testing.T) {
	cfg := testConfig(t)
	runner := &fakeRunner{run: func(Command) (*ProcessResult, error) {
		return &ProcessResult{ExitCode: 1, Stdout: "out\n", Stderr: "err\n"}, nil
	}}
	w := NewWorkspace(cfg, runner, nil)
	p := localProject(t, nil)
	p.ExpectedSuccess = true
	pp := &PreparedProject{Project: p, Dir: "/checkout", Python: "python3"}

	res, err := w.CheckProject(context.Background(), pp, Invocation{Checker: "mypy", CheckerPath: []string{"/a", "/b"}})
	require.Nil(t, err)
	assert.False(t, res.Success)
	assert.True(t, res.ExpectedSuccess)
	assert.Equal(t, "err\nout\n", res.Output, "stderr has to precede stdout")
	assert.Equal(t, "'mypy' .", res.Command)

	require.Len(t, runner.commands, 1)
	assert.Equal(t, "/checkout", runner.commands[0].Dir)
	assert.Equal(t, []string{"MYPYPATH=/a:/b"}, runner.commands[0].Env)

	t.Run("Failing to run the checker is an error", func(t *testing.T) {
		w := NewWorkspace(cfg, &fakeRunner{run: func(Command) (*ProcessResult, error) {
			return nil, errors.New("no such file")
		}}, nil)
		_, err := w.CheckProject(context.Background(), pp, Invocation{Checker: "mypy"})
		assert.NotNil(t, err)
	})
}

func TestCheckAll(t *testing.T) {
	cfg := testConfig(t)
	w := NewWorkspace(cfg, checkerRunner("bad"), nil)
	projects := []Project{localProject(t, nil), localProject(t, nil)}

	prepared, err := w.SetupAll(context.Background(), cfg.Scheduler(), projects)
	require.Nil(t, err)
	assert.Len(t, prepared, 2)

	results, err := w.CheckAll(context.Background(), cfg.Scheduler(), prepared, projects, Invocation{Checker: "good"})
	require.Nil(t, err)
	assert.Len(t, results, 2)
	for _, r := range results {
		assert.True(t, r.Success)
	}

	results, err = w.CheckAll(context.Background(), cfg.Scheduler(), prepared, projects, Invocation{Checker: "bad"})
	require.Nil(t, err)
	for _, r := range results {
		assert.False(t, r.Success)
	}
}
