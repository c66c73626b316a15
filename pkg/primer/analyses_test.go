package primer

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoverage(t *testing.T) {
	cfg := testConfig(t)
	w := NewWorkspace(cfg, checkerRunner(), nil)

	small := localProject(t, map[string]string{
		"a.py":        "x = 1\n",
		"README.md":   "not counted\n",
		"pkg/b.pyi":   "def f() -> int: ...\ny: str",
		".git/config": "ignored\n",
	})
	big := localProject(t, map[string]string{
		"src/c.py":   "a\nb\nc\nd\n",
		"tests/d.py": "not a source root\n",
	})
	big.Paths = []string{"src"}
	missing := ProjectFromLocation(filepath.Join(t.TempDir(), "missing"))

	coverage, err := w.Coverage(context.Background(), cfg.Scheduler(), []Project{small, big, missing})
	require.Nil(t, err)
	require.Len(t, coverage, 3)

	assert.Equal(t, big.Name, coverage[0].Project.Name)
	assert.Equal(t, 1, coverage[0].Files)
	assert.Equal(t, 4, coverage[0].Lines)

	assert.Equal(t, small.Name, coverage[1].Project.Name)
	assert.Equal(t, 2, coverage[1].Files)
	assert.Equal(t, 3, coverage[1].Lines)

	assert.Equal(t, missing.Name, coverage[2].Project.Name)
	assert.NotNil(t, coverage[2].Err)
}

func TestLineCount(t *testing.T) {
	assert.Equal(t, 0, lineCount(nil))
	assert.Equal(t, 1, lineCount([]byte("a")))
	assert.Equal(t, 1, lineCount([]byte("a\n")))
	assert.Equal(t, 2, lineCount([]byte("a\nb")))
}

func TestMeasureRuntimes(t *testing.T) {
	cfg := testConfig(t)
	w := NewWorkspace(cfg, checkerRunner(), nil)
	projects := []Project{localProject(t, nil), localProject(t, nil), ProjectFromLocation(filepath.Join(t.TempDir(), "missing"))}

	runtimes, err := w.MeasureRuntimes(context.Background(), cfg.Scheduler(), projects, &Checker{Exe: "mypy"})
	require.Nil(t, err)
	require.Len(t, runtimes, 3)
	assert.Nil(t, runtimes[0].Err)
	assert.Nil(t, runtimes[1].Err)
	assert.GreaterOrEqual(t, runtimes[0].Runtime, runtimes[1].Runtime)
	assert.NotNil(t, runtimes[2].Err, "failed projects have to be listed last")
}

func TestValidateExpectedSuccess(t *testing.T) {
	cfg := testConfig(t)
	// v1 fails everything, v2 succeeds on everything
	w := NewWorkspace(cfg, checkerRunner("v1"), nil)
	checkers := []*Checker{{Exe: "v1"}, {Exe: "v2"}}

	accurate := localProject(t, nil)
	accurate.ExpectedSuccess = true
	unmarked := localProject(t, nil)
	missing := ProjectFromLocation(filepath.Join(t.TempDir(), "missing"))

	diagnostics, err := w.ValidateExpectedSuccess(context.Background(), cfg.Scheduler(), []Project{accurate, unmarked, missing}, checkers)
	require.Nil(t, err)
	require.Len(t, diagnostics, 2)
	assert.Equal(t, "Project "+unmarked.Location+" succeeded with v2, but is not marked as expecting success", diagnostics[0])
	assert.True(t, strings.HasPrefix(diagnostics[1], "Project "+missing.Location+" could not be set up"))

	t.Run("Marked projects nothing succeeds on are reported", func(t *testing.T) {
		diagnostics, err := w.ValidateExpectedSuccess(context.Background(), cfg.Scheduler(), []Project{accurate}, checkers[:1])
		require.Nil(t, err)
		assert.Equal(t, []string{"Project " + accurate.Location + " did not succeed, but is marked as expecting success"}, diagnostics)
	})
}
