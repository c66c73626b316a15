package primer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, DefaultRepo, cfg.Repo)
	assert.Equal(t, -1, cfg.CompileLevel)
	assert.Equal(t, "full", cfg.Output)
	assert.Equal(t, []string{"--no-pretty", "--no-error-summary"}, cfg.ConciseArgs)
	assert.Equal(t, []string{".py", ".pyi"}, cfg.SourceExtensions)
	assert.Equal(t, "/tmp/typeprimer/projects", cfg.ProjectsDir())
	assert.Nil(t, cfg.Validate())

	assert.Equal(t, FailFast, cfg.Scheduler().Policy)
	assert.Equal(t, AbortOnInconclusive, cfg.InconclusivePolicy())
}

func TestConfigValidate(t *testing.T) {
	values := []struct {
		name   string
		modify func(c *Config)
	}{
		{"Unknown output", func(c *Config) { c.Output = "json" }},
		{"Unknown fault policy", func(c *Config) { c.FaultPolicy = "retry" }},
		{"Unknown inconclusive policy", func(c *Config) { c.OnInconclusive = "guess" }},
		{"Compile level too high", func(c *Config) { c.CompileLevel = 4 }},
		{"Shard index out of range", func(c *Config) { c.NumShards = 2; c.ShardIndex = 2 }},
		{"Negative shard count", func(c *Config) { c.NumShards = -1 }},
		{"Missing base dir", func(c *Config) { c.BaseDir = "" }},
		{"Invalid selector", func(c *Config) { c.ProjectSelector = "(" }},
		{"Invalid bisect pattern", func(c *Config) { c.BisectOutput = "[" }},
	}

	for _, v := range values {
		t.Run(v.name, func(t *testing.T) {
			cfg := DefaultConfig()
			v.modify(&cfg)
			assert.NotNil(t, cfg.Validate())
		})
	}
}

func TestConfigPolicies(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FaultPolicy = "isolate"
	cfg.OnInconclusive = "skip"
	cfg.MaxConcurrent = 3

	s := cfg.Scheduler()
	assert.Equal(t, IsolateFaults, s.Policy)
	assert.Equal(t, uint(3), s.MaxConcurrent)
	assert.Equal(t, SkipInconclusive, cfg.InconclusivePolicy())

	re, err := (&Config{ProjectSelector: "BLACK"}).selectorRegexp()
	require.Nil(t, err)
	assert.True(t, re.MatchString("https://github.com/psf/black"), "project selector has to be case insensitive")
}

func TestSelectProjects(t *testing.T) {
	corpus := []Project{
		{Location: "https://github.com/psf/black", Name: "black", ExpectedSuccess: true, Cost: 5},
		{Location: "https://github.com/pallets/flask", Name: "flask", Cost: 3},
		{Location: "https://github.com/python/typeshed", Name: "typeshed", ExpectedSuccess: true, Cost: 2},
	}

	t.Run("Everything is selected by default", func(t *testing.T) {
		cfg := DefaultConfig()
		projects, err := SelectProjects(&cfg, corpus)
		require.Nil(t, err)
		assert.Len(t, projects, 3)
	})

	t.Run("Selector and expected success filter", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.ProjectSelector = "github.com/(psf|pallets)/"
		cfg.ExpectedSuccessOnly = true
		projects, err := SelectProjects(&cfg, corpus)
		require.Nil(t, err)
		require.Len(t, projects, 1)
		assert.Equal(t, "black", projects[0].Name)
	})

	t.Run("Project date pins every project", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.ProjectDate = "2023-06-01"
		projects, err := SelectProjects(&cfg, corpus)
		require.Nil(t, err)
		for _, p := range projects {
			assert.Equal(t, "2023-06-01", p.Revision)
		}
		assert.Empty(t, corpus[0].Revision, "corpus was modified")
	})

	t.Run("Local project replaces the corpus", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.LocalProject = "/home/user/project"
		projects, err := SelectProjects(&cfg, corpus)
		require.Nil(t, err)
		require.Len(t, projects, 1)
		assert.Equal(t, "project", projects[0].Name)
	})

	t.Run("Nothing selected", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.ProjectSelector = "gitlab"
		_, err := SelectProjects(&cfg, corpus)
		assert.ErrorIs(t, err, ErrNoProjectsSelected)
	})

	t.Run("Shards are disjoint and complete", func(t *testing.T) {
		seen := make(map[string]bool)
		for i := range 2 {
			cfg := DefaultConfig()
			cfg.NumShards = 2
			cfg.ShardIndex = i
			projects, err := SelectProjects(&cfg, corpus)
			require.Nil(t, err)
			for _, p := range projects {
				assert.False(t, seen[p.Name], "project selected by two shards")
				seen[p.Name] = true
			}
		}
		assert.Len(t, seen, 3)
	})
}

func TestCheckerSelectors(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, DefaultHead, cfg.NewSelector())
	assert.Equal(t, "0.991", cfg.RuntimeSelector())

	cfg.ProbeRevisions = nil
	assert.Equal(t, DefaultHead, cfg.RuntimeSelector())

	cfg.NewChecker = "v1.5.0"
	assert.Equal(t, "v1.5.0", cfg.NewSelector())
	assert.Equal(t, "v1.5.0", cfg.RuntimeSelector())
}
