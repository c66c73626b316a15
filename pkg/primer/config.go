package primer

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
)

// DefaultRepo is the upstream repository of the checker. Prebuilt releases are only installed for it.
const DefaultRepo = "https://github.com/python/mypy"

// A Config holds every setting of one typeprimer invocation.
// It is created once and passed to every component that needs it.
type Config struct {
	Repo           string `mapstructure:"repo" default:"https://github.com/python/mypy" validate:"required"`
	NewChecker     string `mapstructure:"new"`                                                // Revision or date of the new checker. Empty means the repository's default head
	OldChecker     string `mapstructure:"old"`                                                // Revision or date of the old checker. Empty means the most recent tag
	PackageName    string `mapstructure:"package" default:"mypy" validate:"required"`         // The name of the checker's prebuilt package
	ExecutableName string `mapstructure:"executable" default:"mypy" validate:"required"`      // The name of the checker's executable inside its virtualenv
	CompileLevel   int    `mapstructure:"compile-level" default:"-1" validate:"min=-1,max=3"` // Compile the checker with this optimisation level. -1 disables compilation
	Python         string `mapstructure:"python" default:"python3" validate:"required"`       // The interpreter used to create virtualenvs

	TypeshedRepo   string   `mapstructure:"custom-typeshed-repo" default:"https://github.com/python/typeshed"`
	NewTypeshed    string   `mapstructure:"new-typeshed"` // Revision of typeshed for the new checker. Empty uses the bundled one
	OldTypeshed    string   `mapstructure:"old-typeshed"` // Revision of typeshed for the old checker. Empty uses the bundled one
	NewCheckerPath []string `mapstructure:"new-checker-path"`
	OldCheckerPath []string `mapstructure:"old-checker-path"`
	TypeshedFlag   string   `mapstructure:"typeshed-flag" default:"--custom-typeshed-dir"`
	PathEnvVar     string   `mapstructure:"path-env-var" default:"MYPYPATH"`

	BaseDir string `mapstructure:"base-dir" default:"/tmp/typeprimer" validate:"required"`
	Clear   bool   `mapstructure:"clear"` // Remove BaseDir before and after the run

	ProjectsFile        string `mapstructure:"projects"`         // The corpus config
	LocalProject        string `mapstructure:"local-project"`    // Check only this location
	ProjectSelector     string `mapstructure:"project-selector"` // Regexp matched against project locations
	ExpectedSuccessOnly bool   `mapstructure:"expected-success"`
	ProjectDate         string `mapstructure:"project-date"` // Pin every project to this date
	NumShards           int    `mapstructure:"num-shards" validate:"min=0"`
	ShardIndex          int    `mapstructure:"shard-index" validate:"min=0"`

	Output         string   `mapstructure:"output" default:"full" validate:"oneof=full diff concise"`
	ConciseArgs    []string `mapstructure:"concise-args" default:"[\"--no-pretty\",\"--no-error-summary\"]"`
	OldSuccessOnly bool     `mapstructure:"old-success"` // Only report projects the old checker succeeded on

	BisectOutput   string `mapstructure:"bisect-output"` // Regexp marking a step bad. If empty, any change to the baseline is bad
	OnInconclusive string `mapstructure:"on-inconclusive" default:"abort" validate:"oneof=abort skip"`

	MaxConcurrent uint   `mapstructure:"concurrency"` // Maximum amount of projects checked at once, 0 for no limit
	FaultPolicy   string `mapstructure:"fault-policy" default:"fail-fast" validate:"oneof=isolate fail-fast"`

	DockerImage string `mapstructure:"docker-image"` // Run every external command in a container of this image

	ProbeRevisions   []string `mapstructure:"probe-revisions" default:"[\"0.991\",\"0.982\",\"0.971\",\"0.961\"]"`
	SourceExtensions []string `mapstructure:"source-extensions" default:"[\".py\",\".pyi\"]"`

	Debug bool `mapstructure:"debug"`
}

// DefaultConfig returns a config with every field set to its default value.
func DefaultConfig() Config {
	var c Config
	if err := defaults.Set(&c); err != nil {
		panic(fmt.Sprintf("invalid config defaults - %v", err))
	}
	return c
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the config for invalid or contradicting values.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.Join(fmt.Errorf("invalid config"), err)
	}
	if c.NumShards > 0 && c.ShardIndex >= c.NumShards {
		return fmt.Errorf("shard index %d out of range for %d shards", c.ShardIndex, c.NumShards)
	}
	if _, err := c.selectorRegexp(); err != nil {
		return err
	}
	if _, err := c.bisectRegexp(); err != nil {
		return err
	}
	return nil
}

// ProjectsDir is the directory holding the checkouts of all projects.
func (c *Config) ProjectsDir() string {
	return filepath.Join(c.BaseDir, "projects")
}

// Scheduler returns the scheduler configured by the concurrency settings.
func (c *Config) Scheduler() Scheduler {
	policy := FailFast
	if c.FaultPolicy == "isolate" {
		policy = IsolateFaults
	}
	return Scheduler{MaxConcurrent: c.MaxConcurrent, Policy: policy}
}

// NewSelector returns the selector of the new checker, defaulting to the repository's default head.
func (c *Config) NewSelector() string {
	if c.NewChecker == "" {
		return DefaultHead
	}
	return c.NewChecker
}

// RuntimeSelector returns the selector of the checker whose runtimes are measured.
// Without a new checker, the first probed release is measured.
func (c *Config) RuntimeSelector() string {
	if c.NewChecker == "" && len(c.ProbeRevisions) > 0 {
		return c.ProbeRevisions[0]
	}
	return c.NewSelector()
}

// InconclusivePolicy returns how inconclusive bisection steps are to be handled.
func (c *Config) InconclusivePolicy() InconclusivePolicy {
	if c.OnInconclusive == "skip" {
		return SkipInconclusive
	}
	return AbortOnInconclusive
}

func (c *Config) selectorRegexp() (*regexp.Regexp, error) {
	if c.ProjectSelector == "" {
		return nil, nil
	}
	re, err := regexp.Compile("(?i)" + c.ProjectSelector)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("invalid project selector %q", c.ProjectSelector), err)
	}
	return re, nil
}

func (c *Config) bisectRegexp() (*regexp.Regexp, error) {
	if c.BisectOutput == "" {
		return nil, nil
	}
	re, err := regexp.Compile(c.BisectOutput)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("invalid bisect output pattern %q", c.BisectOutput), err)
	}
	return re, nil
}
