package primer

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/opencontainers/go-digest"
)

// A Project is a single project of the corpus against which the checker is run.
// Projects are values and never mutated after creation, which makes them safe to share between concurrently running tasks.
type Project struct {
	Location string // The URL of the project's repository, or a local path
	Name     string // The unique name of this project. Derived from Location if empty

	Revision string // The revision or date the project is pinned to. Empty means the repository's default head

	ExpectedSuccess bool // Whether the checker is expected to report no errors for this project

	Cost int // The relative cost of checking this project, only used for partitioning

	Command string   // The command checking this project. {checker} and {python} get substituted
	Deps    []string // Packages to install into the project's own virtualenv before checking it
	Paths   []string // The source roots of this project, relative to its checkout
}

// ProjectFromLocation returns a project for the passed location with all other fields defaulted.
func ProjectFromLocation(location string) Project {
	return Project{
		Location: location,
		Cost:     1,
		Command:  defaultCommand,
		Paths:    []string{"."},
	}.normalized()
}

const defaultCommand = "{checker} ."

// WithRevision returns a copy of the project pinned to the passed revision or date.
func (p Project) WithRevision(revision string) Project {
	p.Revision = revision
	return p
}

// IsLocal reports whether the project's location is a path on this machine rather than a remote repository.
func (p Project) IsLocal() bool {
	return !strings.Contains(p.Location, "://") && !strings.HasPrefix(p.Location, "git@")
}

// normalized fills in the fields derivable from others
func (p Project) normalized() Project {
	if p.Name == "" {
		p.Name = strings.TrimSuffix(path.Base(strings.TrimRight(p.Location, "/")), ".git")
	}
	if p.Command == "" {
		p.Command = defaultCommand
	}
	if len(p.Paths) == 0 {
		p.Paths = []string{"."}
	}
	return p
}

func (p Project) String() string {
	if p.Revision == "" {
		return p.Location
	}
	return fmt.Sprintf("%s@%s", p.Location, p.Revision)
}

// A CheckResult is the captured outcome of one run of the checker against one project.
type CheckResult struct {
	Command string // The command that was run

	Success bool   // Whether the checker exited with status 0
	Output  string // The checker's stderr followed by its stdout

	Runtime time.Duration // The wall clock time the checker took

	ExpectedSuccess bool // The expectation of the project this result belongs to
}

// Fingerprint returns a digest of the result's output with styling removed.
// Two results with the same fingerprint are equivalent.
func (r CheckResult) Fingerprint() string {
	return digest.FromString(StripANSI(r.Output)).Encoded()[:12]
}

func (r CheckResult) String() string {
	return fmt.Sprintf("%s\n\tsuccess: %t (expected %t), runtime: %.2fs\n%s", r.Command, r.Success, r.ExpectedSuccess, r.Runtime.Seconds(), r.Output)
}

// An Invocation describes how the checker is to be invoked against every project.
type Invocation struct {
	Checker     string   // The path to the checker's executable
	TypeshedDir string   // A custom typeshed checkout to use instead of the bundled one. Empty for the bundled one
	CheckerPath []string // Additional module search paths passed through the environment
	ExtraArgs   []string // Additional arguments appended to every project's command
}
