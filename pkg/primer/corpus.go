package primer

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

type corpusYaml struct {
	Probe    *probeYaml    `yaml:"probe"`
	Projects []projectYaml `yaml:"projects"`
}

type projectYaml struct {
	Location string `yaml:"location"`
	Name     string `yaml:"name"`

	Revision string `yaml:"revision"`

	ExpectedSuccess bool `yaml:"expectedSuccess"`

	Cost *int `yaml:"cost" default:"1"` // Nil until defaulted, an explicit 0 is kept

	Command string   `yaml:"command" default:"{checker} ."`
	Deps    []string `yaml:"deps"`
	Paths   []string `yaml:"paths" default:"[\".\"]"`
}

// A Corpus is the set of known projects, together with how installed checkers are probed.
type Corpus struct {
	Projects []Project
	Probe    Probe
}

// GetCorpusFromConfig reads in a corpus config in yaml format from a reader and initializes the corresponding corpus
func GetCorpusFromConfig(r io.Reader) (*Corpus, error) {
	var config corpusYaml

	// Read in yaml
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&config); err != nil {
		return nil, err
	}

	corpus := Corpus{}

	if config.Probe == nil {
		config.Probe = &probeYaml{}
	}
	if err := defaults.Set(config.Probe); err != nil {
		return nil, err
	}
	probeTypes := map[string]ProbeType{
		"version": VersionProbe,
		"script":  ScriptProbe,
	}
	probeType, ok := probeTypes[strings.ToLower(config.Probe.Type)]
	if !ok {
		return nil, fmt.Errorf("invalid probe type %s", config.Probe.Type)
	}
	corpus.Probe = Probe{
		Type: probeType,
		Data: config.Probe.Data,
		Config: ProbeConfig{
			Retries: config.Probe.Retries,

			Backoff: time.Duration(config.Probe.Backoff) * time.Millisecond,

			BackoffIncrement: time.Duration(config.Probe.BackoffIncrement) * time.Millisecond,
			MaxBackoff:       time.Duration(config.Probe.MaxBackoff) * time.Millisecond,
		},
	}

	// Convert all projects
	seen := make(map[string]bool)
	for i, project := range config.Projects {
		if err := defaults.Set(&project); err != nil {
			return nil, err
		}
		if project.Location == "" {
			return nil, fmt.Errorf("project %d has no location", i)
		}
		if *project.Cost < 0 {
			return nil, fmt.Errorf("project %s has negative cost %d", project.Location, *project.Cost)
		}

		p := Project{
			Location: project.Location,
			Name:     project.Name,

			Revision: project.Revision,

			ExpectedSuccess: project.ExpectedSuccess,

			Cost: *project.Cost,

			Command: project.Command,
			Deps:    project.Deps,
			Paths:   project.Paths,
		}.normalized()

		if seen[p.Name] {
			return nil, fmt.Errorf("duplicate project name %s", p.Name)
		}
		seen[p.Name] = true

		corpus.Projects = append(corpus.Projects, p)
	}

	return &corpus, nil
}
