package primer

import "fmt"

// SelectProjects returns the projects of the corpus matching the config's filters.
// If sharding is configured, only the projects of the configured shard are returned.
// If nothing matches, [ErrNoProjectsSelected] is returned.
func SelectProjects(cfg *Config, corpus []Project) ([]Project, error) {
	if cfg.LocalProject != "" {
		return []Project{ProjectFromLocation(cfg.LocalProject)}, nil
	}

	selector, err := cfg.selectorRegexp()
	if err != nil {
		return nil, err
	}

	var projects []Project
	seen := make(map[string]bool)
	for _, p := range corpus {
		if selector != nil && !selector.MatchString(p.Location) {
			continue
		}
		if cfg.ExpectedSuccessOnly && !p.ExpectedSuccess {
			continue
		}
		if cfg.ProjectDate != "" {
			p = p.WithRevision(cfg.ProjectDate)
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("duplicate project name %s", p.Name)
		}
		seen[p.Name] = true
		projects = append(projects, p)
	}

	if len(projects) == 0 {
		return nil, ErrNoProjectsSelected
	}

	if cfg.NumShards > 0 {
		if cfg.ShardIndex < 0 || cfg.ShardIndex >= cfg.NumShards {
			return nil, fmt.Errorf("shard index %d out of range for %d shards", cfg.ShardIndex, cfg.NumShards)
		}
		return Partition(projects, cfg.NumShards)[cfg.ShardIndex].Projects, nil
	}
	return projects, nil
}
