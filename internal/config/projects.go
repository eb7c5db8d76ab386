package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Project is a tenant boundary. Provider overrides are optional at every
// level: a missing key simply defers to the system default. The special
// "config" key holds per-implementation-class parameter overrides.
type Project struct {
	ID                string         `yaml:"id"`
	Name              string         `yaml:"name"`
	ProviderOverrides map[string]any `yaml:"provider_overrides"`
}

// ProjectSet is the full set of configured projects, indexed by ID.
type ProjectSet struct {
	projects map[string]*Project
}

// projectsFile is the on-disk YAML shape.
type projectsFile struct {
	Projects []*Project `yaml:"projects"`
}

// LoadProjects reads the projects YAML file. A missing file is not an error:
// deployments that only use system defaults need no projects file.
func LoadProjects(path string) (*ProjectSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &ProjectSet{projects: map[string]*Project{}}, nil
		}
		return nil, fmt.Errorf("reading projects file: %w", err)
	}
	return ParseProjects(data)
}

// ParseProjects decodes projects from YAML bytes.
func ParseProjects(data []byte) (*ProjectSet, error) {
	var f projectsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing projects file: %w", err)
	}

	set := &ProjectSet{projects: make(map[string]*Project, len(f.Projects))}
	for _, p := range f.Projects {
		if p.ID == "" {
			return nil, fmt.Errorf("project %q has no id", p.Name)
		}
		if _, dup := set.projects[p.ID]; dup {
			return nil, fmt.Errorf("duplicate project id %q", p.ID)
		}
		set.projects[p.ID] = p
	}
	return set, nil
}

// Get returns the project with the given ID, or nil.
func (s *ProjectSet) Get(id string) *Project {
	return s.projects[id]
}

// Len returns the number of configured projects.
func (s *ProjectSet) Len() int { return len(s.projects) }

// All returns all projects in unspecified order.
func (s *ProjectSet) All() []*Project {
	out := make([]*Project, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, p)
	}
	return out
}

// OverrideConfig returns the project's per-class config map for the given
// provider family, or nil if none is set. Values are stringified on access
// by the resolver.
func (p *Project) OverrideConfig(family string) map[string]any {
	if p == nil || p.ProviderOverrides == nil {
		return nil
	}
	cfgAny, ok := p.ProviderOverrides["config"]
	if !ok {
		return nil
	}
	cfg, ok := cfgAny.(map[string]any)
	if !ok {
		return nil
	}
	famAny, ok := cfg[family]
	if !ok {
		return nil
	}
	fam, ok := famAny.(map[string]any)
	if !ok {
		return nil
	}
	return fam
}
