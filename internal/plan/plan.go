// Package plan reads run plans: YAML files naming the data sets and versions
// of a matrix run.
package plan

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/giantswarm/version-matrix/internal/matrix"
	"github.com/giantswarm/version-matrix/internal/schema"
	"github.com/giantswarm/version-matrix/internal/version"
)

// Plan describes one matrix run. The first version is the reference.
type Plan struct {
	Name            string               `yaml:"name"`
	Suite           string               `yaml:"suite"`
	Backend         string               `yaml:"backend"`
	RepeatReference bool                 `yaml:"repeat_reference"`
	DataSets        []matrix.DataSet     `yaml:"data_sets"`
	Versions        []version.Descriptor `yaml:"versions"`
}

// Load reads and validates a plan file. Relative data set paths are resolved
// against the directory of the plan file.
func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan: %w", err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("plan %s: %w", path, err)
	}

	base := filepath.Dir(path)
	for i, ds := range p.DataSets {
		if !filepath.IsAbs(ds.Path) {
			p.DataSets[i].Path = filepath.Join(base, ds.Path)
		}
	}
	return p, nil
}

// Parse validates a YAML plan document and decodes it.
func Parse(data []byte) (*Plan, error) {
	if err := schema.ValidatePlanYAML(data); err != nil {
		return nil, err
	}

	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse plan: %w", err)
	}

	for i, v := range p.Versions {
		if v.Label == "" {
			p.Versions[i].Label = version.DefaultLabel(v.InstallPath)
		}
	}
	p.Versions = version.MarkReference(p.Versions)

	seen := make(map[string]bool, len(p.DataSets))
	for _, ds := range p.DataSets {
		if seen[ds.Label] {
			return nil, fmt.Errorf("duplicate data set label %q", ds.Label)
		}
		seen[ds.Label] = true
	}
	return &p, nil
}
