package suite

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/giantswarm/version-matrix/internal/compare"
	"github.com/giantswarm/version-matrix/internal/gamma"
	"github.com/giantswarm/version-matrix/internal/schema"
	"github.com/giantswarm/version-matrix/internal/version"
)

//go:embed all:testdata
var embeddedSuites embed.FS

// suiteFile is the file every suite directory holds.
const suiteFile = "suite.yaml"

// UnsupportedComparatorError is returned for a compare mode the loader
// cannot build.
type UnsupportedComparatorError struct {
	Case int
	Mode string
}

func (e *UnsupportedComparatorError) Error() string {
	return fmt.Sprintf("case %d: unsupported compare mode %q", e.Case, e.Mode)
}

type suiteDoc struct {
	Name        string    `yaml:"name"`
	Description string    `yaml:"description"`
	Version     string    `yaml:"version"`
	Preamble    []KV      `yaml:"preamble"`
	Cases       []caseDoc `yaml:"cases"`
}

type caseDoc struct {
	ID         int         `yaml:"id"`
	Name       string      `yaml:"name"`
	MinVersion string      `yaml:"min_version"`
	Footnote   string      `yaml:"footnote"`
	Steps      []Step      `yaml:"steps"`
	Extract    extractDoc  `yaml:"extract"`
	Compare    *compareDoc `yaml:"compare"`
}

type extractDoc struct {
	Kind        string     `yaml:"kind"`
	Path        string     `yaml:"path"`
	Metric      string     `yaml:"metric"`
	Source      string     `yaml:"source"`
	Scale       []scaleDoc `yaml:"scale"`
	LegacyScale *scaleDoc  `yaml:"legacy_scale"`
}

type scaleDoc struct {
	Below  string  `yaml:"below"`
	Field  string  `yaml:"field"`
	Factor float64 `yaml:"factor"`
}

type compareDoc struct {
	Mode             string  `yaml:"mode"`
	Epsilon          float64 `yaml:"epsilon"`
	AmplitudePercent float64 `yaml:"amplitude_percent"`
	Distance         float64 `yaml:"distance"`
	Window           float64 `yaml:"window"`
	Global           bool    `yaml:"global"`
	PositionScale    float64 `yaml:"position_scale"`
}

// Load loads a suite by name, searching first in the external directory
// (if provided), then in the embedded suites.
func Load(name string, externalDir string) (*Suite, error) {
	if externalDir != "" {
		dir := filepath.Join(externalDir, name)
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return loadFromFS(os.DirFS(dir), name)
		}
	}

	// embed.FS always uses forward slashes.
	subFS, err := fs.Sub(embeddedSuites, path.Join("testdata", name))
	if err != nil {
		return nil, fmt.Errorf("test suite %q not found: %w", name, err)
	}
	return loadFromFS(subFS, name)
}

// List returns the names of all available suites, sorted.
func List(externalDir string) ([]string, error) {
	seen := make(map[string]bool)
	var names []string

	entries, err := fs.ReadDir(embeddedSuites, "testdata")
	if err == nil {
		for _, e := range entries {
			if e.IsDir() {
				seen[e.Name()] = true
				names = append(names, e.Name())
			}
		}
	}

	if externalDir != "" {
		entries, err := os.ReadDir(externalDir)
		if err == nil {
			for _, e := range entries {
				if e.IsDir() && !seen[e.Name()] {
					names = append(names, e.Name())
				}
			}
		}
	}

	sort.Strings(names)
	return names, nil
}

func loadFromFS(fsys fs.FS, name string) (*Suite, error) {
	data, err := fs.ReadFile(fsys, suiteFile)
	if err != nil {
		return nil, fmt.Errorf("test suite %q not found: %w", name, err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load suite %q: %w", name, err)
	}
	return s, nil
}

// Parse validates a YAML suite document and builds the suite it declares.
func Parse(data []byte) (*Suite, error) {
	if err := schema.ValidateSuiteYAML(data); err != nil {
		return nil, err
	}

	var doc suiteDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse suite: %w", err)
	}

	s := &Suite{
		Name:        doc.Name,
		Description: doc.Description,
		Version:     doc.Version,
		Preamble:    doc.Preamble,
	}
	for _, cd := range doc.Cases {
		c, err := buildCase(cd)
		if err != nil {
			return nil, err
		}
		s.Cases = append(s.Cases, c)
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func buildCase(cd caseDoc) (Case, error) {
	c := Case{ID: cd.ID, Name: cd.Name, Footnote: cd.Footnote}

	if cd.MinVersion != "" {
		v, err := version.Resolve(cd.MinVersion)
		if err != nil {
			return Case{}, fmt.Errorf("case %d: %w", cd.ID, err)
		}
		c.MinVersion = v
	}

	ext, err := buildExtractor(cd)
	if err != nil {
		return Case{}, err
	}
	c.Extract = ext

	if cd.Compare != nil {
		cmp, err := buildComparator(cd.ID, *cd.Compare)
		if err != nil {
			return Case{}, err
		}
		c.Compare = cmp
	}
	return c, nil
}

func buildExtractor(cd caseDoc) (Extractor, error) {
	var ext Extractor
	switch cd.Extract.Kind {
	case "state":
		if cd.Extract.Path == "" {
			return nil, fmt.Errorf("case %d: state extractor needs a path", cd.ID)
		}
		ext = State(cd.Extract.Path, cd.Steps...)
	case "returned":
		ext = Returned(cd.Steps...)
	case "load_time":
		ext = LoadTime()
	case "timed":
		ext = Timed(cd.Steps...)
	case "expect_error":
		ext = ExpectError(cd.Steps...)
	case "lint":
		ext = Lint(cd.Extract.Metric, cd.Extract.Source)
	default:
		return nil, fmt.Errorf("case %d: unknown extract kind %q", cd.ID, cd.Extract.Kind)
	}

	scales := cd.Extract.Scale
	if cd.Extract.LegacyScale != nil {
		scales = append(scales, *cd.Extract.LegacyScale)
	}
	if len(scales) == 0 {
		return ext, nil
	}

	rules := make([]ScaleRule, 0, len(scales))
	for _, sd := range scales {
		below, err := version.Resolve(sd.Below)
		if err != nil {
			return nil, fmt.Errorf("case %d: scale: %w", cd.ID, err)
		}
		rules = append(rules, ScaleRule{Below: below, Field: sd.Field, Factor: sd.Factor})
	}
	return Scaled(ext, rules...), nil
}

func buildComparator(id int, cd compareDoc) (compare.Comparator, error) {
	switch cd.Mode {
	case "exact":
		return compare.Exact(), nil
	case "tolerance":
		if cd.Epsilon <= 0 {
			return nil, fmt.Errorf("case %d: tolerance needs a positive epsilon", id)
		}
		return compare.AbsTolerance(cd.Epsilon), nil
	case "similarity":
		if cd.AmplitudePercent <= 0 || cd.Distance <= 0 {
			return nil, fmt.Errorf("case %d: similarity needs amplitude_percent and distance", id)
		}
		return compare.Similarity(compare.SimilarityConfig{
			Gamma:            gamma.Index,
			AmplitudePercent: cd.AmplitudePercent,
			Distance:         cd.Distance,
			Global:           cd.Global,
			Window:           cd.Window,
			PositionScale:    cd.PositionScale,
		}), nil
	case "measure":
		return nil, nil
	default:
		return nil, &UnsupportedComparatorError{Case: id, Mode: cd.Mode}
	}
}
