// Package suite defines the ordered test cases run against every version and
// the runner that executes them inside one session.
package suite

import (
	"context"
	"fmt"

	"github.com/giantswarm/version-matrix/internal/compare"
	"github.com/giantswarm/version-matrix/internal/refstore"
	"github.com/giantswarm/version-matrix/internal/session"
)

// Params are per-data-set values available to extractors, e.g. "data" for
// the data file path.
type Params map[string]string

// Extractor reads the value a test case judges from a live session. It may
// return a compare.Verdict to decide the outcome itself, e.g. when an error
// from the application is the expected behaviour.
type Extractor func(ctx context.Context, s session.Session, p Params) (any, error)

// Case is the static definition of one test case.
type Case struct {
	ID   int
	Name string
	// MinVersion is the resolved version that introduced the feature under
	// test; older versions get NotApplicable. Zero means always applicable.
	MinVersion int
	Extract    Extractor
	// Compare judges candidate values against the reference. A nil Compare
	// makes the case a measurement: its value is reported unchanged.
	Compare  compare.Comparator
	Footnote string
}

// IsMeasurement reports whether the case reports a value instead of a verdict.
func (c Case) IsMeasurement() bool {
	return c.Compare == nil
}

// KV is one preamble entry.
type KV struct {
	Key   string `json:"key" yaml:"key"`
	Value string `json:"value" yaml:"value"`
}

// Suite is the ordered list of cases every version is tested with.
type Suite struct {
	Name        string
	Description string
	Version     string
	Preamble    []KV
	Cases       []Case
}

// Validate checks that case IDs are unique and ascending and that every case
// can be executed.
func (s *Suite) Validate() error {
	if len(s.Cases) == 0 {
		return fmt.Errorf("suite %q has no test cases", s.Name)
	}
	prev := 0
	for i, c := range s.Cases {
		if c.ID <= prev {
			return fmt.Errorf("suite %q: case %d (%q) has id %d, ids must be positive and ascending", s.Name, i, c.Name, c.ID)
		}
		if c.Extract == nil {
			return fmt.Errorf("suite %q: case %d (%q) has no extractor", s.Name, c.ID, c.Name)
		}
		prev = c.ID
	}
	return nil
}

// Footnotes returns the numbered footnote lines and a map from case ID to
// footnote number, in case order.
func (s *Suite) Footnotes() ([]string, map[int]int) {
	var lines []string
	numbers := make(map[int]int)
	for _, c := range s.Cases {
		if c.Footnote == "" {
			continue
		}
		n := len(lines) + 1
		numbers[c.ID] = n
		lines = append(lines, fmt.Sprintf("<sup>%d</sup> %s", n, c.Footnote))
	}
	return lines, numbers
}

// Record is the result of one test case on one version.
type Record struct {
	ID       int             `json:"id"`
	Name     string          `json:"name"`
	Footnote int             `json:"footnote,omitempty"`
	Verdict  compare.Verdict `json:"verdict"`
}

// Result is everything one suite run produces for one session.
type Result struct {
	Preamble  []KV
	Records   []Record
	Footnotes []string
	// Snapshot is set for reference runs only.
	Snapshot *refstore.Snapshot
}
