package matrix

import (
	"fmt"
	"time"

	"github.com/giantswarm/version-matrix/internal/compare"
	"github.com/giantswarm/version-matrix/internal/refstore"
	"github.com/giantswarm/version-matrix/internal/suite"
)

// DataSet is one test data file the whole version matrix runs against.
type DataSet struct {
	Label string `json:"label" yaml:"label"`
	Path  string `json:"path" yaml:"path"`
}

// Row identifies one test case in a grid.
type Row struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Footnote int    `json:"footnote,omitempty"`
}

// Column holds one version's verdicts, one per row.
type Column struct {
	Label       string            `json:"label"`
	InstallPath string            `json:"install_path"`
	Version     string            `json:"version,omitempty"`
	IsReference bool              `json:"is_reference"`
	Verdicts    []compare.Verdict `json:"verdicts"`
	// Err is set when the version could not be launched.
	Err      string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Failed reports whether the column could not be run.
func (c Column) Failed() bool {
	return c.Err != ""
}

// Grid is the result table of one data set: the reference column first, then
// the candidates in caller order.
type Grid struct {
	Rows    []Row    `json:"rows"`
	Columns []Column `json:"columns"`
}

// Validate checks that every column has one verdict per row.
func (g Grid) Validate() error {
	for _, c := range g.Columns {
		if len(c.Verdicts) != len(g.Rows) {
			return fmt.Errorf("column %q has %d verdicts for %d rows", c.Label, len(c.Verdicts), len(g.Rows))
		}
	}
	return nil
}

// Cell returns the verdict for a row and column index.
func (g Grid) Cell(row, col int) compare.Verdict {
	return g.Columns[col].Verdicts[row]
}

// Section is the result of the matrix for one data set.
type Section struct {
	DataSet   DataSet    `json:"data_set"`
	Preamble  []suite.KV `json:"preamble"`
	Grid      Grid       `json:"grid"`
	Footnotes []string   `json:"footnotes,omitempty"`
	// Snapshot is the reference snapshot the candidates were compared with.
	Snapshot *refstore.Snapshot `json:"-"`
}

// Report is the outcome of a whole matrix run.
type Report struct {
	RunID     string        `json:"id"`
	Suite     string        `json:"suite"`
	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"duration"`
	Sections  []Section     `json:"sections"`
}

// Counts tallies verdict kinds over every candidate cell of the report.
func (r *Report) Counts() map[compare.Kind]int {
	counts := make(map[compare.Kind]int)
	for _, s := range r.Sections {
		for _, c := range s.Grid.Columns {
			if c.IsReference {
				continue
			}
			for _, v := range c.Verdicts {
				counts[v.Kind]++
			}
		}
	}
	return counts
}

func rowsFor(s *suite.Suite) []Row {
	_, numbers := s.Footnotes()
	rows := make([]Row, len(s.Cases))
	for i, c := range s.Cases {
		rows[i] = Row{ID: c.ID, Name: c.Name, Footnote: numbers[c.ID]}
	}
	return rows
}

func columnFrom(res suite.Result) []compare.Verdict {
	out := make([]compare.Verdict, len(res.Records))
	for i, r := range res.Records {
		out[i] = r.Verdict
	}
	return out
}

// errorColumn marks every row of a column that could not be launched.
func errorColumn(rows int, err error) []compare.Verdict {
	out := make([]compare.Verdict, rows)
	for i := range out {
		out[i] = compare.Errored("%v", err)
	}
	return out
}
