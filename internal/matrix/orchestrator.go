// Package matrix runs a test suite across every version for every data set
// and assembles the result grids.
package matrix

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/giantswarm/version-matrix/internal/refstore"
	"github.com/giantswarm/version-matrix/internal/session"
	"github.com/giantswarm/version-matrix/internal/suite"
	"github.com/giantswarm/version-matrix/internal/version"
)

// Orchestrator runs one suite across a version matrix. Sessions are opened
// strictly one at a time.
type Orchestrator struct {
	Opener *session.Opener
	Suite  *suite.Suite

	// RepeatReference runs the reference version again as the last column.
	RepeatReference bool

	// Baselines optionally holds stored reference snapshots keyed by data set
	// label. With a baseline, the reference column is compared against it and
	// candidates are compared against the baseline too.
	Baselines map[string]*refstore.Snapshot

	// Name is used for the run ID; it defaults to the suite name.
	Name string

	// OutputDir, when set, receives the resultset.json manifest.
	OutputDir string

	Progress suite.ProgressFunc
}

// Run executes the matrix. The first descriptor is the reference. A version
// that fails to launch gets a column of Error cells and the run continues; a
// failed environment reset aborts the run.
func (o *Orchestrator) Run(ctx context.Context, dataSets []DataSet, versions []version.Descriptor) (*Report, error) {
	if o.Opener == nil {
		return nil, errors.New("no session opener configured")
	}
	if o.Suite == nil {
		return nil, errors.New("no suite configured")
	}
	if err := o.Suite.Validate(); err != nil {
		return nil, err
	}
	if len(dataSets) == 0 {
		return nil, errors.New("no test data sets specified")
	}
	if len(versions) == 0 {
		return nil, errors.New("no versions specified for matrix run")
	}

	timestamp := time.Now()
	report := &Report{
		RunID:     RunID(o.runName(), timestamp),
		Suite:     o.Suite.Name,
		Timestamp: timestamp,
	}

	descriptors := version.MarkReference(versions)
	for _, ds := range dataSets {
		if err := ctx.Err(); err != nil {
			slog.Warn("matrix run cancelled", "data_set", ds.Label)
			return nil, err
		}

		section, err := o.runDataSet(ctx, ds, descriptors)
		if err != nil {
			return nil, fmt.Errorf("data set %s: %w", ds.Label, err)
		}
		report.Sections = append(report.Sections, section)
	}
	report.Duration = time.Since(timestamp)

	if o.OutputDir != "" {
		if _, err := WriteResultSet(o.OutputDir, report); err != nil {
			return nil, fmt.Errorf("failed to write result set: %w", err)
		}
	}
	return report, nil
}

func (o *Orchestrator) runName() string {
	if o.Name != "" {
		return o.Name
	}
	return o.Suite.Name
}

func (o *Orchestrator) runDataSet(ctx context.Context, ds DataSet, descriptors []version.Descriptor) (Section, error) {
	params := suite.Params{"data": ds.Path, "label": ds.Label}
	section := Section{
		DataSet: ds,
		Preamble: append([]suite.KV{{Key: "data set", Value: fmt.Sprintf("%s (%s)", ds.Label, ds.Path)}},
			o.Suite.Preamble...),
		Grid: Grid{Rows: rowsFor(o.Suite)},
	}
	section.Footnotes, _ = o.Suite.Footnotes()

	slog.Info("running data set", "data_set", ds.Label, "path", ds.Path, "versions", len(descriptors))

	ref := descriptors[0]
	baseline := o.Baselines[ds.Label]
	col, res, err := o.runColumn(ctx, ref, params, baseline)
	if err != nil {
		return Section{}, err
	}
	section.Grid.Columns = append(section.Grid.Columns, col)
	section.Preamble = append(section.Preamble, res.Preamble...)

	snapshot := baseline
	if snapshot == nil {
		snapshot = res.Snapshot
	}
	if snapshot == nil {
		// The reference did not launch; candidates have nothing to compare with.
		snapshot = refstore.NewBuilder().Freeze()
	}
	section.Snapshot = snapshot

	candidates := descriptors[1:]
	if o.RepeatReference {
		candidates = append(append([]version.Descriptor(nil), candidates...), ref)
	}
	for _, d := range candidates {
		if err := ctx.Err(); err != nil {
			return Section{}, err
		}
		col, res, err := o.runColumn(ctx, d, params, snapshot)
		if err != nil {
			return Section{}, err
		}
		section.Grid.Columns = append(section.Grid.Columns, col)
		section.Preamble = append(section.Preamble, res.Preamble...)
	}

	if err := section.Grid.Validate(); err != nil {
		return Section{}, err
	}
	return section, nil
}

// runColumn runs the suite for one version in its own session. It returns an
// error only when the matrix must stop.
func (o *Orchestrator) runColumn(ctx context.Context, d version.Descriptor, params suite.Params, ref *refstore.Snapshot) (Column, suite.Result, error) {
	col := Column{Label: d.Label, InstallPath: d.InstallPath, IsReference: d.IsReference}
	start := time.Now()

	runner := suite.NewRunner(o.Suite, params)
	runner.SetProgressFunc(o.Progress)

	var res suite.Result
	err := session.WithSession(ctx, o.Opener, d, func(s session.Session) error {
		col.Version = s.Version()
		res = runner.Run(ctx, s, ref)
		return nil
	})
	col.Duration = time.Since(start)

	switch {
	case err == nil:
		col.Verdicts = columnFrom(res)
	case session.IsEnvironmentResetError(err):
		slog.Error("environment reset failed, aborting matrix", "version", d.Label, "error", err)
		return Column{}, suite.Result{}, err
	case session.IsLaunchError(err):
		slog.Error("version failed to launch", "version", d.Label, "error", err)
		col.Err = err.Error()
		col.Verdicts = errorColumn(len(o.Suite.Cases), err)
		res = suite.Result{Preamble: []suite.KV{{Key: d.Label, Value: "failed to launch: " + rootCause(err)}}}
	case res.Records != nil:
		// The suite completed but the application did not close cleanly.
		slog.Warn("version did not close cleanly", "version", d.Label, "error", err)
		col.Verdicts = columnFrom(res)
	default:
		return Column{}, suite.Result{}, err
	}

	slog.Info("version complete", "version", d.Label, "duration", col.Duration, "failed", col.Failed())
	return col, res, nil
}

func rootCause(err error) string {
	var launchErr *session.LaunchError
	if errors.As(err, &launchErr) && launchErr.Err != nil {
		return launchErr.Err.Error()
	}
	return err.Error()
}

// RunID derives the run identifier from a run name and start time. A random
// suffix keeps runs started within the same second apart.
func RunID(name string, t time.Time) string {
	return fmt.Sprintf("%s_%s_%s", strings.ReplaceAll(name, " ", "_"), t.Format("20060102-150405"), uuid.NewString()[:8])
}
