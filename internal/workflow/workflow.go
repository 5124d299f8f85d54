// Package workflow runs a complete matrix job: it loads the suite, picks the
// backend, runs the matrix and persists the report, reference snapshots and
// run history.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/giantswarm/version-matrix/internal/backend"
	"github.com/giantswarm/version-matrix/internal/history"
	"github.com/giantswarm/version-matrix/internal/matrix"
	"github.com/giantswarm/version-matrix/internal/refstore"
	"github.com/giantswarm/version-matrix/internal/report"
	"github.com/giantswarm/version-matrix/internal/session"
	"github.com/giantswarm/version-matrix/internal/suite"
	"github.com/giantswarm/version-matrix/internal/version"
)

// Request describes one matrix job.
type Request struct {
	Suite     string
	SuitesDir string
	// Name overrides the suite name in the run ID.
	Name string

	DataSets []matrix.DataSet
	// Versions are run in order; the first is the reference.
	Versions []version.Descriptor

	Backend         string
	RepeatReference bool
	// SearchPathVars are extra environment variables every session prepends
	// the install path to.
	SearchPathVars []string

	// OutputDir receives <run id>/resultset.json and the Markdown report.
	OutputDir string
	// ReferenceIn holds stored reference snapshots, one file per data set.
	ReferenceIn string
	// ReferenceOut receives the reference snapshots of this run.
	ReferenceOut string
	// HistoryDB records the run in a SQLite history database.
	HistoryDB string

	Progress suite.ProgressFunc
}

// Validate checks the request before anything is launched.
func (r Request) Validate() error {
	if r.Suite == "" {
		return errors.New("a test suite is required")
	}
	if len(r.DataSets) == 0 {
		return errors.New("at least one test data set is required")
	}
	if len(r.Versions) == 0 {
		return errors.New("at least one version is required")
	}
	seen := make(map[string]bool, len(r.DataSets))
	for _, ds := range r.DataSets {
		if ds.Label == "" || ds.Path == "" {
			return fmt.Errorf("data set %q needs a label and a path", ds.Label)
		}
		if seen[ds.Label] {
			return fmt.Errorf("duplicate data set label %q", ds.Label)
		}
		seen[ds.Label] = true
	}
	return nil
}

// Result is the outcome of a job.
type Result struct {
	Report   *matrix.Report
	Document string
	// ReportPath and RunDir are empty without an output directory.
	ReportPath string
	RunDir     string
	Snapshots  []string
}

// Execute runs the job. The process working directory and search variables
// are restored before it returns.
func Execute(ctx context.Context, req Request, opts backend.Options) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	s, err := suite.Load(req.Suite, req.SuitesDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load test suite: %w", err)
	}

	launcher, err := backend.Get(req.Backend, opts)
	if err != nil {
		return nil, err
	}

	dataSets, err := absDataSets(req.DataSets)
	if err != nil {
		return nil, err
	}

	baselines, err := loadBaselines(req.ReferenceIn, dataSets)
	if err != nil {
		return nil, err
	}

	env, err := session.CaptureEnvironment(req.SearchPathVars...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := env.Reset(); err != nil {
			slog.Error("failed to restore environment", "error", err)
		}
	}()

	o := &matrix.Orchestrator{
		Opener:          session.NewOpener(env, launcher),
		Suite:           s,
		RepeatReference: req.RepeatReference,
		Baselines:       baselines,
		Name:            req.Name,
		OutputDir:       req.OutputDir,
		Progress:        req.Progress,
	}

	rep, err := o.Run(ctx, dataSets, backend.ResolvePaths(req.Versions))
	if err != nil {
		return nil, err
	}

	res := &Result{Report: rep, Document: report.RenderReport(rep)}

	if req.OutputDir != "" {
		res.RunDir = matrix.RunDir(req.OutputDir, rep.RunID)
		res.ReportPath, err = report.Write(res.RunDir, rep.Suite, res.Document)
		if err != nil {
			return nil, err
		}
		slog.Info("report written", "path", res.ReportPath)
	}

	if req.ReferenceOut != "" {
		res.Snapshots, err = saveSnapshots(req.ReferenceOut, rep.Sections)
		if err != nil {
			return nil, err
		}
	}

	if req.HistoryDB != "" {
		if err := record(ctx, req.HistoryDB, rep); err != nil {
			return nil, err
		}
	}

	return res, nil
}

// ParseDataSet parses a "label=path" flag value. Without a label, the file
// name without its extension is used.
func ParseDataSet(value string) (matrix.DataSet, error) {
	label, path, ok := strings.Cut(value, "=")
	if !ok {
		path = value
		label = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	label = strings.TrimSpace(label)
	path = strings.TrimSpace(path)
	if label == "" || path == "" {
		return matrix.DataSet{}, fmt.Errorf("invalid data set %q (want label=path)", value)
	}
	return matrix.DataSet{Label: label, Path: path}, nil
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SnapshotPath is where the reference snapshot of a data set is stored.
func SnapshotPath(dir, label string) string {
	return filepath.Join(dir, unsafeChars.ReplaceAllString(label, "_")+".json")
}

// absDataSets anchors data paths before sessions change the working directory.
func absDataSets(in []matrix.DataSet) ([]matrix.DataSet, error) {
	out := make([]matrix.DataSet, len(in))
	for i, ds := range in {
		abs, err := filepath.Abs(ds.Path)
		if err != nil {
			return nil, fmt.Errorf("data set %s: %w", ds.Label, err)
		}
		out[i] = matrix.DataSet{Label: ds.Label, Path: abs}
	}
	return out, nil
}

func loadBaselines(dir string, dataSets []matrix.DataSet) (map[string]*refstore.Snapshot, error) {
	if dir == "" {
		return nil, nil
	}
	baselines := make(map[string]*refstore.Snapshot)
	for _, ds := range dataSets {
		path := SnapshotPath(dir, ds.Label)
		snap, err := refstore.Load(path)
		if errors.Is(err, os.ErrNotExist) {
			slog.Warn("no stored reference for data set, running the reference version", "data_set", ds.Label, "path", path)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("data set %s: %w", ds.Label, err)
		}
		digest, _ := snap.Digest()
		slog.Info("loaded stored reference", "data_set", ds.Label, "values", snap.Len(), "digest", digest)
		baselines[ds.Label] = snap
	}
	return baselines, nil
}

func saveSnapshots(dir string, sections []matrix.Section) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create reference directory: %w", err)
	}
	var paths []string
	for _, sec := range sections {
		if sec.Snapshot.Len() == 0 {
			slog.Warn("no reference values to store", "data_set", sec.DataSet.Label)
			continue
		}
		path := SnapshotPath(dir, sec.DataSet.Label)
		if err := sec.Snapshot.Save(path); err != nil {
			return nil, fmt.Errorf("data set %s: %w", sec.DataSet.Label, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func record(ctx context.Context, path string, rep *matrix.Report) error {
	store, err := history.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.Record(ctx, rep); err != nil {
		return fmt.Errorf("failed to record run history: %w", err)
	}
	return nil
}
