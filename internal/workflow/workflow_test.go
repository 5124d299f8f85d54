package workflow

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/version-matrix/internal/backend"
	"github.com/giantswarm/version-matrix/internal/compare"
	"github.com/giantswarm/version-matrix/internal/demo"
	"github.com/giantswarm/version-matrix/internal/history"
	"github.com/giantswarm/version-matrix/internal/matrix"
	"github.com/giantswarm/version-matrix/internal/refstore"
	"github.com/giantswarm/version-matrix/internal/version"
)

func demoRequest(t *testing.T) Request {
	t.Helper()
	return Request{
		Suite:    "profile-analyzer",
		DataSets: []matrix.DataSet{{Label: "open field", Path: filepath.Join("..", "demo", "testdata", "open-field.csv")}},
		Versions: version.Descriptors(demo.InstallPath("2.0.0"), []string{demo.InstallPath("1.1.0"), demo.InstallPath("1.0.0")}),
		Backend:  backend.Registry,
	}
}

func TestExecuteWritesArtifacts(t *testing.T) {
	dir := t.TempDir()
	req := demoRequest(t)
	req.Name = "nightly"
	req.OutputDir = filepath.Join(dir, "results")
	req.ReferenceOut = filepath.Join(dir, "reference")
	req.HistoryDB = filepath.Join(dir, "history.db")

	wd, err := os.Getwd()
	require.NoError(t, err)

	res, err := Execute(context.Background(), req, backend.Options{})
	require.NoError(t, err)

	after, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, wd, after, "working directory is restored")

	counts := res.Report.Counts()
	assert.Equal(t, 1, counts[compare.Fail], "1.0.0 statistics regress")
	assert.Zero(t, counts[compare.Error])

	assert.Contains(t, res.Report.RunID, "nightly_")
	assert.FileExists(t, filepath.Join(res.RunDir, matrix.ResultSetFile))
	require.NotEmpty(t, res.ReportPath)
	written, err := os.ReadFile(res.ReportPath)
	require.NoError(t, err)
	assert.Equal(t, res.Document, string(written))
	assert.Contains(t, res.Document, "| # | Test | 2.0.0 (reference) | 1.1.0 | 1.0.0 |")

	require.Equal(t, []string{SnapshotPath(req.ReferenceOut, "open field")}, res.Snapshots)
	snap, err := refstore.Load(res.Snapshots[0])
	require.NoError(t, err)
	assert.Positive(t, snap.Len())

	store, err := history.Open(req.HistoryDB)
	require.NoError(t, err)
	defer store.Close()
	regressions, err := store.Regressions(context.Background(), res.Report.RunID)
	require.NoError(t, err)
	require.Len(t, regressions, 1)
	assert.Equal(t, "Statistics", regressions[0].CaseName)
	assert.Equal(t, "1.0.0", regressions[0].Version)
}

func TestExecuteAgainstStoredReference(t *testing.T) {
	dir := t.TempDir()
	first := demoRequest(t)
	first.ReferenceOut = dir
	_, err := Execute(context.Background(), first, backend.Options{})
	require.NoError(t, err)

	second := demoRequest(t)
	second.ReferenceIn = dir
	res, err := Execute(context.Background(), second, backend.Options{})
	require.NoError(t, err)

	require.Len(t, res.Report.Sections, 1)
	ref := res.Report.Sections[0].Grid.Columns[0]
	require.True(t, ref.IsReference)
	for i, v := range ref.Verdicts {
		assert.NotEqual(t, compare.Fail, v.Kind, "reference row %d against its stored snapshot: %s", i, v.Detail)
	}
	assert.Equal(t, 1, res.Report.Counts()[compare.Fail])
	assert.Empty(t, res.ReportPath, "nothing is written without an output directory")
}

func TestExecuteMissingStoredReferenceFallsBack(t *testing.T) {
	req := demoRequest(t)
	req.ReferenceIn = t.TempDir()
	res, err := Execute(context.Background(), req, backend.Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Report.Counts()[compare.Fail])
}

func TestExecuteErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(r *Request)
		wantErr string
	}{
		{name: "no suite", mutate: func(r *Request) { r.Suite = "" }, wantErr: "test suite is required"},
		{name: "no data", mutate: func(r *Request) { r.DataSets = nil }, wantErr: "data set is required"},
		{name: "no versions", mutate: func(r *Request) { r.Versions = nil }, wantErr: "version is required"},
		{
			name: "duplicate labels",
			mutate: func(r *Request) {
				r.DataSets = append(r.DataSets, matrix.DataSet{Label: "open field", Path: "x.csv"})
			},
			wantErr: "duplicate data set label",
		},
		{name: "unknown suite", mutate: func(r *Request) { r.Suite = "nope" }, wantErr: "failed to load test suite"},
		{name: "unknown backend", mutate: func(r *Request) { r.Backend = "docker" }, wantErr: "unsupported backend"},
		{
			name: "corrupt stored reference",
			mutate: func(r *Request) {
				dir := t.TempDir()
				require.NoError(t, os.WriteFile(SnapshotPath(dir, "open field"), []byte("{"), 0o644))
				r.ReferenceIn = dir
			},
			wantErr: "failed to parse snapshot",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := demoRequest(t)
			tt.mutate(&req)
			_, err := Execute(context.Background(), req, backend.Options{})
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestParseDataSet(t *testing.T) {
	tests := []struct {
		value   string
		want    matrix.DataSet
		wantErr bool
	}{
		{value: "open=data/open-field.csv", want: matrix.DataSet{Label: "open", Path: "data/open-field.csv"}},
		{value: "data/open-field.csv", want: matrix.DataSet{Label: "open-field", Path: "data/open-field.csv"}},
		{value: " wide = w.csv ", want: matrix.DataSet{Label: "wide", Path: "w.csv"}},
		{value: "=w.csv", wantErr: true},
		{value: "label=", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			got, err := ParseDataSet(tt.value)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSnapshotPath(t *testing.T) {
	assert.Equal(t, filepath.Join("ref", "open_field.json"), SnapshotPath("ref", "open field"))
	assert.Equal(t, filepath.Join("ref", "a_b.json"), SnapshotPath("ref", "a/b"))
}
