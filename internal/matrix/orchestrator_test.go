package matrix

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/version-matrix/internal/compare"
	"github.com/giantswarm/version-matrix/internal/demo"
	"github.com/giantswarm/version-matrix/internal/refstore"
	"github.com/giantswarm/version-matrix/internal/session"
	"github.com/giantswarm/version-matrix/internal/suite"
	"github.com/giantswarm/version-matrix/internal/testutil"
	"github.com/giantswarm/version-matrix/internal/version"
)

func newOpener(t *testing.T, reg *session.Registry) *session.Opener {
	t.Helper()
	env, err := session.CaptureEnvironment()
	require.NoError(t, err)
	t.Cleanup(func() { _ = env.Reset() })
	return session.NewOpener(env, reg)
}

func descriptors(labels ...string) []version.Descriptor {
	out := make([]version.Descriptor, len(labels))
	for i, l := range labels {
		out[i] = version.Descriptor{Label: l, InstallPath: "/nonexistent/" + l}
	}
	return out
}

func dataParam(_ context.Context, _ session.Session, p suite.Params) (any, error) {
	return p["data"], nil
}

// simpleSuite has one measurement and one comparison case.
func simpleSuite() *suite.Suite {
	return &suite.Suite{Name: "simple", Cases: []suite.Case{
		{ID: 1, Name: "Load time", Extract: func(_ context.Context, s session.Session, _ suite.Params) (any, error) {
			return s.LoadTime(), nil
		}},
		{ID: 2, Name: "Data", Extract: dataParam, Compare: compare.Exact()},
	}}
}

func kindsOf(c Column) []compare.Kind {
	out := make([]compare.Kind, len(c.Verdicts))
	for i, v := range c.Verdicts {
		out[i] = v.Kind
	}
	return out
}

func TestRunDemoMatrix(t *testing.T) {
	reg := session.NewRegistry()
	demo.Register(reg)

	s, err := suite.Load("profile-analyzer", "")
	require.NoError(t, err)

	openField, err := filepath.Abs(filepath.Join("..", "demo", "testdata", "open-field.csv"))
	require.NoError(t, err)
	smallField, err := filepath.Abs(filepath.Join("..", "demo", "testdata", "small-field.csv"))
	require.NoError(t, err)

	o := &Orchestrator{Opener: newOpener(t, reg), Suite: s}
	versions := version.Descriptors(demo.InstallPath("2.0.0"), []string{demo.InstallPath("1.1.0"), demo.InstallPath("1.0.0")})
	report, err := o.Run(context.Background(), []DataSet{
		{Label: "open field", Path: openField},
		{Label: "small field", Path: smallField},
	}, versions)
	require.NoError(t, err)

	require.Len(t, report.Sections, 2)
	assert.True(t, strings.HasPrefix(report.RunID, "profile-analyzer_"))

	for _, sec := range report.Sections {
		require.NoError(t, sec.Grid.Validate())
		require.Len(t, sec.Grid.Columns, 3)
		assert.Equal(t, report.Sections[0].Grid.Rows, sec.Grid.Rows, "row order is identical across sections")
		assert.Equal(t, []string{"2.0.0", "1.1.0", "1.0.0"},
			[]string{sec.Grid.Columns[0].Label, sec.Grid.Columns[1].Label, sec.Grid.Columns[2].Label})

		ref, v11, v10 := sec.Grid.Columns[0], sec.Grid.Columns[1], sec.Grid.Columns[2]
		assert.True(t, ref.IsReference)
		assert.False(t, v11.IsReference)

		for i, row := range sec.Grid.Rows {
			if s.Cases[i].IsMeasurement() {
				continue
			}
			assert.NotEqual(t, compare.Fail, ref.Verdicts[i].Kind, "reference case %d", row.ID)
		}

		// 1 load time, 2 open, 3 timed, 4 X, 5 Y, 6 diagonal, 7 statistics,
		// 8 normalized, 9 report, 10 reject, 11-12 lint.
		assert.Equal(t, []compare.Kind{
			compare.Measurement, compare.Pass, compare.Measurement, compare.Pass, compare.Pass, compare.Pass,
			compare.Pass, compare.Pass, compare.NotApplicable, compare.Pass, compare.NotApplicable, compare.NotApplicable,
		}, kindsOf(v11), "1.1.0 in %s", sec.DataSet.Label)

		assert.Equal(t, []compare.Kind{
			compare.Measurement, compare.Pass, compare.Measurement, compare.Pass, compare.Pass, compare.NotApplicable,
			compare.Fail, compare.Pass, compare.NotApplicable, compare.Pass, compare.NotApplicable, compare.NotApplicable,
		}, kindsOf(v10), "1.0.0 in %s", sec.DataSet.Label)
	}

	counts := report.Counts()
	assert.Equal(t, 2, counts[compare.Fail])
}

func TestRunLaunchErrorOnlyAffectsItsColumn(t *testing.T) {
	reg := session.NewRegistry()
	for _, l := range []string{"ref", "A", "C"} {
		reg.Register(l, &testutil.FakeApp{VersionString: "2.0"})
	}
	reg.Register("B", &testutil.FakeApp{LaunchErr: errors.New("missing shared library")})

	o := &Orchestrator{Opener: newOpener(t, reg), Suite: simpleSuite()}
	report, err := o.Run(context.Background(), []DataSet{{Label: "d1", Path: "/data/1"}}, descriptors("ref", "A", "B", "C"))
	require.NoError(t, err)

	grid := report.Sections[0].Grid
	require.NoError(t, grid.Validate())
	require.Len(t, grid.Columns, 4)

	for _, i := range []int{0, 1, 3} {
		assert.False(t, grid.Columns[i].Failed())
		assert.Equal(t, []compare.Kind{compare.Measurement, compare.Pass}, kindsOf(grid.Columns[i]), grid.Columns[i].Label)
	}
	b := grid.Columns[2]
	assert.True(t, b.Failed())
	assert.Contains(t, b.Err, "missing shared library")
	assert.Equal(t, []compare.Kind{compare.Error, compare.Error}, kindsOf(b))
}

func TestRunReferenceLaunchError(t *testing.T) {
	reg := session.NewRegistry()
	reg.Register("ref", &testutil.FakeApp{LaunchPanic: "entry point crashed"})
	reg.Register("A", &testutil.FakeApp{VersionString: "1.0"})

	o := &Orchestrator{Opener: newOpener(t, reg), Suite: simpleSuite()}
	report, err := o.Run(context.Background(), []DataSet{{Label: "d1", Path: "/data/1"}}, descriptors("ref", "A"))
	require.NoError(t, err)

	grid := report.Sections[0].Grid
	assert.Equal(t, []compare.Kind{compare.Error, compare.Error}, kindsOf(grid.Columns[0]))
	assert.Equal(t, []compare.Kind{compare.Measurement, compare.NotApplicable}, kindsOf(grid.Columns[1]))
}

func TestRunEnvironmentResetErrorAbortsMatrix(t *testing.T) {
	base := t.TempDir()
	t.Chdir(base)

	reg := session.NewRegistry()
	reg.Register("ref", session.AdapterFunc(func(context.Context, session.LaunchOptions) (session.Instance, error) {
		// Removing the baseline directory makes every later reset fail.
		if err := os.RemoveAll(base); err != nil {
			return nil, err
		}
		return &session.App{VersionString: "2.0"}, nil
	}))
	a := &testutil.FakeApp{VersionString: "1.0"}
	reg.Register("A", a)

	o := &Orchestrator{Opener: newOpener(t, reg), Suite: simpleSuite()}
	report, err := o.Run(context.Background(), []DataSet{{Label: "d1", Path: "/data/1"}}, descriptors("ref", "A"))
	require.Error(t, err)
	assert.Nil(t, report)
	assert.True(t, session.IsEnvironmentResetError(err))
	assert.Equal(t, 0, a.Launches, "no version is launched after a failed reset")
}

func TestRunSnapshotsDoNotCrossDataSets(t *testing.T) {
	reg := session.NewRegistry()
	reg.Register("ref", &testutil.FakeApp{VersionString: "2.0"})
	reg.Register("A", &testutil.FakeApp{VersionString: "1.0"})

	o := &Orchestrator{Opener: newOpener(t, reg), Suite: simpleSuite()}
	report, err := o.Run(context.Background(), []DataSet{
		{Label: "d1", Path: "/data/1"},
		{Label: "d2", Path: "/data/2"},
	}, descriptors("ref", "A"))
	require.NoError(t, err)

	for _, sec := range report.Sections {
		assert.Equal(t, compare.Pass, sec.Grid.Cell(1, 1).Kind, sec.DataSet.Label)
		got, ok := sec.Snapshot.Get(2)
		require.True(t, ok)
		assert.Equal(t, sec.DataSet.Path, got)
	}
}

func TestRunRepeatReference(t *testing.T) {
	ref := &testutil.FakeApp{VersionString: "2.0"}
	reg := session.NewRegistry()
	reg.Register("ref", ref)
	reg.Register("A", &testutil.FakeApp{VersionString: "1.0"})

	o := &Orchestrator{Opener: newOpener(t, reg), Suite: simpleSuite(), RepeatReference: true}
	report, err := o.Run(context.Background(), []DataSet{{Label: "d1", Path: "/data/1"}}, descriptors("ref", "A"))
	require.NoError(t, err)

	cols := report.Sections[0].Grid.Columns
	require.Len(t, cols, 3)
	assert.Equal(t, "ref", cols[2].Label)
	assert.True(t, cols[2].IsReference)
	assert.Equal(t, []compare.Kind{compare.Measurement, compare.Pass}, kindsOf(cols[2]))
	assert.Equal(t, 2, ref.Launches, "the repeated reference runs in a fresh session")
	assert.Equal(t, 2, ref.Closes)
}

func TestRunWithBaseline(t *testing.T) {
	reg := session.NewRegistry()
	reg.Register("ref", &testutil.FakeApp{VersionString: "2.0"})
	reg.Register("A", &testutil.FakeApp{VersionString: "1.0"})

	b := refstore.NewBuilder()
	b.Put(2, "/data/stored")
	o := &Orchestrator{
		Opener:    newOpener(t, reg),
		Suite:     simpleSuite(),
		Baselines: map[string]*refstore.Snapshot{"d1": b.Freeze()},
	}
	report, err := o.Run(context.Background(), []DataSet{{Label: "d1", Path: "/data/1"}}, descriptors("ref", "A"))
	require.NoError(t, err)

	grid := report.Sections[0].Grid
	assert.Equal(t, compare.Fail, grid.Cell(1, 0).Kind, "reference drifted from the stored baseline")
	assert.Equal(t, compare.Fail, grid.Cell(1, 1).Kind)
}

func TestRunSessionsAreClosed(t *testing.T) {
	apps := map[string]*testutil.FakeApp{
		"ref": {VersionString: "2.0"},
		"A":   {VersionString: "1.0", CloseErr: errors.New("window refused to close")},
	}
	reg := session.NewRegistry()
	for l, a := range apps {
		reg.Register(l, a)
	}

	o := &Orchestrator{Opener: newOpener(t, reg), Suite: simpleSuite()}
	report, err := o.Run(context.Background(), []DataSet{{Label: "d1", Path: "/data/1"}, {Label: "d2", Path: "/data/2"}}, descriptors("ref", "A"))
	require.NoError(t, err)

	for l, a := range apps {
		assert.Equal(t, 2, a.Launches, l)
		assert.Equal(t, 2, a.Closes, l)
	}
	assert.Equal(t, compare.Pass, report.Sections[0].Grid.Cell(1, 1).Kind, "close errors keep the verdicts")
}

func TestRunProgress(t *testing.T) {
	reg := session.NewRegistry()
	reg.Register("ref", &testutil.FakeApp{VersionString: "2.0"})

	var calls []string
	o := &Orchestrator{
		Opener: newOpener(t, reg),
		Suite:  simpleSuite(),
		Progress: func(label string, idx, total int) {
			calls = append(calls, label)
			assert.Equal(t, 2, total)
		},
	}
	_, err := o.Run(context.Background(), []DataSet{{Label: "d1", Path: "/data/1"}}, descriptors("ref"))
	require.NoError(t, err)
	assert.Equal(t, []string{"ref", "ref"}, calls)
}

func TestRunWritesResultSet(t *testing.T) {
	reg := session.NewRegistry()
	reg.Register("ref", &testutil.FakeApp{VersionString: "2.0"})
	reg.Register("A", &testutil.FakeApp{LaunchErr: errors.New("boom")})

	dir := t.TempDir()
	o := &Orchestrator{Opener: newOpener(t, reg), Suite: simpleSuite(), OutputDir: dir, Name: "nightly run"}
	report, err := o.Run(context.Background(), []DataSet{{Label: "d1", Path: "/data/1"}}, descriptors("ref", "A"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(report.RunID, "nightly_run_"))

	data, err := os.ReadFile(filepath.Join(RunDir(dir, report.RunID), ResultSetFile))
	require.NoError(t, err)

	var manifest map[string]any
	require.NoError(t, json.Unmarshal(data, &manifest))
	assert.Equal(t, report.RunID, manifest["id"])
	assert.Equal(t, "simple", manifest["suite"])

	sections := manifest["sections"].([]any)
	require.Len(t, sections, 1)
	columns := sections[0].(map[string]any)["columns"].([]any)
	require.Len(t, columns, 2)
	assert.Contains(t, columns[1].(map[string]any)["error"], "boom")
}

func TestRunValidatesInput(t *testing.T) {
	reg := session.NewRegistry()
	o := &Orchestrator{Opener: newOpener(t, reg), Suite: simpleSuite()}

	_, err := o.Run(context.Background(), nil, descriptors("ref"))
	assert.Error(t, err)
	_, err = o.Run(context.Background(), []DataSet{{Label: "d", Path: "p"}}, nil)
	assert.Error(t, err)

	bad := &Orchestrator{Opener: o.Opener, Suite: &suite.Suite{Name: "empty"}}
	_, err = bad.Run(context.Background(), []DataSet{{Label: "d", Path: "p"}}, descriptors("ref"))
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = o.Run(ctx, []DataSet{{Label: "d", Path: "p"}}, descriptors("ref"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGridValidate(t *testing.T) {
	g := Grid{
		Rows: []Row{{ID: 1}, {ID: 2}},
		Columns: []Column{
			{Label: "ref", Verdicts: []compare.Verdict{compare.Passed(), compare.Passed()}},
			{Label: "A", Verdicts: []compare.Verdict{compare.Passed()}},
		},
	}
	assert.Error(t, g.Validate())

	g.Columns[1].Verdicts = append(g.Columns[1].Verdicts, compare.Inapplicable())
	assert.NoError(t, g.Validate())
}

func TestRunID(t *testing.T) {
	ts := time.Date(2026, 3, 1, 14, 5, 9, 0, time.UTC)

	tests := []struct {
		name   string
		run    string
		prefix string
	}{
		{name: "spaces replaced", run: "profile analyzer", prefix: "profile_analyzer_20260301-140509_"},
		{name: "plain name", run: "nightly", prefix: "nightly_20260301-140509_"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := RunID(tt.run, ts)
			require.True(t, strings.HasPrefix(id, tt.prefix), id)
			assert.Len(t, strings.TrimPrefix(id, tt.prefix), 8)
		})
	}
}

func TestRunIDUniqueWithinSecond(t *testing.T) {
	ts := time.Date(2026, 3, 1, 14, 5, 9, 0, time.UTC)
	seen := map[string]bool{}
	for range 100 {
		id := RunID("nightly", ts)
		assert.False(t, seen[id], "duplicate run id %s", id)
		seen[id] = true
	}
	assert.NotEqual(t, RunDir("out", RunID("nightly", ts)), RunDir("out", RunID("nightly", ts)))
}
