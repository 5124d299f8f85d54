// Package demo provides in-process releases of a small dose profile analyzer.
// They back the registry session backend and exercise the whole matrix
// without external installations.
package demo

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/giantswarm/version-matrix/internal/compare"
	"github.com/giantswarm/version-matrix/internal/session"
	"github.com/giantswarm/version-matrix/internal/version"
)

// Releases lists the bundled generations, newest first.
var Releases = []string{"2.0.0", "1.1.0", "1.0.0"}

// InstallPath is the pseudo install path a release is registered under.
func InstallPath(release string) string {
	return "demo/" + release
}

// Register adds every bundled release to the registry.
func Register(r *session.Registry) {
	for _, rel := range Releases {
		r.Register(InstallPath(rel), Adapter(rel))
	}
}

// Adapter returns the adapter for one release.
func Adapter(release string) session.Adapter {
	return session.AdapterFunc(func(_ context.Context, opts session.LaunchOptions) (session.Instance, error) {
		v, err := version.Parse(release)
		if err != nil {
			return nil, err
		}
		if !opts.NoPrompts {
			return nil, errors.New("interactive mode is not supported")
		}
		a := &analyzer{release: release, generation: v.Resolved()}
		return &session.App{
			VersionString: release,
			Actions: map[string]session.ActionFunc{
				"open_file":    a.openFile,
				"analyze":      a.analyze,
				"normalize":    a.normalize,
				"print_report": a.printReport,
			},
			State: a.read,
		}, nil
	})
}

// Generations that changed behaviour.
var (
	millimetres = version.MustResolve("1.1")
	reports     = version.MustResolve("2.0")
)

type analyzer struct {
	release    string
	generation int

	name       string
	positions  []float64
	x, y, diag []float64

	statistics map[string]float64
	normalized []float64
}

func (a *analyzer) openFile(_ context.Context, args session.Args) (any, error) {
	path, _ := args["path"].(string)
	if path == "" {
		return nil, errors.New("open_file needs a path")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cols, err := readColumns(f, "position", "x", "y", "diagonal")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}

	a.name = filepath.Base(path)
	a.positions = cols[0]
	a.x, a.y, a.diag = cols[1], cols[2], cols[3]
	a.statistics, a.normalized = nil, nil
	return len(a.positions), nil
}

func (a *analyzer) analyze(context.Context, session.Args) (any, error) {
	if err := a.requireFile(); err != nil {
		return nil, err
	}
	mean := meanOf
	if a.generation < millimetres {
		mean = legacyMeanOf
	}
	a.statistics = map[string]float64{
		"max_x":  maxOf(a.x),
		"max_y":  maxOf(a.y),
		"mean_x": mean(a.x),
		"mean_y": mean(a.y),
	}
	return len(a.statistics), nil
}

func (a *analyzer) normalize(context.Context, session.Args) (any, error) {
	if err := a.requireFile(); err != nil {
		return nil, err
	}
	m := maxOf(a.x)
	if m == 0 {
		return nil, errors.New("profile maximum is zero")
	}
	a.normalized = make([]float64, len(a.x))
	for i, v := range a.x {
		a.normalized[i] = v / m
	}
	return nil, nil
}

func (a *analyzer) printReport(context.Context, session.Args) (any, error) {
	if a.generation < reports {
		return nil, fmt.Errorf("print_report is not available in %s", a.release)
	}
	if err := a.requireFile(); err != nil {
		return nil, err
	}
	return fmt.Sprintf("%s: %d samples, maximum %.3f", a.name, len(a.x), maxOf(a.x)), nil
}

func (a *analyzer) read(_ context.Context, path string) (any, error) {
	if err := a.requireFile(); err != nil {
		return nil, err
	}
	switch path {
	case "file.name":
		return a.name, nil
	case "profiles.x":
		return a.profile(a.x), nil
	case "profiles.y":
		return a.profile(a.y), nil
	case "profiles.diagonal":
		if a.generation < millimetres {
			return nil, fmt.Errorf("no diagonal profiles in %s", a.release)
		}
		return a.profile(a.diag), nil
	case "statistics":
		if a.statistics == nil {
			return nil, errors.New("not analyzed")
		}
		return []float64{a.statistics["max_x"], a.statistics["max_y"], a.statistics["mean_x"], a.statistics["mean_y"]}, nil
	case "normalized.values":
		if a.normalized == nil {
			return nil, errors.New("not normalized")
		}
		return append([]float64(nil), a.normalized...), nil
	default:
		return nil, fmt.Errorf("unknown state %q", path)
	}
}

// profile reports positions in cm for releases older than 1.1.
func (a *analyzer) profile(values []float64) compare.Profile {
	pos := append([]float64(nil), a.positions...)
	if a.generation < millimetres {
		for i := range pos {
			pos[i] /= 10
		}
	}
	return compare.Profile{Positions: pos, Values: append([]float64(nil), values...)}
}

func (a *analyzer) requireFile() error {
	if a.name == "" {
		return errors.New("no file open")
	}
	return nil
}

func readColumns(r io.Reader, names ...string) ([][]float64, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, col := range header {
		index[strings.ToLower(strings.TrimSpace(col))] = i
	}
	for _, name := range names {
		if _, ok := index[name]; !ok {
			return nil, fmt.Errorf("missing required CSV column: %s", name)
		}
	}

	cols := make([][]float64, len(names))
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV row %d: %w", line, err)
		}
		for i, name := range names {
			v, err := strconv.ParseFloat(strings.TrimSpace(record[index[name]]), 64)
			if err != nil {
				return nil, fmt.Errorf("row %d column %s: %w", line, name, err)
			}
			cols[i] = append(cols[i], v)
		}
	}
	if len(cols[0]) == 0 {
		return nil, errors.New("no samples")
	}
	return cols, nil
}

func maxOf(vs []float64) float64 {
	m := math.Inf(-1)
	for _, v := range vs {
		m = math.Max(m, v)
	}
	return m
}

// legacyMeanOf is the 1.0 mean, which skipped the last sample.
func legacyMeanOf(vs []float64) float64 {
	if len(vs) < 2 {
		return meanOf(vs)
	}
	return meanOf(vs[:len(vs)-1])
}

func meanOf(vs []float64) float64 {
	var sum float64
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}
