package suite

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/giantswarm/version-matrix/internal/compare"
	"github.com/giantswarm/version-matrix/internal/refstore"
	"github.com/giantswarm/version-matrix/internal/session"
)

// ProgressFunc is called before each test case executes.
type ProgressFunc func(label string, caseIndex, totalCases int)

// Runner executes a suite inside one session.
type Runner struct {
	suite    *Suite
	params   Params
	progress ProgressFunc
}

// NewRunner creates a runner for the suite with the given data set params.
func NewRunner(s *Suite, params Params) *Runner {
	if params == nil {
		params = Params{}
	}
	return &Runner{suite: s, params: params}
}

// SetProgressFunc sets the progress callback.
func (r *Runner) SetProgressFunc(fn ProgressFunc) {
	r.progress = fn
}

// Run executes every case in order. A nil ref makes this the reference run:
// extracted values are collected into Result.Snapshot and comparison cases
// pass by definition. Otherwise each value is compared against ref.
//
// A failing case never stops the remaining cases.
func (r *Runner) Run(ctx context.Context, s session.Session, ref *refstore.Snapshot) Result {
	d := s.Descriptor()
	footnotes, numbers := r.suite.Footnotes()

	var builder *refstore.Builder
	if ref == nil {
		builder = refstore.NewBuilder()
	}

	slog.Info("running suite",
		"suite", r.suite.Name,
		"version", d.Label,
		"resolved", s.Resolved(),
		"cases", len(r.suite.Cases),
		"reference", ref == nil,
	)

	records := make([]Record, 0, len(r.suite.Cases))
	for i, c := range r.suite.Cases {
		if r.progress != nil {
			r.progress(d.Label, i+1, len(r.suite.Cases))
		}

		v := r.runCase(ctx, c, s, ref, builder)
		if v.Kind == compare.Fail || v.Kind == compare.Error {
			slog.Warn("test case did not pass",
				"version", d.Label,
				"case", c.ID,
				"name", c.Name,
				"detail", v.Detail,
			)
		}

		records = append(records, Record{
			ID:       c.ID,
			Name:     c.Name,
			Footnote: numbers[c.ID],
			Verdict:  v,
		})
	}

	result := Result{
		Preamble: []KV{{
			Key:   d.Label,
			Value: fmt.Sprintf("version %s at %s", s.Version(), d.InstallPath),
		}},
		Records:   records,
		Footnotes: footnotes,
	}
	if builder != nil {
		result.Snapshot = builder.Freeze()
	}
	return result
}

func (r *Runner) runCase(ctx context.Context, c Case, s session.Session, ref *refstore.Snapshot, builder *refstore.Builder) compare.Verdict {
	if c.MinVersion > 0 && s.Resolved() < c.MinVersion {
		return compare.Inapplicable()
	}

	value, err := safeExtract(ctx, c, s, r.params)
	if err != nil {
		return compare.Failed("%v", err)
	}

	if v, ok := value.(compare.Verdict); ok {
		return v
	}

	if c.IsMeasurement() {
		return compare.Measured(value)
	}

	if ref == nil {
		builder.Put(c.ID, value)
		return compare.Passed()
	}

	refValue, ok := ref.Get(c.ID)
	if !ok {
		return compare.Inapplicable()
	}
	return safeCompare(c, value, refValue)
}

func safeExtract(ctx context.Context, c Case, s session.Session, p Params) (value any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("extractor panicked: %v", rec)
		}
	}()
	return c.Extract(ctx, s, p)
}

func safeCompare(c Case, candidate, reference any) (v compare.Verdict) {
	defer func() {
		if rec := recover(); rec != nil {
			v = compare.Failed("comparator panicked: %v", rec)
		}
	}()
	return c.Compare(candidate, reference)
}
