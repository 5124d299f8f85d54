package compare

import (
	"fmt"
	"math"
	"strings"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// Comparator decides a verdict for a candidate value against the reference value.
type Comparator func(candidate, reference any) Verdict

const maxDetail = 200

// Exact passes iff candidate and reference are structurally equal. Numbers
// are compared by value regardless of their Go type, and NaN equals NaN so
// that a value always equals itself.
func Exact() Comparator {
	return func(candidate, reference any) Verdict {
		c, r := Normalize(candidate), Normalize(reference)
		if cmp.Equal(r, c, cmpopts.EquateNaNs()) {
			return Passed()
		}
		return Failed("%s", truncate(cmp.Diff(r, c, cmpopts.EquateNaNs())))
	}
}

// AbsTolerance passes iff max(|candidate - reference|) < eps over scalars,
// arrays or ordered tuples of arrays of identical shape.
func AbsTolerance(eps float64) Comparator {
	return func(candidate, reference any) Verdict {
		diff, err := MaxAbsDiff(candidate, reference)
		if err != nil {
			return Failed("%v", err)
		}
		if diff < eps {
			return Passed()
		}
		return Failed("max abs difference %g >= %g", diff, eps)
	}
}

// MaxAbsDiff returns the largest absolute element-wise difference between a
// and b. Positions where both values are NaN count as equal.
func MaxAbsDiff(a, b any) (float64, error) {
	av, ashape, err := Flatten(a)
	if err != nil {
		return 0, fmt.Errorf("candidate: %w", err)
	}
	bv, bshape, err := Flatten(b)
	if err != nil {
		return 0, fmt.Errorf("reference: %w", err)
	}
	if !sameShape(ashape, bshape) || len(av) != len(bv) {
		return 0, fmt.Errorf("shape mismatch: %d values %v vs %d values %v", len(av), ashape, len(bv), bshape)
	}

	maxDiff := 0.0
	for i := range av {
		if math.IsNaN(av[i]) && math.IsNaN(bv[i]) {
			continue
		}
		d := math.Abs(av[i] - bv[i])
		if math.IsNaN(d) {
			return math.Inf(1), nil
		}
		if d > maxDiff {
			maxDiff = d
		}
	}
	return maxDiff, nil
}

// Passthrough reports the candidate value unchanged as a measurement.
func Passthrough() Comparator {
	return func(candidate, _ any) Verdict {
		return Measured(candidate)
	}
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxDetail {
		return s[:maxDetail] + "..."
	}
	return s
}
