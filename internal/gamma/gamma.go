// Package gamma implements a one-dimensional gamma index, the default
// similarity function used by profile comparisons.
package gamma

import (
	"math"

	"github.com/giantswarm/version-matrix/internal/compare"
)

// Index returns one gamma value per reference sample. For reference sample i
// it is the minimum over candidate samples j of
//
//	sqrt((dx/distance)^2 + (dd/(amplitudePercent/100 * norm))^2)
//
// where dx is the spatial distance between the samples, dd the amplitude
// difference and norm the reference maximum (global) or the local reference
// value. Values below 1 pass.
func Index(ref, cand compare.Signal, amplitudePercent, distance float64, global bool) []float64 {
	out := make([]float64, len(ref.Data))
	if len(cand.Data) == 0 || distance <= 0 || amplitudePercent <= 0 {
		for i := range out {
			out[i] = math.Inf(1)
		}
		return out
	}

	refMax := 0.0
	for _, v := range ref.Data {
		refMax = math.Max(refMax, math.Abs(v))
	}

	for i, rv := range ref.Data {
		norm := refMax
		if !global {
			norm = math.Abs(rv)
		}
		tol := amplitudePercent / 100 * norm

		x := ref.Position(i)
		best := math.Inf(1)
		for j, cv := range cand.Data {
			dx := (cand.Position(j) - x) / distance
			var dd float64
			switch {
			case tol > 0:
				dd = (cv - rv) / tol
			case cv == rv:
				dd = 0
			default:
				dd = math.Inf(1)
			}
			if g := math.Sqrt(dx*dx + dd*dd); g < best {
				best = g
			}
		}
		out[i] = best
	}
	return out
}

var _ compare.GammaFunc = Index
