package compare

import (
	"errors"
	"fmt"
	"math"
)

// Signal is a uniformly sampled signal: sample i sits at Start + i*Width.
type Signal struct {
	Start float64   `json:"start"`
	Width float64   `json:"width"`
	Data  []float64 `json:"data"`
}

// Position returns the coordinate of sample i.
func (s Signal) Position(i int) float64 {
	return s.Start + float64(i)*s.Width
}

// GammaFunc is the similarity-index collaborator. It returns one ratio per
// reference sample; a ratio below 1 means the samples agree within the
// combined amplitude (percent) and distance tolerances.
type GammaFunc func(reference, candidate Signal, amplitudePercent, distance float64, global bool) []float64

// Profile is a measured signal as exposed by the application: sample
// positions plus values.
type Profile struct {
	Positions []float64 `json:"positions"`
	Values    []float64 `json:"values"`
}

// SimilarityConfig configures a similarity-index comparator.
type SimilarityConfig struct {
	Gamma            GammaFunc
	AmplitudePercent float64
	Distance         float64
	Global           bool
	// Window, when positive, limits the decision to samples whose absolute
	// reference coordinate is below it.
	Window float64
	// PositionScale converts stored positions into the units of Distance
	// and Window. Zero means 1.
	PositionScale float64
}

// Similarity compares two profiles with the similarity index. Both profiles
// are normalised by their own maxima; every considered ratio must be below 1.
func Similarity(cfg SimilarityConfig) Comparator {
	return func(candidate, reference any) Verdict {
		if cfg.Gamma == nil {
			return Failed("no similarity function configured")
		}
		scale := cfg.PositionScale
		if scale == 0 {
			scale = 1
		}

		ref, err := signalFrom(reference, scale)
		if err != nil {
			return Failed("reference: %v", err)
		}
		cand, err := signalFrom(candidate, scale)
		if err != nil {
			return Failed("candidate: %v", err)
		}

		ratios := cfg.Gamma(ref, cand, cfg.AmplitudePercent, cfg.Distance, cfg.Global)
		if cfg.Window > 0 {
			if len(ratios) != len(ref.Data) {
				return Failed("similarity returned %d ratios for %d reference samples", len(ratios), len(ref.Data))
			}
			ratios = windowed(ref, ratios, cfg.Window)
		}
		return RatioVerdict(ratios)
	}
}

// RatioVerdict passes iff there is at least one ratio and every ratio is below 1.
func RatioVerdict(ratios []float64) Verdict {
	if len(ratios) == 0 {
		return Failed("no comparable samples")
	}
	failing := 0
	worst := 0.0
	for _, r := range ratios {
		if !(r < 1) {
			failing++
		}
		if math.IsNaN(r) || r > worst {
			worst = r
		}
	}
	if failing == 0 {
		return Passed()
	}
	return Failed("%d of %d samples outside tolerance (worst %.3g)", failing, len(ratios), worst)
}

// AllBelowOne reports whether every ratio is strictly below 1.
func AllBelowOne(ratios []float64) bool {
	for _, r := range ratios {
		if !(r < 1) {
			return false
		}
	}
	return true
}

func windowed(ref Signal, ratios []float64, cutoff float64) []float64 {
	out := make([]float64, 0, len(ratios))
	for i, r := range ratios {
		if math.Abs(ref.Position(i)) < cutoff {
			out = append(out, r)
		}
	}
	return out
}

// NormalizedSignal builds a Signal from a profile, scaling positions and
// dividing values by their maximum.
func NormalizedSignal(p Profile, scale float64) (Signal, error) {
	if len(p.Positions) != len(p.Values) {
		return Signal{}, fmt.Errorf("%d positions for %d values", len(p.Positions), len(p.Values))
	}
	if len(p.Values) < 2 {
		return Signal{}, errors.New("profile needs at least two samples")
	}
	return normalize(Signal{
		Start: p.Positions[0],
		Width: p.Positions[1] - p.Positions[0],
		Data:  p.Values,
	}, scale)
}

// normalize returns a copy of s with positions scaled and data divided by
// its maximum.
func normalize(s Signal, scale float64) (Signal, error) {
	if len(s.Data) == 0 {
		return Signal{}, errors.New("signal has no samples")
	}
	peak := math.Inf(-1)
	for _, v := range s.Data {
		if v > peak {
			peak = v
		}
	}
	if peak <= 0 || math.IsInf(peak, 0) {
		return Signal{}, fmt.Errorf("signal maximum %g cannot be used for normalisation", peak)
	}

	data := make([]float64, len(s.Data))
	for i, v := range s.Data {
		data[i] = v / peak
	}
	return Signal{Start: s.Start * scale, Width: s.Width * scale, Data: data}, nil
}

// signalFrom accepts a Signal, a map holding one (as decoded from a stored
// snapshot) or anything ToProfile reads. The result is always normalised.
func signalFrom(v any, scale float64) (Signal, error) {
	switch s := v.(type) {
	case Signal:
		return normalize(s, scale)
	case *Signal:
		if s == nil {
			return Signal{}, errors.New("nil signal")
		}
		return normalize(*s, scale)
	}
	if m, ok := Normalize(v).(map[string]any); ok {
		if lookupAny(m, "data", "Data") != nil {
			s, err := signalFromMap(m)
			if err != nil {
				return Signal{}, err
			}
			return normalize(s, scale)
		}
	}
	p, err := ToProfile(v)
	if err != nil {
		return Signal{}, err
	}
	return NormalizedSignal(p, scale)
}

func signalFromMap(m map[string]any) (Signal, error) {
	data, err := ToFloats(lookupAny(m, "data", "Data"))
	if err != nil {
		return Signal{}, fmt.Errorf("data: %w", err)
	}
	start, err := ToFloat(lookupAny(m, "start", "Start"))
	if err != nil {
		return Signal{}, fmt.Errorf("start: %w", err)
	}
	width, err := ToFloat(lookupAny(m, "width", "Width"))
	if err != nil {
		return Signal{}, fmt.Errorf("width: %w", err)
	}
	return Signal{Start: start, Width: width, Data: data}, nil
}

// ToProfile accepts a Profile, a map with "positions" and "values" keys, or an
// ordered (positions, values) pair of arrays.
func ToProfile(v any) (Profile, error) {
	switch p := v.(type) {
	case Profile:
		return p, nil
	case *Profile:
		if p == nil {
			return Profile{}, errors.New("nil profile")
		}
		return *p, nil
	}

	switch n := Normalize(v).(type) {
	case map[string]any:
		pos, err := ToFloats(lookupAny(n, "positions", "Positions"))
		if err != nil {
			return Profile{}, fmt.Errorf("positions: %w", err)
		}
		vals, err := ToFloats(lookupAny(n, "values", "Values"))
		if err != nil {
			return Profile{}, fmt.Errorf("values: %w", err)
		}
		return Profile{Positions: pos, Values: vals}, nil
	case []any:
		if len(n) != 2 {
			return Profile{}, fmt.Errorf("expected (positions, values) pair, got %d elements", len(n))
		}
		pos, err := ToFloats(n[0])
		if err != nil {
			return Profile{}, fmt.Errorf("positions: %w", err)
		}
		vals, err := ToFloats(n[1])
		if err != nil {
			return Profile{}, fmt.Errorf("values: %w", err)
		}
		return Profile{Positions: pos, Values: vals}, nil
	default:
		return Profile{}, fmt.Errorf("cannot read profile from %T", v)
	}
}

func lookupAny(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v
		}
	}
	return nil
}
