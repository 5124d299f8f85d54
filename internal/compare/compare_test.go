package compare

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExact(t *testing.T) {
	tests := []struct {
		name      string
		candidate any
		reference any
		want      Kind
	}{
		{"equal arrays", []int{1, 2, 3}, []int{1, 2, 3}, Pass},
		{"different element", []int{1, 2, 4}, []int{1, 2, 3}, Fail},
		{"int vs float", []float64{1, 2, 3}, []int{1, 2, 3}, Pass},
		{"strings", "beam.dat", "beam.dat", Pass},
		{"different strings", "beam.dat", "other.dat", Fail},
		{"tuple of arrays", [][]float64{{1, 2}, {3}}, []any{[]int{1, 2}, []int{3}}, Pass},
		{"length mismatch", []int{1, 2}, []int{1, 2, 3}, Fail},
		{"nan equals nan", []float64{math.NaN()}, []float64{math.NaN()}, Pass},
		{"bool", true, true, Pass},
		{"nil vs value", nil, 1, Fail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Exact()(tt.candidate, tt.reference)
			assert.Equal(t, tt.want, v.Kind, v.Detail)
			if tt.want == Fail {
				assert.NotEmpty(t, v.Detail)
			}
		})
	}
}

func TestAbsTolerance(t *testing.T) {
	x := []float64{0.25, 0.5, 1.0}
	plus := func(d float64) []float64 {
		out := make([]float64, len(x))
		for i := range x {
			out[i] = x[i] + d
		}
		return out
	}

	cmp := AbsTolerance(0.001)
	assert.Equal(t, Pass, cmp(plus(0.0005), x).Kind)
	assert.Equal(t, Fail, cmp(plus(0.002), x).Kind)
	assert.Equal(t, Pass, cmp(x, x).Kind)

	// Scalars and tuples.
	assert.Equal(t, Pass, AbsTolerance(0.1)(101.25, 101.2).Kind)
	assert.Equal(t, Fail, AbsTolerance(0.1)(101.4, 101.2).Kind)
	assert.Equal(t, Pass, AbsTolerance(0.1)([][]float64{{1, 2}, {3}}, [][]float64{{1.05, 2}, {3}}).Kind)

	// Shape mismatch never passes.
	v := cmp([]float64{1, 2}, []float64{1, 2, 3})
	assert.Equal(t, Fail, v.Kind)
	assert.Contains(t, v.Detail, "shape mismatch")

	// Non-numeric input fails rather than panicking.
	assert.Equal(t, Fail, cmp("abc", x).Kind)
}

func TestAbsToleranceNaN(t *testing.T) {
	cmp := AbsTolerance(0.1)
	assert.Equal(t, Pass, cmp([]float64{math.NaN(), 1}, []float64{math.NaN(), 1}).Kind)
	assert.Equal(t, Fail, cmp([]float64{math.NaN(), 1}, []float64{0, 1}).Kind)
}

func TestPassthrough(t *testing.T) {
	v := Passthrough()(3*time.Second/2, nil)
	assert.Equal(t, Measurement, v.Kind)
	assert.Equal(t, "1.5s", v.String())
}

func TestVerdictString(t *testing.T) {
	assert.Equal(t, "Pass", Passed().String())
	assert.Equal(t, "Fail", Failed("x").String())
	assert.Equal(t, "N/A", Inapplicable().String())
	assert.Equal(t, "Error", Errored("launch").String())
	assert.Equal(t, "12", Measured(12).String())
	assert.Equal(t, "0.1235", Measured(0.123456).String())
	assert.Equal(t, "-", Measured(nil).String())
}

func TestFlattenShape(t *testing.T) {
	values, shape, err := Flatten([][]int{{1, 2}, {3}})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, values)
	assert.Equal(t, []int{2, 2, 1}, shape)

	values, shape, err = Flatten(4.5)
	require.NoError(t, err)
	assert.Equal(t, []float64{4.5}, values)
	assert.Empty(t, shape)
}

func TestReferenceAgainstItselfAlwaysPasses(t *testing.T) {
	values := []any{
		[]float64{1, 2, 3},
		"text",
		map[string]any{"a": []int{1}},
		Profile{Positions: []float64{-1, 0, 1}, Values: []float64{1, 2, 1}},
	}
	for _, v := range values {
		assert.Equal(t, Pass, Exact()(v, v).Kind)
	}
	assert.Equal(t, Pass, AbsTolerance(0.001)([]float64{1, 2}, []float64{1, 2}).Kind)
}
