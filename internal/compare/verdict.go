// Package compare implements the verdict rules applied to values extracted
// from a candidate version against the reference snapshot.
package compare

import (
	"fmt"
	"strconv"
	"time"
)

// Kind classifies a verdict.
type Kind string

const (
	Pass          Kind = "pass"
	Fail          Kind = "fail"
	NotApplicable Kind = "n/a"
	// Measurement verdicts pass a measured value through to the report.
	Measurement Kind = "measurement"
	// Error marks a cell that could not be produced, e.g. a failed launch.
	Error Kind = "error"
)

// Verdict is the outcome of one test case on one version.
type Verdict struct {
	Kind   Kind   `json:"kind"`
	Value  any    `json:"value,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// Passed returns a Pass verdict.
func Passed() Verdict { return Verdict{Kind: Pass} }

// Failed returns a Fail verdict with an explanation.
func Failed(format string, args ...any) Verdict {
	return Verdict{Kind: Fail, Detail: fmt.Sprintf(format, args...)}
}

// Inapplicable returns a NotApplicable verdict.
func Inapplicable() Verdict { return Verdict{Kind: NotApplicable} }

// Measured returns a Measurement verdict carrying v.
func Measured(v any) Verdict { return Verdict{Kind: Measurement, Value: v} }

// Errored returns an Error verdict.
func Errored(format string, args ...any) Verdict {
	return Verdict{Kind: Error, Detail: fmt.Sprintf(format, args...)}
}

// FromBool maps ok to Pass or Fail.
func FromBool(ok bool, detail string) Verdict {
	if ok {
		return Passed()
	}
	return Verdict{Kind: Fail, Detail: detail}
}

// Passed reports whether the verdict is Pass.
func (v Verdict) Passed() bool { return v.Kind == Pass }

// String renders the verdict as a report cell.
func (v Verdict) String() string {
	switch v.Kind {
	case Pass:
		return "Pass"
	case Fail:
		return "Fail"
	case NotApplicable:
		return "N/A"
	case Error:
		return "Error"
	case Measurement:
		return FormatValue(v.Value)
	default:
		return string(v.Kind)
	}
}

// FormatValue renders a measured value compactly.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "-"
	case time.Duration:
		return x.Round(time.Millisecond).String()
	case float64:
		return strconv.FormatFloat(x, 'g', 4, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'g', 4, 32)
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}
