package suite

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/giantswarm/version-matrix/internal/compare"
	"github.com/giantswarm/version-matrix/internal/lint"
	"github.com/giantswarm/version-matrix/internal/session"
)

// Step invokes one named action.
type Step struct {
	Action string       `yaml:"action"`
	Args   session.Args `yaml:"args"`
}

// Expand substitutes {{name}} placeholders in string arguments.
func (st Step) Expand(p Params) session.Args {
	out := make(session.Args, len(st.Args))
	for k, v := range st.Args {
		if s, ok := v.(string); ok {
			out[k] = expand(s, p)
			continue
		}
		out[k] = v
	}
	return out
}

func expand(s string, p Params) string {
	for k, v := range p {
		s = strings.ReplaceAll(s, "{{"+k+"}}", v)
	}
	return s
}

// RunSteps invokes the steps in order and returns the last result.
func RunSteps(ctx context.Context, s session.Session, p Params, steps []Step) (any, error) {
	var last any
	for _, st := range steps {
		out, err := s.InvokeAction(ctx, st.Action, st.Expand(p))
		if err != nil {
			return nil, err
		}
		last = out
	}
	return last, nil
}

// State runs steps and then reads the state at path.
func State(path string, steps ...Step) Extractor {
	return func(ctx context.Context, s session.Session, p Params) (any, error) {
		if _, err := RunSteps(ctx, s, p, steps); err != nil {
			return nil, err
		}
		return s.ReadState(ctx, expand(path, p))
	}
}

// Returned runs steps and returns what the last action returned.
func Returned(steps ...Step) Extractor {
	return func(ctx context.Context, s session.Session, p Params) (any, error) {
		if len(steps) == 0 {
			return nil, errors.New("no steps to run")
		}
		return RunSteps(ctx, s, p, steps)
	}
}

// LoadTime reports the time the application entry point took.
func LoadTime() Extractor {
	return func(_ context.Context, s session.Session, _ Params) (any, error) {
		return s.LoadTime(), nil
	}
}

// Timed reports the wall-clock time the steps took.
func Timed(steps ...Step) Extractor {
	return func(ctx context.Context, s session.Session, p Params) (any, error) {
		start := time.Now()
		if _, err := RunSteps(ctx, s, p, steps); err != nil {
			return nil, err
		}
		return time.Since(start), nil
	}
}

// ExpectError passes when one of the steps is rejected by the application and
// fails when the application accepts them all. A step naming an action the
// release does not have is a failure, not a rejection.
func ExpectError(steps ...Step) Extractor {
	return func(ctx context.Context, s session.Session, p Params) (any, error) {
		_, err := RunSteps(ctx, s, p, steps)
		var actionErr *session.ActionError
		switch {
		case err == nil:
			return compare.Failed("application accepted input it should reject"), nil
		case errors.Is(err, session.ErrUnknownAction):
			return compare.Failed("%v", err), nil
		case errors.As(err, &actionErr):
			slog.Debug("application rejected input as expected", "action", actionErr.Action, "error", actionErr.Err)
			return compare.Passed(), nil
		default:
			return nil, err
		}
	}
}

// Lint metrics reported by the Lint extractor.
const (
	LintMessages      = "messages"
	LintFunctions     = "functions"
	LintMaxComplexity = "max_complexity"
)

// Lint analyses the Go sources below the install path (optionally a
// subdirectory of it) and reports one metric. Findings are logged only.
// Releases without sources on disk, e.g. container images, are not applicable.
func Lint(metric, subdir string) Extractor {
	return func(_ context.Context, s session.Session, _ Params) (any, error) {
		dir := s.Descriptor().InstallPath
		if subdir != "" {
			dir = filepath.Join(dir, subdir)
		}
		if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
			return compare.Inapplicable(), nil
		}
		findings, err := lint.Analyze(dir)
		if err != nil {
			return nil, err
		}
		for _, f := range findings {
			if !f.IsComplexity {
				slog.Debug("static analysis", "version", s.Descriptor().Label, "message", f.Message)
			}
		}

		sum := lint.Summarize(findings)
		switch metric {
		case LintMessages:
			return sum.Messages, nil
		case LintFunctions:
			return sum.Functions, nil
		case LintMaxComplexity:
			return sum.MaxComplexity, nil
		default:
			return nil, fmt.Errorf("unknown lint metric %q", metric)
		}
	}
}

// ScaleRule converts values produced by older generations into the units of
// the reference schema. It applies to versions whose resolved number is below
// Below. Field, when set, limits the conversion to one key of a map value.
type ScaleRule struct {
	Below  int
	Field  string
	Factor float64
}

// Scaled applies the first matching scale rule to the extracted value.
func Scaled(ext Extractor, rules ...ScaleRule) Extractor {
	return func(ctx context.Context, s session.Session, p Params) (any, error) {
		v, err := ext(ctx, s, p)
		if err != nil {
			return nil, err
		}
		for _, rule := range rules {
			if s.Resolved() >= rule.Below {
				continue
			}
			return applyScale(v, rule)
		}
		return v, nil
	}
}

func applyScale(v any, rule ScaleRule) (any, error) {
	n := compare.Normalize(v)
	if rule.Field == "" {
		return scaleNumbers(n, rule.Factor), nil
	}
	m, ok := n.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("cannot scale field %q of %T", rule.Field, v)
	}
	for k := range m {
		if strings.EqualFold(k, rule.Field) {
			m[k] = scaleNumbers(m[k], rule.Factor)
			return m, nil
		}
	}
	return nil, fmt.Errorf("value has no field %q", rule.Field)
}

func scaleNumbers(v any, factor float64) any {
	switch x := v.(type) {
	case float64:
		return x * factor
	case []any:
		for i := range x {
			x[i] = scaleNumbers(x[i], factor)
		}
		return x
	case map[string]any:
		for k := range x {
			x[k] = scaleNumbers(x[k], factor)
		}
		return x
	default:
		return x
	}
}
