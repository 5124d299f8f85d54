// Package triage asks a language model to summarise the regressions of a
// rendered matrix report and checks its answer against the report itself.
package triage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/giantswarm/version-matrix/internal/llm"
)

// DefaultModel is the model used when none is configured.
const DefaultModel = "gpt-4o-mini"

// Config holds triage configuration.
type Config struct {
	Model       string
	Repetitions int
}

// RunResult is the parsed answer of one triage pass.
type RunResult struct {
	Regressions *int     `json:"regressions"`
	Cells       *int     `json:"cells"`
	Rate        *float64 `json:"regression_rate"`
	RawOutput   string   `json:"raw_output"`
	ParseErr    string   `json:"parse_error,omitempty"`
}

// Output is the full structured triage output.
type Output struct {
	Metadata Metadata    `json:"metadata"`
	Observed Observed    `json:"observed"`
	Runs     []RunResult `json:"runs"`
	Summary  Summary     `json:"summary"`
}

// Metadata holds information about the triage run.
type Metadata struct {
	Timestamp   string `json:"timestamp"`
	ReportFile  string `json:"report_file"`
	Model       string `json:"model"`
	Repetitions int    `json:"repetitions"`
}

// Observed is counted directly from the report tables.
type Observed struct {
	Regressions int `json:"regressions"`
	Cells       int `json:"cells"`
}

// Summary aggregates the parsed runs.
type Summary struct {
	MeanRegressions *float64 `json:"mean_regressions"`
	MinRegressions  *int     `json:"min_regressions"`
	MaxRegressions  *int     `json:"max_regressions"`
	Variance        *float64 `json:"variance"`
	AllRunsParsed   bool     `json:"all_runs_parsed"`
	// Agrees is true when every parsed run matches the observed counts.
	Agrees bool `json:"agrees_with_report"`
}

// Triager evaluates reports with a language model.
type Triager struct {
	client llm.Client
	config Config
}

// NewTriager creates a Triager.
func NewTriager(client llm.Client, config Config) *Triager {
	if config.Repetitions <= 0 {
		config.Repetitions = 3
	}
	if config.Model == "" {
		config.Model = DefaultModel
	}
	return &Triager{client: client, config: config}
}

// TriageFile reads a Markdown report and triages it.
func (t *Triager) TriageFile(ctx context.Context, reportFile string) (*Output, error) {
	content, err := os.ReadFile(reportFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}
	return t.Triage(ctx, string(content), reportFile)
}

// Triage evaluates the report content Repetitions times. Failed passes are
// recorded, not returned.
func (t *Triager) Triage(ctx context.Context, content string, reportFile string) (*Output, error) {
	out := &Output{
		Metadata: Metadata{
			Timestamp:   time.Now().Format(time.RFC3339),
			ReportFile:  reportFile,
			Model:       t.config.Model,
			Repetitions: t.config.Repetitions,
		},
		Observed: CountCells(content),
		Runs:     make([]RunResult, 0, t.config.Repetitions),
	}

	for i := 0; i < t.config.Repetitions; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		slog.Info("triage run", "run", i+1, "total", t.config.Repetitions)

		text, err := t.evaluate(ctx, content)
		if err != nil {
			slog.Error("triage run failed", "run", i+1, "error", err)
			out.Runs = append(out.Runs, RunResult{ParseErr: err.Error()})
			continue
		}

		parsed := parseAnswer(text)
		out.Runs = append(out.Runs, parsed)
		if parsed.Regressions != nil {
			slog.Info("triage parsed",
				"run", i+1,
				"regressions", *parsed.Regressions,
				"cells", *parsed.Cells,
			)
		}
	}

	out.Summary = summarize(out.Runs, out.Observed)
	return out, nil
}

// FileFor returns the triage file name written next to a report.
func FileFor(reportFile string) string {
	return strings.TrimSuffix(reportFile, ".md") + "_triage.json"
}

// WriteFile writes the output as JSON next to the report file.
func WriteFile(out *Output, reportFile string) (string, error) {
	path := FileFor(reportFile)

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal triage: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write triage file: %w", err)
	}
	return path, nil
}

func (t *Triager) evaluate(ctx context.Context, content string) (string, error) {
	req := llm.ChatRequest{
		Model:         t.config.Model,
		SystemMessage: SystemPrompt,
		UserMessage:   content,
		Temperature:   llm.Float64Ptr(0),
	}

	stream, err := t.client.ChatCompletionStream(ctx, req)
	if err == nil {
		result, streamErr := llm.CollectStream(stream)
		if streamErr == nil {
			return result, nil
		}
		slog.Warn("streaming triage failed, falling back to non-streaming", "error", streamErr)
	} else {
		slog.Debug("streaming not available, using non-streaming", "error", err)
	}

	resp, err := t.client.ChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("triage failed: %w", err)
	}
	return resp.Content, nil
}

var answerPattern = regexp.MustCompile(`(\d+)\s+regressions?\s+in\s+(\d+)\s+cells?`)

func parseAnswer(text string) RunResult {
	all := answerPattern.FindAllStringSubmatch(text, -1)
	if len(all) == 0 {
		return RunResult{RawOutput: text, ParseErr: "could not parse regression count from output"}
	}
	// The final line carries the answer; earlier matches may be quoted examples.
	m := all[len(all)-1]

	regressions, _ := strconv.Atoi(m[1])
	cells, _ := strconv.Atoi(m[2])
	rate := 0.0
	if cells > 0 {
		rate = math.Round(float64(regressions)/float64(cells)*10000) / 100
	}
	return RunResult{
		Regressions: &regressions,
		Cells:       &cells,
		Rate:        &rate,
		RawOutput:   text,
	}
}

func summarize(runs []RunResult, observed Observed) Summary {
	var values []int
	agrees := true
	for _, r := range runs {
		if r.Regressions == nil {
			continue
		}
		values = append(values, *r.Regressions)
		if *r.Regressions != observed.Regressions || *r.Cells != observed.Cells {
			agrees = false
		}
	}
	if len(values) == 0 {
		return Summary{}
	}

	mean := meanInt(values)
	lo := slices.Min(values)
	hi := slices.Max(values)
	variance := varianceInt(values, mean)
	return Summary{
		MeanRegressions: &mean,
		MinRegressions:  &lo,
		MaxRegressions:  &hi,
		Variance:        &variance,
		AllRunsParsed:   len(values) == len(runs),
		Agrees:          agrees,
	}
}

func meanInt(vals []int) float64 {
	sum := 0
	for _, v := range vals {
		sum += v
	}
	return math.Round(float64(sum)/float64(len(vals))*100) / 100
}

// varianceInt is the population variance of vals around mean.
func varianceInt(vals []int, mean float64) float64 {
	sum := 0.0
	for _, v := range vals {
		d := float64(v) - mean
		sum += d * d
	}
	return math.Round(sum/float64(len(vals))*100) / 100
}

// CountCells counts compared candidate cells and regressions in every grid
// table of a rendered report. Grid tables are recognised by a "#" first
// header cell; the reference column is recognised by its "(reference)" suffix.
func CountCells(doc string) Observed {
	var obs Observed
	var reference []bool
	inGrid := false

	sc := bufio.NewScanner(strings.NewReader(doc))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(line, "|") {
			inGrid = false
			continue
		}
		cells := splitRow(line)
		switch {
		case len(cells) > 2 && cells[0] == "#" && cells[1] == "Test":
			inGrid = true
			reference = make([]bool, len(cells))
			for i, c := range cells {
				reference[i] = strings.HasSuffix(c, "(reference)")
			}
		case !inGrid || strings.HasPrefix(line, "|----"):
		default:
			for i := 2; i < len(cells) && i < len(reference); i++ {
				if reference[i] {
					continue
				}
				switch cells[i] {
				case "Pass":
					obs.Cells++
				case "Fail", "Error":
					obs.Cells++
					obs.Regressions++
				}
			}
		}
	}
	return obs
}

func splitRow(line string) []string {
	line = strings.TrimSuffix(strings.TrimPrefix(line, "|"), "|")
	parts := strings.Split(line, " | ")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}
