package matrix

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/giantswarm/version-matrix/internal/compare"
)

// ResultSetFile is the manifest written into every run directory.
const ResultSetFile = "resultset.json"

// RunDir returns the directory a run writes its artifacts to.
func RunDir(outputDir, runID string) string {
	return filepath.Join(outputDir, runID)
}

// WriteResultSet writes the run manifest and returns the run directory.
func WriteResultSet(outputDir string, r *Report) (string, error) {
	dir := RunDir(outputDir, r.RunID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	sections := make([]map[string]interface{}, 0, len(r.Sections))
	for _, s := range r.Sections {
		columns := make([]map[string]interface{}, 0, len(s.Grid.Columns))
		for _, c := range s.Grid.Columns {
			col := map[string]interface{}{
				"label":        c.Label,
				"install_path": c.InstallPath,
				"version":      c.Version,
				"is_reference": c.IsReference,
				"duration":     c.Duration.Seconds(),
				"counts":       kindCounts(c.Verdicts),
			}
			if c.Err != "" {
				col["error"] = c.Err
			}
			columns = append(columns, col)
		}
		sections = append(sections, map[string]interface{}{
			"data_set": s.DataSet,
			"rows":     len(s.Grid.Rows),
			"columns":  columns,
		})
	}

	metadata := map[string]interface{}{
		"id":            r.RunID,
		"suite":         r.Suite,
		"timestamp":     r.Timestamp,
		"full_duration": r.Duration.Seconds(),
		"sections":      sections,
	}

	data, err := json.MarshalIndent(metadata, "", "    ")
	if err != nil {
		return "", err
	}
	return dir, os.WriteFile(filepath.Join(dir, ResultSetFile), data, 0o644)
}

func kindCounts(vs []compare.Verdict) map[compare.Kind]int {
	counts := make(map[compare.Kind]int)
	for _, v := range vs {
		counts[v.Kind]++
	}
	return counts
}
