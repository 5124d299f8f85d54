package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/giantswarm/version-matrix/internal/history"
	"github.com/giantswarm/version-matrix/internal/matrix"
	"github.com/giantswarm/version-matrix/internal/server"
	"github.com/giantswarm/version-matrix/internal/triage"
)

const triageSuffix = "_triage.json"

func registerReportTools(s *mcpserver.MCPServer, sc *server.ServerContext) {
	getTool := mcp.NewTool("get_reports",
		mcp.WithDescription("List past matrix runs, or retrieve the Markdown reports and triage results of one run"),
		mcp.WithString("run_id",
			mcp.Description("Run ID to retrieve (optional, lists all runs if omitted)"),
		),
	)
	s.AddTool(getTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleGetReports(ctx, request, sc)
	})

	triageTool := mcp.NewTool("triage_report",
		mcp.WithDescription("Ask a language model to summarise the regressions in a report and check its count against the report"),
		mcp.WithString("run_id",
			mcp.Description("Triage every report of this run"),
		),
		mcp.WithString("report_file",
			mcp.Description("Report file inside the output directory"),
		),
		mcp.WithString("model",
			mcp.Description("Model to use (default: from config)"),
		),
		mcp.WithNumber("repetitions",
			mcp.Description("Number of triage passes for confidence (default: 3)"),
		),
	)
	s.AddTool(triageTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleTriageReport(ctx, request, sc)
	})

	historyTool := mcp.NewTool("get_history",
		mcp.WithDescription("Query the run history database: recent runs, the regressions of one run, or the verdicts of one case over time"),
		mcp.WithString("suite",
			mcp.Description("Only list runs of this suite"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of runs to list (default: 20)"),
		),
		mcp.WithString("run_id",
			mcp.Description("List the regressions of this run"),
		),
		mcp.WithString("data_set",
			mcp.Description("Data set label, with case_id and version for a case history"),
		),
		mcp.WithNumber("case_id",
			mcp.Description("Test case ID for a case history"),
		),
		mcp.WithString("version",
			mcp.Description("Version label for a case history"),
		),
	)
	s.AddTool(historyTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleGetHistory(ctx, request, sc)
	})
}

func handleGetReports(_ context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	runID, _ := request.GetArguments()["run_id"].(string)
	if runID != "" {
		return getRun(sc.OutputDir, runID)
	}
	return listRuns(sc.OutputDir)
}

func readManifest(runPath string) (map[string]any, error) {
	data, err := os.ReadFile(filepath.Join(runPath, matrix.ResultSetFile))
	if err != nil {
		return nil, err
	}
	var metadata map[string]any
	if err := json.Unmarshal(data, &metadata); err != nil {
		return nil, fmt.Errorf("failed to parse run metadata: %w", err)
	}
	return metadata, nil
}

// runFiles returns the report and triage file names in a run directory.
func runFiles(runPath string) (reports, triages []string) {
	entries, _ := os.ReadDir(runPath)
	for _, e := range entries {
		switch name := e.Name(); {
		case e.IsDir():
		case strings.HasSuffix(name, triageSuffix):
			triages = append(triages, name)
		case strings.HasSuffix(name, ".md"):
			reports = append(reports, name)
		}
	}
	return reports, triages
}

func listRuns(outputDir string) (*mcp.CallToolResult, error) {
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return mcp.NewToolResultText("[]"), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("failed to read output directory: %v", err)), nil
	}

	runs := []map[string]any{}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		runPath := filepath.Join(outputDir, e.Name())
		metadata, err := readManifest(runPath)
		if err != nil {
			continue
		}
		// Sections are large; the listing keeps the headline fields only.
		delete(metadata, "sections")
		metadata["reports"], metadata["triage_files"] = runFiles(runPath)
		runs = append(runs, metadata)
	}
	if len(runs) == 0 {
		return mcp.NewToolResultText("[]"), nil
	}
	return jsonResult(runs)
}

func getRun(outputDir, runID string) (*mcp.CallToolResult, error) {
	runPath, err := resolveRunPath(outputDir, runID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid run_id: %v", err)), nil
	}

	metadata, err := readManifest(runPath)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("run %q not found: %v", runID, err)), nil
	}

	reportNames, triageNames := runFiles(runPath)
	reports := make(map[string]string, len(reportNames))
	for _, name := range reportNames {
		if data, err := os.ReadFile(filepath.Join(runPath, name)); err == nil {
			reports[name] = string(data)
		}
	}
	metadata["reports"] = reports

	triages := make(map[string]any, len(triageNames))
	for _, name := range triageNames {
		data, err := os.ReadFile(filepath.Join(runPath, name))
		if err != nil {
			continue
		}
		var obj any
		if json.Unmarshal(data, &obj) == nil {
			triages[name] = obj
		}
	}
	if len(triages) > 0 {
		metadata["triage"] = triages
	}
	return jsonResult(metadata)
}

func handleTriageReport(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	if sc.LLMClient == nil {
		return mcp.NewToolResultError("LLM client is not configured"), nil
	}

	args := request.GetArguments()
	reportFile, _ := args["report_file"].(string)
	runID, _ := args["run_id"].(string)
	if reportFile == "" && runID == "" {
		return mcp.NewToolResultError("either 'run_id' or 'report_file' is required"), nil
	}

	cfg := triage.Config{Repetitions: 3}
	if model, ok := args["model"].(string); ok && model != "" {
		cfg.Model = model
	}
	if reps, ok := args["repetitions"].(float64); ok && reps > 0 {
		cfg.Repetitions = int(reps)
	}
	t := triage.NewTriager(sc.LLMClient, cfg)

	var files []string
	if runID != "" {
		runPath, err := resolveRunPath(sc.OutputDir, runID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid run_id: %v", err)), nil
		}
		names, _ := runFiles(runPath)
		if len(names) == 0 {
			return mcp.NewToolResultError(fmt.Sprintf("no reports found in run %q", runID)), nil
		}
		for _, n := range names {
			files = append(files, filepath.Join(runPath, n))
		}
	} else {
		path, err := resolveReportPath(sc.OutputDir, reportFile)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid report_file: %v", err)), nil
		}
		files = []string{path}
	}

	type fileTriage struct {
		ReportFile string          `json:"report_file"`
		TriageFile string          `json:"triage_file"`
		Observed   triage.Observed `json:"observed"`
		Summary    triage.Summary  `json:"summary"`
	}

	results := make([]fileTriage, 0, len(files))
	for _, f := range files {
		out, err := t.TriageFile(ctx, f)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("triage failed for %s: %v", f, err)), nil
		}
		triageFile, err := triage.WriteFile(out, f)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to write triage for %s: %v", f, err)), nil
		}
		results = append(results, fileTriage{
			ReportFile: f,
			TriageFile: triageFile,
			Observed:   out.Observed,
			Summary:    out.Summary,
		})
	}
	return jsonResult(results)
}

func handleGetHistory(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	if sc.HistoryDB == "" {
		return mcp.NewToolResultError("run history is not configured"), nil
	}

	store, err := history.Open(sc.HistoryDB)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to open history: %v", err)), nil
	}
	defer store.Close()

	args := request.GetArguments()
	if runID, _ := args["run_id"].(string); runID != "" {
		cells, err := store.Regressions(ctx, runID)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(map[string]any{"run_id": runID, "regressions": cells})
	}

	if dataSet, _ := args["data_set"].(string); dataSet != "" {
		caseID, _ := args["case_id"].(float64)
		label, _ := args["version"].(string)
		if caseID <= 0 || label == "" {
			return mcp.NewToolResultError("case_id and version are required with data_set"), nil
		}
		cells, err := store.CaseHistory(ctx, dataSet, int(caseID), label)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(cells)
	}

	suiteName, _ := args["suite"].(string)
	limit := 20
	if l, ok := args["limit"].(float64); ok && l > 0 {
		limit = int(l)
	}
	runs, err := store.Runs(ctx, suiteName, limit)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if runs == nil {
		runs = []history.Run{}
	}
	return jsonResult(runs)
}
