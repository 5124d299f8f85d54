package mcp

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/giantswarm/version-matrix/internal/backend"
	"github.com/giantswarm/version-matrix/internal/compare"
	"github.com/giantswarm/version-matrix/internal/matrix"
	"github.com/giantswarm/version-matrix/internal/plan"
	"github.com/giantswarm/version-matrix/internal/server"
	"github.com/giantswarm/version-matrix/internal/suite"
	"github.com/giantswarm/version-matrix/internal/version"
	"github.com/giantswarm/version-matrix/internal/workflow"
)

func registerMatrixTools(s *mcpserver.MCPServer, sc *server.ServerContext) {
	listTool := mcp.NewTool("list_suites",
		mcp.WithDescription("List available regression test suites with their test cases"),
	)
	s.AddTool(listTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleListSuites(ctx, request, sc)
	})

	runTool := mcp.NewTool("run_matrix",
		mcp.WithDescription("Run a test suite against several installed versions of the application. The first version is the reference every other version is compared with. Returns per-version verdict counts and the path of the Markdown report."),
		mcp.WithString("suite",
			mcp.Description("Name of the test suite (e.g. 'profile-analyzer'); taken from the plan when omitted"),
		),
		mcp.WithArray("data",
			mcp.Description("Test data sets as 'label=path' entries"),
			mcp.WithStringItems(),
		),
		mcp.WithArray("versions",
			mcp.Description("Install paths, reference first (e.g. ['demo/2.0.0', 'demo/1.0.0'])"),
			mcp.WithStringItems(),
		),
		mcp.WithString("plan",
			mcp.Description("Path to a YAML plan file providing suite, data sets and versions"),
		),
		mcp.WithString("backend",
			mcp.Description("Session backend: registry (default), interp or cluster"),
		),
		mcp.WithString("name",
			mcp.Description("Run name used in the run ID (default: suite name)"),
		),
		mcp.WithBoolean("repeat_reference",
			mcp.Description("Run the reference version again as the last column"),
		),
		mcp.WithBoolean("use_stored_reference",
			mcp.Description("Compare against stored reference snapshots instead of a fresh reference run"),
		),
		mcp.WithBoolean("store_reference",
			mcp.Description("Store this run's reference snapshots"),
		),
	)
	s.AddTool(runTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleRunMatrix(ctx, request, sc)
	})
}

func handleListSuites(_ context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	names, err := suite.List(sc.SuitesDir)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list test suites: %v", err)), nil
	}

	type caseInfo struct {
		ID         int    `json:"id"`
		Name       string `json:"name"`
		MinVersion int    `json:"min_version,omitempty"`
		Measured   bool   `json:"measurement,omitempty"`
	}
	type suiteInfo struct {
		Name        string     `json:"name"`
		Description string     `json:"description"`
		Version     string     `json:"version"`
		Cases       []caseInfo `json:"cases"`
	}

	suites := make([]suiteInfo, 0, len(names))
	for _, name := range names {
		s, err := suite.Load(name, sc.SuitesDir)
		if err != nil {
			slog.Warn("skipping unloadable suite", "suite", name, "error", err)
			continue
		}
		info := suiteInfo{Name: s.Name, Description: s.Description, Version: s.Version}
		for _, c := range s.Cases {
			info.Cases = append(info.Cases, caseInfo{ID: c.ID, Name: c.Name, MinVersion: c.MinVersion, Measured: c.IsMeasurement()})
		}
		suites = append(suites, info)
	}
	return jsonResult(suites)
}

func handleRunMatrix(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	req, err := runRequest(request.GetArguments(), sc)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	release, ok := sc.TryStartRun()
	if !ok {
		return mcp.NewToolResultError("a matrix run is already in progress"), nil
	}
	defer release()

	res, err := workflow.Execute(ctx, req, backend.Options{Cluster: sc.ClusterManager})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("matrix run failed: %v", err)), nil
	}
	return jsonResult(runSummary(res))
}

// runRequest builds a workflow request from tool arguments. Explicit
// arguments override the plan.
func runRequest(args map[string]any, sc *server.ServerContext) (workflow.Request, error) {
	req := workflow.Request{
		SuitesDir: sc.SuitesDir,
		OutputDir: sc.OutputDir,
		HistoryDB: sc.HistoryDB,
	}

	if planPath, _ := args["plan"].(string); planPath != "" {
		p, err := plan.Load(planPath)
		if err != nil {
			return req, fmt.Errorf("failed to load plan: %w", err)
		}
		req.Name = p.Name
		req.Suite = p.Suite
		req.Backend = p.Backend
		req.RepeatReference = p.RepeatReference
		req.DataSets = p.DataSets
		req.Versions = p.Versions
	}

	if v, _ := args["suite"].(string); v != "" {
		req.Suite = v
	}
	if v, _ := args["name"].(string); v != "" {
		req.Name = v
	}
	if v, _ := args["backend"].(string); v != "" {
		req.Backend = v
	}
	if v, ok := args["repeat_reference"].(bool); ok {
		req.RepeatReference = v
	}

	data, err := stringList(args, "data")
	if err != nil {
		return req, err
	}
	if len(data) > 0 {
		req.DataSets = nil
		for _, d := range data {
			ds, err := workflow.ParseDataSet(d)
			if err != nil {
				return req, err
			}
			req.DataSets = append(req.DataSets, ds)
		}
	}

	versions, err := stringList(args, "versions")
	if err != nil {
		return req, err
	}
	if len(versions) > 0 {
		req.Versions = version.Descriptors(versions[0], versions[1:])
	}

	useStored, _ := args["use_stored_reference"].(bool)
	store, _ := args["store_reference"].(bool)
	if (useStored || store) && sc.ReferenceDir == "" {
		return req, fmt.Errorf("no reference directory is configured on the server")
	}
	if useStored {
		req.ReferenceIn = sc.ReferenceDir
	}
	if store {
		req.ReferenceOut = sc.ReferenceDir
	}

	if req.Suite == "" {
		return req, fmt.Errorf("suite is required")
	}
	return req, req.Validate()
}

type columnSummary struct {
	Label     string               `json:"label"`
	Version   string               `json:"version,omitempty"`
	Reference bool                 `json:"reference,omitempty"`
	Error     string               `json:"error,omitempty"`
	Duration  string               `json:"duration"`
	Counts    map[compare.Kind]int `json:"counts"`
}

type sectionSummary struct {
	DataSet string          `json:"data_set"`
	Columns []columnSummary `json:"columns"`
}

func runSummary(res *workflow.Result) map[string]any {
	r := res.Report
	sections := make([]sectionSummary, 0, len(r.Sections))
	for _, s := range r.Sections {
		sec := sectionSummary{DataSet: s.DataSet.Label}
		for _, c := range s.Grid.Columns {
			sec.Columns = append(sec.Columns, columnSummary{
				Label:     c.Label,
				Version:   c.Version,
				Reference: c.IsReference,
				Error:     c.Err,
				Duration:  c.Duration.String(),
				Counts:    countKinds(c),
			})
		}
		sections = append(sections, sec)
	}

	summary := map[string]any{
		"run_id":   r.RunID,
		"suite":    r.Suite,
		"duration": r.Duration.String(),
		"counts":   r.Counts(),
		"sections": sections,
	}
	if res.ReportPath != "" {
		summary["report_file"] = res.ReportPath
	}
	if len(res.Snapshots) > 0 {
		summary["reference_files"] = res.Snapshots
	}
	return summary
}

func countKinds(c matrix.Column) map[compare.Kind]int {
	counts := make(map[compare.Kind]int)
	for _, v := range c.Verdicts {
		counts[v.Kind]++
	}
	return counts
}
