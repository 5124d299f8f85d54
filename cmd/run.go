package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/giantswarm/version-matrix/internal/backend"
	"github.com/giantswarm/version-matrix/internal/cluster"
	"github.com/giantswarm/version-matrix/internal/compare"
	"github.com/giantswarm/version-matrix/internal/plan"
	"github.com/giantswarm/version-matrix/internal/report"
	"github.com/giantswarm/version-matrix/internal/version"
	"github.com/giantswarm/version-matrix/internal/workflow"
)

func newRunCmd() *cobra.Command {
	var (
		suiteName       string
		suitesDir       string
		planFile        string
		name            string
		data            []string
		current         string
		prior           []string
		backendName     string
		pkg             string
		inCluster       bool
		repeatReference bool
		searchPathVars  []string
		outputDir       string
		referenceIn     string
		referenceOut    string
		historyDB       string
		show            bool
		timeout         time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a test suite against several installed versions",
		Long: `Run every test case of a suite against the current version and each prior
version, comparing every candidate with the reference run of the current version.

Data sets and versions come from flags or from a YAML plan (--plan); flags win.
The Markdown report and a JSON manifest are written to the output directory.`,
		Example: `  version-matrix run --suite profile-analyzer \
    --data "open field=testdata/open-field.csv" \
    --current demo/2.0.0 --prior demo/1.1.0 --prior demo/1.0.0`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			req := workflow.Request{
				SuitesDir:      suitesDir,
				SearchPathVars: searchPathVars,
				OutputDir:      outputDir,
				ReferenceIn:    referenceIn,
				ReferenceOut:   referenceOut,
				HistoryDB:      historyDB,
			}

			if planFile != "" {
				p, err := plan.Load(planFile)
				if err != nil {
					return err
				}
				req.Name = p.Name
				req.Suite = p.Suite
				req.Backend = p.Backend
				req.RepeatReference = p.RepeatReference
				req.DataSets = p.DataSets
				req.Versions = p.Versions
			}

			if suiteName != "" {
				req.Suite = suiteName
			}
			if name != "" {
				req.Name = name
			}
			if cmd.Flags().Changed("backend") || req.Backend == "" {
				req.Backend = backendName
			}
			if cmd.Flags().Changed("repeat-reference") {
				req.RepeatReference = repeatReference
			}
			if len(data) > 0 {
				req.DataSets = nil
				for _, d := range data {
					ds, err := workflow.ParseDataSet(d)
					if err != nil {
						return err
					}
					req.DataSets = append(req.DataSets, ds)
				}
			}
			if current != "" {
				req.Versions = version.Descriptors(current, prior)
			} else if len(prior) > 0 {
				return fmt.Errorf("--prior requires --current")
			}

			opts := backend.Options{Package: pkg}
			if req.Backend == backend.Cluster {
				namespace, _ := cmd.Flags().GetString("namespace")
				kubeconfig, _ := cmd.Flags().GetString("kubeconfig")
				m, err := cluster.NewManager(namespace, kubeconfig, inCluster)
				if err != nil {
					return fmt.Errorf("failed to create cluster manager: %w", err)
				}
				opts.Cluster = m
			}

			req.Progress = func(label string, idx, total int) {
				fmt.Printf("\r  [%s] Running test case %d/%d...", label, idx, total)
			}

			fmt.Printf("Test Suite: %s\n", req.Suite)
			fmt.Printf("Backend: %s\n", req.Backend)
			fmt.Printf("Versions:\n")
			for i, v := range req.Versions {
				ref := ""
				if v.IsReference {
					ref = " (reference)"
				}
				fmt.Printf("  %d. %s: %s%s\n", i+1, v.Label, v.InstallPath, ref)
			}
			fmt.Println()

			res, err := workflow.Execute(ctx, req, opts)
			if err != nil {
				return err
			}

			counts := res.Report.Counts()
			fmt.Printf("\n\nMatrix run completed.\n")
			fmt.Printf("Run ID: %s\n", res.Report.RunID)
			fmt.Printf("Duration: %s\n", res.Report.Duration.Round(time.Millisecond))
			fmt.Printf("Verdicts: %s\n", formatCounts(counts))
			if res.ReportPath != "" {
				fmt.Printf("Report: %s\n", res.ReportPath)
			}
			for _, s := range res.Snapshots {
				fmt.Printf("Reference snapshot: %s\n", s)
			}

			if show {
				out, err := report.Terminal(res.Document, "", 100)
				if err != nil {
					return err
				}
				fmt.Println(out)
			}

			slog.Info("matrix run complete", "run_id", res.Report.RunID)
			if counts[compare.Fail]+counts[compare.Error] > 0 {
				fmt.Fprintln(os.Stderr, "Regressions found.")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&suiteName, "suite", "", "Test suite name")
	cmd.Flags().StringVar(&suitesDir, "suites-dir", "", "External test suites directory")
	cmd.Flags().StringVar(&planFile, "plan", "", "YAML plan file with suite, data sets and versions")
	cmd.Flags().StringVar(&name, "name", "", "Run name used in the run ID (default: suite name)")
	cmd.Flags().StringArrayVar(&data, "data", nil, "Test data set as 'label=path' (repeatable)")
	cmd.Flags().StringVar(&current, "current", "", "Install path of the reference version")
	cmd.Flags().StringArrayVar(&prior, "prior", nil, "Install path of a prior version (repeatable)")
	cmd.Flags().StringVar(&backendName, "backend", backend.Registry, "Session backend: "+strings.Join(backend.Names(), ", "))
	cmd.Flags().StringVar(&pkg, "package", "", "Entry package for the interp backend")
	cmd.Flags().BoolVar(&inCluster, "in-cluster", false, "Use in-cluster Kubernetes authentication")
	cmd.Flags().BoolVar(&repeatReference, "repeat-reference", false, "Run the reference version again as the last column")
	cmd.Flags().StringSliceVar(&searchPathVars, "search-path-var", nil, "Extra environment variable to prepend install paths to")
	cmd.Flags().StringVar(&outputDir, "output-dir", "results", "Directory for run results")
	cmd.Flags().StringVar(&referenceIn, "reference-in", "", "Compare against stored reference snapshots in this directory")
	cmd.Flags().StringVar(&referenceOut, "reference-out", "", "Store the reference snapshots of this run in this directory")
	cmd.Flags().StringVar(&historyDB, "history-db", "", "SQLite database to record the run in")
	cmd.Flags().BoolVar(&show, "show", false, "Render the report in the terminal")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Overall timeout for the run (e.g. 30m, 1h). 0 means no timeout")

	return cmd
}

func formatCounts(counts map[compare.Kind]int) string {
	kinds := []compare.Kind{compare.Pass, compare.Fail, compare.NotApplicable, compare.Measurement, compare.Error}
	parts := make([]string, 0, len(kinds))
	for _, k := range kinds {
		parts = append(parts, fmt.Sprintf("%s=%d", k, counts[k]))
	}
	return strings.Join(parts, " ")
}
