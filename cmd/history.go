package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/giantswarm/version-matrix/internal/history"
)

func newHistoryCmd() *cobra.Command {
	var (
		dbPath   string
		suite    string
		limit    int
		runID    string
		dataSet  string
		caseID   int
		versionLabel string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Query the run history database",
		Long: `List recorded matrix runs, the regressions of one run (--run), or the
verdicts of one test case on one version over time (--data-set, --case, --version).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := history.Open(dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := cmd.Context()
			switch {
			case runID != "":
				cells, err := store.Regressions(ctx, runID)
				if err != nil {
					return err
				}
				if len(cells) == 0 {
					fmt.Printf("No regressions in run %s.\n", runID)
					return nil
				}
				fmt.Printf("Regressions in run %s:\n\n", runID)
				for _, c := range cells {
					fmt.Printf("  [%s] #%d %s on %s: %s", c.DataSet, c.CaseID, c.CaseName, c.Version, c.Text)
					if c.Detail != "" {
						fmt.Printf(" (%s)", c.Detail)
					}
					fmt.Println()
				}

			case dataSet != "":
				if caseID <= 0 || versionLabel == "" {
					return fmt.Errorf("--case and --version are required with --data-set")
				}
				cells, err := store.CaseHistory(ctx, dataSet, caseID, versionLabel)
				if err != nil {
					return err
				}
				for _, c := range cells {
					fmt.Printf("  %s  %-12s %s\n", c.RunID, c.Kind, c.Text)
				}

			default:
				runs, err := store.Runs(ctx, suite, limit)
				if err != nil {
					return err
				}
				if len(runs) == 0 {
					fmt.Println("No recorded runs.")
					return nil
				}
				for _, r := range runs {
					fmt.Printf("  %s  %-20s %s  %d/%d regressions  %s\n",
						r.StartedAt.Format(time.DateTime), r.Suite, r.ID,
						r.Regressions, r.Cells, r.Duration.Round(time.Millisecond))
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "history-db", "history.db", "SQLite history database")
	cmd.Flags().StringVar(&suite, "suite", "", "Only list runs of this suite")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs to list")
	cmd.Flags().StringVar(&runID, "run", "", "List the regressions of this run")
	cmd.Flags().StringVar(&dataSet, "data-set", "", "Data set label for a case history")
	cmd.Flags().IntVar(&caseID, "case", 0, "Test case ID for a case history")
	cmd.Flags().StringVar(&versionLabel, "version", "", "Version label for a case history")

	return cmd
}
