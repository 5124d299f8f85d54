package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/giantswarm/version-matrix/internal/triage"
)

func newTriageCmd() *cobra.Command {
	var (
		model       string
		endpoint    string
		apiKey      string
		repetitions int
	)

	cmd := &cobra.Command{
		Use:   "triage <report.md>",
		Short: "Summarise the regressions of a report using an LLM",
		Long: `Send a Markdown report to an LLM that counts the regressions in the version
grids. Runs multiple passes for confidence and checks the answers against the
counts taken directly from the report tables. The result is written as JSON
next to the report.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reportFile := args[0]

			if _, err := os.Stat(reportFile); os.IsNotExist(err) {
				return fmt.Errorf("report file not found: %s", reportFile)
			}

			client := newLLMClientFromFlags(endpoint, apiKey)
			t := triage.NewTriager(client, triage.Config{
				Model:       model,
				Repetitions: repetitions,
			})

			fmt.Printf("Triaging: %s\n", reportFile)
			fmt.Printf("Repetitions: %d\n", repetitions)
			fmt.Println()

			out, err := t.TriageFile(cmd.Context(), reportFile)
			if err != nil {
				return err
			}

			triageFile, err := triage.WriteFile(out, reportFile)
			if err != nil {
				return err
			}

			fmt.Printf("\nTriage written to: %s\n", triageFile)
			fmt.Printf("\nReport tables: %d regressions in %d cells\n",
				out.Observed.Regressions, out.Observed.Cells)

			if out.Summary.MeanRegressions != nil {
				fmt.Printf("Model answers: mean %.2f, range %d-%d\n",
					*out.Summary.MeanRegressions,
					*out.Summary.MinRegressions,
					*out.Summary.MaxRegressions)
				if !out.Summary.Agrees {
					fmt.Println("Warning: model answers disagree with the report tables.")
				}
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&model, "model", "", "Triage model name (default: "+triage.DefaultModel+")")
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "LLM API endpoint URL")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "API key (or set OPENAI_API_KEY)")
	cmd.Flags().IntVar(&repetitions, "repetitions", 3, "Number of triage passes")

	return cmd
}
