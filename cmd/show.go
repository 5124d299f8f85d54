package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/giantswarm/version-matrix/internal/report"
)

func newShowCmd() *cobra.Command {
	var (
		style string
		width int
	)

	cmd := &cobra.Command{
		Use:   "show <report.md>",
		Short: "Render a Markdown report in the terminal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read report: %w", err)
			}

			out, err := report.Terminal(string(doc), style, width)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprint(cmd.OutOrStdout(), out)
			return nil
		},
	}

	cmd.Flags().StringVar(&style, "style", "", "Glamour style (dark, light, notty, ...); detected from the terminal when empty")
	cmd.Flags().IntVar(&width, "width", 100, "Word wrap width")

	return cmd
}
