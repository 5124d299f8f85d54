package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/giantswarm/version-matrix/internal/suite"
)

func newListCmd() *cobra.Command {
	var suitesDir string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List available test suites",
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := suite.List(suitesDir)
			if err != nil {
				return fmt.Errorf("failed to list test suites: %w", err)
			}

			if len(names) == 0 {
				fmt.Println("No test suites found.")
				return nil
			}

			fmt.Printf("Available test suites:\n\n")
			for _, name := range names {
				s, err := suite.Load(name, suitesDir)
				if err != nil {
					fmt.Printf("  - %s (error loading: %v)\n", name, err)
					continue
				}
				measured := 0
				for _, c := range s.Cases {
					if c.IsMeasurement() {
						measured++
					}
				}
				fmt.Printf("  - %s\n", s.Name)
				fmt.Printf("    Description: %s\n", s.Description)
				fmt.Printf("    Version: %s\n", s.Version)
				fmt.Printf("    Test cases: %d (%d measurements)\n\n", len(s.Cases), measured)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&suitesDir, "suites-dir", "", "External test suites directory")

	return cmd
}
