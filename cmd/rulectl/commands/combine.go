package commands

import (
	"fmt"

	"github.com/TimurManjosov/gorules/internal/cli"
	"github.com/spf13/cobra"
)

var (
	combineOperator string
	combineSave     bool
)

var combineCmd = &cobra.Command{
	Use:   "combine <rule>...",
	Short: "Combine rule strings into one rule",
	Long: `Join rule strings with AND or OR. Without --operator the server's
configured strategy is used.

Examples:
  rulectl combine "age > 30" "salary > 50000" --operator AND
  rulectl combine "department = 'Sales'" "department = 'HR'" --save`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, format, err := newClient()
		if err != nil {
			return err
		}
		res, err := c.Combine(cmd.Context(), args, combineOperator, combineSave)
		if err != nil {
			return fmt.Errorf("failed to combine rules: %w", err)
		}
		if quiet {
			return nil
		}
		return cli.PrintCombine(cmd.OutOrStdout(), res, format)
	},
}

func init() {
	rootCmd.AddCommand(combineCmd)

	combineCmd.Flags().StringVar(&combineOperator, "operator", "", "AND or OR")
	combineCmd.Flags().BoolVar(&combineSave, "save", false, "Store the combined rule")
}
