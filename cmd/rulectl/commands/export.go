package commands

import (
	"fmt"

	"github.com/TimurManjosov/gorules/internal/cli"
	"github.com/spf13/cobra"
)

var exportFormat string

var exportCmd = &cobra.Command{
	Use:   "export <id>",
	Short: "Export a rule as JSON Logic or CEL",
	Long: `Render a stored rule in another rule language.

Examples:
  rulectl export 0b6f...
  rulectl export 0b6f... --format cel`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, format, err := newClient()
		if err != nil {
			return err
		}
		exp, err := c.Export(cmd.Context(), args[0], exportFormat)
		if err != nil {
			return fmt.Errorf("failed to export rule: %w", err)
		}
		if quiet {
			return nil
		}
		return cli.PrintExport(cmd.OutOrStdout(), exp, format)
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVar(&exportFormat, "format", "jsonlogic", "jsonlogic or cel")
}
