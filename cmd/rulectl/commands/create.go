package commands

import (
	"fmt"

	"github.com/TimurManjosov/gorules/internal/cli"
	"github.com/spf13/cobra"
)

var createCmd = &cobra.Command{
	Use:   "create <rule>",
	Short: "Create a new rule",
	Long: `Parse and store a rule string. The server stores the canonical form.

Examples:
  rulectl create "age > 30"
  rulectl create "(age > 30 AND department = 'Sales') OR experience >= 10"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, format, err := newClient()
		if err != nil {
			return err
		}
		rule, err := c.Create(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to create rule: %w", err)
		}
		if quiet {
			return nil
		}
		return cli.PrintRule(cmd.OutOrStdout(), rule, format)
	},
}

func init() {
	rootCmd.AddCommand(createCmd)
}
