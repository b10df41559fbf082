package commands

import (
	"fmt"

	"github.com/TimurManjosov/gorules/internal/cli"
	"github.com/spf13/cobra"
)

var modifyCmd = &cobra.Command{
	Use:     "modify <id> <rule>",
	Aliases: []string{"update"},
	Short:   "Replace the rule string of a stored rule",
	Long: `Replace a stored rule. The old rule stays in place if the new string
does not parse.

Example:
  rulectl modify 0b6f... "age >= 40"`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, format, err := newClient()
		if err != nil {
			return err
		}
		rule, err := c.Modify(cmd.Context(), args[0], args[1])
		if err != nil {
			return fmt.Errorf("failed to modify rule: %w", err)
		}
		if quiet {
			return nil
		}
		return cli.PrintRule(cmd.OutOrStdout(), rule, format)
	},
}

func init() {
	rootCmd.AddCommand(modifyCmd)
}
