package commands

import (
	"fmt"

	"github.com/TimurManjosov/gorules/internal/cli"
	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Get a rule by id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, format, err := newClient()
		if err != nil {
			return err
		}
		rule, err := c.Get(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to get rule: %w", err)
		}
		if quiet {
			return nil
		}
		return cli.PrintRule(cmd.OutOrStdout(), rule, format)
	},
}

func init() {
	rootCmd.AddCommand(getCmd)
}
