package commands

import (
	"fmt"
	"sort"
	"strings"

	"github.com/TimurManjosov/gorules/internal/cli"
	"github.com/TimurManjosov/gorules/internal/store"
	"github.com/spf13/cobra"
)

var (
	listFilter string
	listSort   string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all rules",
	Long: `List every stored rule in insertion order.

Examples:
  rulectl list
  rulectl list --filter department --sort updated
  rulectl list --output json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, format, err := newClient()
		if err != nil {
			return err
		}
		list, err := c.List(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list rules: %w", err)
		}
		list, err = filterAndSort(list, listFilter, listSort)
		if err != nil {
			return err
		}

		if quiet {
			return nil
		}
		if len(list) == 0 && format == cli.FormatTable {
			fmt.Fprintln(cmd.OutOrStdout(), "No rules found")
			return nil
		}
		return cli.PrintRules(cmd.OutOrStdout(), list, format)
	},
}

// filterAndSort keeps rules whose string contains filter and orders them
// by the given key. An empty key keeps insertion order.
func filterAndSort(list []store.Rule, filter, key string) ([]store.Rule, error) {
	if filter != "" {
		kept := make([]store.Rule, 0, len(list))
		for _, r := range list {
			if strings.Contains(r.RuleString, filter) {
				kept = append(kept, r)
			}
		}
		list = kept
	}

	switch key {
	case "":
	case "id":
		sort.SliceStable(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	case "rule":
		sort.SliceStable(list, func(i, j int) bool { return list[i].RuleString < list[j].RuleString })
	case "updated":
		sort.SliceStable(list, func(i, j int) bool { return list[i].UpdatedAt.After(list[j].UpdatedAt) })
	default:
		return nil, fmt.Errorf("unsupported sort key: %s (use id, rule or updated)", key)
	}
	return list, nil
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringVar(&listFilter, "filter", "", "Only show rules whose string contains this text")
	listCmd.Flags().StringVar(&listSort, "sort", "", "Sort by id, rule or updated")
}
