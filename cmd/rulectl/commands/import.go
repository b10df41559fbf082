package commands

import (
	"fmt"
	"os"

	"github.com/TimurManjosov/gorules/internal/rules"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// ImportFile is the layout read by import. JSON files parse too.
type ImportFile struct {
	Rules []string `yaml:"rules" json:"rules"`
}

var (
	importDryRun bool
	importForce  bool
)

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Create rules from a file",
	Long: `Create one rule per entry of a YAML or JSON file:

  rules:
    - age > 30
    - department = 'Sales'

Examples:
  rulectl import rules.yaml
  rulectl import rules.yaml --dry-run
  rulectl import rules.yaml --force`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read file: %w", err)
		}
		var file ImportFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return fmt.Errorf("failed to parse file: %w", err)
		}
		if len(file.Rules) == 0 {
			return fmt.Errorf("no rules found in file")
		}
		out := cmd.OutOrStdout()

		if importDryRun {
			invalid := 0
			for _, s := range file.Rules {
				node, err := rules.Parse(s)
				if err != nil {
					invalid++
					fmt.Fprintf(out, "  ! %s: %v\n", s, err)
					continue
				}
				fmt.Fprintf(out, "  - %s\n", rules.Format(node))
			}
			if invalid > 0 {
				return fmt.Errorf("%d rule(s) do not parse", invalid)
			}
			return nil
		}

		c, _, err := newClient()
		if err != nil {
			return err
		}

		successCount, errorCount := 0, 0
		for _, s := range file.Rules {
			if verbose {
				fmt.Fprintf(out, "Importing rule: %s\n", s)
			}
			if _, err := c.Create(cmd.Context(), s); err != nil {
				errorCount++
				fmt.Fprintf(cmd.ErrOrStderr(), "Failed to import rule '%s': %v\n", s, err)
				if !importForce {
					return fmt.Errorf("import failed, use --force to continue on errors")
				}
				continue
			}
			successCount++
		}

		if !quiet {
			fmt.Fprintf(out, "Import complete: %d succeeded, %d failed\n", successCount, errorCount)
		}
		if errorCount > 0 {
			return fmt.Errorf("import completed with errors")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "Parse locally without importing")
	importCmd.Flags().BoolVar(&importForce, "force", false, "Continue on errors")
}
