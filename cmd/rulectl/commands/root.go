package commands

import (
	"fmt"

	"github.com/TimurManjosov/gorules/internal/cli"
	"github.com/TimurManjosov/gorules/internal/client"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	baseURL string
	apiKey  string
	profile string
	output  string
	quiet   bool
	verbose bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "rulectl",
	Short: "CLI tool for managing rules",
	Long: `rulectl is a command-line tool for the gorules service.

It creates, reads, modifies and deletes rule strings, combines them,
evaluates them against data and exports them as JSON Logic or CEL.

Examples:
  rulectl create "age > 30 AND department = 'Sales'"
  rulectl list --output json
  rulectl combine "age > 30" "salary > 50000" --operator AND --save
  rulectl evaluate <id> --attr age=35 --attr department=Sales --explain
  rulectl export <id> --format cel`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "Base URL of the rules API")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "Admin API key")
	rootCmd.PersistentFlags().StringVar(&profile, "profile", "", "Profile from the config file")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "Output format (table, json, yaml)")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "Suppress output")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Verbose output")
}

// newClient resolves the server profile and the output format.
func newClient() (*client.Client, cli.OutputFormat, error) {
	format, err := cli.ParseOutputFormat(output)
	if err != nil {
		return nil, "", err
	}
	p, err := cli.ResolveProfile(profile, baseURL, apiKey)
	if err != nil {
		return nil, "", fmt.Errorf("configuration error: %w", err)
	}
	return client.NewClient(p.BaseURL, p.APIKey), format, nil
}
