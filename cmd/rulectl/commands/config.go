package commands

import (
	"fmt"
	"sort"

	"github.com/TimurManjosov/gorules/internal/auth"
	"github.com/TimurManjosov/gorules/internal/cli"
	"github.com/spf13/cobra"
)

var (
	configInitForce  bool
	configInitGenKey bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `Manage the rulectl configuration file.`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration file",
	Long: `Create a configuration file with a "local" profile at
~/.rulectl/config.yaml (or $RULECTL_CONFIG).

With --generate-key a new admin key is written to the profile and
printed; start the server with ADMIN_API_KEY set to the same value.

Example:
  rulectl config init --generate-key`,
	RunE: func(cmd *cobra.Command, args []string) error {
		key := apiKey
		if configInitGenKey {
			generated, err := auth.GenerateAPIKey()
			if err != nil {
				return fmt.Errorf("failed to generate key: %w", err)
			}
			key = generated
		}
		path, err := cli.InitConfig(key, configInitForce)
		if err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Configuration file created at: %s\n", path)
		if configInitGenKey {
			fmt.Fprintf(out, "Admin API key: %s\n", key)
		}
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := cli.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Default Profile: %s\n\n", cfg.DefaultProfile)

		names := make([]string, 0, len(cfg.Profiles))
		for name := range cfg.Profiles {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			p := cfg.Profiles[name]
			fmt.Fprintf(out, "[%s]\n  base_url: %s\n  api_key:  %s\n", name, p.BaseURL, maskKey(p.APIKey))
		}
		return nil
	},
}

func maskKey(key string) string {
	if key == "" {
		return "(none)"
	}
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "Overwrite an existing file")
	configInitCmd.Flags().BoolVar(&configInitGenKey, "generate-key", false, "Generate a new admin API key")
}
