// Package cli holds configuration and output helpers for rulectl.
package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Environment variables read by ResolveProfile and GetConfigPath.
const (
	EnvBaseURL    = "RULECTL_BASE_URL"
	EnvAPIKey     = "RULECTL_API_KEY"
	EnvConfigPath = "RULECTL_CONFIG"
)

// Config represents the CLI configuration
type Config struct {
	DefaultProfile string             `yaml:"default_profile"`
	Profiles       map[string]Profile `yaml:"profiles"`
}

// Profile is one server the CLI can talk to.
type Profile struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key,omitempty"`
}

// GetConfigPath returns the path to the config file. RULECTL_CONFIG
// overrides the default ~/.rulectl/config.yaml.
func GetConfigPath() (string, error) {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".rulectl", "config.yaml"), nil
}

// LoadConfig loads the configuration from file
func LoadConfig() (*Config, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// Return empty config if file doesn't exist
			return &Config{
				DefaultProfile: "local",
				Profiles:       make(map[string]Profile),
			}, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if cfg.Profiles == nil {
		cfg.Profiles = make(map[string]Profile)
	}
	return &cfg, nil
}

// SaveConfig saves the configuration to file
func SaveConfig(cfg *Config) error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// ResolveProfile returns the effective server settings.
// Priority: command flags > environment variables > config file.
// The config file is only required when neither flags nor environment
// supply a base URL.
func ResolveProfile(profileName, baseURLFlag, apiKeyFlag string) (*Profile, error) {
	var p Profile

	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	name := profileName
	if name == "" {
		name = cfg.DefaultProfile
	}
	fromFile, ok := cfg.Profiles[name]
	if ok {
		p = fromFile
	} else if profileName != "" {
		return nil, fmt.Errorf("profile '%s' not found in config", profileName)
	}

	if v := os.Getenv(EnvBaseURL); v != "" {
		p.BaseURL = v
	}
	if v := os.Getenv(EnvAPIKey); v != "" {
		p.APIKey = v
	}
	if baseURLFlag != "" {
		p.BaseURL = baseURLFlag
	}
	if apiKeyFlag != "" {
		p.APIKey = apiKeyFlag
	}

	if p.BaseURL == "" {
		return nil, fmt.Errorf("no server configured: pass --base-url, set %s, or run 'rulectl config init'", EnvBaseURL)
	}
	return &p, nil
}

// InitConfig writes a config file with a single local profile and
// returns its path. An existing file is left alone unless force is set.
func InitConfig(apiKey string, force bool) (string, error) {
	path, err := GetConfigPath()
	if err != nil {
		return "", err
	}
	if !force {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
		}
	}
	cfg := &Config{
		DefaultProfile: "local",
		Profiles: map[string]Profile{
			"local": {BaseURL: "http://localhost:8080", APIKey: apiKey},
		},
	}
	return path, SaveConfig(cfg)
}
