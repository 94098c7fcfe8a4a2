package infra

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SecretConfig matches the structure of secrets/*.yaml
type SecretConfig struct {
	API struct {
		BitMEX struct {
			APIKey    string `yaml:"api_key"`
			APISecret string `yaml:"api_secret"`
		} `yaml:"bitmex"`
	} `yaml:"api"`
}

// LoadSecretConfig loads API keys from a separate yaml file.
// It returns error if file is missing (Fail Fast).
func LoadSecretConfig(path string) (*SecretConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secret config: %w", err)
	}

	var cfg SecretConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse secret config: %w", err)
	}

	return &cfg, nil
}

// Apply copies non-empty credentials into cfg. Environment variables still win,
// so callers apply secrets before overrideWithEnv runs again.
func (s *SecretConfig) Apply(cfg *Config) {
	if s.API.BitMEX.APIKey != "" {
		cfg.Feed.APIKey = s.API.BitMEX.APIKey
	}
	if s.API.BitMEX.APISecret != "" {
		cfg.Feed.APISecret = s.API.BitMEX.APISecret
	}
	overrideWithEnv(cfg)
}
