package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads, parses, and validates a gateway config file. Missing fields
// take their defaults; string values may reference environment variables
// with $VAR or ${VAR}.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes config bytes, applies defaults, and validates.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	expandEnvVars(&cfg)
	cfg.SetDefaults()

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a config with every field at its default value.
func Default() *Config {
	var cfg Config
	cfg.SetDefaults()
	return &cfg
}

// expandEnvVars expands environment variables in string values. Secrets in
// particular are expected to arrive through the environment rather than the
// file itself.
func expandEnvVars(c *Config) {
	c.StorePath = os.ExpandEnv(c.StorePath)
	c.SpecFile = os.ExpandEnv(c.SpecFile)
	c.Logging.File = os.ExpandEnv(c.Logging.File)
	c.API.Token = os.ExpandEnv(c.API.Token)
	c.LLM.BaseURL = os.ExpandEnv(c.LLM.BaseURL)
	c.LLM.APIKey = os.ExpandEnv(c.LLM.APIKey)
	c.LLM.Model = os.ExpandEnv(c.LLM.Model)
}
