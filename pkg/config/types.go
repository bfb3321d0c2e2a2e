// Package config defines the gateway runtime configuration.
package config

import "time"

// Config is the top-level runtime configuration for the gateway daemon.
type Config struct {
	GRPC    GRPCConfig    `yaml:"grpc"`
	SSE     SSEConfig     `yaml:"sse"`
	Stdio   StdioConfig   `yaml:"stdio"`
	Logging LoggingConfig `yaml:"logging"`
	API     APIConfig     `yaml:"api"`
	LLM     LLMConfig     `yaml:"llm"`

	// StorePath is the SQLite database holding registered servers.
	StorePath string `yaml:"storePath"`
	// SpecFile is an optional declarative server list kept in sync at runtime.
	SpecFile string `yaml:"specFile"`
}

// GRPCConfig configures the gRPC facade.
type GRPCConfig struct {
	// Host is the bind address. Empty binds all interfaces.
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// TimeoutSeconds is the default per-call deadline applied when a caller
	// sends no deadline of its own.
	TimeoutSeconds int `yaml:"timeoutSeconds"`
}

// SSEConfig tunes the SSE transport driver.
type SSEConfig struct {
	// HandshakeTimeoutSeconds bounds the wait for the endpoint announcement.
	HandshakeTimeoutSeconds int `yaml:"handshakeTimeoutSeconds"`
}

// StdioConfig tunes the stdio transport driver.
type StdioConfig struct {
	// StartupTimeoutSeconds bounds child process spawn plus handshake.
	StartupTimeoutSeconds int `yaml:"startupTimeoutSeconds"`
}

// LoggingConfig configures structured logging output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	// File, when set, logs to a size-rotated file instead of stderr.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
	// BufferSize is the in-memory entry count served by the logs API.
	BufferSize int `yaml:"bufferSize"`
}

// APIConfig configures the operational HTTP API.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	// Token guards mutating and log-reading endpoints. Empty disables auth.
	Token string `yaml:"token"`
}

// LLMConfig configures the model used by the chat dispatch loop.
type LLMConfig struct {
	BaseURL     string  `yaml:"baseURL"`
	APIKey      string  `yaml:"apiKey"`
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature"`
	MaxTokens   int     `yaml:"maxTokens"`
}

// SetDefaults fills zero-valued fields with production defaults.
func (c *Config) SetDefaults() {
	if c.GRPC.Port == 0 {
		c.GRPC.Port = 9090
	}
	if c.GRPC.TimeoutSeconds == 0 {
		c.GRPC.TimeoutSeconds = 120
	}
	if c.SSE.HandshakeTimeoutSeconds == 0 {
		c.SSE.HandshakeTimeoutSeconds = 15
	}
	if c.Stdio.StartupTimeoutSeconds == 0 {
		c.Stdio.StartupTimeoutSeconds = 30
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.BufferSize == 0 {
		c.Logging.BufferSize = 1000
	}
	if c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.StorePath == "" {
		c.StorePath = "mcpgate.db"
	}
}

// GRPCTimeout returns the configured default call deadline.
func (c *Config) GRPCTimeout() time.Duration {
	return time.Duration(c.GRPC.TimeoutSeconds) * time.Second
}

// SSEHandshakeTimeout returns the endpoint announcement deadline.
func (c *Config) SSEHandshakeTimeout() time.Duration {
	return time.Duration(c.SSE.HandshakeTimeoutSeconds) * time.Second
}

// StdioStartupTimeout returns the child startup deadline.
func (c *Config) StdioStartupTimeout() time.Duration {
	return time.Duration(c.Stdio.StartupTimeoutSeconds) * time.Second
}
