package config

import (
	"fmt"
	"strings"
)

// ValidationError is one bad field in the config file.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return "validation errors:\n  - " + strings.Join(msgs, "\n  - ")
}

// Validate checks a defaulted config for errors.
func Validate(c *Config) error {
	var errs ValidationErrors

	if c.GRPC.Port <= 0 || c.GRPC.Port > 65535 {
		errs = append(errs, ValidationError{"grpc.port", "must be between 1 and 65535"})
	}
	if c.GRPC.TimeoutSeconds <= 0 {
		errs = append(errs, ValidationError{"grpc.timeoutSeconds", "must be a positive integer"})
	}
	if c.SSE.HandshakeTimeoutSeconds <= 0 {
		errs = append(errs, ValidationError{"sse.handshakeTimeoutSeconds", "must be a positive integer"})
	}
	if c.Stdio.StartupTimeoutSeconds <= 0 {
		errs = append(errs, ValidationError{"stdio.startupTimeoutSeconds", "must be a positive integer"})
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, ValidationError{"logging.level", "must be 'debug', 'info', 'warn', or 'error'"})
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "text", "pretty":
	default:
		errs = append(errs, ValidationError{"logging.format", "must be 'json' or 'text'"})
	}

	if c.API.Enabled {
		if c.API.Port <= 0 || c.API.Port > 65535 {
			errs = append(errs, ValidationError{"api.port", "must be between 1 and 65535"})
		}
		if c.API.Port == c.GRPC.Port {
			errs = append(errs, ValidationError{"api.port", "conflicts with grpc.port"})
		}
	}

	if c.LLM.BaseURL != "" && c.LLM.Model == "" {
		errs = append(errs, ValidationError{"llm.model", "is required when llm.baseURL is set"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
