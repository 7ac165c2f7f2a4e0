package config

import (
	"fmt"
	"net/url"
	"slices"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue

	// API validation
	if cfg.API.BaseURL != "" {
		if u, err := url.Parse(cfg.API.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			issues = append(issues, ValidationIssue{
				Path:    "api.baseUrl",
				Message: fmt.Sprintf("must be an http(s) URL, got %q", cfg.API.BaseURL),
			})
		}
	}
	if cfg.API.Timeout < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "api.timeout",
			Message: fmt.Sprintf("must not be negative, got %d", cfg.API.Timeout),
		})
	}

	// Store validation
	validDrivers := []string{"sqlite", "memory"}
	if cfg.Store.Driver != "" && !slices.Contains(validDrivers, cfg.Store.Driver) {
		issues = append(issues, ValidationIssue{
			Path:    "store.driver",
			Message: fmt.Sprintf("must be one of %v, got %q", validDrivers, cfg.Store.Driver),
		})
	}

	// Backend validation
	if cfg.Backend.Port < 0 || cfg.Backend.Port > 65535 {
		issues = append(issues, ValidationIssue{
			Path:    "backend.port",
			Message: fmt.Sprintf("port must be 0-65535, got %d", cfg.Backend.Port),
		})
	}

	validBinds := []string{"loopback", "lan", "custom"}
	if cfg.Backend.Bind != "" && !slices.Contains(validBinds, cfg.Backend.Bind) {
		issues = append(issues, ValidationIssue{
			Path:    "backend.bind",
			Message: fmt.Sprintf("must be one of %v, got %q", validBinds, cfg.Backend.Bind),
		})
	}
	if cfg.Backend.Bind == "custom" && cfg.Backend.CustomBindHost == "" {
		issues = append(issues, ValidationIssue{
			Path:    "backend.customBindHost",
			Message: "required when bind is custom",
		})
	}

	if cfg.Backend.RasaURL != "" {
		if u, err := url.Parse(cfg.Backend.RasaURL); err != nil || u.Scheme == "" || u.Host == "" {
			issues = append(issues, ValidationIssue{
				Path:    "backend.rasaUrl",
				Message: fmt.Sprintf("must be an absolute URL, got %q", cfg.Backend.RasaURL),
			})
		}
	}
	if cfg.Backend.RasaTimeout < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "backend.rasaTimeout",
			Message: fmt.Sprintf("must not be negative, got %d", cfg.Backend.RasaTimeout),
		})
	}
	if cfg.Backend.TokenTTLHours < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "backend.tokenTtlHours",
			Message: fmt.Sprintf("must not be negative, got %d", cfg.Backend.TokenTTLHours),
		})
	}
	// bcrypt accepts costs 4 through 31
	if cfg.Backend.BcryptCost != 0 && (cfg.Backend.BcryptCost < 4 || cfg.Backend.BcryptCost > 31) {
		issues = append(issues, ValidationIssue{
			Path:    "backend.bcryptCost",
			Message: fmt.Sprintf("must be 4-31, got %d", cfg.Backend.BcryptCost),
		})
	}

	// Logging validation
	validLogLevels := []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"}
	if cfg.Logging.Level != "" && !slices.Contains(validLogLevels, cfg.Logging.Level) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.level",
			Message: fmt.Sprintf("must be one of %v, got %q", validLogLevels, cfg.Logging.Level),
		})
	}

	validConsoleStyles := []string{"pretty", "json"}
	if cfg.Logging.ConsoleStyle != "" && !slices.Contains(validConsoleStyles, cfg.Logging.ConsoleStyle) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.consoleStyle",
			Message: fmt.Sprintf("must be one of %v, got %q", validConsoleStyles, cfg.Logging.ConsoleStyle),
		})
	}

	return issues
}
