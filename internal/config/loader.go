package config

import (
	"errors"
	"io/fs"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} patterns in strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR} patterns with environment variable values.
// Unset variables are left unchanged.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

// expandEnvFields processes environment variable references in fields that
// commonly differ per machine, so they can be stored as ${ENV_VAR}.
func expandEnvFields(cfg *Config) {
	cfg.API.BaseURL = expandEnvVars(cfg.API.BaseURL)
	cfg.Store.Path = expandEnvVars(cfg.Store.Path)
	cfg.Backend.Database = expandEnvVars(cfg.Backend.Database)
	cfg.Backend.RasaURL = expandEnvVars(cfg.Backend.RasaURL)
	cfg.Logging.File = expandEnvVars(cfg.Logging.File)
}

// LoadDotEnv loads KEY=value files into the process environment. Variables
// already set are not overridden, and missing files are skipped. Every file
// is attempted; the returned error combines the failures.
func LoadDotEnv(files ...string) ([]string, error) {
	var loaded []string
	var result *multierror.Error
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			result = multierror.Append(result, &ConfigError{Message: "failed to load " + f + ": " + err.Error()})
			continue
		}
		loaded = append(loaded, f)
	}
	return loaded, result.ErrorOrNil()
}

// Load reads the config file, applies environment overrides, and returns
// a merged Config. Missing files produce defaults only.
func Load(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(&cfg)
			return cfg, nil
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	expandEnvFields(&cfg)
	return cfg, nil
}

// LoadRaw reads the config file into a generic map for path-based access.
func LoadRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, err
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

// SaveRaw writes a generic map back to a YAML config file.
func SaveRaw(path string, raw map[string]any) error {
	data, err := yaml.Marshal(raw)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// applyDefaults fills zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = DefaultBaseURL
	}
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = "sqlite"
	}
	if cfg.Backend.Port == 0 {
		cfg.Backend.Port = DefaultBackendPort
	}
	if cfg.Backend.Bind == "" {
		cfg.Backend.Bind = "loopback"
	}
	if cfg.Backend.RasaTimeout == 0 {
		cfg.Backend.RasaTimeout = DefaultRasaTimeout
	}
	if cfg.Backend.TokenTTLHours == 0 {
		cfg.Backend.TokenTTLHours = DefaultTokenTTLHours
	}
	if cfg.Backend.BcryptCost == 0 {
		cfg.Backend.BcryptCost = DefaultBcryptCost
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "warn"
	}
	if cfg.Logging.ConsoleStyle == "" {
		cfg.Logging.ConsoleStyle = "pretty"
	}
}

// applyEnvOverrides reads STUDYCHAT_* environment variables and overrides config values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("STUDYCHAT_API_URL"); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv("STUDYCHAT_API_TIMEOUT"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			cfg.API.Timeout = secs
		}
	}
	if v := os.Getenv("STUDYCHAT_STORE_DRIVER"); v != "" {
		cfg.Store.Driver = strings.ToLower(v)
	}
	if v := os.Getenv("STUDYCHAT_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("STUDYCHAT_BACKEND_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Backend.Port = port
		}
	}
	if v := os.Getenv("STUDYCHAT_BACKEND_BIND"); v != "" {
		cfg.Backend.Bind = v
	}
	if v := os.Getenv("STUDYCHAT_BACKEND_DATABASE"); v != "" {
		cfg.Backend.Database = v
	}
	if v := os.Getenv("STUDYCHAT_RASA_URL"); v != "" {
		cfg.Backend.RasaURL = v
	}
	if v := os.Getenv("STUDYCHAT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
}
