package config

import "fmt"

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

const (
	DefaultBaseURL       = "http://127.0.0.1:5000"
	DefaultBackendPort   = 5000
	DefaultRasaTimeout   = 10
	DefaultTokenTTLHours = 7 * 24
	DefaultBcryptCost    = 10
)

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	return Config{
		API: APIConfig{
			BaseURL: DefaultBaseURL,
		},
		Store: StoreConfig{
			Driver: "sqlite",
		},
		Backend: BackendConfig{
			Port:          DefaultBackendPort,
			Bind:          "loopback",
			RasaTimeout:   DefaultRasaTimeout,
			TokenTTLHours: DefaultTokenTTLHours,
			BcryptCost:    DefaultBcryptCost,
		},
		Logging: LoggingConfig{
			Level:        "warn",
			ConsoleStyle: "pretty",
		},
	}
}
