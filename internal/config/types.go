package config

// Config is the root configuration for studychat.
type Config struct {
	API     APIConfig     `yaml:"api,omitempty"`
	Store   StoreConfig   `yaml:"store,omitempty"`
	Backend BackendConfig `yaml:"backend,omitempty"`
	Logging LoggingConfig `yaml:"logging,omitempty"`
}

// APIConfig points the client at a chatbot backend.
type APIConfig struct {
	BaseURL string `yaml:"baseUrl,omitempty"`
	Timeout int    `yaml:"timeout,omitempty"` // seconds; 0 means no timeout
}

// StoreConfig selects where the credential and active session are kept.
type StoreConfig struct {
	Driver string `yaml:"driver,omitempty"` // "sqlite" | "memory"
	Path   string `yaml:"path,omitempty"`   // defaults to <home>/data/studychat.db
}

// BackendConfig controls the reference backend started by `serve`.
type BackendConfig struct {
	Port           int      `yaml:"port,omitempty"`
	Bind           string   `yaml:"bind,omitempty"` // "loopback" | "lan" | "custom"
	CustomBindHost string   `yaml:"customBindHost,omitempty"`
	Database       string   `yaml:"database,omitempty"` // defaults to <home>/data/backend.db
	RasaURL        string   `yaml:"rasaUrl,omitempty"`
	RasaTimeout    int      `yaml:"rasaTimeout,omitempty"`  // seconds
	StaticAnswer   string   `yaml:"staticAnswer,omitempty"` // answer used when Rasa has none
	TokenTTLHours  int      `yaml:"tokenTtlHours,omitempty"`
	BcryptCost     int      `yaml:"bcryptCost,omitempty"`
	AllowedOrigins []string `yaml:"allowedOrigins,omitempty"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level        string `yaml:"level,omitempty"` // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	File         string `yaml:"file,omitempty"`
	ConsoleStyle string `yaml:"consoleStyle,omitempty"` // "pretty" | "json"
}
