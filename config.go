package lucide

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config configures an Engine instance.
type Config struct {
	// Stream is the streaming channel used for sends.
	// Required.
	Stream StreamClient

	// Slot is the durable local storage backend.
	// Optional - when nil the engine keeps state in memory only.
	Slot Slot

	// Directory is the conversation listing/read/update service.
	// Optional - enables the server-authoritative mode and title sync.
	Directory DirectoryClient

	// UserID namespaces the local slot. Empty falls back to "anonymous".
	UserID string

	// Language is the response language requested on every send.
	// Defaults to "en".
	Language string

	// Tier is the response tier requested on every send.
	// Defaults to "standard".
	Tier string

	// Logger is the structured logger.
	// Optional - defaults to slog.Default().
	Logger *slog.Logger

	// Hooks receives status and error notifications.
	// Optional.
	Hooks *Hooks

	// Clock overrides the time source. Used by tests.
	Clock func() time.Time
}

// applyDefaults fills in default values for the config.
func (c Config) applyDefaults() Config {
	if c.Language == "" {
		c.Language = "en"
	}
	if c.Tier == "" {
		c.Tier = "standard"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Hooks == nil {
		c.Hooks = NewHooks()
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	return c
}

// validate checks that required config fields are set.
func (c Config) validate() error {
	if c.Stream == nil {
		return fmt.Errorf("invalid configuration: Stream is required")
	}
	return nil
}

// FileConfig is the YAML-serializable client configuration consumed by the
// platform bindings.
type FileConfig struct {
	// ServerURL is the assistant backend base URL.
	ServerURL string `yaml:"server_url"`

	// Transport selects the streaming binding: "sse" or "ws".
	Transport string `yaml:"transport"`

	// UserID namespaces local persistence.
	UserID string `yaml:"user_id"`

	// Language requested on every send.
	Language string `yaml:"language"`

	// Tier requested on every send.
	Tier string `yaml:"tier"`

	// StorePath is the local database file for conversation state.
	StorePath string `yaml:"store_path"`
}

// LoadConfigFile reads a FileConfig from a YAML file and applies defaults.
func LoadConfigFile(path string) (FileConfig, error) {
	var cfg FileConfig

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if cfg.ServerURL == "" {
		cfg.ServerURL = "http://localhost:8080"
	}
	if cfg.Transport == "" {
		cfg.Transport = "sse"
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	if cfg.Tier == "" {
		cfg.Tier = "standard"
	}
	if cfg.StorePath == "" {
		cfg.StorePath = "lucide.db"
	}
	return cfg, nil
}
