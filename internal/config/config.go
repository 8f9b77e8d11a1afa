// Package config loads and validates the proxy configuration.
//
// DESIGN: Layered loading, lowest precedence first:
//  1. compiled-in defaults (defaults.go)
//  2. optional toolgate.yaml in the working directory
//  3. optional .env file (loaded into the environment)
//  4. TOOLGATE_* environment variables
//
// Validation happens once after all layers are applied.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ConfigFileName is looked up in the working directory.
const ConfigFileName = "toolgate.yaml"

// Config is the resolved proxy configuration.
type Config struct {
	ListenPort int       `yaml:"listenPort"`
	OllamaHost string    `yaml:"ollamaHost"`
	OllamaPort int       `yaml:"ollamaPort"`
	Verbosity  Verbosity `yaml:"verbosity"`
	Workers    int       `yaml:"workers"`

	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// TelemetryConfig controls event recording.
type TelemetryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// Default returns the compiled-in configuration.
func Default() Config {
	return Config{
		ListenPort: DefaultListenPort,
		OllamaHost: DefaultOllamaHost,
		OllamaPort: DefaultOllamaPort,
		Verbosity:  Warning,
		Workers:    DefaultWorkerCount,
		Telemetry: TelemetryConfig{
			Enabled: true,
			Dir:     DefaultTelemetryDir,
		},
	}
}

// Load resolves the configuration from all layers and validates it.
func Load() (Config, error) {
	cfg := Default()

	if data, err := os.ReadFile(ConfigFileName); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", ConfigFileName, err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, fmt.Errorf("read %s: %w", ConfigFileName, err)
	}

	// .env never overrides variables already set in the environment.
	_ = godotenv.Load()

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v, ok := os.LookupEnv("TOOLGATE_OLLAMA_HOST"); ok {
		cfg.OllamaHost = v
	}
	if err := envInt("TOOLGATE_OLLAMA_PORT", &cfg.OllamaPort); err != nil {
		return err
	}
	if err := envInt("TOOLGATE_LISTEN_PORT", &cfg.ListenPort); err != nil {
		return err
	}
	if err := envInt("TOOLGATE_WORKERS", &cfg.Workers); err != nil {
		return err
	}
	if v, ok := os.LookupEnv("TOOLGATE_VERBOSITY"); ok {
		parsed, err := ParseVerbosity(v)
		if err != nil {
			return err
		}
		cfg.Verbosity = parsed
	}
	if v, ok := os.LookupEnv("TOOLGATE_TELEMETRY_DIR"); ok {
		cfg.Telemetry.Dir = v
	}
	if v, ok := os.LookupEnv("TOOLGATE_TELEMETRY_ENABLED"); ok {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parse %s: %w", "TOOLGATE_TELEMETRY_ENABLED", err)
		}
		cfg.Telemetry.Enabled = enabled
	}
	return nil
}

func envInt(name string, dst *int) error {
	v, ok := os.LookupEnv(name)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	*dst = n
	return nil
}

// Validate checks host charset and port ranges.
func (c Config) Validate() error {
	if c.OllamaHost == "" {
		return fmt.Errorf("ollamaHost must not be empty")
	}
	for _, r := range c.OllamaHost {
		if !isHostRune(r) {
			return fmt.Errorf("ollamaHost %q: invalid character %q", c.OllamaHost, r)
		}
	}
	if c.OllamaPort < 1 || c.OllamaPort > 65535 {
		return fmt.Errorf("ollamaPort %d out of range [1, 65535]", c.OllamaPort)
	}
	if c.ListenPort < 1 || c.ListenPort > 65535 {
		return fmt.Errorf("listenPort %d out of range [1, 65535]", c.ListenPort)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	return nil
}

func isHostRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '.' || r == '-':
		return true
	}
	return false
}

// UpstreamBaseURL returns the upstream server's base URL.
func (c Config) UpstreamBaseURL() string {
	return fmt.Sprintf("http://%s:%d", c.OllamaHost, c.OllamaPort)
}
