package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Verbose and Debug are set by the root command's persistent flags
var (
	Verbose bool
	Debug   bool
)

// DebugLog prints a message only when debug logging is enabled
func DebugLog(format string, args ...interface{}) {
	if Debug {
		log.Printf("[DEBUG] "+format+"\n", args...)
	}
}

// VerboseLog prints a message when verbose or debug output is enabled
func VerboseLog(format string, args ...interface{}) {
	if Verbose || Debug {
		log.Printf("[INFO] "+format+"\n", args...)
	}
}

// ModelSpec describes one named model in the configuration file
type ModelSpec struct {
	Provider          string                 `yaml:"provider"`
	Model             string                 `yaml:"model"`
	APIKey            string                 `yaml:"api_key,omitempty"`
	APIKeyEnv         string                 `yaml:"api_key_env,omitempty"`
	BaseURL           string                 `yaml:"base_url,omitempty"`
	APIVersion        string                 `yaml:"api_version,omitempty"`
	Region            string                 `yaml:"region,omitempty"`
	Temperature       *float64               `yaml:"temperature,omitempty"`
	MaxTokens         int                    `yaml:"max_tokens,omitempty"`
	TopP              *float64               `yaml:"top_p,omitempty"`
	N                 int                    `yaml:"n,omitempty"`
	BatchSize         int                    `yaml:"batch_size,omitempty"`
	Stop              []string               `yaml:"stop,omitempty"`
	UseCache          bool                   `yaml:"use_cache"`
	ExtraArgs         map[string]interface{} `yaml:"extra_args,omitempty"`
	RequestsPerSecond float64                `yaml:"requests_per_second,omitempty"`
	// Responses is only read by the fake provider
	Responses map[string]string `yaml:"responses,omitempty"`
}

// CacheConfig selects and configures the response cache backend
type CacheConfig struct {
	Backend  string        `yaml:"backend"` // memory, redis, postgres, sqlite or none
	Addr     string        `yaml:"addr,omitempty"`
	Password string        `yaml:"password,omitempty"`
	DB       int           `yaml:"db,omitempty"`
	DSN      string        `yaml:"dsn,omitempty"`
	TTL      time.Duration `yaml:"ttl,omitempty"`
}

// Config is the top level configuration file
type Config struct {
	DefaultModel string               `yaml:"default_model,omitempty"`
	Models       map[string]ModelSpec `yaml:"models"`
	Cache        CacheConfig          `yaml:"cache"`
	Server       ServerConfig         `yaml:"server"`
}

// defaultEnvKeys maps a provider to the environment variable holding its API key
var defaultEnvKeys = map[string]string{
	"openai":       "OPENAI_API_KEY",
	"openai-chat":  "OPENAI_API_KEY",
	"azure-openai": "AZURE_OPENAI_API_KEY",
	"google":       "GEMINI_API_KEY",
	"deepseek":     "DEEPSEEK_API_KEY",
	"xai":          "XAI_API_KEY",
	"moonshot":     "MOONSHOT_API_KEY",
}

// GetConfigPath returns the configuration file path from PROMPTCHAIN_CONFIG or the default location
func GetConfigPath() string {
	if p := os.Getenv("PROMPTCHAIN_CONFIG"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "promptchain.yaml"
	}
	return filepath.Join(home, ".promptchain", "config.yaml")
}

// DefaultConfig returns a configuration with an in-memory cache and no models
func DefaultConfig() *Config {
	return &Config{
		Models: map[string]ModelSpec{},
		Cache:  CacheConfig{Backend: "memory"},
		Server: ServerConfig{Port: 8088},
	}
}

// LoadConfig reads the configuration file at path. A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			DebugLog("Configuration file %s not found, using defaults", path)
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if cfg.Models == nil {
		cfg.Models = map[string]ModelSpec{}
	}
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = "memory"
	}
	if cfg.Server.ChainsDir, err = ExpandPath(cfg.Server.ChainsDir); err != nil {
		return nil, fmt.Errorf("invalid chainsDir: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	DebugLog("Loaded configuration with %d models, cache backend %s", len(cfg.Models), cfg.Cache.Backend)
	return cfg, nil
}

// Validate checks the configuration for values that can never work
func (c *Config) Validate() error {
	switch c.Cache.Backend {
	case "memory", "none":
	case "redis":
		if c.Cache.Addr == "" {
			return fmt.Errorf("cache backend redis requires addr")
		}
	case "postgres", "sqlite":
		if c.Cache.DSN == "" {
			return fmt.Errorf("cache backend %s requires dsn", c.Cache.Backend)
		}
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}

	for name, spec := range c.Models {
		if spec.Provider == "" {
			return fmt.Errorf("model %q has no provider", name)
		}
		if spec.Provider != "fake" && spec.Model == "" {
			return fmt.Errorf("model %q has no model name", name)
		}
	}
	if c.DefaultModel != "" {
		if _, ok := c.Models[c.DefaultModel]; !ok {
			return fmt.Errorf("default_model %q is not defined under models", c.DefaultModel)
		}
	}
	return nil
}

// GetModel returns the named model spec, falling back to the default model when name is empty
func (c *Config) GetModel(name string) (ModelSpec, error) {
	if name == "" {
		name = c.DefaultModel
	}
	if name == "" {
		return ModelSpec{}, fmt.Errorf("no model specified and no default_model configured")
	}
	spec, ok := c.Models[name]
	if !ok {
		return ModelSpec{}, fmt.Errorf("model %q not found in configuration", name)
	}
	return spec, nil
}

// ResolveAPIKey returns the API key for a model spec, reading the environment when
// the key is not written in the file.
func (s ModelSpec) ResolveAPIKey() string {
	if s.APIKey != "" {
		return s.APIKey
	}
	if s.APIKeyEnv != "" {
		return os.Getenv(s.APIKeyEnv)
	}
	if env, ok := defaultEnvKeys[strings.ToLower(s.Provider)]; ok {
		return os.Getenv(env)
	}
	return ""
}

// SaveConfig writes cfg to path, creating the directory when needed
func SaveConfig(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	// the file may hold API keys
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// ExpandPath expands environment variables and a leading ~ to the user's home directory
func ExpandPath(path string) (string, error) {
	if path == "" {
		return path, nil
	}
	path = os.ExpandEnv(path)
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
	}
	return filepath.Clean(path), nil
}
