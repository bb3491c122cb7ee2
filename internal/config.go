package internal

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultListenAddr   = "127.0.0.1:8000"
	DefaultServerURL    = "http://127.0.0.1:8000"
	DefaultOpenAIURL    = "https://api.groq.com/openai/v1"
	DefaultOpenAIModel  = "llama-3.3-70b-versatile"
	DefaultProvider     = "openai"
	DefaultInitTimeout  = 30 * time.Second
	DefaultOutputLimit  = 8000
	DefaultTitleMaxRune = 50
)

// Config is the YAML configuration shared by the server and the console
type Config struct {
	Server      ServerConfig     `yaml:"server"`
	Client      ClientConfig     `yaml:"client"`
	Providers   ProvidersConfig  `yaml:"providers"`
	Connections []ConnectionSpec `yaml:"connections,omitempty"`
}

// ServerConfig configures `serve`
type ServerConfig struct {
	Listen       string        `yaml:"listen"`
	DatabasePath string        `yaml:"database_path,omitempty"`
	InitTimeout  time.Duration `yaml:"init_timeout"`
	OutputLimit  int           `yaml:"output_limit"`
}

// ClientConfig configures the console side
type ClientConfig struct {
	ServerURL string `yaml:"server_url"`
}

// ProvidersConfig selects and configures model providers
type ProvidersConfig struct {
	Active string       `yaml:"active"`
	OpenAI OpenAIConfig `yaml:"openai"`
}

// OpenAIConfig points at any OpenAI-compatible chat completions endpoint
type OpenAIConfig struct {
	BaseURL     string  `yaml:"base_url"`
	APIKey      string  `yaml:"api_key,omitempty"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// ConnectionSpec is a tool server the server connects to on startup
type ConnectionSpec struct {
	ID     string        `yaml:"id"`
	Target string        `yaml:"target"`
	Type   TransportType `yaml:"type"`
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:      DefaultListenAddr,
			InitTimeout: DefaultInitTimeout,
			OutputLimit: DefaultOutputLimit,
		},
		Client: ClientConfig{ServerURL: DefaultServerURL},
		Providers: ProvidersConfig{
			Active: DefaultProvider,
			OpenAI: OpenAIConfig{
				BaseURL:     DefaultOpenAIURL,
				Model:       DefaultOpenAIModel,
				Temperature: 0.7,
				MaxTokens:   2048,
			},
		},
	}
}

// LoadConfig reads path over the defaults and applies environment overrides.
// A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			LogDebug("No config file at %s, using defaults", path)
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to unmarshal config %s: %w", path, err)
			}
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.Providers.OpenAI.APIKey = v
	}
	// GROQ_API_KEY wins since the default endpoint is Groq's
	if v := os.Getenv("GROQ_API_KEY"); v != "" {
		c.Providers.OpenAI.APIKey = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		c.Providers.OpenAI.BaseURL = v
	}
	if v := os.Getenv("STATION_SERVER"); v != "" {
		c.Client.ServerURL = v
	}
	if v := os.Getenv("STATION_PROVIDER"); v != "" {
		c.Providers.Active = v
	}
}

// Validate checks values that would otherwise fail late
func (c *Config) Validate() error {
	if c.Server.OutputLimit <= 0 {
		return fmt.Errorf("server.output_limit must be positive, got %d", c.Server.OutputLimit)
	}
	if c.Server.InitTimeout <= 0 {
		return fmt.Errorf("server.init_timeout must be positive, got %s", c.Server.InitTimeout)
	}
	seen := make(map[string]bool)
	for _, spec := range c.Connections {
		if spec.ID == "" || spec.Target == "" {
			return fmt.Errorf("connection entries need id and target")
		}
		if seen[spec.ID] {
			return fmt.Errorf("duplicate connection id %q", spec.ID)
		}
		seen[spec.ID] = true
		if spec.Type != "" {
			if _, err := ParseTransportType(string(spec.Type)); err != nil {
				return fmt.Errorf("connection %s: %w", spec.ID, err)
			}
		}
	}
	return nil
}

// Save writes the config as YAML, leaving out secrets
func (c *Config) Save(path string) error {
	out := *c
	out.Providers.OpenAI.APIKey = ""
	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return writeFileAtomic(path, data)
}
