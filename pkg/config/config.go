package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultClientName   = "probe"
	defaultVersion      = "v0.0.1"
	defaultLogLevel     = "info"
	defaultTimeout      = 15 * time.Second
	defaultConcurrency  = 4
	defaultProvidersDir = "providers"
)

type ProbeConfig struct {
	Client    ClientConfig     `yaml:"client"`
	Discovery DiscoveryConfig  `yaml:"discovery"`
	LogLevel  string           `yaml:"log_level"`
	Policy    PolicyConfig     `yaml:"policy"`
	Providers []ProviderConfig `yaml:"providers"`
}

type Config = ProbeConfig

type ClientConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	// ProtocolVersion empty means the latest version known to mcp-go.
	ProtocolVersion string `yaml:"protocol_version"`
}

type DiscoveryConfig struct {
	Timeout      time.Duration `yaml:"timeout"`
	Concurrency  int           `yaml:"concurrency"`
	ProvidersDir string        `yaml:"providers_dir"`
}

type PolicyConfig struct {
	AllowProviders []string `yaml:"allow_providers"`
	DenyProviders  []string `yaml:"deny_providers"`
	AllowTools     []string `yaml:"allow_tools"`
	DenyTools      []string `yaml:"deny_tools"`
	ConfirmTools   []string `yaml:"confirm_tools"`
	SafeMode       bool     `yaml:"safe_mode"`
}

// ProviderConfig is one provider declared inline; definition files share
// the same shape.
type ProviderConfig struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description"`
	Command     string            `yaml:"command"`
	Args        []string          `yaml:"args"`
	Env         map[string]string `yaml:"env"`
	Timeout     time.Duration     `yaml:"timeout"`
	Disabled    bool              `yaml:"disabled"`
}

func DefaultConfig() *ProbeConfig {
	return &ProbeConfig{
		Client: ClientConfig{
			Name:    defaultClientName,
			Version: defaultVersion,
		},
		Discovery: DiscoveryConfig{
			Timeout:      defaultTimeout,
			Concurrency:  defaultConcurrency,
			ProvidersDir: defaultProvidersDir,
		},
		LogLevel: defaultLogLevel,
	}
}

func LoadConfig(path string) (*ProbeConfig, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	// A failed decode may leave cfg half-written, so fall back to clean defaults.
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return DefaultConfig(), err
	}

	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *ProbeConfig) {
	if cfg.Client.Name == "" {
		cfg.Client.Name = defaultClientName
	}
	if cfg.Client.Version == "" {
		cfg.Client.Version = defaultVersion
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaultLogLevel
	}
	if cfg.Discovery.Timeout <= 0 {
		cfg.Discovery.Timeout = defaultTimeout
	}
	if cfg.Discovery.Concurrency <= 0 {
		cfg.Discovery.Concurrency = defaultConcurrency
	}
	if cfg.Discovery.ProvidersDir == "" {
		cfg.Discovery.ProvidersDir = defaultProvidersDir
	}
}
