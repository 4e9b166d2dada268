package core

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// ServerConfig identifies the remote proxy server. Immutable input to the
// Proxy Process; all fields must be populated by whoever supplies the
// config — they are passed through to the helper binary unvalidated.
type ServerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	Method   string `yaml:"method"`
}

// HelperConfig holds the paths of the two helper binaries the mediator
// supervises.
type HelperConfig struct {
	ProxyBin  string `yaml:"proxy_bin"`
	TunnelBin string `yaml:"tunnel_bin"`
}

// RoutingConfig configures how the routing service is reached.
// Endpoint is a Named Pipe path on Windows and a unix socket path
// elsewhere; empty means the platform default.
type RoutingConfig struct {
	Endpoint string `yaml:"endpoint,omitempty"`
}

// Config is the top-level application configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Helpers HelperConfig  `yaml:"helpers"`
	Routing RoutingConfig `yaml:"routing,omitempty"`
	Logging LogConfig     `yaml:"logging,omitempty"`
}

// ConfigManager handles loading and saving configuration.
type ConfigManager struct {
	mu       sync.RWMutex
	config   Config
	filePath string
}

// NewConfigManager creates a config manager that reads from the given file.
func NewConfigManager(filePath string) *ConfigManager {
	return &ConfigManager{
		filePath: filePath,
	}
}

// defaultConfig returns an empty but valid configuration with helper
// binaries expected next to the executable.
func defaultConfig() Config {
	return Config{
		Helpers: HelperConfig{
			ProxyBin:  "ss-local",
			TunnelBin: "tun2socks",
		},
	}
}

// Load reads and parses the configuration from disk.
// If the config file does not exist, it creates one with default values.
func (cm *ConfigManager) Load() error {
	data, err := os.ReadFile(cm.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			Log.Infof("Core", "Config %s not found, creating default config", cm.filePath)
			cm.mu.Lock()
			cm.config = defaultConfig()
			cm.mu.Unlock()
			if saveErr := cm.Save(); saveErr != nil {
				return fmt.Errorf("[Core] failed to create default config: %w", saveErr)
			}
			return nil
		}
		return fmt.Errorf("[Core] failed to read config %s: %w", cm.filePath, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("[Core] failed to parse config: %w", err)
	}
	if cfg.Helpers.ProxyBin == "" {
		cfg.Helpers.ProxyBin = defaultConfig().Helpers.ProxyBin
	}
	if cfg.Helpers.TunnelBin == "" {
		cfg.Helpers.TunnelBin = defaultConfig().Helpers.TunnelBin
	}

	cm.mu.Lock()
	cm.config = cfg
	cm.mu.Unlock()

	return nil
}

// Save writes the current configuration to disk.
func (cm *ConfigManager) Save() error {
	cm.mu.RLock()
	data, err := yaml.Marshal(&cm.config)
	cm.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("[Core] failed to marshal config: %w", err)
	}

	if err := os.WriteFile(cm.filePath, data, 0600); err != nil {
		return fmt.Errorf("[Core] failed to write config %s: %w", cm.filePath, err)
	}

	return nil
}

// Get returns a copy of the current configuration.
func (cm *ConfigManager) Get() Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}
