package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ssargent/avrokit/pkg/codec"
	"github.com/ssargent/avrokit/pkg/container"
)

// Config represents the avrokit configuration
type Config struct {
	Codec      string  `yaml:"codec"`
	BlockSize  int     `yaml:"block_size"`
	BlockCount int     `yaml:"block_count"`
	ChunkSize  int     `yaml:"chunk_size"`
	Workers    int     `yaml:"workers"`
	Store      Store   `yaml:"store"`
	Metrics    Metrics `yaml:"metrics"`
	Logging    Logging `yaml:"logging"`
}

// Store contains datum store configuration
type Store struct {
	Dir  string `yaml:"dir"`
	Sync bool   `yaml:"sync"`
}

// Metrics contains metrics export configuration
type Metrics struct {
	Textfile string `yaml:"textfile"`
}

// Logging contains logging configuration
type Logging struct {
	Level string `yaml:"level"`
}

// Log levels accepted by Logging.Level
var Levels = []string{"debug", "info", "warn", "error"}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Codec:     codec.Null,
		BlockSize: container.DefaultBlockSize,
		ChunkSize: container.DefaultChunkSize,
		Workers:   4,
		Store: Store{
			Dir:  "./data",
			Sync: true,
		},
		Logging: Logging{
			Level: "info",
		},
	}
}

// LoadConfig loads configuration from the specified path. Keys missing from
// the file keep their default values.
func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", configPath)
	}

	if !filepath.IsAbs(configPath) {
		absPath, err := filepath.Abs(configPath)
		if err != nil {
			return nil, fmt.Errorf("invalid config path: %w", err)
		}
		configPath = absPath
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveConfig saves the configuration to the specified path
func SaveConfig(config *Config, configPath string) error {
	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks the configuration against the codecs registered in reg.
// A nil reg means codec.Default().
func (c *Config) Validate(reg *codec.Registry) error {
	if reg == nil {
		reg = codec.Default()
	}
	if _, err := reg.Get(c.Codec); err != nil {
		return fmt.Errorf("invalid codec: %w", err)
	}
	if c.BlockSize < 0 {
		return fmt.Errorf("block_size must not be negative: %d", c.BlockSize)
	}
	if c.BlockCount < 0 {
		return fmt.Errorf("block_count must not be negative: %d", c.BlockCount)
	}
	if c.ChunkSize < 0 {
		return fmt.Errorf("chunk_size must not be negative: %d", c.ChunkSize)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative: %d", c.Workers)
	}

	level := strings.ToLower(c.Logging.Level)
	if level == "" {
		return nil
	}
	for _, l := range Levels {
		if level == l {
			return nil
		}
	}
	return fmt.Errorf("unknown log level %q", c.Logging.Level)
}

// EncoderConfig returns the container encoder settings.
func (c *Config) EncoderConfig() container.EncoderConfig {
	return container.EncoderConfig{
		Codec:      c.Codec,
		BlockSize:  c.BlockSize,
		BlockCount: c.BlockCount,
	}
}

// ReaderConfig returns the container reader settings.
func (c *Config) ReaderConfig() container.ReaderConfig {
	return container.ReaderConfig{ChunkSize: c.ChunkSize}
}

// GetDefaultConfigPath returns the default configuration path for the current platform
func GetDefaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./avrokit.yaml"
	}

	// For Linux/macOS, use ~/.config/avrokit/config.yaml
	configDir := filepath.Join(homeDir, ".config", "avrokit")
	return filepath.Join(configDir, "config.yaml")
}

// ConfigExists checks if a configuration file exists
func ConfigExists(configPath string) bool {
	_, err := os.Stat(configPath)
	return !os.IsNotExist(err)
}
