package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/ssargent/avrokit/pkg/codec"
	"github.com/ssargent/avrokit/pkg/container"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, "null", config.Codec)
	assert.Equal(t, 64*1024, config.BlockSize)
	assert.Equal(t, 0, config.BlockCount)
	assert.Equal(t, 64*1024, config.ChunkSize)
	assert.Equal(t, 4, config.Workers)
	assert.Equal(t, "./data", config.Store.Dir)
	assert.True(t, config.Store.Sync)
	assert.Empty(t, config.Metrics.Textfile)
	assert.Equal(t, "info", config.Logging.Level)
	assert.NoError(t, config.Validate(nil))
}

func TestLoadConfig(t *testing.T) {
	t.Run("load existing config", func(t *testing.T) {
		tmpDir, err := os.MkdirTemp("", "avrokit_config_test")
		require.NoError(t, err)
		defer os.RemoveAll(tmpDir)

		configPath := filepath.Join(tmpDir, "config.yaml")
		expectedConfig := &Config{
			Codec:      "zstandard",
			BlockSize:  1 << 20,
			BlockCount: 500,
			ChunkSize:  4096,
			Workers:    8,
			Store: Store{
				Dir:  "/custom/data",
				Sync: false,
			},
			Metrics: Metrics{
				Textfile: "/var/lib/node_exporter/avrokit.prom",
			},
			Logging: Logging{
				Level: "debug",
			},
		}

		err = SaveConfig(expectedConfig, configPath)
		require.NoError(t, err)

		loadedConfig, err := LoadConfig(configPath)
		require.NoError(t, err)
		assert.Equal(t, expectedConfig, loadedConfig)
	})

	t.Run("partial config keeps defaults", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "partial.yaml")
		err := os.WriteFile(configPath, []byte("codec: snappy\nworkers: 2\n"), 0644)
		require.NoError(t, err)

		config, err := LoadConfig(configPath)
		require.NoError(t, err)
		assert.Equal(t, "snappy", config.Codec)
		assert.Equal(t, 2, config.Workers)
		assert.Equal(t, container.DefaultBlockSize, config.BlockSize)
		assert.Equal(t, "info", config.Logging.Level)
	})

	t.Run("load non-existent config", func(t *testing.T) {
		_, err := LoadConfig("/non/existent/config.yaml")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "config file does not exist")
	})

	t.Run("load invalid yaml", func(t *testing.T) {
		tmpDir, err := os.MkdirTemp("", "avrokit_config_test")
		require.NoError(t, err)
		defer os.RemoveAll(tmpDir)

		configPath := filepath.Join(tmpDir, "invalid.yaml")
		err = os.WriteFile(configPath, []byte("invalid: yaml: content: ["), 0644)
		require.NoError(t, err)

		_, err = LoadConfig(configPath)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse config file")
	})
}

func TestSaveConfig(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "avrokit_config_test")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	configPath := filepath.Join(tmpDir, "nested", "config.yaml")
	config := DefaultConfig()

	err = SaveConfig(config, configPath)
	require.NoError(t, err)

	info, err := os.Stat(configPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loadedConfig, err := LoadConfig(configPath)
	require.NoError(t, err)
	assert.Equal(t, config, loadedConfig)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(c *Config)
		wantErr string
	}{
		{"defaults", func(c *Config) {}, ""},
		{"empty codec means null", func(c *Config) { c.Codec = "" }, ""},
		{"deflate", func(c *Config) { c.Codec = "deflate" }, ""},
		{"unknown codec", func(c *Config) { c.Codec = "lzma" }, "invalid codec"},
		{"negative block size", func(c *Config) { c.BlockSize = -1 }, "block_size"},
		{"negative block count", func(c *Config) { c.BlockCount = -1 }, "block_count"},
		{"negative chunk size", func(c *Config) { c.ChunkSize = -1 }, "chunk_size"},
		{"negative workers", func(c *Config) { c.Workers = -2 }, "workers"},
		{"upper case level", func(c *Config) { c.Logging.Level = "WARN" }, ""},
		{"unknown level", func(c *Config) { c.Logging.Level = "verbose" }, "unknown log level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.modify(config)
			err := config.Validate(nil)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_CustomRegistry(t *testing.T) {
	config := DefaultConfig()
	config.Codec = "deflate"

	reg := codec.NewEmptyRegistry()
	err := config.Validate(reg)
	assert.ErrorIs(t, err, codec.ErrUnsupportedCodec)

	require.NoError(t, reg.Register(codec.NewDeflate(1)))
	assert.NoError(t, config.Validate(reg))
}

func TestContainerConfigs(t *testing.T) {
	config := DefaultConfig()
	config.Codec = "snappy"
	config.BlockCount = 10
	config.ChunkSize = 512

	enc := config.EncoderConfig()
	assert.Equal(t, "snappy", enc.Codec)
	assert.Equal(t, container.DefaultBlockSize, enc.BlockSize)
	assert.Equal(t, 10, enc.BlockCount)
	assert.Equal(t, 512, config.ReaderConfig().ChunkSize)
}

func TestGetDefaultConfigPath(t *testing.T) {
	path := GetDefaultConfigPath()
	assert.NotEmpty(t, path)
	assert.Contains(t, path, "avrokit")
	assert.Contains(t, path, "config.yaml")
}

func TestConfigExists(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "avrokit_config_test")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	existingPath := filepath.Join(tmpDir, "exists.yaml")
	nonExistentPath := filepath.Join(tmpDir, "does-not-exist.yaml")

	err = os.WriteFile(existingPath, []byte("test"), 0644)
	require.NoError(t, err)

	assert.True(t, ConfigExists(existingPath))
	assert.False(t, ConfigExists(nonExistentPath))
}

func TestConfigYAMLMarshalling(t *testing.T) {
	config := DefaultConfig()
	config.Metrics.Textfile = "metrics.prom"

	data, err := yaml.Marshal(config)
	require.NoError(t, err)
	assert.Contains(t, string(data), "block_size: 65536")

	var unmarshalled Config
	err = yaml.Unmarshal(data, &unmarshalled)
	require.NoError(t, err)

	assert.Equal(t, config, &unmarshalled)
}

func TestSaveConfigErrorHandling(t *testing.T) {
	config := DefaultConfig()

	invalidPath := "/invalid/path/that/cannot/be/created/config.yaml"

	err := SaveConfig(config, invalidPath)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create config directory")
}
