// internal/config/config.go
package config

import (
	"encoding/json"
	"os"
)

type Config struct {
	Content struct {
		CacheSize        int `json:"cache_size"`
		CompressionLevel int `json:"compression_level"`
		CompressMinSize  int `json:"compress_min_size"`
	} `json:"content"`

	Ignore []string `json:"ignore"` // extra path components to skip when snapshotting

	LogLevel string `json:"log_level"` // debug, info, warn, error
}

func Default() *Config {
	var c Config
	c.Content.CacheSize = 1000
	c.Content.CompressionLevel = 2
	c.Content.CompressMinSize = 1024
	c.LogLevel = "warn"
	return &c
}

// Load reads the repository config, falling back to defaults when the
// file is missing. Unknown fields are ignored.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	defer file.Close()

	config := Default()
	if err := json.NewDecoder(file).Decode(config); err != nil {
		return nil, err
	}

	return config, nil
}
