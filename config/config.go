package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ServerURL string `json:"server_url" yaml:"server_url"`
	CacheDir  string `json:"cache_dir"  yaml:"cache_dir"`
}

func (cfg *Config) normalize() {
	// The API client joins endpoint paths starting with a slash.
	cfg.ServerURL = strings.TrimRight(cfg.ServerURL, "/")
}

func (cfg *Config) validate() error {
	if cfg.ServerURL == "" {
		return errors.New("server URL is empty")
	}

	if cfg.CacheDir == "" {
		return errors.New("cache dir is empty")
	}

	return nil
}

func FromFile(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if nil != err {
		return nil, fmt.Errorf("failed to read config file %q: %v", filePath, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); nil != err {
		return nil, fmt.Errorf("failed to unmarshal config file %q: %v", filePath, err)
	}

	cfg.normalize()
	if err := cfg.validate(); nil != err {
		return nil, fmt.Errorf("validation failed: %v", err)
	}

	return &cfg, nil
}

func FromString(data string) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(data), &cfg); nil != err {
		return nil, fmt.Errorf("failed to unmarshal config: %v", err)
	}

	cfg.normalize()
	if err := cfg.validate(); nil != err {
		return nil, fmt.Errorf("validation failed: %v", err)
	}

	return &cfg, nil
}
