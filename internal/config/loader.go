package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and are replaced by Defaults in main.
type Config struct {
	Addr                 string  `json:"addr" yaml:"addr" toml:"addr"`
	ModelDir             string  `json:"model_dir" yaml:"model_dir" toml:"model_dir"`
	DefaultModel         string  `json:"default_model" yaml:"default_model" toml:"default_model"`
	MaxResidentModels    int     `json:"max_resident_models" yaml:"max_resident_models" toml:"max_resident_models"`
	MaxDiskCacheGB       float64 `json:"max_disk_cache_gb" yaml:"max_disk_cache_gb" toml:"max_disk_cache_gb"`
	MaintenanceIntervalS int     `json:"maintenance_interval_s" yaml:"maintenance_interval_s" toml:"maintenance_interval_s"`
	// DeviceMemoryBytes overrides the engine's accelerator capacity probe.
	// 0 leaves probing to the engine.
	DeviceMemoryBytes int64    `json:"device_memory_bytes" yaml:"device_memory_bytes" toml:"device_memory_bytes"`
	LogLevel          string   `json:"log_level" yaml:"log_level" toml:"log_level"`
	CORSEnabled       bool     `json:"cors_enabled" yaml:"cors_enabled" toml:"cors_enabled"`
	CORSOrigins       []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// Defaults fills unset fields with service defaults.
func Defaults(cfg Config) Config {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.ModelDir == "" {
		cfg.ModelDir = "./models"
	}
	if cfg.MaxResidentModels <= 0 {
		cfg.MaxResidentModels = 2
	}
	if cfg.MaxDiskCacheGB <= 0 {
		cfg.MaxDiskCacheGB = 10.0
	}
	if cfg.MaintenanceIntervalS <= 0 {
		cfg.MaintenanceIntervalS = 300
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	return cfg
}

// MaintenanceInterval returns the sweep interval as a duration.
func (c Config) MaintenanceInterval() time.Duration {
	return time.Duration(c.MaintenanceIntervalS) * time.Second
}

// MaxDiskCacheBytes converts the GB quota to bytes.
func (c Config) MaxDiskCacheBytes() int64 {
	return int64(c.MaxDiskCacheGB * 1024 * 1024 * 1024)
}
