package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Backend string

const (
	BackendMem   Backend = "mem"
	BackendFile  Backend = "file"
	BackendBlock Backend = "block"
)

type Config struct {
	DiskPath       string  `yaml:"disk"`
	Backend        Backend `yaml:"backend"`
	Sectors        uint64  `yaml:"sectors"`
	Format         bool    `yaml:"format"`
	RootDirEntries uint64  `yaml:"root_entries"`
	DebugLevel     uint64  `yaml:"debug"`
}

// Load reads the configuration from the environment.
func Load() *Config {
	return &Config{
		DiskPath:       getEnv("FSH_DISK", "fs.img"),
		Backend:        Backend(strings.ToLower(getEnv("FSH_BACKEND", string(BackendFile)))),
		Sectors:        getEnvUint64("FSH_SECTORS", 8192),
		Format:         getEnvBool("FSH_FORMAT", false),
		RootDirEntries: getEnvUint64("FSH_ROOT_ENTRIES", 16),
		DebugLevel:     getEnvUint64("FSH_DEBUG", 0),
	}
}

// LoadFile reads the environment configuration and overlays the fields set
// in the YAML file at path.
func LoadFile(path string) (*Config, error) {
	cfg := Load()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (cfg *Config) Validate() error {
	switch cfg.Backend {
	case BackendMem, BackendFile, BackendBlock:
	default:
		return fmt.Errorf("unknown backend %q", cfg.Backend)
	}
	if cfg.Backend != BackendMem && cfg.DiskPath == "" {
		return fmt.Errorf("backend %s needs a disk path", cfg.Backend)
	}
	if cfg.Sectors == 0 {
		return fmt.Errorf("sectors must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvUint64(key string, defaultValue uint64) uint64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseUint(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		v := strings.ToLower(value)
		return v == "true" || v == "1" || v == "yes"
	}
	return defaultValue
}
