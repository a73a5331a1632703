// Package config loads application configuration from defaults, an
// optional TOML file, and CORPORA_-prefixed environment variables, in
// that order of precedence (later wins).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the application configuration.
type Config struct {
	Store struct {
		DataDir string `koanf:"data_dir"`
	} `koanf:"store"`

	Embedding struct {
		APIKey    string `koanf:"api_key"`
		Model     string `koanf:"model"`
		Dimension int    `koanf:"dimension"`
	} `koanf:"embedding"`

	Consolidate struct {
		Threshold float64 `koanf:"threshold"`
	} `koanf:"consolidate"`

	Log struct {
		Level string `koanf:"level"`
	} `koanf:"log"`
}

// Load reads configuration. An explicit path is required to exist; with
// an empty path the default locations are probed and silently skipped
// when absent.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	k.Load(confmap.Provider(map[string]interface{}{
		"store.data_dir":        defaultDataDir(),
		"embedding.model":       "text-embedding-3-small",
		"embedding.dimension":   1536,
		"consolidate.threshold": 0.70,
		"log.level":             "info",
	}, "."), nil)

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	} else {
		defaultPaths := []string{"./corpora.toml", "$HOME/.corpora/corpora.toml"}
		for _, path := range defaultPaths {
			path = os.ExpandEnv(path)
			if _, err := os.Stat(path); err == nil {
				if err := k.Load(file.Provider(path), toml.Parser()); err == nil {
					break
				}
			}
		}
	}

	k.Load(env.Provider("CORPORA_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "CORPORA_")), "_", ".", -1)
	}), nil)

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}
	return &cfg, nil
}

// Init writes a sample configuration file for the user to edit.
func Init(configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file already exists at %s", configPath)
	}

	sample := `# Corpora configuration

[store]
# data_dir = "~/.corpora"

[embedding]
api_key = "your-openai-api-key"
model = "text-embedding-3-small"
dimension = 1536

[consolidate]
threshold = 0.70

[log]
level = "info"
`
	if err := os.MkdirAll(filepath.Dir(configPath), 0o700); err != nil {
		return err
	}
	return os.WriteFile(configPath, []byte(sample), 0o644)
}

// Validate checks settings that would otherwise fail deep inside a run.
func Validate(cfg *Config) error {
	if cfg.Store.DataDir == "" {
		return fmt.Errorf("store data_dir is required")
	}
	if cfg.Consolidate.Threshold <= 0 || cfg.Consolidate.Threshold > 1 {
		return fmt.Errorf("consolidate threshold must be in (0, 1], got %g", cfg.Consolidate.Threshold)
	}
	if cfg.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive, got %d", cfg.Embedding.Dimension)
	}
	return nil
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".corpora"
	}
	return filepath.Join(home, ".corpora")
}
