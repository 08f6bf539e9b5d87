package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/papercomputeco/parley/pkg/dotdir"
)

const (
	// v0 is the alpha version of the config
	v0 = 0

	// CurrentV is the currently supported version, points to v0
	CurrentV = v0
)

// orderedKeys is the display order for config list, following the TOML layout.
var orderedKeys = []string{
	"corpus.path",
	"corpus.mode",
	"corpus.extensions",
	"embedding.provider",
	"embedding.target",
	"embedding.model",
	"embedding.dimensions",
	"embedding.api_key_env",
	"embedding.timeout",
	"embedding.workers",
	"generation.provider",
	"generation.target",
	"generation.model",
	"generation.api_key_env",
	"generation.timeout",
	"vector_store.provider",
	"vector_store.target",
	"vector_store.collection",
	"vector_store.sqlite_path",
	"retrieval.top_k",
	"retrieval.min_score",
	"retrieval.language",
	"retrieval.fallback_model",
	"retrieval.empty_query_message",
	"retrieval.grounded_template",
	"retrieval.fallback_template",
	"api.listen",
}

type Configer struct {
	ddm        *dotdir.Manager
	targetPath string
}

func NewConfiger(override string) (*Configer, error) {
	cfger := &Configer{}

	cfger.ddm = dotdir.NewManager()
	target, err := cfger.ddm.Target(override)
	if err != nil {
		return nil, err
	}

	if target == "" {
		return cfger, nil
	}

	path := filepath.Join(target, dotdir.ConfigFile)
	_, err = os.Stat(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfger.targetPath = path

	return cfger, nil
}

// ValidConfigKeys returns all supported configuration key names in a stable,
// section-ordered layout.
func ValidConfigKeys() []string {
	result := make([]string, 0, len(configKeys))
	seen := make(map[string]bool, len(configKeys))
	for _, k := range orderedKeys {
		if _, ok := configKeys[k]; ok {
			result = append(result, k)
			seen[k] = true
		}
	}

	for k := range configKeys {
		if !seen[k] {
			result = append(result, k)
		}
	}

	return result
}

// IsValidConfigKey returns true if the given key is a supported configuration key.
func IsValidConfigKey(key string) bool {
	_, ok := configKeys[key]
	return ok
}

func (c *Configer) GetTarget() string {
	return c.targetPath
}

// LoadConfig loads config.toml from the target .parley/ directory.
// A missing file yields NewDefaultConfig(); fields set in the file override
// the defaults.
func (c *Configer) LoadConfig() (*Config, error) {
	if c.targetPath == "" {
		return NewDefaultConfig(), nil
	}

	data, err := os.ReadFile(c.targetPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewDefaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg, err := ParseConfigTOML(data)
	if err != nil {
		return nil, err
	}

	applyDefaults(cfg)

	return cfg, nil
}

// applyDefaults fills zero-value fields in cfg with values from NewDefaultConfig().
// retrieval.min_score is left alone: zero is a meaningful threshold.
func applyDefaults(cfg *Config) {
	d := NewDefaultConfig()

	if cfg.Version == 0 {
		cfg.Version = d.Version
	}

	fill := func(dst *string, def string) {
		if *dst == "" {
			*dst = def
		}
	}

	fill(&cfg.Corpus.Path, d.Corpus.Path)
	fill(&cfg.Corpus.Mode, d.Corpus.Mode)
	if len(cfg.Corpus.Extensions) == 0 {
		cfg.Corpus.Extensions = d.Corpus.Extensions
	}

	fill(&cfg.Embedding.Provider, d.Embedding.Provider)
	fill(&cfg.Embedding.Target, d.Embedding.Target)
	fill(&cfg.Embedding.Model, d.Embedding.Model)
	fill(&cfg.Embedding.Timeout, d.Embedding.Timeout)
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = d.Embedding.Dimensions
	}
	if cfg.Embedding.Workers == 0 {
		cfg.Embedding.Workers = d.Embedding.Workers
	}

	fill(&cfg.Generation.Provider, d.Generation.Provider)
	fill(&cfg.Generation.Target, d.Generation.Target)
	fill(&cfg.Generation.Model, d.Generation.Model)
	fill(&cfg.Generation.Timeout, d.Generation.Timeout)

	fill(&cfg.VectorStore.Provider, d.VectorStore.Provider)
	fill(&cfg.VectorStore.Collection, d.VectorStore.Collection)

	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = d.Retrieval.TopK
	}
	fill(&cfg.Retrieval.Language, d.Retrieval.Language)
	fill(&cfg.Retrieval.FallbackModel, d.Retrieval.FallbackModel)
	fill(&cfg.Retrieval.EmptyQueryMessage, d.Retrieval.EmptyQueryMessage)

	fill(&cfg.API.Listen, d.API.Listen)
}

// SaveConfig persists the configuration to config.toml in the target .parley/ directory.
func (c *Configer) SaveConfig(cfg *Config) error {
	if cfg == nil {
		return errors.New("cannot save nil config")
	}

	if c.targetPath == "" {
		return errors.New("cannot save empty target path")
	}

	var buf bytes.Buffer
	encoder := toml.NewEncoder(&buf)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.WriteFile(c.targetPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// SetConfigValue loads the config, sets the given key to the given value, and saves it.
// Returns an error if the key is not a valid config key.
func (c *Configer) SetConfigValue(key string, value string) error {
	info, ok := configKeys[key]
	if !ok {
		return fmt.Errorf("unknown config key: %q", key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return err
	}

	if err := info.set(cfg, value); err != nil {
		return err
	}

	return c.SaveConfig(cfg)
}

// GetConfigValue loads the config and returns the string representation of the given key.
// Returns an error if the key is not a valid config key.
func (c *Configer) GetConfigValue(key string) (string, error) {
	info, ok := configKeys[key]
	if !ok {
		return "", fmt.Errorf("unknown config key: %q", key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return "", err
	}

	return info.get(cfg), nil
}

// PresetConfig returns a Config with sane defaults for the named provider preset.
// Supported presets: "ollama", "openai".
func PresetConfig(name string) (*Config, error) {
	switch strings.ToLower(name) {
	case "ollama":
		return NewDefaultConfig(), nil

	case "openai":
		cfg := NewDefaultConfig()
		cfg.Embedding = EmbeddingConfig{
			Provider:   "openai",
			Target:     "https://api.openai.com/v1",
			Model:      "text-embedding-3-small",
			Dimensions: 1536,
			APIKeyEnv:  "OPENAI_API_KEY",
			Timeout:    defaultTimeout,
		}
		cfg.Generation = GenerationConfig{
			Provider:  "openai",
			Target:    "https://api.openai.com/v1",
			Model:     "gpt-4o-mini",
			APIKeyEnv: "OPENAI_API_KEY",
			Timeout:   defaultTimeout,
		}
		cfg.Retrieval.FallbackModel = "gpt-4o-mini"
		return cfg, nil

	default:
		return nil, fmt.Errorf("unknown preset: %q (available: %s)", name, strings.Join(ValidPresetNames(), ", "))
	}
}

// ValidPresetNames returns the list of recognized preset names.
func ValidPresetNames() []string {
	return []string{"ollama", "openai"}
}

// ParseConfigTOML parses raw TOML bytes into a Config.
// Returns an error if the version field is present and not equal to CurrentV.
func ParseConfigTOML(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config TOML: %w", err)
	}

	if cfg.Version != 0 && cfg.Version != CurrentV {
		return nil, fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, CurrentV)
	}

	return cfg, nil
}
