package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Config represents the persistent parley configuration stored as config.toml
// in the .parley/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	Corpus      CorpusConfig      `toml:"corpus"`
	Embedding   EmbeddingConfig   `toml:"embedding"`
	Generation  GenerationConfig  `toml:"generation"`
	VectorStore VectorStoreConfig `toml:"vector_store"`
	Retrieval   RetrievalConfig   `toml:"retrieval"`
	API         APIConfig         `toml:"api"`
}

// CorpusConfig describes where the dialogue corpus lives and how to split it.
type CorpusConfig struct {
	Path       string   `toml:"path,omitempty"`
	Mode       string   `toml:"mode,omitempty"`
	Extensions []string `toml:"extensions,omitempty"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider   string `toml:"provider,omitempty"`
	Target     string `toml:"target,omitempty"`
	Model      string `toml:"model,omitempty"`
	Dimensions uint   `toml:"dimensions,omitempty"`
	APIKeyEnv  string `toml:"api_key_env,omitempty"`
	Timeout    string `toml:"timeout,omitempty"`
	Workers    uint   `toml:"workers,omitempty"`
}

// GenerationConfig holds text generation provider settings.
type GenerationConfig struct {
	Provider  string `toml:"provider,omitempty"`
	Target    string `toml:"target,omitempty"`
	Model     string `toml:"model,omitempty"`
	APIKeyEnv string `toml:"api_key_env,omitempty"`
	Timeout   string `toml:"timeout,omitempty"`
}

// VectorStoreConfig holds vector store settings.
// Target is the server URL (chroma), host:port (qdrant) or connection
// string (pgvector). SQLitePath is only used by the sqlite provider.
type VectorStoreConfig struct {
	Provider   string `toml:"provider,omitempty"`
	Target     string `toml:"target,omitempty"`
	Collection string `toml:"collection,omitempty"`
	SQLitePath string `toml:"sqlite_path,omitempty"`
}

// RetrievalConfig controls how retrieved documents shape the prompt.
type RetrievalConfig struct {
	TopK              uint    `toml:"top_k,omitempty"`
	MinScore          float64 `toml:"min_score,omitempty"`
	Language          string  `toml:"language,omitempty"`
	FallbackModel     string  `toml:"fallback_model,omitempty"`
	EmptyQueryMessage string  `toml:"empty_query_message,omitempty"`
	GroundedTemplate  string  `toml:"grounded_template,omitempty"`
	FallbackTemplate  string  `toml:"fallback_template,omitempty"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func stringKey(field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error { *field(c) = v; return nil },
	}
}

func uintKey(name string, field func(c *Config) *uint) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *field(c) == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(*field(c)), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = uint(n)
			return nil
		},
	}
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"corpus.path": stringKey(func(c *Config) *string { return &c.Corpus.Path }),
	"corpus.mode": {
		get: func(c *Config) string { return c.Corpus.Mode },
		set: func(c *Config, v string) error {
			switch v {
			case "flat", "paired":
				c.Corpus.Mode = v
				return nil
			default:
				return fmt.Errorf("invalid value for corpus.mode: %q (expected flat or paired)", v)
			}
		},
	},
	"corpus.extensions": {
		get: func(c *Config) string { return strings.Join(c.Corpus.Extensions, ",") },
		set: func(c *Config, v string) error {
			c.Corpus.Extensions = splitList(v)
			return nil
		},
	},

	"embedding.provider":    stringKey(func(c *Config) *string { return &c.Embedding.Provider }),
	"embedding.target":      stringKey(func(c *Config) *string { return &c.Embedding.Target }),
	"embedding.model":       stringKey(func(c *Config) *string { return &c.Embedding.Model }),
	"embedding.dimensions":  uintKey("embedding.dimensions", func(c *Config) *uint { return &c.Embedding.Dimensions }),
	"embedding.api_key_env": stringKey(func(c *Config) *string { return &c.Embedding.APIKeyEnv }),
	"embedding.timeout":     stringKey(func(c *Config) *string { return &c.Embedding.Timeout }),
	"embedding.workers":     uintKey("embedding.workers", func(c *Config) *uint { return &c.Embedding.Workers }),

	"generation.provider":    stringKey(func(c *Config) *string { return &c.Generation.Provider }),
	"generation.target":      stringKey(func(c *Config) *string { return &c.Generation.Target }),
	"generation.model":       stringKey(func(c *Config) *string { return &c.Generation.Model }),
	"generation.api_key_env": stringKey(func(c *Config) *string { return &c.Generation.APIKeyEnv }),
	"generation.timeout":     stringKey(func(c *Config) *string { return &c.Generation.Timeout }),

	"vector_store.provider":    stringKey(func(c *Config) *string { return &c.VectorStore.Provider }),
	"vector_store.target":      stringKey(func(c *Config) *string { return &c.VectorStore.Target }),
	"vector_store.collection":  stringKey(func(c *Config) *string { return &c.VectorStore.Collection }),
	"vector_store.sqlite_path": stringKey(func(c *Config) *string { return &c.VectorStore.SQLitePath }),

	"retrieval.top_k": uintKey("retrieval.top_k", func(c *Config) *uint { return &c.Retrieval.TopK }),
	"retrieval.min_score": {
		get: func(c *Config) string { return strconv.FormatFloat(c.Retrieval.MinScore, 'f', -1, 64) },
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid value for retrieval.min_score: %w", err)
			}
			c.Retrieval.MinScore = f
			return nil
		},
	},
	"retrieval.language":            stringKey(func(c *Config) *string { return &c.Retrieval.Language }),
	"retrieval.fallback_model":      stringKey(func(c *Config) *string { return &c.Retrieval.FallbackModel }),
	"retrieval.empty_query_message": stringKey(func(c *Config) *string { return &c.Retrieval.EmptyQueryMessage }),
	"retrieval.grounded_template":   stringKey(func(c *Config) *string { return &c.Retrieval.GroundedTemplate }),
	"retrieval.fallback_template":   stringKey(func(c *Config) *string { return &c.Retrieval.FallbackTemplate }),

	"api.listen": stringKey(func(c *Config) *string { return &c.API.Listen }),
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
