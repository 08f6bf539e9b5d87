package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/papercomputeco/parley/pkg/dotdir"
)

// EnvPrefix is the prefix for environment variable overrides
// (PARLEY_CORPUS_PATH, PARLEY_RETRIEVAL_TOP_K, ...).
const EnvPrefix = "PARLEY"

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the PARLEY_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	setViperDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	v.SetDefault("corpus.path", d.Corpus.Path)
	v.SetDefault("corpus.mode", d.Corpus.Mode)
	v.SetDefault("corpus.extensions", d.Corpus.Extensions)

	v.SetDefault("embedding.provider", d.Embedding.Provider)
	v.SetDefault("embedding.target", d.Embedding.Target)
	v.SetDefault("embedding.model", d.Embedding.Model)
	v.SetDefault("embedding.dimensions", d.Embedding.Dimensions)
	v.SetDefault("embedding.api_key_env", d.Embedding.APIKeyEnv)
	v.SetDefault("embedding.timeout", d.Embedding.Timeout)
	v.SetDefault("embedding.workers", d.Embedding.Workers)

	v.SetDefault("generation.provider", d.Generation.Provider)
	v.SetDefault("generation.target", d.Generation.Target)
	v.SetDefault("generation.model", d.Generation.Model)
	v.SetDefault("generation.api_key_env", d.Generation.APIKeyEnv)
	v.SetDefault("generation.timeout", d.Generation.Timeout)

	v.SetDefault("vector_store.provider", d.VectorStore.Provider)
	v.SetDefault("vector_store.target", d.VectorStore.Target)
	v.SetDefault("vector_store.collection", d.VectorStore.Collection)
	v.SetDefault("vector_store.sqlite_path", d.VectorStore.SQLitePath)

	v.SetDefault("retrieval.top_k", d.Retrieval.TopK)
	v.SetDefault("retrieval.min_score", d.Retrieval.MinScore)
	v.SetDefault("retrieval.language", d.Retrieval.Language)
	v.SetDefault("retrieval.fallback_model", d.Retrieval.FallbackModel)
	v.SetDefault("retrieval.empty_query_message", d.Retrieval.EmptyQueryMessage)
	v.SetDefault("retrieval.grounded_template", d.Retrieval.GroundedTemplate)
	v.SetDefault("retrieval.fallback_template", d.Retrieval.FallbackTemplate)

	v.SetDefault("api.listen", d.API.Listen)
}

// FromViper materializes the fully resolved Config from v.
func FromViper(v *viper.Viper) *Config {
	extensions := v.GetStringSlice("corpus.extensions")
	if len(extensions) == 1 && strings.Contains(extensions[0], ",") {
		extensions = splitList(extensions[0])
	}

	return &Config{
		Version: v.GetInt("version"),
		Corpus: CorpusConfig{
			Path:       v.GetString("corpus.path"),
			Mode:       v.GetString("corpus.mode"),
			Extensions: extensions,
		},
		Embedding: EmbeddingConfig{
			Provider:   v.GetString("embedding.provider"),
			Target:     v.GetString("embedding.target"),
			Model:      v.GetString("embedding.model"),
			Dimensions: v.GetUint("embedding.dimensions"),
			APIKeyEnv:  v.GetString("embedding.api_key_env"),
			Timeout:    v.GetString("embedding.timeout"),
			Workers:    v.GetUint("embedding.workers"),
		},
		Generation: GenerationConfig{
			Provider:  v.GetString("generation.provider"),
			Target:    v.GetString("generation.target"),
			Model:     v.GetString("generation.model"),
			APIKeyEnv: v.GetString("generation.api_key_env"),
			Timeout:   v.GetString("generation.timeout"),
		},
		VectorStore: VectorStoreConfig{
			Provider:   v.GetString("vector_store.provider"),
			Target:     v.GetString("vector_store.target"),
			Collection: v.GetString("vector_store.collection"),
			SQLitePath: v.GetString("vector_store.sqlite_path"),
		},
		Retrieval: RetrievalConfig{
			TopK:              v.GetUint("retrieval.top_k"),
			MinScore:          v.GetFloat64("retrieval.min_score"),
			Language:          v.GetString("retrieval.language"),
			FallbackModel:     v.GetString("retrieval.fallback_model"),
			EmptyQueryMessage: v.GetString("retrieval.empty_query_message"),
			GroundedTemplate:  v.GetString("retrieval.grounded_template"),
			FallbackTemplate:  v.GetString("retrieval.fallback_template"),
		},
		API: APIConfig{
			Listen: v.GetString("api.listen"),
		},
	}
}
