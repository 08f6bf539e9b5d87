package bootstrap

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/parley/pkg/config"
)

// Flags is the registry shared by every command that builds a pipeline.
var Flags = config.FlagSet{
	config.FlagCorpusPath: {
		Name:        "corpus",
		Shorthand:   "c",
		ViperKey:    "corpus.path",
		Description: "Directory of dialogue .txt files",
	},
	config.FlagCorpusMode: {
		Name:        "mode",
		ViperKey:    "corpus.mode",
		Description: "Corpus line convention (flat, paired)",
	},
	config.FlagEmbeddingProv: {
		Name:        "embedding-provider",
		ViperKey:    "embedding.provider",
		Description: "Embedding provider type (ollama, openai)",
	},
	config.FlagEmbeddingTgt: {
		Name:        "embedding-target",
		ViperKey:    "embedding.target",
		Description: "Embedding provider URL",
	},
	config.FlagEmbeddingModel: {
		Name:        "embedding-model",
		ViperKey:    "embedding.model",
		Description: "Embedding model name",
	},
	config.FlagEmbeddingDims: {
		Name:        "embedding-dimensions",
		ViperKey:    "embedding.dimensions",
		Description: "Embedding vector dimensions",
	},
	config.FlagGenerationProv: {
		Name:        "generation-provider",
		ViperKey:    "generation.provider",
		Description: "Generation provider type (ollama, openai)",
	},
	config.FlagGenerationTgt: {
		Name:        "generation-target",
		ViperKey:    "generation.target",
		Description: "Generation provider URL",
	},
	config.FlagGenerationModel: {
		Name:        "model",
		Shorthand:   "m",
		ViperKey:    "generation.model",
		Description: "Generation model name",
	},
	config.FlagVectorStoreProv: {
		Name:        "vector-store-provider",
		ViperKey:    "vector_store.provider",
		Description: "Vector store provider type (sqlite, chroma, qdrant, pgvector, memory)",
	},
	config.FlagVectorStoreTgt: {
		Name:        "vector-store-target",
		ViperKey:    "vector_store.target",
		Description: "Vector store URL, host:port or connection string",
	},
	config.FlagCollection: {
		Name:        "collection",
		ViperKey:    "vector_store.collection",
		Description: "Vector store collection name",
	},
	config.FlagSQLite: {
		Name:        "sqlite",
		Shorthand:   "s",
		ViperKey:    "vector_store.sqlite_path",
		Description: "Path to the sqlite-vec database (default: .parley/parley.db)",
	},
	config.FlagTopK: {
		Name:        "top-k",
		Shorthand:   "k",
		ViperKey:    "retrieval.top_k",
		Description: "Number of documents to retrieve",
	},
	config.FlagMinScore: {
		Name:        "min-score",
		ViperKey:    "retrieval.min_score",
		Description: "Drop retrieved documents scoring below this value",
	},
	config.FlagAPIListen: {
		Name:        "listen",
		Shorthand:   "l",
		ViperKey:    "api.listen",
		Description: "Address for the API server to listen on",
	},
}

// PipelineFlagKeys are the registry keys AddPipelineFlags registers.
var PipelineFlagKeys = []string{
	config.FlagCorpusPath,
	config.FlagCorpusMode,
	config.FlagEmbeddingProv,
	config.FlagEmbeddingTgt,
	config.FlagEmbeddingModel,
	config.FlagEmbeddingDims,
	config.FlagGenerationProv,
	config.FlagGenerationTgt,
	config.FlagGenerationModel,
	config.FlagVectorStoreProv,
	config.FlagVectorStoreTgt,
	config.FlagCollection,
	config.FlagSQLite,
	config.FlagTopK,
	config.FlagMinScore,
}

// flagValues receives parsed flag values. Commands read the resolved values
// back through viper, which sees flags only once they are Changed.
type flagValues struct {
	corpus         string
	mode           string
	embeddingProv  string
	embeddingTgt   string
	embeddingModel string
	dims           uint
	generationProv string
	generationTgt  string
	model          string
	vectorProv     string
	vectorTgt      string
	collection     string
	sqlite         string
	topK           uint
	minScore       float64
}

// AddPipelineFlags registers the pipeline flags on cmd.
func AddPipelineFlags(cmd *cobra.Command) {
	v := &flagValues{}

	config.AddStringFlag(cmd, Flags, config.FlagCorpusPath, &v.corpus)
	config.AddStringFlag(cmd, Flags, config.FlagCorpusMode, &v.mode)
	config.AddStringFlag(cmd, Flags, config.FlagEmbeddingProv, &v.embeddingProv)
	config.AddStringFlag(cmd, Flags, config.FlagEmbeddingTgt, &v.embeddingTgt)
	config.AddStringFlag(cmd, Flags, config.FlagEmbeddingModel, &v.embeddingModel)
	config.AddUintFlag(cmd, Flags, config.FlagEmbeddingDims, &v.dims)
	config.AddStringFlag(cmd, Flags, config.FlagGenerationProv, &v.generationProv)
	config.AddStringFlag(cmd, Flags, config.FlagGenerationTgt, &v.generationTgt)
	config.AddStringFlag(cmd, Flags, config.FlagGenerationModel, &v.model)
	config.AddStringFlag(cmd, Flags, config.FlagVectorStoreProv, &v.vectorProv)
	config.AddStringFlag(cmd, Flags, config.FlagVectorStoreTgt, &v.vectorTgt)
	config.AddStringFlag(cmd, Flags, config.FlagCollection, &v.collection)
	config.AddStringFlag(cmd, Flags, config.FlagSQLite, &v.sqlite)
	config.AddUintFlag(cmd, Flags, config.FlagTopK, &v.topK)
	config.AddFloat64Flag(cmd, Flags, config.FlagMinScore, &v.minScore)
}

// AddListenFlag registers the API listen flag on cmd.
func AddListenFlag(cmd *cobra.Command) {
	var listen string
	config.AddStringFlag(cmd, Flags, config.FlagAPIListen, &listen)
}

// LoadConfig resolves the configuration for cmd with the precedence
// flag > env > config.toml > default.
func LoadConfig(cmd *cobra.Command, extraKeys ...string) (*config.Config, error) {
	configDir, _ := cmd.Flags().GetString("config-dir")

	v, err := config.InitViper(configDir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	keys := append(append([]string{}, PipelineFlagKeys...), extraKeys...)
	config.BindRegisteredFlags(v, cmd, Flags, keys)

	return config.FromViper(v), nil
}
