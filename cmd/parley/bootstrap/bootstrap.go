// Package bootstrap builds a pipeline.Context from the resolved parley
// configuration. It is shared by the ask, search, ingest and serve commands.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/papercomputeco/parley/pkg/config"
	"github.com/papercomputeco/parley/pkg/corpus"
	"github.com/papercomputeco/parley/pkg/dotdir"
	embeddingutils "github.com/papercomputeco/parley/pkg/embeddings/utils"
	generationutils "github.com/papercomputeco/parley/pkg/generation/utils"
	"github.com/papercomputeco/parley/pkg/pipeline"
	vectorutils "github.com/papercomputeco/parley/pkg/vector/utils"
)

const (
	// vectorAPIKeyEnv holds the qdrant API key, when one is needed.
	vectorAPIKeyEnv = "QDRANT_API_KEY"
)

// NewPipeline wires a corpus reader, embedder, vector driver and generator
// from cfg into an idle pipeline.Context. The caller owns the returned
// Context and must Close it.
func NewPipeline(ctx context.Context, cfg *config.Config, configDir string, logger *slog.Logger) (*pipeline.Context, error) {
	parser, err := corpus.NewParser(corpus.Mode(cfg.Corpus.Mode))
	if err != nil {
		return nil, err
	}
	reader := corpus.NewReader(cfg.Corpus.Path, parser, cfg.Corpus.Extensions, logger)

	embedTimeout, err := parseTimeout("embedding.timeout", cfg.Embedding.Timeout)
	if err != nil {
		return nil, err
	}
	embedder, err := embeddingutils.NewEmbedder(&embeddingutils.NewEmbedderOpts{
		ProviderType: cfg.Embedding.Provider,
		TargetURL:    cfg.Embedding.Target,
		Model:        cfg.Embedding.Model,
		APIKey:       apiKey(cfg.Embedding.APIKeyEnv),
		Dimensions:   cfg.Embedding.Dimensions,
		Timeout:      embedTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	genTimeout, err := parseTimeout("generation.timeout", cfg.Generation.Timeout)
	if err != nil {
		return nil, errors.Join(err, embedder.Close())
	}
	generator, err := generationutils.NewGenerator(&generationutils.NewGeneratorOpts{
		ProviderType: cfg.Generation.Provider,
		TargetURL:    cfg.Generation.Target,
		Model:        cfg.Generation.Model,
		APIKey:       apiKey(cfg.Generation.APIKeyEnv),
		Timeout:      genTimeout,
	})
	if err != nil {
		return nil, errors.Join(fmt.Errorf("creating generator: %w", err), embedder.Close())
	}

	sqlitePath, err := resolveSQLitePath(cfg, configDir)
	if err != nil {
		return nil, errors.Join(err, embedder.Close(), generator.Close())
	}

	driver, err := vectorutils.NewVectorDriver(ctx, &vectorutils.NewVectorDriverOpts{
		ProviderType: cfg.VectorStore.Provider,
		Target:       cfg.VectorStore.Target,
		Collection:   cfg.VectorStore.Collection,
		SQLitePath:   sqlitePath,
		APIKey:       os.Getenv(vectorAPIKeyEnv),
		Dimensions:   cfg.Embedding.Dimensions,
		Logger:       logger,
	})
	if err != nil {
		return nil, errors.Join(fmt.Errorf("creating vector driver: %w", err), embedder.Close(), generator.Close())
	}

	logger.Debug("pipeline configured",
		"corpus", cfg.Corpus.Path,
		"mode", cfg.Corpus.Mode,
		"embedding_provider", cfg.Embedding.Provider,
		"embedding_model", cfg.Embedding.Model,
		"generation_provider", cfg.Generation.Provider,
		"generation_model", cfg.Generation.Model,
		"vector_store", cfg.VectorStore.Provider,
	)

	pc, err := pipeline.New(pipeline.Config{
		Corpus:            reader,
		Embedder:          embedder,
		Driver:            driver,
		Generator:         generator,
		TopK:              int(cfg.Retrieval.TopK),
		MinScore:          cfg.Retrieval.MinScore,
		EmptyQueryMessage: cfg.Retrieval.EmptyQueryMessage,
		EmbedWorkers:      cfg.Embedding.Workers,
		Composer: pipeline.ComposerConfig{
			GroundedTemplate: cfg.Retrieval.GroundedTemplate,
			FallbackTemplate: cfg.Retrieval.FallbackTemplate,
			Language:         cfg.Retrieval.Language,
			FallbackModel:    cfg.Retrieval.FallbackModel,
		},
		Logger: logger,
	})
	if err != nil {
		return nil, errors.Join(err, embedder.Close(), generator.Close(), driver.Close())
	}

	return pc, nil
}

// resolveSQLitePath returns the configured sqlite path, falling back to
// parley.db in the resolved .parley/ directory.
func resolveSQLitePath(cfg *config.Config, configDir string) (string, error) {
	if cfg.VectorStore.Provider != "sqlite" {
		return "", nil
	}
	if cfg.VectorStore.SQLitePath != "" {
		return cfg.VectorStore.SQLitePath, nil
	}

	path, err := dotdir.NewManager().Path(configDir, dotdir.IndexFile)
	if err != nil {
		return "", fmt.Errorf("resolving sqlite path: %w", err)
	}
	return path, nil
}

func parseTimeout(key, value string) (time.Duration, error) {
	if strings.TrimSpace(value) == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return d, nil
}

func apiKey(env string) string {
	if env == "" {
		return ""
	}
	return os.Getenv(env)
}
