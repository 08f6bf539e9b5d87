// Package vectorutils builds a vector.Driver from provider settings.
package vectorutils

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/papercomputeco/parley/pkg/vector"
	"github.com/papercomputeco/parley/pkg/vector/chroma"
	"github.com/papercomputeco/parley/pkg/vector/memory"
	"github.com/papercomputeco/parley/pkg/vector/pgvector"
	"github.com/papercomputeco/parley/pkg/vector/qdrant"
	"github.com/papercomputeco/parley/pkg/vector/sqlitevec"
)

// Providers lists the supported vector store provider names.
var Providers = []string{"sqlite", "chroma", "qdrant", "pgvector", "memory"}

type NewVectorDriverOpts struct {
	ProviderType string

	// Target is the chroma URL, qdrant host:port or postgres connection string.
	Target     string
	Collection string
	SQLitePath string
	APIKey     string
	Dimensions uint
	Logger     *slog.Logger
}

func NewVectorDriver(ctx context.Context, o *NewVectorDriverOpts) (vector.Driver, error) {
	switch o.ProviderType {
	case "sqlite":
		return sqlitevec.NewDriver(sqlitevec.Config{
			DBPath:     o.SQLitePath,
			Collection: o.Collection,
			Dimensions: o.Dimensions,
		}, o.Logger)
	case "chroma":
		return chroma.NewDriver(chroma.Config{
			URL:            o.Target,
			CollectionName: o.Collection,
			Dimensions:     o.Dimensions,
		}, o.Logger)
	case "qdrant":
		return qdrant.NewDriver(ctx, qdrant.Config{
			Target:     o.Target,
			APIKey:     o.APIKey,
			Collection: o.Collection,
			Dimensions: o.Dimensions,
		}, o.Logger)
	case "pgvector":
		return pgvector.NewDriver(ctx, pgvector.Config{
			ConnString: o.Target,
			Collection: o.Collection,
			Dimensions: o.Dimensions,
		}, o.Logger)
	case "memory":
		return memory.NewDriver(int(o.Dimensions), o.Logger), nil
	default:
		return nil, fmt.Errorf("unsupported vector store provider: %s", o.ProviderType)
	}
}
