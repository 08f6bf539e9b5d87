// Package api provides the HTTP API server for asking questions of and
// searching the indexed dialogue corpus.
package api

import (
	"net/http"

	"github.com/papercomputeco/parley/pkg/pipeline"
)

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8082")
	ListenAddr string

	// Pipeline answers and searches queries.
	Pipeline pipeline.Querier

	// EmptyQueryMessage is returned with 400 for empty queries.
	EmptyQueryMessage string

	// MCPHandler is mounted at /mcp when set.
	MCPHandler http.Handler
}
