// Package mcp provides an MCP (Model Context Protocol) server exposing the
// dialogue corpus to agents through the ask and search tools.
package mcp

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/parley/pkg/pipeline"
	"github.com/papercomputeco/parley/pkg/utils"
)

type Config struct {
	// Pipeline answers and searches queries.
	Pipeline pipeline.Querier

	// EmptyQueryMessage is returned by tools called without a query.
	EmptyQueryMessage string

	// Noop for empty MCP server
	Noop bool

	Logger *slog.Logger
}

type Server struct {
	config    Config
	mcpServer *mcp.Server
	handler   *mcp.StreamableHTTPHandler
}

// NewServer creates a new MCP server with the ask and search tools.
func NewServer(c Config) (*Server, error) {
	s := &Server{
		config: c,
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "parley",
			Version: utils.Version,
		},
		&mcp.ServerOptions{},
	)

	if !c.Noop {
		if c.Pipeline == nil {
			return nil, errors.New("pipeline is required")
		}
		if c.Logger == nil {
			return nil, errors.New("logger is required")
		}
		if s.config.EmptyQueryMessage == "" {
			s.config.EmptyQueryMessage = pipeline.DefaultEmptyQueryMessage
		}

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        askToolName,
			Description: askDescription,
		}, s.handleAsk)

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        searchToolName,
			Description: searchDescription,
		}, s.handleSearch)
	}

	s.mcpServer = mcpServer

	// Create a streamable HTTP net/http handler for stateless operations
	s.handler = mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server {
			return mcpServer
		},
		&mcp.StreamableHTTPOptions{
			Stateless: true,
		},
	)

	return s, nil
}

// Handler returns the HTTP handler for the MCP server.
func (s *Server) Handler() http.Handler {
	return s.handler
}
