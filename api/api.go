package api

import (
	"errors"
	"log/slog"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/parley/pkg/pipeline"
)

// Server is the API server for the parley pipeline
type Server struct {
	config Config
	logger *slog.Logger
	app    *fiber.App
}

// NewServer creates a new API server around an already constructed
// pipeline. The pipeline may still be rebuilding: query endpoints wait on
// it and /v1/status reports its progress.
func NewServer(config Config, logger *slog.Logger) (*Server, error) {
	if config.Pipeline == nil {
		return nil, errors.New("pipeline is required")
	}
	if config.EmptyQueryMessage == "" {
		config.EmptyQueryMessage = pipeline.DefaultEmptyQueryMessage
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config: config,
		logger: logger,
		app:    app,
	}

	app.Get("/ping", s.handlePing)
	app.Get("/v1/status", s.handleStatus)
	app.Post("/v1/ask", s.handleAsk)
	app.Get("/v1/search", s.handleSearch)

	if config.MCPHandler != nil {
		app.All("/mcp", adaptor.HTTPHandler(config.MCPHandler))
	}

	return s, nil
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server",
		"listen", s.config.ListenAddr,
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
