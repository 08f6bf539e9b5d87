package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/parley/pkg/embeddings"
	"github.com/papercomputeco/parley/pkg/generation"
	"github.com/papercomputeco/parley/pkg/pipeline"
	"github.com/papercomputeco/parley/pkg/vector"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// AskRequest is the body of POST /v1/ask.
type AskRequest struct {
	Query string `json:"query"`
}

// SearchResponse is the body of GET /v1/search.
type SearchResponse struct {
	Query   string               `json:"query"`
	Results []vector.QueryResult `json:"results"`
	Count   int                  `json:"count"`
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleStatus reports whether the index is ready for queries.
func (s *Server) handleStatus(c *fiber.Ctx) error {
	status := s.config.Pipeline.Status()
	code := fiber.StatusOK
	if status.State == pipeline.StateFailed {
		code = fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(status)
}

// handleAsk handles POST /v1/ask with a JSON body {"query": "..."}.
func (s *Server) handleAsk(c *fiber.Ctx) error {
	var req AskRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error: "invalid request body",
		})
	}

	ans, err := s.config.Pipeline.Ask(c.UserContext(), req.Query)
	if err != nil {
		return s.queryError(c, err)
	}

	return c.JSON(ans)
}

// handleSearch handles GET /v1/search?query=...
func (s *Server) handleSearch(c *fiber.Ctx) error {
	query := c.Query("query")

	results, err := s.config.Pipeline.Search(c.UserContext(), query)
	if err != nil {
		return s.queryError(c, err)
	}

	return c.JSON(SearchResponse{
		Query:   query,
		Results: results,
		Count:   len(results),
	})
}

// queryError maps pipeline errors onto status codes.
func (s *Server) queryError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	msg := err.Error()

	switch {
	case errors.Is(err, pipeline.ErrValidation):
		code, msg = fiber.StatusBadRequest, s.config.EmptyQueryMessage
	case errors.Is(err, pipeline.ErrNotReady):
		code = fiber.StatusServiceUnavailable
	case errors.Is(err, embeddings.ErrEmbedding), errors.Is(err, generation.ErrGeneration):
		code = fiber.StatusBadGateway
	}

	if code >= fiber.StatusInternalServerError {
		s.logger.Error("query failed", "path", c.Path(), "error", err)
	}

	return c.Status(code).JSON(ErrorResponse{Error: msg})
}
