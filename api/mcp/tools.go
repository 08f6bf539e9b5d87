package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/parley/pkg/pipeline"
	"github.com/papercomputeco/parley/pkg/vector"
)

var (
	askToolName    = "ask"
	askDescription = "Answer a question from the indexed dialogue corpus. The nearest dialogue lines are handed to the language model as context; when nothing is retrieved the model answers from general knowledge. Returns the answer and the retrieved documents."

	searchToolName    = "search"
	searchDescription = "Semantic search over the indexed dialogue corpus. Returns the nearest dialogue lines (or answers, for question/answer corpora) without generating an answer."
)

// QueryInput is the input of both tools.
type QueryInput struct {
	Query string `json:"query" jsonschema:"the question or search text"`
}

// Document is a retrieved dialogue line.
type Document struct {
	ID       string  `json:"id"`
	Content  string  `json:"content"`
	Question string  `json:"question,omitempty"`
	Score    float32 `json:"score"`
}

// AskOutput is the structured output of the ask tool.
type AskOutput struct {
	Query     string     `json:"query"`
	Answer    string     `json:"answer"`
	Grounded  bool       `json:"grounded"`
	Documents []Document `json:"documents"`
}

// SearchOutput is the structured output of the search tool.
type SearchOutput struct {
	Query     string     `json:"query"`
	Documents []Document `json:"documents"`
	Count     int        `json:"count"`
}

func (s *Server) handleAsk(ctx context.Context, _ *mcp.CallToolRequest, input QueryInput) (*mcp.CallToolResult, AskOutput, error) {
	s.config.Logger.Debug("MCP ask request", "query", input.Query)

	ans, err := s.config.Pipeline.Ask(ctx, input.Query)
	if err != nil {
		return s.toolError("ask", err), AskOutput{}, nil
	}

	output := AskOutput{
		Query:     ans.Query,
		Answer:    ans.Text,
		Grounded:  ans.Grounded,
		Documents: toDocuments(ans.Documents),
	}
	return textResult(output), output, nil
}

func (s *Server) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, input QueryInput) (*mcp.CallToolResult, SearchOutput, error) {
	s.config.Logger.Debug("MCP search request", "query", input.Query)

	results, err := s.config.Pipeline.Search(ctx, input.Query)
	if err != nil {
		return s.toolError("search", err), SearchOutput{}, nil
	}

	output := SearchOutput{
		Query:     input.Query,
		Documents: toDocuments(results),
		Count:     len(results),
	}
	return textResult(output), output, nil
}

func (s *Server) toolError(tool string, err error) *mcp.CallToolResult {
	text := fmt.Sprintf("Failed to %s: %v", tool, err)
	if errors.Is(err, pipeline.ErrValidation) {
		text = s.config.EmptyQueryMessage
	} else {
		s.config.Logger.Error("MCP tool failed", "tool", tool, "error", err)
	}

	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

// textResult mirrors the structured output as JSON text for clients that
// only read content blocks.
func textResult(output any) *mcp.CallToolResult {
	jsonBytes, err := json.Marshal(output)
	if err != nil {
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Failed to serialize results: %v", err)},
			},
		}
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(jsonBytes)},
		},
	}
}

func toDocuments(results []vector.QueryResult) []Document {
	docs := make([]Document, len(results))
	for i, r := range results {
		docs[i] = Document{
			ID:       r.ID,
			Content:  r.Content,
			Question: r.Metadata["question"],
			Score:    r.Score,
		}
	}
	return docs
}
