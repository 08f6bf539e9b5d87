package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/papercomputeco/parley/pkg/vector"
)

// errorMessagePrefix prefixes the text Answer returns for failed queries.
const errorMessagePrefix = "查詢時發生錯誤："

// Answer is the outcome of one query.
type Answer struct {
	Query string `json:"query"`

	// Text is the generation service's response, unmodified.
	Text string `json:"text"`

	Prompt string `json:"prompt"`

	// Grounded is false when no document was retrieved and the fallback
	// prompt was used.
	Grounded bool `json:"grounded"`

	Documents []vector.QueryResult `json:"documents"`
}

// Search embeds query and returns up to TopK documents, nearest first,
// that score at least MinScore.
func (c *Context) Search(ctx context.Context, query string) ([]vector.QueryResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrValidation
	}
	if err := c.waitReady(ctx); err != nil {
		return nil, err
	}

	embedding, err := c.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	results, err := c.driver.Query(ctx, embedding, c.topK)
	if err != nil {
		return nil, fmt.Errorf("querying index: %w", err)
	}

	if c.minScore > 0 {
		kept := make([]vector.QueryResult, 0, len(results))
		for _, r := range results {
			if r.Score >= c.minScore {
				kept = append(kept, r)
			}
		}
		if dropped := len(results) - len(kept); dropped > 0 {
			c.logger.Debug("dropped documents below min score",
				"dropped", dropped,
				"min_score", c.minScore,
			)
		}
		results = kept
	}

	c.logger.Debug("retrieved documents", "count", len(results), "top_k", c.topK)
	return results, nil
}

// Ask retrieves documents for query, composes the grounded or fallback
// prompt and returns the generated answer.
func (c *Context) Ask(ctx context.Context, query string) (*Answer, error) {
	results, err := c.Search(ctx, query)
	if err != nil {
		return nil, err
	}

	prompt, grounded, err := c.composer.Compose(query, results)
	if err != nil {
		return nil, err
	}

	text, err := c.generator.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("generating answer: %w", err)
	}

	if results == nil {
		results = []vector.QueryResult{}
	}

	return &Answer{
		Query:     query,
		Text:      text,
		Prompt:    prompt,
		Grounded:  grounded,
		Documents: results,
	}, nil
}

// Answer is Ask for display: every failure becomes a message and an empty
// query yields the configured validation message without any service call.
func (c *Context) Answer(ctx context.Context, query string) string {
	ans, err := c.Ask(ctx, query)
	if err != nil {
		return c.Message(err)
	}
	return ans.Text
}

// Message is the user-facing text for a failed Ask.
func (c *Context) Message(err error) string {
	if errors.Is(err, ErrValidation) {
		return c.emptyQueryMessage
	}
	c.logger.Error("query failed", "error", err)
	return errorMessagePrefix + err.Error()
}
