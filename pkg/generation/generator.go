// Package generation defines the text generation boundary that turns a
// composed prompt into an answer.
package generation

import (
	"context"
	"errors"
)

// ErrGeneration is returned when the generation service fails or returns an
// unusable response.
var ErrGeneration = errors.New("generation service error")

// Generator produces a completion for a single prompt in one blocking call.
type Generator interface {
	// Generate returns the model's response text verbatim.
	Generate(ctx context.Context, prompt string) (string, error)

	// Model names the model answering prompts.
	Model() string

	// Close releases any resources held by the generator.
	Close() error
}
