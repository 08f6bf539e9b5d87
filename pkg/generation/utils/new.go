// Package generationutils builds a generation.Generator from provider settings.
package generationutils

import (
	"fmt"
	"time"

	"github.com/papercomputeco/parley/pkg/generation"
	"github.com/papercomputeco/parley/pkg/generation/ollama"
	"github.com/papercomputeco/parley/pkg/generation/openai"
)

type NewGeneratorOpts struct {
	ProviderType string
	TargetURL    string
	Model        string
	APIKey       string
	Timeout      time.Duration
}

func NewGenerator(o *NewGeneratorOpts) (generation.Generator, error) {
	switch o.ProviderType {
	case "ollama":
		return ollama.NewGenerator(ollama.GeneratorConfig{
			BaseURL: o.TargetURL,
			Model:   o.Model,
			Timeout: o.Timeout,
		})
	case "openai":
		return openai.NewGenerator(openai.GeneratorConfig{
			BaseURL: o.TargetURL,
			APIKey:  o.APIKey,
			Model:   o.Model,
			Timeout: o.Timeout,
		})
	default:
		return nil, fmt.Errorf("unsupported generation provider: %s", o.ProviderType)
	}
}
