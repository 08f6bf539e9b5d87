package pipeline

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/papercomputeco/parley/pkg/vector"
)

const (
	// DefaultGroundedTemplate asks the model to answer from the retrieved
	// documents.
	DefaultGroundedTemplate = "根據以下資訊回答問題：\n\n{{.Context}}\n\n問題：{{.Query}}\n請用{{.Language}}回答。"

	// DefaultFallbackTemplate tells the model the query is unrelated to the
	// corpus and names the model answering from general knowledge.
	DefaultFallbackTemplate = "此問題與對話並無明確相關，改為採用 {{.Model}} 來回答本問題：{{.Query}}"

	DefaultLanguage = "中文"
)

// ComposerConfig configures prompt composition. Empty fields take the
// package defaults.
type ComposerConfig struct {
	GroundedTemplate string
	FallbackTemplate string
	Language         string
	FallbackModel    string
}

// PromptData is the value both templates execute against.
type PromptData struct {
	Query     string
	Documents []string

	// Context is Documents joined by newlines, nearest first.
	Context string

	Language string
	Model    string
}

// Composer renders the grounded and fallback prompts.
type Composer struct {
	grounded      *template.Template
	fallback      *template.Template
	language      string
	fallbackModel string
}

func NewComposer(c ComposerConfig) (*Composer, error) {
	if c.GroundedTemplate == "" {
		c.GroundedTemplate = DefaultGroundedTemplate
	}
	if c.FallbackTemplate == "" {
		c.FallbackTemplate = DefaultFallbackTemplate
	}
	if c.Language == "" {
		c.Language = DefaultLanguage
	}

	grounded, err := template.New("grounded").Parse(c.GroundedTemplate)
	if err != nil {
		return nil, fmt.Errorf("parsing grounded template: %w", err)
	}
	fallback, err := template.New("fallback").Parse(c.FallbackTemplate)
	if err != nil {
		return nil, fmt.Errorf("parsing fallback template: %w", err)
	}

	return &Composer{
		grounded:      grounded,
		fallback:      fallback,
		language:      c.Language,
		fallbackModel: c.FallbackModel,
	}, nil
}

// Compose returns the grounded prompt when results is non-empty and the
// fallback prompt otherwise. Documents are used in the order given, with no
// deduplication.
func (c *Composer) Compose(query string, results []vector.QueryResult) (string, bool, error) {
	data := PromptData{
		Query:    query,
		Language: c.language,
		Model:    c.fallbackModel,
	}

	tmpl := c.fallback
	if len(results) > 0 {
		tmpl = c.grounded
		data.Documents = make([]string, len(results))
		for i, r := range results {
			data.Documents[i] = r.Content
		}
		data.Context = strings.Join(data.Documents, "\n")
	}

	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", false, fmt.Errorf("rendering %s prompt: %w", tmpl.Name(), err)
	}
	return b.String(), len(results) > 0, nil
}
