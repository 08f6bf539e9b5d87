// Package pipeline ties the corpus, the embedding service, the vector index
// and the generation service together. A Context is built once at startup
// and shared by the ingestion path (Rebuild) and the query path (Ask,
// Answer, Search).
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/papercomputeco/parley/pkg/corpus"
	"github.com/papercomputeco/parley/pkg/embeddings"
	"github.com/papercomputeco/parley/pkg/generation"
	"github.com/papercomputeco/parley/pkg/logger"
	"github.com/papercomputeco/parley/pkg/vector"
)

const (
	// DefaultTopK is the number of documents retrieved per query.
	DefaultTopK = 3

	DefaultEmptyQueryMessage = "請輸入問題！"
)

var (
	// ErrValidation is returned for an empty or whitespace-only query.
	ErrValidation = errors.New("query is empty")

	// ErrIngestion is returned when a rebuild cannot read, embed or index
	// the corpus.
	ErrIngestion = errors.New("ingestion failed")

	// ErrNotReady is returned by queries issued before any rebuild has
	// succeeded.
	ErrNotReady = errors.New("index not ready")
)

// Corpus is the source of units that a rebuild indexes.
type Corpus interface {
	Dir() string
	Mode() corpus.Mode
	Collect(ctx context.Context) ([]corpus.Unit, corpus.Stats, error)
}

// State is the readiness of the query path.
type State string

const (
	StateIdle     State = "idle"
	StateBuilding State = "building"
	StateReady    State = "ready"
	StateFailed   State = "failed"
)

// Config wires the collaborators of a Context.
type Config struct {
	Corpus    Corpus
	Embedder  embeddings.Embedder
	Driver    vector.Driver
	Generator generation.Generator

	// TopK defaults to DefaultTopK.
	TopK int

	// MinScore drops retrieved documents scoring below it. Zero keeps every
	// result, so any non-empty result grounds the answer.
	MinScore float64

	// EmptyQueryMessage is what Answer returns for an empty query.
	EmptyQueryMessage string

	// EmbedWorkers bounds concurrent embedding calls during a rebuild.
	// Zero embeds one unit at a time.
	EmbedWorkers uint

	Composer ComposerConfig

	Logger *slog.Logger
}

// Context owns the rebuild latch and the readiness gate.
type Context struct {
	corpus    Corpus
	embedder  embeddings.Embedder
	driver    vector.Driver
	generator generation.Generator
	composer  *Composer

	topK              int
	minScore          float32
	emptyQueryMessage string
	embedWorkers      uint

	logger *slog.Logger

	// rebuildMu serializes rebuilds; mu guards the fields below it.
	rebuildMu sync.Mutex

	mu     sync.Mutex
	state  State
	done   chan struct{}
	report *RebuildReport
	err    error
}

// Status is a snapshot of the Context's readiness.
type Status struct {
	State  State          `json:"state"`
	Error  string         `json:"error,omitempty"`
	Report *RebuildReport `json:"report,omitempty"`
}

// New validates c and returns an idle Context. Queries fail with
// ErrNotReady until Rebuild succeeds.
func New(c Config) (*Context, error) {
	switch {
	case c.Corpus == nil:
		return nil, fmt.Errorf("pipeline requires a corpus")
	case c.Embedder == nil:
		return nil, fmt.Errorf("pipeline requires an embedder")
	case c.Driver == nil:
		return nil, fmt.Errorf("pipeline requires a vector driver")
	case c.Generator == nil:
		return nil, fmt.Errorf("pipeline requires a generator")
	}

	if c.Composer.FallbackModel == "" {
		c.Composer.FallbackModel = c.Generator.Model()
	}
	composer, err := NewComposer(c.Composer)
	if err != nil {
		return nil, err
	}

	topK := c.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}

	emptyQueryMessage := c.EmptyQueryMessage
	if emptyQueryMessage == "" {
		emptyQueryMessage = DefaultEmptyQueryMessage
	}

	log := c.Logger
	if log == nil {
		log = logger.Nop()
	}

	return &Context{
		corpus:            c.Corpus,
		embedder:          c.Embedder,
		driver:            c.Driver,
		generator:         c.Generator,
		composer:          composer,
		topK:              topK,
		minScore:          float32(c.MinScore),
		emptyQueryMessage: emptyQueryMessage,
		embedWorkers:      c.EmbedWorkers,
		logger:            log,
		state:             StateIdle,
	}, nil
}

// Status reports whether the query path is open.
func (c *Context) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Status{State: c.state}
	if c.err != nil {
		s.Error = c.err.Error()
	}
	if c.report != nil {
		r := *c.report
		s.Report = &r
	}
	return s
}

// TopK is the number of documents each query retrieves.
func (c *Context) TopK() int {
	return c.topK
}

// Close releases the embedder, generator and driver. It waits for a
// rebuild in progress to return first; cancel the rebuild's context to
// make that prompt.
func (c *Context) Close() error {
	c.rebuildMu.Lock()
	defer c.rebuildMu.Unlock()

	return errors.Join(
		c.embedder.Close(),
		c.generator.Close(),
		c.driver.Close(),
	)
}

// waitReady blocks while a rebuild is running and fails unless one has
// succeeded.
func (c *Context) waitReady(ctx context.Context) error {
	for {
		c.mu.Lock()
		state, done, err := c.state, c.done, c.err
		c.mu.Unlock()

		switch state {
		case StateReady:
			return nil
		case StateBuilding:
			select {
			case <-done:
			case <-ctx.Done():
				return fmt.Errorf("%w: %w", ErrNotReady, ctx.Err())
			}
		case StateFailed:
			return fmt.Errorf("%w: last rebuild failed: %w", ErrNotReady, err)
		default:
			return fmt.Errorf("%w: no rebuild has run", ErrNotReady)
		}
	}
}

// Querier is the read side of a Context as used by the HTTP and MCP
// servers.
type Querier interface {
	Ask(ctx context.Context, query string) (*Answer, error)
	Search(ctx context.Context, query string) ([]vector.QueryResult, error)
	Status() Status
}

var _ Querier = (*Context)(nil)
