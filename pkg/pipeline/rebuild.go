package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/papercomputeco/parley/pkg/corpus"
	"github.com/papercomputeco/parley/pkg/embeddings/worker"
	"github.com/papercomputeco/parley/pkg/vector"
)

// RebuildReport describes one rebuild of the index.
type RebuildReport struct {
	Dir        string       `json:"dir"`
	Mode       corpus.Mode  `json:"mode"`
	Corpus     corpus.Stats `json:"corpus"`
	Records    int          `json:"records"`
	Removed    int          `json:"removed"`
	Dimensions int          `json:"dimensions"`

	// Atomic is true when the driver swapped the collection in one step.
	Atomic bool `json:"atomic"`

	Duration    time.Duration `json:"duration"`
	CompletedAt time.Time     `json:"completed_at"`

	// Skipped is set on the copies returned by calls after the first
	// successful rebuild.
	Skipped bool `json:"skipped"`
}

// Rebuild replaces the index contents with the current corpus. Only the
// first successful call in the life of the Context does any work; later
// calls return a copy of its report with Skipped set.
//
// The whole corpus is parsed and embedded before the index is touched, so a
// parse or embedding failure leaves the previous contents in place.
func (c *Context) Rebuild(ctx context.Context) (*RebuildReport, error) {
	c.rebuildMu.Lock()
	defer c.rebuildMu.Unlock()

	c.mu.Lock()
	if c.report != nil {
		r := *c.report
		c.mu.Unlock()
		r.Skipped = true
		c.logger.Debug("index already rebuilt in this process, skipping")
		return &r, nil
	}
	done := make(chan struct{})
	c.state, c.done, c.err = StateBuilding, done, nil
	c.mu.Unlock()

	report, err := c.rebuild(ctx)

	c.mu.Lock()
	if err != nil {
		c.state, c.err = StateFailed, err
	} else {
		c.state, c.report = StateReady, report
	}
	close(done)
	c.mu.Unlock()

	if err != nil {
		c.logger.Error("rebuild failed", "error", err)
		return nil, err
	}

	r := *report
	return &r, nil
}

func (c *Context) rebuild(ctx context.Context) (*RebuildReport, error) {
	start := time.Now()
	c.logger.Info("rebuilding index",
		"dir", c.corpus.Dir(),
		"mode", c.corpus.Mode(),
	)

	units, stats, err := c.corpus.Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIngestion, err)
	}

	docs, err := c.embed(ctx, units)
	if err != nil {
		return nil, err
	}

	dims, err := vector.CheckDimensions(docs, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIngestion, err)
	}

	report := &RebuildReport{
		Dir:        c.corpus.Dir(),
		Mode:       c.corpus.Mode(),
		Corpus:     stats,
		Records:    len(docs),
		Dimensions: dims,
	}

	if err := c.write(ctx, docs, report); err != nil {
		return nil, fmt.Errorf("%w: writing index: %w", ErrIngestion, err)
	}

	report.CompletedAt = time.Now()
	report.Duration = report.CompletedAt.Sub(start)

	c.logger.Info("index rebuilt",
		"records", report.Records,
		"removed", report.Removed,
		"dimensions", report.Dimensions,
		"atomic", report.Atomic,
		"corpus", stats.String(),
		"duration", report.Duration,
	)
	return report, nil
}

// embed embeds every unit on a worker pool sized by EmbedWorkers.
func (c *Context) embed(ctx context.Context, units []corpus.Unit) ([]vector.Document, error) {
	pool, err := worker.NewPool(&worker.Config{
		Embedder:   c.embedder,
		NumWorkers: c.embedWorkers,
		Logger:     c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIngestion, err)
	}
	defer pool.Close()

	texts := make([]string, len(units))
	for i, u := range units {
		texts[i] = u.EmbedText()
	}

	embeddings, err := pool.EmbedAll(ctx, texts)
	var jobErr *worker.JobError
	if errors.As(err, &jobErr) {
		return nil, fmt.Errorf("%w: embedding unit %d: %w", ErrIngestion, units[jobErr.Index].ID, jobErr.Err)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIngestion, err)
	}

	docs := make([]vector.Document, len(units))
	for i, u := range units {
		docs[i] = toDocument(u, embeddings[i])
	}
	return docs, nil
}

// write swaps docs into the index, atomically when the driver supports it.
func (c *Context) write(ctx context.Context, docs []vector.Document, report *RebuildReport) error {
	if replacer, ok := c.driver.(vector.Replacer); ok {
		removed, err := c.driver.Count(ctx)
		if err != nil {
			return err
		}
		if err := replacer.Replace(ctx, docs); err != nil {
			return err
		}
		report.Removed = removed
		report.Atomic = true
		return nil
	}

	ids, err := c.driver.ListIDs(ctx)
	if err != nil {
		return err
	}
	if len(ids) > 0 {
		if err := c.driver.Delete(ctx, ids); err != nil {
			return err
		}
	}
	report.Removed = len(ids)

	if len(docs) == 0 {
		return nil
	}
	return c.driver.Add(ctx, docs)
}

func toDocument(u corpus.Unit, embedding []float32) vector.Document {
	doc := vector.Document{
		ID:        strconv.Itoa(u.ID),
		Embedding: embedding,
		Content:   u.Content(),
	}
	if u.IsPair() {
		doc.Metadata = map[string]string{"question": u.Question}
	}
	return doc
}
