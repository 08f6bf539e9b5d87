// Package worker provides a worker pool that embeds batches of texts with a
// bounded number of concurrent calls to an embeddings.Embedder.
//
// Results are returned in input order regardless of which worker produced
// them, so callers can zip them back onto their inputs.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/papercomputeco/parley/pkg/embeddings"
)

var (
	defaultNumWorkers   uint = 1
	defaultJobQueueSize uint = 256
)

// Job is a unit of work for the worker pool to execute against.
type Job struct {
	ctx    context.Context
	Index  int
	Text   string
	result chan<- Result
}

// Result is the outcome of one Job.
type Result struct {
	Index     int
	Embedding []float32
	Err       error
}

// JobError reports which input of a batch failed.
type JobError struct {
	Index int
	Err   error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("embedding input %d: %v", e.Index, e.Err)
}

func (e *JobError) Unwrap() error {
	return e.Err
}

// Config is the configuration options for the worker pool.
type Config struct {
	// Embedder generates the embeddings.
	Embedder embeddings.Embedder

	// NumWorkers is the number of concurrent embedding calls (defaults to 1).
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	Logger *slog.Logger
}

// Pool embeds texts on a fixed set of worker goroutines.
type Pool struct {
	config *Config
	queue  chan Job
	wg     sync.WaitGroup
	logger *slog.Logger
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.Embedder == nil {
		return nil, errors.New("worker pool requires an embedder")
	}

	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	logger := c.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	wp := &Pool{
		config: c,
		queue:  make(chan Job, c.QueueSize),
		logger: logger,
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go wp.worker(i)
	}

	return wp, nil
}

// EmbedAll embeds every text and returns the embeddings in input order.
// The first failure cancels the jobs still queued and is returned as a
// *JobError carrying the failed input's index.
func (p *Pool) EmbedAll(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := context.WithCancel(ctx)

	// Buffered for every job so workers never block on an abandoned batch.
	results := make(chan Result, len(texts))

	// The feeder must be gone before returning, since Close closes the queue.
	fed := make(chan struct{})
	defer func() {
		cancel()
		<-fed
	}()

	go func() {
		defer close(fed)
		for i, text := range texts {
			select {
			case p.queue <- Job{ctx: ctx, Index: i, Text: text, result: results}:
			case <-ctx.Done():
				return
			}
		}
	}()

	out := make([][]float32, len(texts))
	for range texts {
		select {
		case r := <-results:
			if r.Err != nil {
				return nil, &JobError{Index: r.Index, Err: r.Err}
			}
			out[r.Index] = r.Embedding
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return out, nil
}

// Close signals workers to stop and waits for in-flight jobs to drain.
func (p *Pool) Close() {
	close(p.queue)
	p.wg.Wait()
}

// worker is the inner worker thread that continuously pulls jobs off the jobs queue
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("embedding worker started", "worker_id", id)

	for job := range p.queue {
		job.result <- p.processJob(job)
	}

	p.logger.Debug("embedding worker stopped", "worker_id", id)
}

func (p *Pool) processJob(job Job) Result {
	if err := job.ctx.Err(); err != nil {
		return Result{Index: job.Index, Err: err}
	}

	embedding, err := p.config.Embedder.Embed(job.ctx, job.Text)
	if err != nil {
		p.logger.Debug("embedding failed", "index", job.Index, "error", err)
		return Result{Index: job.Index, Err: err}
	}

	return Result{Index: job.Index, Embedding: embedding}
}
