// Package chroma provides a Chroma vector database driver implementation.
package chroma

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/parley/pkg/vector"
)

const (
	defaultTenant   = "default_tenant"
	defaultDatabase = "default_database"

	defaultMaxRetries    = 5
	defaultRetryDelay    = 500 * time.Millisecond
	defaultMaxRetryDelay = 5 * time.Second
)

// Driver implements vector.Driver and vector.Replacer using Chroma's REST API.
type Driver struct {
	baseURL        string
	collectionName string
	dims           int
	httpClient     *http.Client
	logger         *slog.Logger

	// mu guards collectionID, which Replace swaps to a freshly built collection.
	mu           sync.RWMutex
	collectionID string
}

// Config holds configuration for the Chroma driver.
type Config struct {
	// URL is the Chroma server URL (e.g., "http://localhost:8000").
	URL string

	// CollectionName is the name of the collection to use.
	// Defaults to vector.DefaultCollection if empty.
	CollectionName string

	// Dimensions, when non-zero, is checked against every embedding before
	// it is sent to Chroma.
	Dimensions uint

	// Timeout bounds each HTTP request. Defaults to 60s.
	Timeout time.Duration

	// MaxRetries is how many times connecting to Chroma is attempted at
	// startup. Defaults to 5.
	MaxRetries int

	// RetryDelay is the initial backoff between startup attempts; it doubles
	// up to MaxRetryDelay.
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
}

// NewDriver creates a new Chroma vector driver, retrying the initial
// connection while the server comes up.
func NewDriver(c Config, logger *slog.Logger) (*Driver, error) {
	if c.URL == "" {
		return nil, fmt.Errorf("chroma URL is required")
	}

	collectionName := c.CollectionName
	if collectionName == "" {
		collectionName = vector.DefaultCollection
	}

	timeout := c.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	d := &Driver{
		baseURL:        strings.TrimRight(c.URL, "/"),
		collectionName: collectionName,
		dims:           int(c.Dimensions),
		httpClient:     &http.Client{Timeout: timeout},
		logger:         logger,
	}

	maxRetries := c.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	delay := c.RetryDelay
	if delay <= 0 {
		delay = defaultRetryDelay
	}
	maxDelay := c.MaxRetryDelay
	if maxDelay <= 0 {
		maxDelay = defaultMaxRetryDelay
	}

	var (
		collectionID string
		err          error
	)
	for attempt := 1; attempt <= maxRetries; attempt++ {
		collectionID, err = d.getOrCreateCollection(context.Background(), collectionName)
		if err == nil {
			break
		}

		if attempt < maxRetries {
			logger.Warn("chroma not ready, retrying",
				"attempt", attempt,
				"delay", delay,
				"error", err,
			)
			time.Sleep(delay)
			delay = min(delay*2, maxDelay)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: getting or creating collection %q after %d attempts: %w",
			vector.ErrConnection, collectionName, maxRetries, err)
	}
	d.collectionID = collectionID

	logger.Info("connected to Chroma",
		"url", c.URL,
		"collection", collectionName,
		"collection_id", collectionID,
	)

	return d, nil
}

func (d *Driver) collectionsURL() string {
	return fmt.Sprintf("%s/api/v2/tenants/%s/databases/%s/collections", d.baseURL, defaultTenant, defaultDatabase)
}

func (d *Driver) currentID() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.collectionID
}

// do sends a JSON request and decodes a JSON response into out when out is
// non-nil. Non-2xx responses become errors carrying the response body.
func (d *Driver) do(ctx context.Context, method, url string, body, out any) error {
	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", vector.ErrConnection, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		return statusError(resp.StatusCode, respBody)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func statusError(status int, body []byte) error {
	msg := string(body)
	lower := strings.ToLower(msg)
	switch {
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: status %d: %s", vector.ErrNotFound, status, msg)
	case strings.Contains(lower, "dimension"):
		return fmt.Errorf("%w: status %d: %s", vector.ErrDimensionMismatch, status, msg)
	default:
		return fmt.Errorf("status %d: %s", status, msg)
	}
}

// getOrCreateCollection gets an existing collection or creates a new one.
func (d *Driver) getOrCreateCollection(ctx context.Context, name string) (string, error) {
	var collection chromaCollection
	err := d.do(ctx, http.MethodGet, d.collectionsURL()+"/"+name, nil, &collection)
	if err == nil {
		return collection.ID, nil
	}
	if !errors.Is(err, vector.ErrNotFound) && !strings.Contains(err.Error(), "status 400") {
		return "", err
	}

	return d.createCollection(ctx, name)
}

// createCollection gets or creates a collection indexed by cosine distance.
// A pre-existing collection keeps the space it was created with until the
// next Replace stages a fresh one.
func (d *Driver) createCollection(ctx context.Context, name string) (string, error) {
	var collection chromaCollection
	req := chromaCreateRequest{
		Name:        name,
		Metadata:    map[string]any{"hnsw:space": "cosine"},
		GetOrCreate: true,
	}
	if err := d.do(ctx, http.MethodPost, d.collectionsURL(), req, &collection); err != nil {
		return "", fmt.Errorf("creating collection %q: %w", name, err)
	}
	return collection.ID, nil
}

func (d *Driver) checkDims(docs []vector.Document) error {
	_, err := vector.CheckDimensions(docs, d.dims)
	return err
}

// ListIDs returns every id in the collection.
func (d *Driver) ListIDs(ctx context.Context) ([]string, error) {
	var resp chromaGetResponse
	url := fmt.Sprintf("%s/%s/get", d.collectionsURL(), d.currentID())
	if err := d.do(ctx, http.MethodPost, url, chromaGetRequest{Include: []string{}}, &resp); err != nil {
		return nil, fmt.Errorf("listing ids: %w", err)
	}
	return resp.IDs, nil
}

// Count returns the number of records in the collection.
func (d *Driver) Count(ctx context.Context) (int, error) {
	var n int
	url := fmt.Sprintf("%s/%s/count", d.collectionsURL(), d.currentID())
	if err := d.do(ctx, http.MethodGet, url, nil, &n); err != nil {
		return 0, fmt.Errorf("counting documents: %w", err)
	}
	return n, nil
}

// Add stores documents with their embeddings. Chroma itself does not reject
// existing ids, so they are looked up first.
func (d *Driver) Add(ctx context.Context, docs []vector.Document) error {
	if len(docs) == 0 {
		return nil
	}
	if err := d.checkDims(docs); err != nil {
		return err
	}

	ids := make([]string, len(docs))
	seen := make(map[string]bool, len(docs))
	for i, doc := range docs {
		if seen[doc.ID] {
			return fmt.Errorf("%w: %s", vector.ErrDuplicateID, doc.ID)
		}
		seen[doc.ID] = true
		ids[i] = doc.ID
	}

	existing, err := d.Get(ctx, ids)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return fmt.Errorf("%w: %s", vector.ErrDuplicateID, existing[0].ID)
	}

	return d.add(ctx, d.currentID(), docs)
}

func (d *Driver) add(ctx context.Context, collectionID string, docs []vector.Document) error {
	if len(docs) == 0 {
		return nil
	}

	req := chromaAddRequest{
		IDs:        make([]string, len(docs)),
		Embeddings: make([][]float32, len(docs)),
		Metadatas:  make([]map[string]any, len(docs)),
		Documents:  make([]string, len(docs)),
	}
	for i, doc := range docs {
		req.IDs[i] = doc.ID
		req.Embeddings[i] = doc.Embedding
		req.Documents[i] = doc.Content
		if len(doc.Metadata) > 0 {
			m := make(map[string]any, len(doc.Metadata))
			for k, v := range doc.Metadata {
				m[k] = v
			}
			req.Metadatas[i] = m
		}
	}

	url := fmt.Sprintf("%s/%s/add", d.collectionsURL(), collectionID)
	if err := d.do(ctx, http.MethodPost, url, req, nil); err != nil {
		return fmt.Errorf("adding documents: %w", err)
	}

	d.logger.Debug("added documents to chroma", "count", len(docs))
	return nil
}

// Query finds the topK most similar documents to the given embedding.
func (d *Driver) Query(ctx context.Context, embedding []float32, topK int) ([]vector.QueryResult, error) {
	if topK <= 0 {
		topK = 10
	}
	if d.dims > 0 && len(embedding) != d.dims {
		return nil, fmt.Errorf("%w: query has %d dimensions, collection has %d",
			vector.ErrDimensionMismatch, len(embedding), d.dims)
	}

	// Chroma rejects n_results larger than the collection on some versions.
	count, err := d.Count(ctx)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return []vector.QueryResult{}, nil
	}
	topK = min(topK, count)

	req := chromaQueryRequest{
		QueryEmbeddings: [][]float32{embedding},
		NResults:        topK,
		Include:         []string{"documents", "metadatas", "distances"},
	}

	var resp chromaQueryResponse
	url := fmt.Sprintf("%s/%s/query", d.collectionsURL(), d.currentID())
	if err := d.do(ctx, http.MethodPost, url, req, &resp); err != nil {
		return nil, fmt.Errorf("querying: %w", err)
	}

	results := []vector.QueryResult{}

	// only one query embedding is sent, so only the first group matters
	if len(resp.IDs) == 0 {
		return results, nil
	}

	for i, id := range resp.IDs[0] {
		result := vector.QueryResult{Document: vector.Document{ID: id}}

		if len(resp.Documents) > 0 && i < len(resp.Documents[0]) && resp.Documents[0][i] != nil {
			result.Content = *resp.Documents[0][i]
		}
		if len(resp.Metadatas) > 0 && i < len(resp.Metadatas[0]) {
			result.Metadata = stringMetadata(resp.Metadatas[0][i])
		}
		if len(resp.Distances) > 0 && i < len(resp.Distances[0]) {
			result.Distance = resp.Distances[0][i]
			result.Score = vector.Score(result.Distance)
		}

		results = append(results, result)
	}

	d.logger.Debug("queried chroma", "results", len(results))
	return results, nil
}

// Get retrieves documents by their IDs.
func (d *Driver) Get(ctx context.Context, ids []string) ([]vector.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	req := chromaGetRequest{
		IDs:     ids,
		Include: []string{"documents", "metadatas", "embeddings"},
	}

	var resp chromaGetResponse
	url := fmt.Sprintf("%s/%s/get", d.collectionsURL(), d.currentID())
	if err := d.do(ctx, http.MethodPost, url, req, &resp); err != nil {
		return nil, fmt.Errorf("getting documents: %w", err)
	}

	docs := make([]vector.Document, len(resp.IDs))
	for i, id := range resp.IDs {
		docs[i].ID = id
		if i < len(resp.Documents) && resp.Documents[i] != nil {
			docs[i].Content = *resp.Documents[i]
		}
		if i < len(resp.Metadatas) {
			docs[i].Metadata = stringMetadata(resp.Metadatas[i])
		}
		if i < len(resp.Embeddings) {
			docs[i].Embedding = resp.Embeddings[i]
		}
	}

	return docs, nil
}

// Delete removes documents by their IDs.
func (d *Driver) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	url := fmt.Sprintf("%s/%s/delete", d.collectionsURL(), d.currentID())
	if err := d.do(ctx, http.MethodPost, url, chromaDeleteRequest{IDs: ids}, nil); err != nil {
		return fmt.Errorf("deleting documents: %w", err)
	}

	d.logger.Debug("deleted documents from chroma", "count", len(ids))
	return nil
}

// Replace builds docs into a uniquely named staging collection, then swaps
// names so the staging collection takes over the configured name and the
// old collection is deleted. A failure before the swap leaves the live
// collection untouched.
func (d *Driver) Replace(ctx context.Context, docs []vector.Document) error {
	if err := d.checkDims(docs); err != nil {
		return err
	}

	suffix := uuid.NewString()[:8]
	stagingName := fmt.Sprintf("%s-staging-%s", d.collectionName, suffix)
	retiredName := fmt.Sprintf("%s-retired-%s", d.collectionName, suffix)

	stagingID, err := d.createCollection(ctx, stagingName)
	if err != nil {
		return err
	}

	if err := d.add(ctx, stagingID, docs); err != nil {
		d.dropCollection(ctx, stagingName)
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	oldID := d.collectionID
	if err := d.rename(ctx, oldID, retiredName); err != nil {
		d.dropCollection(ctx, stagingName)
		return err
	}
	if err := d.rename(ctx, stagingID, d.collectionName); err != nil {
		// put the live collection back under its name
		_ = d.rename(ctx, oldID, d.collectionName)
		d.dropCollection(ctx, stagingName)
		return err
	}
	d.collectionID = stagingID

	d.dropCollection(ctx, retiredName)

	d.logger.Debug("replaced chroma collection",
		"collection", d.collectionName,
		"collection_id", stagingID,
		"count", len(docs),
	)
	return nil
}

func (d *Driver) rename(ctx context.Context, collectionID, name string) error {
	url := fmt.Sprintf("%s/%s", d.collectionsURL(), collectionID)
	if err := d.do(ctx, http.MethodPut, url, chromaModifyRequest{NewName: name}, nil); err != nil {
		return fmt.Errorf("renaming collection to %q: %w", name, err)
	}
	return nil
}

func (d *Driver) dropCollection(ctx context.Context, name string) {
	if err := d.do(ctx, http.MethodDelete, d.collectionsURL()+"/"+name, nil, nil); err != nil {
		d.logger.Warn("failed to delete chroma collection", "collection", name, "error", err)
	}
}

// Close releases resources held by the driver.
func (d *Driver) Close() error {
	d.httpClient.CloseIdleConnections()
	return nil
}

func stringMetadata(m map[string]any) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		if s, ok := v.(string); ok {
			out[k] = s
		} else {
			out[k] = fmt.Sprint(v)
		}
	}
	return out
}
