// Package qdrant provides a vector driver backed by a Qdrant server over gRPC.
package qdrant

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/papercomputeco/parley/pkg/vector"
)

const (
	defaultPort = 6334

	payloadDocID   = "doc_id"
	payloadContent = "content"
	metadataPrefix = "meta_"
)

// idNamespace derives stable point UUIDs for document ids that are not
// unsigned integers.
var idNamespace = uuid.MustParse("6f1c2a8e-5d0b-4c57-9a43-0b1d7e2f9c11")

// Driver implements vector.Driver and vector.Replacer using cosine
// distance. The configured collection name is an alias; the points live in
// a backing collection named "<name>-<suffix>" that Replace swaps out.
type Driver struct {
	client     *qdrant.Client
	collection string
	dims       int
	logger     *slog.Logger

	mu      sync.Mutex
	backing string
}

// Config holds configuration for the Qdrant driver.
type Config struct {
	// Target is the gRPC address, "host" or "host:port". The port defaults
	// to 6334.
	Target string

	// APIKey is sent with every request when set.
	APIKey string

	// Collection defaults to vector.DefaultCollection.
	Collection string

	// Dimensions is the vector size used when creating the collection.
	Dimensions uint
}

// NewDriver connects to Qdrant and ensures the collection exists.
func NewDriver(ctx context.Context, c Config, logger *slog.Logger) (*Driver, error) {
	if c.Target == "" {
		return nil, fmt.Errorf("qdrant target is required")
	}
	if c.Dimensions == 0 {
		return nil, fmt.Errorf("qdrant embedding dimensions cannot be 0, must be configured")
	}

	host, port, err := splitTarget(c.Target)
	if err != nil {
		return nil, err
	}

	collection := c.Collection
	if collection == "" {
		collection = vector.DefaultCollection
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: c.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: creating qdrant client: %w", vector.ErrConnection, err)
	}

	d := &Driver{
		client:     client,
		collection: collection,
		dims:       int(c.Dimensions),
		logger:     logger,
	}

	if err := d.ensureCollection(ctx); err != nil {
		client.Close()
		return nil, err
	}

	logger.Info("connected to Qdrant",
		"host", host,
		"port", port,
		"collection", collection,
	)

	return d, nil
}

func splitTarget(target string) (string, int, error) {
	target = strings.TrimPrefix(strings.TrimPrefix(target, "http://"), "https://")

	host, portStr, err := net.SplitHostPort(target)
	if err != nil {
		// no port given
		return target, defaultPort, nil
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid qdrant port %q: %w", portStr, err)
	}
	return host, port, nil
}

// ensureCollection resolves the alias to its backing collection. A missing
// alias, a plain collection squatting on the alias name, or a backing
// collection with a different vector size is replaced by a fresh empty
// backing collection.
func (d *Driver) ensureCollection(ctx context.Context) error {
	backing, err := d.resolveAlias(ctx)
	if err != nil {
		return err
	}

	if backing != "" {
		info, err := d.client.GetCollectionInfo(ctx, backing)
		if err != nil {
			return fmt.Errorf("%w: reading collection %q: %w", vector.ErrConnection, backing, err)
		}
		size := collectionSize(info)
		if size == uint64(d.dims) {
			d.backing = backing
			return nil
		}

		d.logger.Warn("qdrant collection has a different vector size, recreating",
			"collection", d.collection,
			"size", size,
			"dimensions", d.dims,
		)
		fresh, err := d.createBacking(ctx)
		if err != nil {
			return err
		}
		if err := d.pointAlias(ctx, fresh); err != nil {
			d.dropCollection(ctx, fresh)
			return err
		}
		d.dropCollection(ctx, backing)
		d.backing = fresh
		return nil
	}

	exists, err := d.client.CollectionExists(ctx, d.collection)
	if err != nil {
		return fmt.Errorf("%w: checking collection %q: %w", vector.ErrConnection, d.collection, err)
	}
	if exists {
		// the index is rebuilt from the corpus, so an unaliased collection
		// under our name carries nothing worth keeping
		d.logger.Warn("replacing unaliased qdrant collection", "collection", d.collection)
		if err := d.client.DeleteCollection(ctx, d.collection); err != nil {
			return fmt.Errorf("deleting collection %q: %w", d.collection, err)
		}
	}

	fresh, err := d.createBacking(ctx)
	if err != nil {
		return err
	}
	if err := d.client.CreateAlias(ctx, d.collection, fresh); err != nil {
		d.dropCollection(ctx, fresh)
		return fmt.Errorf("creating alias %q: %w", d.collection, err)
	}
	d.backing = fresh
	return nil
}

// resolveAlias returns the collection the alias points at, or "" when the
// alias does not exist.
func (d *Driver) resolveAlias(ctx context.Context) (string, error) {
	aliases, err := d.client.ListAliases(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: listing aliases: %w", vector.ErrConnection, err)
	}
	for _, a := range aliases {
		if a.GetAliasName() == d.collection {
			return a.GetCollectionName(), nil
		}
	}
	return "", nil
}

func (d *Driver) createBacking(ctx context.Context) (string, error) {
	name := fmt.Sprintf("%s-%s", d.collection, uuid.NewString()[:8])
	err := d.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(d.dims),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return "", fmt.Errorf("creating collection %q: %w", name, err)
	}
	return name, nil
}

// pointAlias moves the alias onto backing. Qdrant applies the delete and
// create in one request, so readers never see the alias missing.
func (d *Driver) pointAlias(ctx context.Context, backing string) error {
	err := d.client.UpdateAliases(ctx, []*qdrant.AliasOperations{
		qdrant.NewAliasDelete(d.collection),
		qdrant.NewAliasCreate(d.collection, backing),
	})
	if err != nil {
		return fmt.Errorf("switching alias %q to %q: %w", d.collection, backing, err)
	}
	return nil
}

func (d *Driver) dropCollection(ctx context.Context, name string) {
	if err := d.client.DeleteCollection(ctx, name); err != nil {
		d.logger.Warn("failed to delete qdrant collection", "collection", name, "error", err)
	}
}

func collectionSize(info *qdrant.CollectionInfo) uint64 {
	return info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize()
}

// pointID maps a document id onto a Qdrant point id. Decimal ids become
// numeric points; anything else becomes a name-based UUID.
func pointID(id string) *qdrant.PointId {
	if n, err := strconv.ParseUint(id, 10, 64); err == nil {
		return qdrant.NewIDNum(n)
	}
	return qdrant.NewID(uuid.NewSHA1(idNamespace, []byte(id)).String())
}

func pointIDs(ids []string) []*qdrant.PointId {
	out := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		out[i] = pointID(id)
	}
	return out
}

func payload(doc vector.Document) map[string]*qdrant.Value {
	p := map[string]*qdrant.Value{
		payloadDocID:   qdrant.NewValueString(doc.ID),
		payloadContent: qdrant.NewValueString(doc.Content),
	}
	for k, v := range doc.Metadata {
		p[metadataPrefix+k] = qdrant.NewValueString(v)
	}
	return p
}

func document(p map[string]*qdrant.Value) vector.Document {
	doc := vector.Document{
		ID:      p[payloadDocID].GetStringValue(),
		Content: p[payloadContent].GetStringValue(),
	}
	for k, v := range p {
		if key, ok := strings.CutPrefix(k, metadataPrefix); ok {
			if doc.Metadata == nil {
				doc.Metadata = make(map[string]string)
			}
			doc.Metadata[key] = v.GetStringValue()
		}
	}
	return doc
}

func (d *Driver) Count(ctx context.Context) (int, error) {
	n, err := d.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: d.collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("counting points: %w", err)
	}
	return int(n), nil
}

func (d *Driver) ListIDs(ctx context.Context) ([]string, error) {
	n, err := d.Count(ctx)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}

	points, err := d.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: d.collection,
		Limit:          qdrant.PtrOf(uint32(n)),
		WithPayload:    qdrant.NewWithPayloadInclude(payloadDocID),
	})
	if err != nil {
		return nil, fmt.Errorf("scrolling points: %w", err)
	}

	ids := make([]string, 0, len(points))
	for _, p := range points {
		ids = append(ids, p.GetPayload()[payloadDocID].GetStringValue())
	}
	return ids, nil
}

func (d *Driver) Add(ctx context.Context, docs []vector.Document) error {
	if len(docs) == 0 {
		return nil
	}
	if _, err := vector.CheckDimensions(docs, d.dims); err != nil {
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

	if err := d.upsert(ctx, d.collection, docs); err != nil {
		return err
	}

	d.logger.Debug("added documents to qdrant", "count", len(docs))
	return nil
}

func (d *Driver) upsert(ctx context.Context, collection string, docs []vector.Document) error {
	if len(docs) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, len(docs))
	for i, doc := range docs {
		points[i] = &qdrant.PointStruct{
			Id:      pointID(doc.ID),
			Vectors: qdrant.NewVectors(doc.Embedding...),
			Payload: payload(doc),
		}
	}

	if _, err := d.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	}); err != nil {
		return fmt.Errorf("upserting points: %w", err)
	}
	return nil
}

// Replace loads docs into a new backing collection and then moves the alias
// onto it. A failure before the alias switch leaves the live collection
// untouched.
func (d *Driver) Replace(ctx context.Context, docs []vector.Document) error {
	if _, err := vector.CheckDimensions(docs, d.dims); err != nil {
		return err
	}
	seen := make(map[string]bool, len(docs))
	for _, doc := range docs {
		if seen[doc.ID] {
			return fmt.Errorf("%w: %s", vector.ErrDuplicateID, doc.ID)
		}
		seen[doc.ID] = true
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	staging, err := d.createBacking(ctx)
	if err != nil {
		return err
	}
	if err := d.upsert(ctx, staging, docs); err != nil {
		d.dropCollection(ctx, staging)
		return err
	}
	if err := d.pointAlias(ctx, staging); err != nil {
		d.dropCollection(ctx, staging)
		return err
	}

	retired := d.backing
	d.backing = staging
	if retired != "" {
		d.dropCollection(ctx, retired)
	}

	d.logger.Debug("replaced qdrant collection",
		"collection", d.collection,
		"backing", staging,
		"count", len(docs),
	)
	return nil
}

func (d *Driver) Query(ctx context.Context, embedding []float32, topK int) ([]vector.QueryResult, error) {
	if topK <= 0 {
		topK = 10
	}
	if len(embedding) != d.dims {
		return nil, fmt.Errorf("%w: query has %d dimensions, collection has %d",
			vector.ErrDimensionMismatch, len(embedding), d.dims)
	}

	points, err := d.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: d.collection,
		Query:          qdrant.NewQuery(embedding...),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("querying points: %w", err)
	}

	results := make([]vector.QueryResult, 0, len(points))
	for _, p := range points {
		// cosine similarity to cosine distance
		distance := 1 - p.GetScore()
		results = append(results, vector.QueryResult{
			Document: document(p.GetPayload()),
			Distance: distance,
			Score:    vector.Score(distance),
		})
	}

	d.logger.Debug("queried qdrant", "results", len(results))
	return results, nil
}

func (d *Driver) Get(ctx context.Context, ids []string) ([]vector.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	points, err := d.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: d.collection,
		Ids:            pointIDs(ids),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("getting points: %w", err)
	}

	docs := make([]vector.Document, 0, len(points))
	for _, p := range points {
		docs = append(docs, document(p.GetPayload()))
	}
	return docs, nil
}

func (d *Driver) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	_, err := d.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: d.collection,
		Wait:           qdrant.PtrOf(true),
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{
					Ids: pointIDs(ids),
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("deleting points: %w", err)
	}

	d.logger.Debug("deleted documents from qdrant", "count", len(ids))
	return nil
}

func (d *Driver) Close() error {
	return d.client.Close()
}
