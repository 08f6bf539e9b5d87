// Package sqlitevec provides a SQLite-backed vector driver using sqlite-vec.
// It is the default index: a single file under .parley/ that survives
// restarts.
package sqlitevec

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/papercomputeco/parley/pkg/vector"
)

// Driver implements vector.Driver and vector.Replacer using SQLite with
// sqlite-vec. Each collection owns three tables: <name>_documents maps
// string ids to vec0 rowids and holds the payload, <name>_embeddings is the
// vec0 virtual table, and <name>_meta records the embedding dimension and
// distance metric.
type Driver struct {
	db     *sql.DB
	dims   int
	tables tables
	logger *slog.Logger
}

// Config holds configuration for the SQLite vec driver.
type Config struct {
	// DBPath is the path to the SQLite database file.
	// Use ":memory:" for an in-memory database.
	DBPath string

	// Collection names the table set. Defaults to vector.DefaultCollection.
	Collection string

	// Dimensions is the number of dimensions for the embedding vectors.
	Dimensions uint
}

type tables struct {
	documents  string
	embeddings string
	meta       string
}

func newTables(collection string) tables {
	return tables{
		documents:  collection + "_documents",
		embeddings: collection + "_embeddings",
		meta:       collection + "_meta",
	}
}

// NewDriver creates a new SQLite vector driver backed by sqlite-vec.
func NewDriver(c Config, logger *slog.Logger) (*Driver, error) {
	// enable connection to have sqlite-vec extension
	sqlite_vec.Auto()

	if c.DBPath == "" {
		return nil, fmt.Errorf("database path is required")
	}

	if c.Dimensions == 0 {
		return nil, fmt.Errorf("sqlite-vec embedding dimensions cannot be 0, must be configured")
	}

	collection := c.Collection
	if collection == "" {
		collection = vector.DefaultCollection
	}
	if err := vector.ValidateIdentifier(collection); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", c.DBPath)
	if err != nil {
		return nil, fmt.Errorf("%w: opening database: %w", vector.ErrConnection, err)
	}

	// One connection keeps ":memory:" databases coherent and serializes
	// writers against readers.
	db.SetMaxOpenConns(1)

	var vecVersion string
	if err := db.QueryRow("SELECT vec_version()").Scan(&vecVersion); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite-vec not available: %w", err)
	}

	d := &Driver{
		db:     db,
		dims:   int(c.Dimensions),
		tables: newTables(collection),
		logger: logger,
	}

	if err := d.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("sqlite-vec vector driver initialized",
		"db_path", c.DBPath,
		"collection", collection,
		"dimensions", c.Dimensions,
		"vec_version", vecVersion,
	)

	return d, nil
}

// distanceMetric is the vec0 metric every collection is declared with.
const distanceMetric = "cosine"

// migrate creates the collection tables. Tables left behind by a different
// embedding dimension or distance metric are dropped: the index is a cache
// of the corpus and is rebuilt on every start.
func (d *Driver) migrate(ctx context.Context) error {
	t := d.tables

	if _, err := d.db.ExecContext(ctx, fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (key TEXT PRIMARY KEY, value TEXT NOT NULL)`, t.meta,
	)); err != nil {
		return fmt.Errorf("creating meta table: %w", err)
	}

	stored, err := d.readMeta(ctx)
	if err != nil {
		return err
	}
	// Tables that predate the metric key were built with the vec0 default, L2.
	if _, ok := stored["dimensions"]; ok && stored["metric"] == "" {
		stored["metric"] = "l2"
	}
	if len(stored) > 0 && (stored["dimensions"] != strconv.Itoa(d.dims) || stored["metric"] != distanceMetric) {
		d.logger.Warn("index layout changed, dropping existing index",
			"collection", strings.TrimSuffix(t.meta, "_meta"),
			"stored_dimensions", stored["dimensions"],
			"stored_metric", stored["metric"],
			"configured", d.dims,
		)
		for _, stmt := range []string{
			fmt.Sprintf(`DROP TABLE IF EXISTS %s`, t.embeddings),
			fmt.Sprintf(`DROP TABLE IF EXISTS %s`, t.documents),
		} {
			if _, err := d.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("dropping stale tables: %w", err)
			}
		}
	}

	// vec0 virtual tables use integer rowids, so string document ids are
	// mapped to rowids through the documents table.
	if _, err := d.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			doc_id TEXT NOT NULL UNIQUE,
			content TEXT NOT NULL DEFAULT '',
			metadata TEXT NOT NULL DEFAULT '{}'
		)`, t.documents,
	)); err != nil {
		return fmt.Errorf("creating documents table: %w", err)
	}

	if _, err := d.db.ExecContext(ctx, fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS %s USING vec0(embedding float[%d] distance_metric=%s)`,
		t.embeddings, d.dims, distanceMetric,
	)); err != nil {
		return fmt.Errorf("creating vec0 table: %w", err)
	}

	for key, value := range map[string]string{
		"dimensions": strconv.Itoa(d.dims),
		"metric":     distanceMetric,
	} {
		if _, err := d.db.ExecContext(ctx, fmt.Sprintf(
			`INSERT INTO %s(key, value) VALUES (?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, t.meta,
		), key, value); err != nil {
			return fmt.Errorf("recording %s: %w", key, err)
		}
	}

	return nil
}

func (d *Driver) readMeta(ctx context.Context) (map[string]string, error) {
	rows, err := d.db.QueryContext(ctx, fmt.Sprintf(`SELECT key, value FROM %s`, d.tables.meta))
	if err != nil {
		return nil, fmt.Errorf("reading index metadata: %w", err)
	}
	defer rows.Close()

	meta := map[string]string{}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("reading index metadata: %w", err)
		}
		meta[key] = value
	}
	return meta, rows.Err()
}

// serializeFloat32 converts a float32 slice to a little-endian byte slice
// suitable for sqlite-vec BLOB format.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// deserializeFloat32 converts a little-endian byte slice back to a float32 slice.
func deserializeFloat32(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding blob length %d: must be divisible by 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

func (d *Driver) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := d.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT doc_id FROM %s ORDER BY rowid`, d.tables.documents))
	if err != nil {
		return nil, fmt.Errorf("listing document ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning document id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

func (d *Driver) Count(ctx context.Context) (int, error) {
	var n int
	if err := d.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM %s`, d.tables.documents),
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting documents: %w", err)
	}
	return n, nil
}

// Add inserts documents in a single transaction.
func (d *Driver) Add(ctx context.Context, docs []vector.Document) error {
	if len(docs) == 0 {
		return nil
	}
	if _, err := vector.CheckDimensions(docs, d.dims); err != nil {
		return err
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := d.insert(ctx, tx, docs); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	d.logger.Debug("added documents to sqlite-vec", "count", len(docs))
	return nil
}

// Replace deletes every document and inserts docs in one transaction.
func (d *Driver) Replace(ctx context.Context, docs []vector.Document) error {
	if _, err := vector.CheckDimensions(docs, d.dims); err != nil {
		return err
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{d.tables.embeddings, d.tables.documents} {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, table)); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}

	if err := d.insert(ctx, tx, docs); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	d.logger.Debug("replaced sqlite-vec collection", "count", len(docs))
	return nil
}

func (d *Driver) insert(ctx context.Context, tx *sql.Tx, docs []vector.Document) error {
	for _, doc := range docs {
		var exists int
		err := tx.QueryRowContext(ctx,
			fmt.Sprintf(`SELECT 1 FROM %s WHERE doc_id = ?`, d.tables.documents), doc.ID,
		).Scan(&exists)
		switch {
		case err == nil:
			return fmt.Errorf("%w: %s", vector.ErrDuplicateID, doc.ID)
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("checking for existing document %s: %w", doc.ID, err)
		}

		metadata, err := json.Marshal(doc.Metadata)
		if err != nil {
			return fmt.Errorf("encoding metadata for doc %s: %w", doc.ID, err)
		}

		result, err := tx.ExecContext(ctx,
			fmt.Sprintf(`INSERT INTO %s(doc_id, content, metadata) VALUES (?, ?, ?)`, d.tables.documents),
			doc.ID, doc.Content, string(metadata),
		)
		if err != nil {
			return fmt.Errorf("inserting document %s: %w", doc.ID, err)
		}

		rowID, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("getting rowid for doc %s: %w", doc.ID, err)
		}

		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf(`INSERT INTO %s(rowid, embedding) VALUES (?, ?)`, d.tables.embeddings),
			rowID, serializeFloat32(doc.Embedding),
		); err != nil {
			return fmt.Errorf("inserting embedding for doc %s: %w", doc.ID, err)
		}
	}

	return nil
}

// Query finds the topK most similar documents to the given embedding.
func (d *Driver) Query(ctx context.Context, embedding []float32, topK int) ([]vector.QueryResult, error) {
	if topK <= 0 {
		topK = 10
	}
	if len(embedding) != d.dims {
		return nil, fmt.Errorf("%w: query has %d dimensions, collection has %d",
			vector.ErrDimensionMismatch, len(embedding), d.dims)
	}

	// KNN query via vec0 MATCH, joined back to the payload.
	rows, err := d.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT
			d.doc_id,
			d.content,
			d.metadata,
			ve.distance
		FROM %s ve
		INNER JOIN %s d ON d.rowid = ve.rowid
		WHERE ve.embedding MATCH ?
			AND ve.k = ?
		ORDER BY ve.distance
	`, d.tables.embeddings, d.tables.documents), serializeFloat32(embedding), topK)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	results := []vector.QueryResult{}
	for rows.Next() {
		var (
			doc      vector.Document
			metadata string
			distance float64
		)
		if err := rows.Scan(&doc.ID, &doc.Content, &metadata, &distance); err != nil {
			return nil, fmt.Errorf("scanning query result: %w", err)
		}
		if doc.Metadata, err = decodeMetadata(metadata); err != nil {
			return nil, fmt.Errorf("decoding metadata for doc %s: %w", doc.ID, err)
		}

		results = append(results, vector.QueryResult{
			Document: doc,
			Distance: float32(distance),
			Score:    vector.Score(float32(distance)),
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating query results: %w", err)
	}

	d.logger.Debug("queried sqlite-vec", "results", len(results))
	return results, nil
}

// Get retrieves documents by their IDs.
func (d *Driver) Get(ctx context.Context, ids []string) ([]vector.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders, args := inClause(ids)
	rows, err := d.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT d.doc_id, d.content, d.metadata, ve.embedding
		FROM %s d
		LEFT JOIN %s ve ON ve.rowid = d.rowid
		WHERE d.doc_id IN (%s)
		ORDER BY d.rowid
	`, d.tables.documents, d.tables.embeddings, placeholders), args...)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var docs []vector.Document
	for rows.Next() {
		var (
			doc      vector.Document
			metadata string
			blob     []byte
		)
		if err := rows.Scan(&doc.ID, &doc.Content, &metadata, &blob); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		if doc.Metadata, err = decodeMetadata(metadata); err != nil {
			return nil, fmt.Errorf("decoding metadata for doc %s: %w", doc.ID, err)
		}
		if len(blob) > 0 {
			if doc.Embedding, err = deserializeFloat32(blob); err != nil {
				return nil, err
			}
		}
		docs = append(docs, doc)
	}

	return docs, rows.Err()
}

// Delete removes documents by their IDs.
func (d *Driver) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	placeholders, args := inClause(ids)

	// Collect rowids first; vec0 deletes are issued one rowid at a time.
	rows, err := tx.QueryContext(ctx, fmt.Sprintf(
		`SELECT rowid FROM %s WHERE doc_id IN (%s)`, d.tables.documents, placeholders,
	), args...)
	if err != nil {
		return fmt.Errorf("querying rowids for deletion: %w", err)
	}

	var rowIDs []int64
	for rows.Next() {
		var rowID int64
		if err := rows.Scan(&rowID); err != nil {
			rows.Close()
			return fmt.Errorf("scanning rowid: %w", err)
		}
		rowIDs = append(rowIDs, rowID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating rowids: %w", err)
	}

	for _, rowID := range rowIDs {
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE rowid = ?`, d.tables.embeddings), rowID,
		); err != nil {
			return fmt.Errorf("deleting embedding rowid %d: %w", rowID, err)
		}
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(
		`DELETE FROM %s WHERE doc_id IN (%s)`, d.tables.documents, placeholders,
	), args...); err != nil {
		return fmt.Errorf("deleting documents: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	d.logger.Debug("deleted documents from sqlite-vec", "count", len(ids))
	return nil
}

// Close releases resources held by the driver.
func (d *Driver) Close() error {
	return d.db.Close()
}

func inClause(ids []string) (string, []any) {
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	return strings.Join(placeholders, ","), args
}

func decodeMetadata(raw string) (map[string]string, error) {
	if raw == "" || raw == "null" || raw == "{}" {
		return nil, nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, err
	}
	return m, nil
}
