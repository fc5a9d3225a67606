package retrieval

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ErrIndexNotFound is returned by LoadIndex when the file does not exist.
var ErrIndexNotFound = errors.New("index file not found")

const indexSchema = `
CREATE TABLE IF NOT EXISTS index_meta (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS chunks (
	id TEXT PRIMARY KEY,
	position INTEGER NOT NULL,
	text TEXT NOT NULL,
	metadata_json TEXT NOT NULL,
	embedding BLOB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chunks_position ON chunks(position);
`

// SaveIndex writes ix to a SQLite file at path. The file is written next to
// path and renamed into place so readers never see a partial index.
func SaveIndex(ctx context.Context, path string, ix *Index) error {
	ctx, span := tracer.Start(ctx, "retrieval.save_index",
		trace.WithAttributes(attribute.Int("index.chunks", ix.Len())))
	defer span.End()

	tmp := path + ".tmp"
	_ = os.Remove(tmp)
	db, err := sql.Open("sqlite3", tmp)
	if err != nil {
		return fmt.Errorf("opening index database: %w", err)
	}
	if err := writeIndex(ctx, db, ix); err != nil {
		db.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := db.Close(); err != nil {
		return fmt.Errorf("closing index database: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replacing index file: %w", err)
	}
	return nil
}

func writeIndex(ctx context.Context, db *sql.DB, ix *Index) error {
	if _, err := db.ExecContext(ctx, indexSchema); err != nil {
		return fmt.Errorf("creating index schema: %w", err)
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning index transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	meta := map[string]string{
		"embedder":   ix.embedder,
		"dimensions": fmt.Sprint(ix.dims),
		"built_at":   time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range meta {
		if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO index_meta (key, value) VALUES (?, ?)`, k, v); err != nil {
			return fmt.Errorf("writing index metadata: %w", err)
		}
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (id, position, text, metadata_json, embedding) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing chunk insert: %w", err)
	}
	defer stmt.Close()

	for i := range ix.chunks {
		c := &ix.chunks[i]
		metaJSON, err := json.Marshal(chunkRecord{Index: c.Index, Total: c.Total, Metadata: c.Metadata})
		if err != nil {
			return fmt.Errorf("marshaling chunk %s: %w", c.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, c.ID, i, c.Text, string(metaJSON), encodeVector(c.Embedding)); err != nil {
			return fmt.Errorf("storing chunk %s: %w", c.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing index: %w", err)
	}
	return nil
}

type chunkRecord struct {
	Index    int      `json:"chunk_index"`
	Total    int      `json:"total_chunks"`
	Metadata Metadata `json:"metadata"`
}

// LoadIndex reads an index written by SaveIndex.
func LoadIndex(ctx context.Context, path string) (*Index, error) {
	ctx, span := tracer.Start(ctx, "retrieval.load_index")
	defer span.End()

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", path, ErrIndexNotFound)
		}
		return nil, fmt.Errorf("stat index file: %w", err)
	}
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("opening index database: %w", err)
	}
	defer db.Close()

	var embedder string
	if err := db.QueryRowContext(ctx, `SELECT value FROM index_meta WHERE key = 'embedder'`).Scan(&embedder); err != nil {
		return nil, fmt.Errorf("reading index metadata: %w", err)
	}

	rows, err := db.QueryContext(ctx, `SELECT id, text, metadata_json, embedding FROM chunks ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var (
			c        Chunk
			metaJSON string
			blob     []byte
		)
		if err := rows.Scan(&c.ID, &c.Text, &metaJSON, &blob); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		var rec chunkRecord
		if err := json.Unmarshal([]byte(metaJSON), &rec); err != nil {
			return nil, fmt.Errorf("decoding chunk %s metadata: %w", c.ID, err)
		}
		c.Index, c.Total, c.Metadata = rec.Index, rec.Total, rec.Metadata
		c.Embedding, err = decodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("decoding chunk %s embedding: %w", c.ID, err)
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}

	ix, err := NewIndex(chunks, embedder)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("index.chunks", ix.Len()), attribute.String("index.embedder", embedder))
	return ix, nil
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("blob length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}
