package retrieval

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/kalambet/ragdesk/internal/errs"
	_ "modernc.org/sqlite"
)

// BundleFile is the SQLite file inside a bundle directory.
const BundleFile = "index.db"

const bundleSchema = `
CREATE TABLE chunks (
    position  INTEGER PRIMARY KEY,
    text      TEXT NOT NULL,
    embedding BLOB NOT NULL
);
CREATE TABLE index_meta (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);`

// WriteBundle persists ix into dir, replacing any existing bundle. The file
// is written under a temporary name and renamed into place, so concurrent
// readers see either the old bundle or the new one.
func WriteBundle(ctx context.Context, dir string, ix *Index) (err error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating bundle directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, BundleFile+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp bundle: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer func() {
		if err != nil {
			os.Remove(tmpPath)
		}
	}()

	if err := writeBundleDB(ctx, tmpPath, ix); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, filepath.Join(dir, BundleFile)); err != nil {
		return fmt.Errorf("installing bundle: %w", err)
	}
	return nil
}

func writeBundleDB(ctx context.Context, path string, ix *Index) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("opening bundle: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, bundleSchema); err != nil {
		return fmt.Errorf("creating bundle schema: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning bundle transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO chunks (position, text, embedding) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing chunk insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range ix.chunks {
		if _, err := stmt.ExecContext(ctx, c.Position, c.Text, encodeFloat32s(c.Embedding)); err != nil {
			return fmt.Errorf("inserting chunk %d: %w", c.Position, err)
		}
	}

	meta := map[string]string{
		"embed_model": ix.embedModel,
		"dimensions":  strconv.Itoa(ix.dimensions),
		"chunk_count": strconv.Itoa(len(ix.chunks)),
		"created_at":  time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range meta {
		if _, err := tx.ExecContext(ctx, `INSERT INTO index_meta (key, value) VALUES (?, ?)`, k, v); err != nil {
			return fmt.Errorf("writing index meta %s: %w", k, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing bundle: %w", err)
	}
	return nil
}

// ReadBundle loads the index stored in dir. A missing bundle is reported as
// errs.ErrNotFound.
func ReadBundle(ctx context.Context, dir string) (*Index, error) {
	path := filepath.Join(dir, BundleFile)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errs.NotFound("vector index not found at %s", dir)
		}
		return nil, fmt.Errorf("checking bundle: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening bundle: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	meta, err := readMeta(ctx, db)
	if err != nil {
		return nil, err
	}

	ix := NewIndex(meta["embed_model"])
	rows, err := db.QueryContext(ctx, `SELECT text, embedding FROM chunks ORDER BY position ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var text string
		var blob []byte
		if err := rows.Scan(&text, &blob); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		vec, err := decodeFloat32s(blob)
		if err != nil {
			return nil, fmt.Errorf("decoding chunk %d: %w", ix.Len(), err)
		}
		if err := ix.Add(text, vec); err != nil {
			return nil, fmt.Errorf("loading chunk %d: %w", ix.Len(), err)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}

	if want, ok := meta["dimensions"]; ok && ix.Len() > 0 && want != strconv.Itoa(ix.dimensions) {
		return nil, fmt.Errorf("bundle declares %s dimensions, chunks have %d", want, ix.dimensions)
	}
	return ix, nil
}

func readMeta(ctx context.Context, db *sql.DB) (map[string]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT key, value FROM index_meta`)
	if err != nil {
		return nil, fmt.Errorf("querying index meta: %w", err)
	}
	defer rows.Close()

	meta := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scanning index meta: %w", err)
		}
		meta[k] = v
	}
	return meta, rows.Err()
}

// encodeFloat32s serializes a float32 slice to little-endian bytes.
func encodeFloat32s(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeFloat32s deserializes little-endian bytes into a new float32 slice.
// Returns an error if the byte slice length is not a multiple of 4 (indicates data corruption).
func decodeFloat32s(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("byte slice length %d is not a multiple of 4", len(b))
	}
	n := len(b) / 4
	v := make([]float32, n)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}
