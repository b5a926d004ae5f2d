package index

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	ragerrors "github.com/Aman-CERP/fieldrag/internal/errors"
)

const (
	// RecordsFile holds chunk records and index state.
	RecordsFile = "records.db"
	// GraphFile holds the exported HNSW graph.
	GraphFile = "vectors.hnsw"

	schemaVersion = 1
)

// ErrNotFound is returned by Load when no index has been persisted at dir.
var ErrNotFound = errors.New("index not found")

const schema = `
CREATE TABLE IF NOT EXISTS records (
	key      INTEGER PRIMARY KEY,
	source   TEXT    NOT NULL,
	position INTEGER NOT NULL,
	text     TEXT    NOT NULL,
	vector   BLOB    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_records_source ON records(source);
CREATE TABLE IF NOT EXISTS state (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// Exists reports whether dir holds a persisted index.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, RecordsFile))
	return err == nil
}

// Persist writes the index into dir, which is created if needed. Existing
// index files in dir are replaced. Use SaveAtomic to replace a live index.
func (ix *Index) Persist(ctx context.Context, dir string) error {
	src := ix
	if ix.Stats().Orphans > 0 {
		src = ix.Clone()
	}

	src.mu.RLock()
	defer src.mu.RUnlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}

	if err := src.writeRecords(ctx, filepath.Join(dir, RecordsFile)); err != nil {
		return err
	}
	return src.writeGraph(filepath.Join(dir, GraphFile))
}

func (ix *Index) writeRecords(ctx context.Context, path string) error {
	for _, suffix := range []string{"", "-wal", "-shm", "-journal"} {
		_ = os.Remove(path + suffix)
	}

	db, err := openDB(path, false)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	insert, err := tx.PrepareContext(ctx,
		`INSERT INTO records (key, source, position, text, vector) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() { _ = insert.Close() }()

	for _, key := range ix.order {
		e := ix.live[key]
		if _, err := insert.ExecContext(ctx, int64(key), e.source, e.position, e.text, encodeVector(e.vector)); err != nil {
			return fmt.Errorf("failed to insert record %d: %w", key, err)
		}
	}

	state := map[string]string{
		"schema_version": strconv.Itoa(schemaVersion),
		"dimensions":     strconv.Itoa(ix.dims),
		"model":          ix.model,
		"created_at":     ix.create.Format(time.RFC3339Nano),
		"updated_at":     ix.update.Format(time.RFC3339Nano),
		"hnsw_m":         strconv.Itoa(ix.cfg.M),
		"hnsw_ef_search": strconv.Itoa(ix.cfg.EfSearch),
	}
	for k, v := range state {
		if _, err := tx.ExecContext(ctx, `INSERT INTO state (key, value) VALUES (?, ?)`, k, v); err != nil {
			return fmt.Errorf("failed to write state %s: %w", k, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit records: %w", err)
	}
	return nil
}

func (ix *Index) writeGraph(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create graph file: %w", err)
	}

	w := bufio.NewWriter(f)
	if err := ix.graph.Export(w); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to export graph: %w", err)
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to flush graph: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to sync graph: %w", err)
	}
	return f.Close()
}

// Load reads the index persisted at dir. It returns ErrNotFound when dir
// holds no index and an IndexUnavailable error when the files are
// unreadable, inconsistent, or built with a dimension other than
// wantDims (0 skips that check).
func Load(ctx context.Context, dir string, wantDims int) (*Index, error) {
	recordsPath := filepath.Join(dir, RecordsFile)
	if _, err := os.Stat(recordsPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w at %s", ErrNotFound, dir)
		}
		return nil, ragerrors.IndexUnavailable("cannot stat index", err).WithDetail("path", dir)
	}

	ix, err := readRecords(ctx, recordsPath)
	if err != nil {
		return nil, ragerrors.IndexUnavailable("index records are unreadable", err).WithDetail("path", dir)
	}

	if wantDims > 0 && ix.dims != 0 && ix.dims != wantDims {
		return nil, ragerrors.IndexUnavailable(
			fmt.Sprintf("index was built with %d-dimensional vectors but the embedder produces %d", ix.dims, wantDims), nil).
			WithDetail("path", dir).
			WithDetail("index_model", ix.model)
	}

	if err := ix.readGraph(filepath.Join(dir, GraphFile)); err != nil {
		return nil, ragerrors.IndexUnavailable("index graph is unreadable", err).WithDetail("path", dir)
	}

	slog.Debug("index_loaded",
		slog.String("path", dir),
		slog.Int("chunks", len(ix.live)),
		slog.Int("dimensions", ix.dims))
	return ix, nil
}

func readRecords(ctx context.Context, path string) (*Index, error) {
	db, err := openDB(path, true)
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()

	var integrity string
	if err := db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&integrity); err != nil {
		return nil, fmt.Errorf("integrity check failed: %w", err)
	}
	if integrity != "ok" {
		return nil, fmt.Errorf("integrity check failed: %s", integrity)
	}

	state := make(map[string]string)
	rows, err := db.QueryContext(ctx, `SELECT key, value FROM state`)
	if err != nil {
		return nil, fmt.Errorf("failed to read state: %w", err)
	}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("failed to scan state: %w", err)
		}
		state[k] = v
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if v := state["schema_version"]; v != strconv.Itoa(schemaVersion) {
		return nil, fmt.Errorf("unsupported schema version %q", v)
	}
	dims, err := strconv.Atoi(state["dimensions"])
	if err != nil {
		return nil, fmt.Errorf("invalid dimensions %q", state["dimensions"])
	}
	cfg := DefaultConfig()
	if m, err := strconv.Atoi(state["hnsw_m"]); err == nil {
		cfg.M = m
	}
	if ef, err := strconv.Atoi(state["hnsw_ef_search"]); err == nil {
		cfg.EfSearch = ef
	}

	ix := New(dims, state["model"], cfg)
	if t, err := time.Parse(time.RFC3339Nano, state["created_at"]); err == nil {
		ix.create = t
	}
	if t, err := time.Parse(time.RFC3339Nano, state["updated_at"]); err == nil {
		ix.update = t
	}

	rows, err = db.QueryContext(ctx, `SELECT key, source, position, text, vector FROM records ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("failed to read records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			key  int64
			e    entry
			blob []byte
		)
		if err := rows.Scan(&key, &e.source, &e.position, &e.text, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		e.vector, err = decodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", key, err)
		}
		if len(e.vector) != dims {
			return nil, fmt.Errorf("record %d has dimension %d, state says %d", key, len(e.vector), dims)
		}
		k := uint64(key)
		ix.live[k] = &e
		ix.order = append(ix.order, k)
		if k >= ix.next {
			ix.next = k + 1
		}
	}
	return ix, rows.Err()
}

// readGraph imports the exported graph. The decoder can panic on
// truncated input, which is reported as an error.
func (ix *Index) readGraph(path string) (err error) {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open graph file: %w", err)
	}
	defer func() { _ = f.Close() }()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("graph import panic: %v", r)
		}
	}()

	if err := ix.graph.Import(bufio.NewReader(f)); err != nil {
		return fmt.Errorf("failed to import graph: %w", err)
	}
	ix.nodes = ix.graph.Len()
	if ix.nodes != len(ix.live) {
		return fmt.Errorf("graph has %d nodes but %d records", ix.nodes, len(ix.live))
	}
	return nil
}

func openDB(path string, readOnly bool) (*sql.DB, error) {
	dsn := path
	if readOnly {
		dsn = path + "?mode=ro"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = FULL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set %q: %w", p, err)
		}
	}
	return db, nil
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
		return nil, fmt.Errorf("vector blob length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}
