package chunkdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/clawcraft-master/clawcraft/internal/sim/coords"
)

// SQLiteBackend stores chunks in a single-file sqlite database. One connection
// is enough: the flusher is the only writer and startup hydration the only
// bulk reader.
type SQLiteBackend struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLiteBackend, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteBackend{db: db}, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for the flusher's batch-overwrite workload.
	// NORMAL is a decent durability/perf tradeoff: memory stays authoritative.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS chunks (
			key TEXT PRIMARY KEY,
			cx INTEGER NOT NULL,
			cy INTEGER NOT NULL,
			cz INTEGER NOT NULL,
			data BLOB NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_column ON chunks(cx, cz);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// SaveBatch overwrites every record in one transaction. All-or-nothing keeps
// retries simple: a failed batch is retried whole.
func (s *SQLiteBackend) SaveBatch(recs []Record) error {
	if len(recs) == 0 {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO chunks(key,cx,cy,cz,data,updated_at) VALUES(?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range recs {
		if _, err := stmt.Exec(r.Key, r.Pos.X, r.Pos.Y, r.Pos.Z, compress(r.Data), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteBackend) Load(key string) ([]byte, error) {
	var blob []byte
	err := s.db.QueryRow(`SELECT data FROM chunks WHERE key = ?`, key).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decompress(blob, coords.ChunkVolume)
}

func (s *SQLiteBackend) ForEach(fn func(rec Record) error) error {
	rows, err := s.db.Query(`SELECT key, data FROM chunks ORDER BY key`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key  string
			blob []byte
		)
		if err := rows.Scan(&key, &blob); err != nil {
			return err
		}
		pos, err := coords.ParseKey(key)
		if err != nil {
			return fmt.Errorf("corrupt chunk key %q: %w", key, err)
		}
		raw, err := decompress(blob, coords.ChunkVolume)
		if err != nil {
			return fmt.Errorf("chunk %s: %w", key, err)
		}
		if err := fn(Record{Key: key, Pos: pos, Data: raw}); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *SQLiteBackend) Close() error {
	return s.db.Close()
}
