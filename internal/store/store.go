// Package store owns the temporal graph: the entity/edge schema over
// SQLite, the per-entity state machine, and the predicate-filtered reads.
// Extraction and attribution produce values that are merged in through
// MergeBatch; nothing mutates graph state outside this package.
package store

import (
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the SQLite data access layer for the temporal graph.
// Writes (MergeBatch, Propose, Revert, PromoteAll) are serialized through
// an internal mutex so batch merges and promotions observe no interleaving;
// reads go straight to SQLite and see pre- or post-transaction snapshots.
type Store struct {
	db *sql.DB
	mu sync.Mutex // serializes write transactions
}

// Open opens a SQLite database at dbPath with WAL mode enabled.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use in transactions and tests.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate creates all tables and indexes. Idempotent.
func (s *Store) Migrate() error {
	if _, err := s.db.Exec(schemaDDL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS files (
  path            TEXT PRIMARY KEY,
  language        TEXT NOT NULL,
  hash            TEXT NOT NULL,
  line_count      INTEGER NOT NULL DEFAULT 0,
  last_ingested   TIMESTAMP
);

CREATE TABLE IF NOT EXISTS entities (
  key             TEXT PRIMARY KEY,
  language        TEXT NOT NULL,
  kind            TEXT NOT NULL,
  name            TEXT NOT NULL,
  path            TEXT NOT NULL,
  start_line      INTEGER NOT NULL,
  end_line        INTEGER NOT NULL,
  signature       TEXT NOT NULL DEFAULT '',
  current_code    TEXT NOT NULL DEFAULT '',
  future_code     TEXT NOT NULL DEFAULT '',
  current_ind     BOOLEAN NOT NULL DEFAULT TRUE,
  future_ind      BOOLEAN NOT NULL DEFAULT TRUE,
  future_action   TEXT NOT NULL DEFAULT 'none'
);

CREATE INDEX IF NOT EXISTS idx_entities_path ON entities(path);
CREATE INDEX IF NOT EXISTS idx_entities_name ON entities(name);
CREATE INDEX IF NOT EXISTS idx_entities_action ON entities(future_action);

CREATE TABLE IF NOT EXISTS edges (
  id              INTEGER PRIMARY KEY,
  from_key        TEXT NOT NULL,
  to_key          TEXT NOT NULL,
  edge_type       TEXT NOT NULL,
  UNIQUE(from_key, to_key, edge_type)
);

CREATE INDEX IF NOT EXISTS idx_edges_from ON edges(from_key);
CREATE INDEX IF NOT EXISTS idx_edges_to ON edges(to_key);

CREATE TABLE IF NOT EXISTS metadata (
  key             TEXT PRIMARY KEY,
  value           TEXT NOT NULL
);
`

// GetMetadata returns the value for a metadata key, or "" when absent.
func (s *Store) GetMetadata(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get metadata %s: %w", key, err)
	}
	return value, nil
}

// SetMetadata upserts a metadata key/value pair.
func (s *Store) SetMetadata(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("set metadata %s: %w", key, err)
	}
	return nil
}

// FileByPath returns the file record for a normalized path, or nil when the
// file has never been ingested.
func (s *Store) FileByPath(path string) (*File, error) {
	f := &File{}
	err := s.db.QueryRow(
		`SELECT path, language, hash, line_count, last_ingested
		 FROM files WHERE path = ?`, path,
	).Scan(&f.Path, &f.Language, &f.Hash, &f.LineCount, &f.LastIngested)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup file %s: %w", path, err)
	}
	return f, nil
}

// EntityByKey returns the entity for a key, or nil when absent.
func (s *Store) EntityByKey(key string) (*Entity, error) {
	row := s.db.QueryRow(selectEntity+" WHERE key = ?", key)
	e, err := scanEntity(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup entity %s: %w", key, err)
	}
	return e, nil
}

const selectEntity = `SELECT key, language, kind, name, path, start_line, end_line,
  signature, current_code, future_code, current_ind, future_ind, future_action
  FROM entities`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner) (*Entity, error) {
	e := &Entity{}
	err := row.Scan(
		&e.Key, &e.Language, &e.Kind, &e.Name, &e.Path,
		&e.StartLine, &e.EndLine, &e.Signature,
		&e.CurrentCode, &e.FutureCode,
		&e.CurrentInd, &e.FutureInd, &e.FutureAction,
	)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// PendingEntities returns all entities with a pending action, ascending by
// key. The order is the deterministic diff order.
func (s *Store) PendingEntities() ([]*Entity, error) {
	rows, err := s.db.Query(selectEntity + " WHERE future_action != 'none' ORDER BY key ASC")
	if err != nil {
		return nil, fmt.Errorf("pending entities: %w", err)
	}
	defer rows.Close()

	var out []*Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("pending entities: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// EntitiesByPath returns all entities extracted from one file, ascending by key.
func (s *Store) EntitiesByPath(path string) ([]*Entity, error) {
	rows, err := s.db.Query(selectEntity+" WHERE path = ? ORDER BY key ASC", path)
	if err != nil {
		return nil, fmt.Errorf("entities by path: %w", err)
	}
	defer rows.Close()

	var out []*Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("entities by path: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
