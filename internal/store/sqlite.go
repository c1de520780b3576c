package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"sync"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/provision/internal/ir"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - empty database
// 1 - documents table keyed by (project, collection, doc_key)
const currentSchemaVersion = 1

// Store is the SQLite-backed Client. Documents of different projects
// share one file but never one row.
type Store struct {
	db       *sql.DB
	project  string
	readOnly bool

	initMu sync.Mutex
	ready  bool
}

// Option configures Open.
type Option func(*Store)

// ReadOnly opens the database without write access. Writes fail with
// ErrPermissionDenied.
func ReadOnly() Option {
	return func(s *Store) { s.readOnly = true }
}

// Open creates or opens a SQLite database at path for project.
// The schema is applied by EnsureInitialized, not here.
//
// The connection is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
func Open(path, project string, opts ...Option) (*Store, error) {
	s := &Store{project: project}
	for _, opt := range opts {
		opt(s)
	}

	dsn := path
	if s.readOnly {
		dsn = "file:" + path + "?mode=ro"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", classify(err))
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", classify(err))
	}

	// SQLite has a single writer; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db, s.readOnly); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", classify(err))
	}

	s.db = db
	return s, nil
}

// Project returns the tenant namespace this store reads and writes.
func (s *Store) Project() string {
	return s.project
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func applyPragmas(db *sql.DB, readOnly bool) error {
	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	if !readOnly {
		pragmas = append([]string{
			"PRAGMA journal_mode = WAL",
			"PRAGMA synchronous = NORMAL",
		}, pragmas...)
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

// EnsureInitialized applies the schema and migrations. Safe to call any
// number of times, from any goroutine.
func (s *Store) EnsureInitialized(ctx context.Context) error {
	s.initMu.Lock()
	defer s.initMu.Unlock()
	if s.ready {
		return nil
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read user_version: %w", classify(err))
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d: %w",
			version, currentSchemaVersion, ErrStoreUnavailable)
	}

	if s.readOnly {
		if version != currentSchemaVersion {
			return fmt.Errorf("read-only database is at schema version %d: %w", version, ErrStoreUnavailable)
		}
		s.ready = true
		return nil
	}

	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", classify(err))
	}
	if version < currentSchemaVersion {
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
			return fmt.Errorf("set user_version: %w", classify(err))
		}
	}
	s.ready = true
	return nil
}

// Get returns the payload at (collection, key).
func (s *Store) Get(ctx context.Context, collection, key string) (ir.IRObject, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `
		SELECT payload FROM documents
		WHERE project = ? AND collection = ? AND doc_key = ?
	`, s.project, collection, key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get %s/%s: %w", collection, key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", collection, key, classify(err))
	}
	return decodePayload(collection, key, payload)
}

// Upsert writes payload at (collection, key). Rewriting identical content
// leaves the row, including its revision, untouched.
func (s *Store) Upsert(ctx context.Context, collection, key string, payload ir.IRObject) error {
	canonical, err := ir.MarshalCanonical(payload)
	if err != nil {
		return fmt.Errorf("upsert %s/%s: %w", collection, key, err)
	}
	hash, err := ir.ContentHash(payload)
	if err != nil {
		return fmt.Errorf("upsert %s/%s: %w", collection, key, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (project, collection, doc_key, payload, content_hash)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(project, collection, doc_key) DO UPDATE SET
			payload = excluded.payload,
			content_hash = excluded.content_hash,
			revision = documents.revision + 1
		WHERE documents.content_hash != excluded.content_hash
	`, s.project, collection, key, string(canonical), hash)
	if err != nil {
		return fmt.Errorf("upsert %s/%s: %w", collection, key, classify(err))
	}
	return nil
}

// List returns every document of collection, ordered by key.
func (s *Store) List(ctx context.Context, collection string) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT doc_key, payload, content_hash FROM documents
		WHERE project = ? AND collection = ?
		ORDER BY doc_key ASC COLLATE BINARY
	`, s.project, collection)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, classify(err))
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var key, payload, hash string
		if err := rows.Scan(&key, &payload, &hash); err != nil {
			return nil, fmt.Errorf("list %s: %w", collection, classify(err))
		}
		obj, err := decodePayload(collection, key, payload)
		if err != nil {
			return nil, err
		}
		docs = append(docs, Document{Collection: collection, Key: key, Payload: obj, ContentHash: hash})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, classify(err))
	}
	return docs, nil
}

// Revision returns how many distinct payloads have been written at
// (collection, key).
func (s *Store) Revision(ctx context.Context, collection, key string) (int64, error) {
	var rev int64
	err := s.db.QueryRowContext(ctx, `
		SELECT revision FROM documents
		WHERE project = ? AND collection = ? AND doc_key = ?
	`, s.project, collection, key).Scan(&rev)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("revision %s/%s: %w", collection, key, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("revision %s/%s: %w", collection, key, classify(err))
	}
	return rev, nil
}

func decodePayload(collection, key, payload string) (ir.IRObject, error) {
	var obj ir.IRObject
	if err := obj.UnmarshalJSON([]byte(payload)); err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w", collection, key, err)
	}
	return obj, nil
}

// classify maps driver errors onto the store sentinels, keeping the
// original error in the chain.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		switch se.Code {
		case sqlite3.ErrReadonly, sqlite3.ErrPerm, sqlite3.ErrAuth:
			return fmt.Errorf("%w: %w", ErrPermissionDenied, err)
		}
	}
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}
