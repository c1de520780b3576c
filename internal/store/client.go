package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/provision/internal/ir"
)

var (
	// ErrNotFound: no document at (collection, key).
	ErrNotFound = errors.New("document not found")

	// ErrStoreUnavailable: the backend cannot be reached or is closed.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrPermissionDenied: the backend refused the write.
	ErrPermissionDenied = errors.New("permission denied")
)

// Client is the document store capability the migration orchestrator
// depends on. Implementations must be safe for concurrent use.
type Client interface {
	// EnsureInitialized prepares the backend. Calling it on an already
	// initialized backend is a no-op, never an error.
	EnsureInitialized(ctx context.Context) error

	// Get returns the payload at (collection, key) or ErrNotFound.
	Get(ctx context.Context, collection, key string) (ir.IRObject, error)

	// Upsert writes payload at (collection, key), replacing any existing
	// document.
	Upsert(ctx context.Context, collection, key string, payload ir.IRObject) error

	// List returns every document of a collection, sorted by key.
	List(ctx context.Context, collection string) ([]Document, error)

	Close() error
}

// Document is a stored payload with its address and content hash.
type Document struct {
	Collection  string      `json:"collection"`
	Key         string      `json:"key"`
	Payload     ir.IRObject `json:"payload"`
	ContentHash string      `json:"content_hash"`
}

// Driver names accepted by Connect.
const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// DefaultProject is used when no project id is configured.
const DefaultProject = "default"

// Config selects and configures a backend.
type Config struct {
	Driver  string `mapstructure:"driver"`
	Path    string `mapstructure:"path"`
	Project string `mapstructure:"project"`
}

// Connect opens the backend named by cfg.Driver (sqlite when empty).
func Connect(cfg Config) (Client, error) {
	project := cfg.Project
	if project == "" {
		project = DefaultProject
	}
	switch strings.ToLower(cfg.Driver) {
	case "", DriverSQLite:
		if cfg.Path == "" {
			return nil, fmt.Errorf("connect: sqlite driver requires a path: %w", ErrStoreUnavailable)
		}
		return Open(cfg.Path, project)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("connect: unknown driver %q", cfg.Driver)
	}
}

// With connects, initializes, and hands the client to fn. The client is
// closed when fn returns, whatever the outcome.
func With(ctx context.Context, cfg Config, fn func(Client) error) (err error) {
	c, err := Connect(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := c.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close store: %w", cerr)
		}
	}()
	if err := c.EnsureInitialized(ctx); err != nil {
		return err
	}
	return fn(c)
}
