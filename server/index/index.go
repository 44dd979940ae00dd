// Package index is the server-side Index: the durable (username, path) ->
// FileRecord mapping the upload engine reads and writes. It is built as a
// small interface, a config struct, and a constructor that decides which
// concrete store to build; the client's Local Index, by contrast, is a
// single concrete SQLite type.
package index

import (
	"context"
	"errors"
	"time"
)

// Record is the server's view of a FileRecord: scoped by username rather
// than root_dir.
type Record struct {
	Username     string
	Path         string
	ContentHash  string
	LastModified time.Time
}

// ErrExists is returned by Insert when (username, path) already has a row.
var ErrExists = errors.New("index: record already exists")

// ErrNotFound is returned by Get and Delete when no row matches.
var ErrNotFound = errors.New("index: record not found")

// Index is what the upload engine depends on. Both backends below satisfy
// it; callers never type-assert to a concrete implementation.
type Index interface {
	Get(ctx context.Context, username, path string) (Record, error)
	Insert(ctx context.Context, rec Record) error
	Delete(ctx context.Context, username, path string) error
	ListByUser(ctx context.Context, username string) ([]Record, error)
	Close() error
}

// Config selects and parameterizes a backend: small, serializable, enough
// to open a store with no further negotiation.
type Config struct {
	// Backend is "sqlite" (default) or "firestore".
	Backend string

	SQLitePath string

	FirestoreProjectID  string
	FirestoreCredential string // path to a service account key, "" for ADC
}

// New opens the configured backend.
func New(ctx context.Context, cfg Config) (Index, error) {
	switch cfg.Backend {
	case "", "sqlite":
		return newSQLiteIndex(cfg.SQLitePath)
	case "firestore":
		return newFirestoreIndex(ctx, cfg.FirestoreProjectID, cfg.FirestoreCredential)
	default:
		return nil, errors.New("index: unknown backend " + cfg.Backend)
	}
}
