// Package index is the Local Index: the client's durable record of what it
// last saw and synced for each watch root, keyed on (root_dir, path) so a
// single cache file can back multiple watched directories across restarts.
//
// It is the client-side twin of server/index, but unlike server/index it
// is a single concrete SQLite-backed type: there is no interface and no
// choice of backend.
package index

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"Syncd/internal/model"
)

// Index is the Local Index store. All methods are safe for concurrent use;
// a single process-wide mutex serializes access, matching the single
// cooperative event loop the reconciler runs on.
type Index struct {
	mu sync.Mutex
	db *sql.DB
}

// Config is small and serializable: the only thing a caller needs to open
// a store.
type Config struct {
	// Path is the SQLite database file. Use ":memory:" for tests.
	Path string
}

const schema = `
CREATE TABLE IF NOT EXISTS file_records (
	root_dir      TEXT NOT NULL,
	path          TEXT NOT NULL,
	content_hash  TEXT NOT NULL,
	last_modified TEXT NOT NULL,
	PRIMARY KEY (root_dir, path)
);
`

// New opens (creating if necessary) the Local Index at cfg.Path.
func New(cfg Config) (*Index, error) {
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("index: open %s: %w", cfg.Path, err)
	}
	// The reconciler is single-threaded by design; one connection avoids
	// SQLITE_BUSY entirely rather than tuning around it.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("index: migrate: %w", err)
	}
	return &Index{db: db}, nil
}

func (x *Index) Close() error {
	return x.db.Close()
}

// ErrExists is returned by Insert when a row already exists for
// (rootDir, path). Callers should use Update instead.
var ErrExists = fmt.Errorf("index: record already exists")

// ErrNotFound is returned by Get and Update when no row matches.
var ErrNotFound = fmt.Errorf("index: record not found")

// Get returns the record for (rootDir, path), or ErrNotFound.
func (x *Index) Get(rootDir, path string) (model.FileRecord, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	row := x.db.QueryRow(
		`SELECT path, content_hash, last_modified FROM file_records WHERE root_dir = ? AND path = ?`,
		rootDir, path,
	)
	return scanRecord(row)
}

// Insert adds a new record. It returns ErrExists if one is already present
// for (rootDir, path) — the Local Index never silently overwrites; callers
// decide between Insert and Update explicitly, same as the initial
// reconciler's walk-vs-existing-row branch.
func (x *Index) Insert(rootDir string, rec model.FileRecord) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	var exists int
	if err := x.db.QueryRow(
		`SELECT 1 FROM file_records WHERE root_dir = ? AND path = ?`, rootDir, rec.Path,
	).Scan(&exists); err == nil {
		return ErrExists
	} else if err != sql.ErrNoRows {
		return fmt.Errorf("index: insert lookup: %w", err)
	}

	_, err := x.db.Exec(
		`INSERT INTO file_records (root_dir, path, content_hash, last_modified) VALUES (?, ?, ?, ?)`,
		rootDir, rec.Path, rec.ContentHash, rec.LastModified.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("index: insert: %w", err)
	}
	return nil
}

// Update replaces the record for (rootDir, path). Returns ErrNotFound if no
// row existed.
func (x *Index) Update(rootDir string, rec model.FileRecord) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	res, err := x.db.Exec(
		`UPDATE file_records SET content_hash = ?, last_modified = ? WHERE root_dir = ? AND path = ?`,
		rec.ContentHash, rec.LastModified.UTC().Format(time.RFC3339Nano), rootDir, rec.Path,
	)
	if err != nil {
		return fmt.Errorf("index: update: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("index: update rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Upsert inserts or updates, whichever applies, in a single statement.
// The reconcilers do not call it; they look the row up with Get and then
// choose Insert or Update.
func (x *Index) Upsert(rootDir string, rec model.FileRecord) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	_, err := x.db.Exec(
		`INSERT INTO file_records (root_dir, path, content_hash, last_modified) VALUES (?, ?, ?, ?)
		 ON CONFLICT (root_dir, path) DO UPDATE SET content_hash = excluded.content_hash, last_modified = excluded.last_modified`,
		rootDir, rec.Path, rec.ContentHash, rec.LastModified.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("index: upsert: %w", err)
	}
	return nil
}

// Remove deletes the record for (rootDir, path). It does not return
// ErrNotFound for a missing row: removal is idempotent, matching the
// reconciler's "strip prefix, remove unconditionally" handling of delete
// events.
func (x *Index) Remove(rootDir, path string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if _, err := x.db.Exec(`DELETE FROM file_records WHERE root_dir = ? AND path = ?`, rootDir, path); err != nil {
		return fmt.Errorf("index: remove: %w", err)
	}
	return nil
}

// List returns every record scoped to rootDir, sorted by path. The initial
// reconciler diffs this set against a fresh tree walk to compute the
// deletion closure.
func (x *Index) List(rootDir string) ([]model.FileRecord, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	rows, err := x.db.Query(
		`SELECT path, content_hash, last_modified FROM file_records WHERE root_dir = ? ORDER BY path`,
		rootDir,
	)
	if err != nil {
		return nil, fmt.Errorf("index: list: %w", err)
	}
	defer rows.Close()

	var out []model.FileRecord
	for rows.Next() {
		var path, hash, lastMod string
		if err := rows.Scan(&path, &hash, &lastMod); err != nil {
			return nil, fmt.Errorf("index: list scan: %w", err)
		}
		t, err := time.Parse(time.RFC3339Nano, lastMod)
		if err != nil {
			return nil, fmt.Errorf("index: list parse time: %w", err)
		}
		out = append(out, model.FileRecord{Path: path, ContentHash: hash, LastModified: t})
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (model.FileRecord, error) {
	var path, hash, lastMod string
	if err := row.Scan(&path, &hash, &lastMod); err != nil {
		if err == sql.ErrNoRows {
			return model.FileRecord{}, ErrNotFound
		}
		return model.FileRecord{}, fmt.Errorf("index: scan: %w", err)
	}
	t, err := time.Parse(time.RFC3339Nano, lastMod)
	if err != nil {
		return model.FileRecord{}, fmt.Errorf("index: parse time: %w", err)
	}
	return model.FileRecord{Path: path, ContentHash: hash, LastModified: t}, nil
}
