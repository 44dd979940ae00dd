package index

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// sqliteIndex is the default server Index backend — the same storage
// engine the Local Index uses, reused here behind the server-scoped
// interface instead of the client's root_dir-scoped one.
type sqliteIndex struct {
	mu sync.Mutex
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS server_records (
	username      TEXT NOT NULL,
	path          TEXT NOT NULL,
	content_hash  TEXT NOT NULL,
	last_modified TEXT NOT NULL,
	PRIMARY KEY (username, path)
);
`

func newSQLiteIndex(path string) (Index, error) {
	if path == "" {
		path = "syncd-server.db"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("index: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("index: migrate: %w", err)
	}
	return &sqliteIndex{db: db}, nil
}

func (x *sqliteIndex) Close() error { return x.db.Close() }

func (x *sqliteIndex) Get(ctx context.Context, username, path string) (Record, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	row := x.db.QueryRowContext(ctx,
		`SELECT username, path, content_hash, last_modified FROM server_records WHERE username = ? AND path = ?`,
		username, path,
	)
	return scanRecord(row)
}

func (x *sqliteIndex) Insert(ctx context.Context, rec Record) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	var exists int
	err := x.db.QueryRowContext(ctx,
		`SELECT 1 FROM server_records WHERE username = ? AND path = ?`, rec.Username, rec.Path,
	).Scan(&exists)
	if err == nil {
		return ErrExists
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("index: insert lookup: %w", err)
	}

	_, err = x.db.ExecContext(ctx,
		`INSERT INTO server_records (username, path, content_hash, last_modified) VALUES (?, ?, ?, ?)`,
		rec.Username, rec.Path, rec.ContentHash, rec.LastModified.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("index: insert: %w", err)
	}
	return nil
}

func (x *sqliteIndex) Delete(ctx context.Context, username, path string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	res, err := x.db.ExecContext(ctx, `DELETE FROM server_records WHERE username = ? AND path = ?`, username, path)
	if err != nil {
		return fmt.Errorf("index: delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("index: delete rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (x *sqliteIndex) ListByUser(ctx context.Context, username string) ([]Record, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	rows, err := x.db.QueryContext(ctx,
		`SELECT username, path, content_hash, last_modified FROM server_records WHERE username = ? ORDER BY path`,
		username,
	)
	if err != nil {
		return nil, fmt.Errorf("index: list: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var username, path, hash, lastMod string
	if err := row.Scan(&username, &path, &hash, &lastMod); err != nil {
		if err == sql.ErrNoRows {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("index: scan: %w", err)
	}
	t, err := time.Parse(time.RFC3339Nano, lastMod)
	if err != nil {
		return Record{}, fmt.Errorf("index: parse time: %w", err)
	}
	return Record{Username: username, Path: path, ContentHash: hash, LastModified: t}, nil
}
