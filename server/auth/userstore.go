package auth

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	_ "modernc.org/sqlite"
)

// UserStore is the server's UserRecord table: (username unique,
// password_hash). It shares the sqlite file the server Index uses but
// keeps its own connection and schema, since the two stores are
// independent concerns that happen to share a database.
type UserStore struct {
	mu sync.Mutex
	db *sql.DB
}

var ErrUserExists = errors.New("auth: username already registered")
var ErrUserNotFound = errors.New("auth: user not found")

const userSchema = `
CREATE TABLE IF NOT EXISTS users (
	username      TEXT PRIMARY KEY,
	password_hash TEXT NOT NULL
);
`

func NewUserStore(path string) (*UserStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("auth: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(userSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("auth: migrate: %w", err)
	}
	return &UserStore{db: db}, nil
}

func (s *UserStore) Close() error { return s.db.Close() }

// Register creates a new user with an already-hashed password. It returns
// ErrUserExists if the username is taken.
func (s *UserStore) Register(username, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`INSERT INTO users (username, password_hash) VALUES (?, ?)`, username, passwordHash)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrUserExists
		}
		return fmt.Errorf("auth: register: %w", err)
	}
	return nil
}

// PasswordHash returns the stored Argon2 PHC string for username.
func (s *UserStore) PasswordHash(username string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var hash string
	err := s.db.QueryRow(`SELECT password_hash FROM users WHERE username = ?`, username).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrUserNotFound
	}
	if err != nil {
		return "", fmt.Errorf("auth: lookup %s: %w", username, err)
	}
	return hash, nil
}

func isUniqueViolation(err error) bool {
	// modernc.org/sqlite surfaces constraint violations as plain error
	// strings rather than a typed sentinel; matching the message is the
	// same approach the sqlite ecosystem uses absent a typed error.
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
