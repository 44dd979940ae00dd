// Package token is the Token Store: the client's on-disk record of the
// server URL and the logged-in session, read on every authenticated call
// and rewritten whenever the session refreshes.
//
// Both files it owns are written with the same write-tmp, fsync, rename
// sequence backend/localcache.go uses for .portsy/cache.json, so a crash
// mid-write never leaves a truncated token.json behind.
package token

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"Syncd/internal/model"
)

// Dir holds the two files the client keeps between runs: config.json (just
// the server URL) and token.json (the session). Both live in the same
// directory, conventionally the user's OS config dir.
type Dir struct {
	path string
}

// New returns a Dir rooted at dir. The directory is created on first
// Save, not here — an unconfigured client (no set-url yet) has nowhere to
// write and that's a valid state, not an error.
func New(dir string) *Dir {
	return &Dir{path: dir}
}

func (d *Dir) configFile() string { return filepath.Join(d.path, "config.json") }
func (d *Dir) tokenFile() string  { return filepath.Join(d.path, "token.json") }

type clientConfig struct {
	ServerURL string `json:"url"`
}

// LoadURL returns the configured server URL, or an error instructing the
// caller to run set-url first.
func (d *Dir) LoadURL() (string, error) {
	var cfg clientConfig
	if err := readJSON(d.configFile(), &cfg); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("no server configured, run: client set-url <url>")
		}
		return "", err
	}
	if cfg.ServerURL == "" {
		return "", fmt.Errorf("no server configured, run: client set-url <url>")
	}
	return cfg.ServerURL, nil
}

// SaveURL persists the server URL for future commands.
func (d *Dir) SaveURL(url string) error {
	return writeJSON(d.path, d.configFile(), clientConfig{ServerURL: url})
}

// LoadTokens returns the current session, or an error instructing the
// caller to log in.
func (d *Dir) LoadTokens() (model.TokenState, error) {
	var ts model.TokenState
	if err := readJSON(d.tokenFile(), &ts); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return model.TokenState{}, fmt.Errorf("not logged in, run: client login")
		}
		return model.TokenState{}, err
	}
	return ts, nil
}

// SaveTokens persists a freshly issued or refreshed session.
func (d *Dir) SaveTokens(ts model.TokenState) error {
	return writeJSON(d.path, d.tokenFile(), ts)
}

// IsExpired reports whether the access token in ts has passed its expiry,
// with a small skew margin so a call started just before expiry isn't
// rejected mid-flight by the server's own clock.
func IsExpired(ts model.TokenState, now time.Time) bool {
	const skew = 5 * time.Second
	return now.Add(skew).Unix() >= ts.ExpiresAt
}

func readJSON(path string, v any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// writeJSON writes v to path atomically: write to path+".tmp", fsync,
// rename over path, then best-effort fsync the containing directory so the
// rename itself survives a crash.
func writeJSON(dir, path string, v any) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("token: ensure dir: %w", err)
	}

	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("token: marshal: %w", err)
	}

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("token: open tmp: %w", err)
	}
	_, werr := f.Write(b)
	serr := f.Sync()
	cerr := f.Close()
	if werr != nil {
		return fmt.Errorf("token: write tmp: %w", werr)
	}
	if serr != nil {
		return fmt.Errorf("token: fsync tmp: %w", serr)
	}
	if cerr != nil {
		return fmt.Errorf("token: close tmp: %w", cerr)
	}

	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("token: rename: %w", err)
	}

	if dirf, err := os.Open(dir); err == nil {
		_ = dirf.Sync()
		_ = dirf.Close()
	}
	return nil
}
