// Package config loads the server's environment-derived configuration: the
// JWT signing secret, optional TLS material, and the storage backends to
// wire up, after loading any .env file into the environment.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Server is everything main needs to stand up the HTTP server.
type Server struct {
	Port        int
	JWTSecret   string
	TLSCertFile string // "" when TLS is not configured
	TLSKeyFile  string

	SQLitePath  string
	BlobRoot    string
	FirestoreID string // optional alternate index backend
	R2Bucket    string // optional blob mirror
}

const (
	defaultSQLitePath = "syncd-server.db"
	defaultBlobRoot   = "uploads"
	defaultTLSCert    = "certs/cert.pem"
	defaultTLSKey     = "certs/key.pem"
)

// LoadServer reads .env (and parent directories, same search order the
// desktop client used) then assembles the server config from the
// environment. port is the CLI-supplied --port flag, which always wins
// over anything in the environment.
func LoadServer(port int) (Server, error) {
	_ = godotenv.Overload(".env", "../.env", "../../.env")

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return Server{}, fmt.Errorf("config: missing required env JWT_SECRET")
	}

	cfg := Server{
		Port:        port,
		JWTSecret:   secret,
		SQLitePath:  envOr("SYNCD_DB_PATH", defaultSQLitePath),
		BlobRoot:    envOr("SYNCD_BLOB_ROOT", defaultBlobRoot),
		FirestoreID: os.Getenv("SYNCD_FIRESTORE_PROJECT_ID"),
		R2Bucket:    os.Getenv("SYNCD_R2_BUCKET"),
	}

	cert := envOr("SYNCD_TLS_CERT", defaultTLSCert)
	key := envOr("SYNCD_TLS_KEY", defaultTLSKey)
	if fileExists(cert) && fileExists(key) {
		cfg.TLSCertFile = cert
		cfg.TLSKeyFile = key
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
