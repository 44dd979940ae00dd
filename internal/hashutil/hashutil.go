// Package hashutil computes the streaming content hash used for content
// identity across the sync core: stable across runs and platforms,
// collision-resistant, and cheap enough to run on every reconciler pass.
package hashutil

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

// bufSize is fixed at 8 KiB, independent of whatever buffer size is
// convenient for a given algorithm.
const bufSize = 8 * 1024

// Algorithm selects the underlying digest.
type Algorithm string

const (
	BLAKE3 Algorithm = "blake3"
	SHA256 Algorithm = "sha256"
)

// DefaultAlgorithm is BLAKE3, as recommended: 32-byte digest, 64 hex chars,
// and fast enough to hash on every watch event without stalling the
// single-threaded live reconciler.
const DefaultAlgorithm = BLAKE3

// NoHash is returned by File/Reader on any failure to open or read. The
// caller treats this as "skip this file", never as a crash.
const NoHash = ""

type Hasher struct {
	alg Algorithm
}

// New returns a Hasher for alg, falling back to SHA-256 for unknown values.
func New(alg Algorithm) Hasher {
	switch alg {
	case BLAKE3, SHA256:
		return Hasher{alg: alg}
	default:
		return Hasher{alg: SHA256}
	}
}

func (h Hasher) newDigest() hash.Hash {
	if h.alg == BLAKE3 {
		return blake3.New()
	}
	return sha256.New()
}

// File computes the lowercase hex digest of the file at path. It returns
// NoHash, not an error to the caller's caller, when the file cannot be
// opened or read, so a caller can skip the file instead of crashing.
func (h Hasher) File(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return NoHash
	}
	defer f.Close()
	sum, err := h.Reader(f)
	if err != nil {
		return NoHash
	}
	return sum
}

// Reader hashes arbitrary bytes from r using 8 KiB buffered reads.
func (h Hasher) Reader(r io.Reader) (string, error) {
	d := h.newDigest()
	buf := make([]byte, bufSize)
	if _, err := io.CopyBuffer(d, r, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(d.Sum(nil)), nil
}

// FileHash hashes path with DefaultAlgorithm. Convenience wrapper for
// reconciler call sites that don't need to choose an algorithm.
func FileHash(path string) string {
	return New(DefaultAlgorithm).File(path)
}

// ReaderHash hashes r with DefaultAlgorithm.
func ReaderHash(r io.Reader) (string, error) {
	return New(DefaultAlgorithm).Reader(r)
}
