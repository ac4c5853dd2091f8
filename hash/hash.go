// Package hash provides the checksum primitive for persisted workspace
// state: SHA-256 over RFC 8785 canonical JSON, so the digest is stable
// under key reordering.
package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/gowebpki/jcs"
)

// Algorithm identifies the digest algorithm.
type Algorithm string

const (
	// SHA256 produces 64 lowercase hex characters.
	SHA256 Algorithm = "sha256"
)

// Hasher computes deterministic content checksums.
type Hasher struct {
	algorithm Algorithm
}

// NewHasher creates a hasher using the given algorithm.
func NewHasher(algorithm Algorithm) *Hasher {
	return &Hasher{algorithm: algorithm}
}

// DefaultHasher returns a SHA-256 hasher.
func DefaultHasher() *Hasher {
	return NewHasher(SHA256)
}

// Hash digests raw bytes.
func (h *Hasher) Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashString digests a string.
func (h *Hasher) HashString(s string) string {
	return h.Hash([]byte(s))
}

// HashCanonicalJSON digests the canonical form of already-serialized JSON.
// Fails when the input is not valid JSON.
func (h *Hasher) HashCanonicalJSON(data []byte) (string, error) {
	canonical, err := jcs.Transform(data)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize JSON: %w", err)
	}
	return h.Hash(canonical), nil
}

// HashValue serializes v and digests its canonical JSON form.
func (h *Hasher) HashValue(v interface{}) (string, error) {
	data, err := sonic.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal value: %w", err)
	}
	return h.HashCanonicalJSON(data)
}
