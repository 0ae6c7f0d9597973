// Package sha256 provides the SHA-256 hasher behind job identity keys.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hasher implements ingest.Hasher using SHA-256.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash returns the lowercase hex digest of data.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// HashParts digests the concatenation of parts without separators.
func (h *Hasher) HashParts(parts ...string) (string, error) {
	digest := sha256.New()
	for _, p := range parts {
		if _, err := digest.Write([]byte(p)); err != nil {
			return "", err
		}
	}
	return hex.EncodeToString(digest.Sum(nil)), nil
}
