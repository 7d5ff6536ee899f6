// Package sha256 provides the SHA-256 hasher used for corpus stamps and
// embedding cache keys.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hasher implements kb.Hasher using SHA-256.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash hashes the input and returns a hex digest.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Key derives a namespaced digest from several string parts. Parts are
// length-prefixed so ("ab","c") and ("a","bc") never collide.
func (h *Hasher) Key(parts ...string) string {
	d := sha256.New()
	var prefix [8]byte
	for _, p := range parts {
		n := uint64(len(p))
		for i := range prefix {
			prefix[i] = byte(n >> (8 * i))
		}
		d.Write(prefix[:])
		d.Write([]byte(p))
	}
	return hex.EncodeToString(d.Sum(nil))
}
