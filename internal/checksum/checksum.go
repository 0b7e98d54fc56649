// Package checksum fingerprints stored notes so unchanged records can be
// skipped when re-indexing.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the hex-encoded SHA-256 digest of parts, each followed by a
// NUL so that ("ab","c") and ("a","bc") differ.
func Sum(parts ...[]byte) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Short is the first 16 hex digits of Sum, used as an entity tag.
func Short(parts ...[]byte) string {
	return Sum(parts...)[:16]
}
