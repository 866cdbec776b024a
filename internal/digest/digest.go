// Package digest computes the content address used for deduplication.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
)

// Size is the length of a hex encoded digest.
const Size = sha256.Size * 2

// Sum returns the lowercase hex SHA-256 of data.
func Sum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func Valid(s string) bool {
	if len(s) != Size {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
