package util

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashKey returns a hex SHA-256 digest of s, safe for use as a map or cache key.
func HashKey(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
