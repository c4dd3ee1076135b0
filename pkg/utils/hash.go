package utils

import (
	"crypto/md5"
	"crypto/sha256"
	"fmt"
)

// ContentHash is the canonical fingerprint for chunk content, compared
// against the stored metadata hash during staleness checks.
func ContentHash(content string) string {
	hash := sha256.Sum256([]byte(content))
	return fmt.Sprintf("%x", hash)
}

// HashString produces short identifiers for cache keys and document IDs.
func HashString(input string) string {
	hash := md5.Sum([]byte(input))
	return fmt.Sprintf("%x", hash)
}
