package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// CacheKey builds a stable hex key from lookup parts (e.g. title + year).
// Parts are trimmed and lower-cased so "Heat " and "heat" share an entry.
func CacheKey(parts ...string) string {
	norm := make([]string, len(parts))
	for i, p := range parts {
		norm[i] = strings.ToLower(strings.TrimSpace(p))
	}
	sum := sha256.Sum256([]byte(strings.Join(norm, "\x1f")))
	return hex.EncodeToString(sum[:])
}
