package session

import (
	"crypto/sha256"
	"encoding/hex"
)

// keyLen is the length of a derived session ID in hex characters.
const keyLen = 16

// DeriveKey produces the deterministic session ID for the composite key
// (apiKey, streamKey, domain): the SHA-256 digest of "apiKey:streamKey:domain",
// hex-encoded and truncated to 16 characters.
//
// Identical inputs always yield the same ID, which makes registration
// idempotent without a separate existence check. The raw API key never
// appears in the ID, so it is safe to embed in tokens and responses.
func DeriveKey(apiKey, streamKey, domain string) string {
	sum := sha256.Sum256([]byte(apiKey + ":" + streamKey + ":" + domain))
	return hex.EncodeToString(sum[:])[:keyLen]
}
