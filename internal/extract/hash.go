package extract

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashBytes computes the SHA-256 content fingerprint of raw bytes as a
// 64-character lowercase hex string. Used for the duplicate pre-check and
// the store's uniqueness invariant.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
