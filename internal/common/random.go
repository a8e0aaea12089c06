package common

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
)

// GenerateRandByteArray returns size bytes from crypto/rand. It panics if the
// system random source is unavailable, which is not recoverable anyway.
func GenerateRandByteArray(size int) []byte {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return b
}

// WipeByteArray overwrites the contents of b with zeros. A nil slice is a no-op.
func WipeByteArray(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// TokenHandle returns the storage handle of a raw token: the hex encoded
// SHA-256 digest. Raw bearer and reset tokens are never persisted.
func TokenHandle(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
