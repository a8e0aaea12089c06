// Package cryptox holds the symmetric cipher used for third-party secrets at
// rest, provisioning-key parsing, and the Argon2id password hasher.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/authcore/internal/common"
)

// KeySize is the only accepted SecretCipher key length (AES-256).
const KeySize = 32

// ErrInvalidKey is returned for keys that are missing or not KeySize bytes.
var ErrInvalidKey = errors.New("encryption key must be 32 bytes")

// SecretCipher encrypts opaque third-party credentials with AES-256-GCM.
//
// Every Encrypt call draws a fresh random nonce; the stored form is
// base64url(nonce || ciphertext || tag). GCM authenticates the whole value,
// so a wrong key or any flipped bit makes Decrypt fail instead of returning
// altered plaintext.
//
// A SecretCipher is safe for concurrent use.
type SecretCipher struct {
	aead cipher.AEAD
}

// NewSecretCipher builds a cipher for key, which must be exactly KeySize bytes.
func NewSecretCipher(key []byte) (*SecretCipher, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return &SecretCipher{aead: aead}, nil
}

// Encrypt seals plaintext and returns the combined nonce+ciphertext string.
func (c *SecretCipher) Encrypt(plaintext []byte) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}

	sealed := c.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt. Any failure is reported as
// common.ErrDecryption without detail.
func (c *SecretCipher) Decrypt(combined string) ([]byte, error) {
	raw, err := base64.RawURLEncoding.DecodeString(combined)
	if err != nil {
		return nil, common.ErrDecryption
	}

	ns := c.aead.NonceSize()
	if len(raw) < ns+c.aead.Overhead() {
		return nil, common.ErrDecryption
	}

	plaintext, err := c.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return nil, common.ErrDecryption
	}
	return plaintext, nil
}

// ParseKey decodes a provisioned key given as 64 hex characters or as
// standard / URL-safe base64 (padded or not). The decoded key must be
// KeySize bytes.
func ParseKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrInvalidKey
	}

	if len(s) == hex.EncodedLen(KeySize) {
		if b, err := hex.DecodeString(s); err == nil {
			return b, nil
		}
	}

	for _, enc := range []*base64.Encoding{
		base64.StdEncoding, base64.RawStdEncoding,
		base64.URLEncoding, base64.RawURLEncoding,
	} {
		if b, err := enc.DecodeString(s); err == nil {
			if len(b) != KeySize {
				return nil, ErrInvalidKey
			}
			return b, nil
		}
	}

	return nil, ErrInvalidKey
}

// GenerateKey returns a new random key encoded as hex, suitable for ParseKey.
func GenerateKey() string {
	return hex.EncodeToString(common.GenerateRandByteArray(KeySize))
}
