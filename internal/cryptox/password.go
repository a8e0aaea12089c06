package cryptox

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const argon2ID = "argon2id"

// MinPasswordLength is the minimum accepted password length in bytes.
const MinPasswordLength = 10

var (
	ErrPasswordTooShort = errors.New("password too short")
	ErrInvalidHash      = errors.New("invalid password hash")
)

// PasswordParams configures Argon2id.
type PasswordParams struct {
	Memory      uint32 // KiB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultPasswordParams follows the RFC 9106 second recommended option.
var DefaultPasswordParams = PasswordParams{
	Memory:      64 * 1024,
	Time:        3,
	Parallelism: 2,
	SaltLength:  16,
	KeyLength:   32,
}

// PasswordHasher produces and checks PHC-formatted Argon2id hashes:
//
//	$argon2id$v=19$m=65536,t=3,p=2$<salt b64>$<hash b64>
type PasswordHasher struct {
	params PasswordParams
	dummy  string
}

// NewPasswordHasher validates params and precomputes a dummy hash used to
// keep the cost of a login against an unknown account the same as a real one.
func NewPasswordHasher(p PasswordParams) (*PasswordHasher, error) {
	if p.Memory < 8*1024 || p.Time < 1 || p.Parallelism < 1 || p.SaltLength < 16 || p.KeyLength < 16 {
		return nil, errors.New("argon2 parameters below minimum")
	}
	h := &PasswordHasher{params: p}

	dummy, err := h.Hash(GenerateKey())
	if err != nil {
		return nil, err
	}
	h.dummy = dummy
	return h, nil
}

// Hash returns the PHC string for password.
func (h *PasswordHasher) Hash(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", ErrPasswordTooShort
	}

	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	key := argon2.IDKey([]byte(password), salt, h.params.Time, h.params.Memory, h.params.Parallelism, h.params.KeyLength)

	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2ID, argon2.Version,
		h.params.Memory, h.params.Time, h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether password matches encoded. The parameters embedded in
// encoded are used, so hashes survive parameter upgrades.
func (h *PasswordHasher) Verify(password, encoded string) (bool, error) {
	p, salt, key, err := decodeHash(encoded)
	if err != nil {
		return false, err
	}

	candidate := argon2.IDKey([]byte(password), salt, p.Time, p.Memory, p.Parallelism, uint32(len(key)))
	return subtle.ConstantTimeCompare(candidate, key) == 1, nil
}

// VerifyDummy burns the same work as Verify against a throwaway hash and
// always reports false.
func (h *PasswordHasher) VerifyDummy(password string) {
	_, _ = h.Verify(password, h.dummy)
}

func decodeHash(encoded string) (PasswordParams, []byte, []byte, error) {
	var p PasswordParams

	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != argon2ID {
		return p, nil, nil, ErrInvalidHash
	}

	if parts[2] != "v="+strconv.Itoa(argon2.Version) {
		return p, nil, nil, ErrInvalidHash
	}

	var parallelism uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Time, &parallelism); err != nil {
		return p, nil, nil, ErrInvalidHash
	}
	if p.Memory == 0 || p.Time == 0 || parallelism == 0 || parallelism > 255 {
		return p, nil, nil, ErrInvalidHash
	}
	p.Parallelism = uint8(parallelism)

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) == 0 {
		return p, nil, nil, ErrInvalidHash
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return p, nil, nil, ErrInvalidHash
	}

	return p, salt, key, nil
}
