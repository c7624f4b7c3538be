package flow

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"

	"github.com/caregate/caregate/domain"
)

// PBKDF2Hasher derives password digests with PBKDF2-HMAC-SHA256 over a
// random per-password salt. The digest wire format is "salt:hex", with the
// 16-byte salt hex-encoded in front of the separator.
//
// Compare also accepts a bare SHA-256 hex digest with no separator. That is
// the legacy unsalted format carried over for pre-migration accounts; new
// digests are always salted.
type PBKDF2Hasher struct {
	Iterations int
	SaltBytes  int
	KeyBytes   int
}

// NewPBKDF2Hasher returns a hasher with the fixed production work factor.
func NewPBKDF2Hasher() *PBKDF2Hasher {
	return &PBKDF2Hasher{
		Iterations: 100000,
		SaltBytes:  16,
		KeyBytes:   32,
	}
}

var _ domain.Hasher = (*PBKDF2Hasher)(nil)

// Hash derives a fresh salted digest for the password.
func (h *PBKDF2Hasher) Hash(password string) (string, error) {
	raw := make([]byte, h.SaltBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("hasher: rand read failed: %w", err)
	}
	salt := hex.EncodeToString(raw)
	key := pbkdf2.Key([]byte(password), []byte(salt), h.Iterations, h.KeyBytes, sha256.New)
	return salt + ":" + hex.EncodeToString(key), nil
}

// Compare reports whether the password matches the digest. A malformed
// digest compares false; it never errors to the caller.
func (h *PBKDF2Hasher) Compare(password, digest string) bool {
	salt, want, ok := strings.Cut(digest, ":")
	if !ok {
		// Legacy unsalted digest.
		sum := sha256.Sum256([]byte(password))
		got := hex.EncodeToString(sum[:])
		return subtle.ConstantTimeCompare([]byte(got), []byte(digest)) == 1
	}
	key := pbkdf2.Key([]byte(password), []byte(salt), h.Iterations, h.KeyBytes, sha256.New)
	got := hex.EncodeToString(key)
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// LegacyDigest returns the unsalted SHA-256 hex digest of the password.
// Only used to seed pre-migration demo data; never for new accounts.
func LegacyDigest(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}
