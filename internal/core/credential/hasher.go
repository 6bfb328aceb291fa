// Package credential holds the password hashing primitives shared by the
// server and the offline mirror, plus the password and secret-word policies.
//
// The storage hash (bcrypt) and the offline verifier (SHA-256 over username
// and password) are derived independently: neither can be computed from the
// other.
package credential

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	verifierSeparator = "::"
	fingerprintBytes  = 16
)

// ErrEmptyPassword is returned when hashing an empty password.
var ErrEmptyPassword = errors.New("password must not be empty")

// Hasher produces durable password hashes.
type Hasher struct {
	cost int
}

// NewHasher returns a Hasher using the given bcrypt cost. Out of range costs
// fall back to bcrypt.DefaultCost.
func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Hasher{cost: cost}
}

// HashForStorage returns a salted bcrypt hash of password.
func (h *Hasher) HashForStorage(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyStorageHash reports whether password matches hash.
func (h *Hasher) VerifyStorageHash(password, hash string) bool {
	if password == "" || hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// PasswordVersionFingerprint digests the stored hash, not the password, so it
// changes exactly when the hash changes.
func PasswordVersionFingerprint(hash string) string {
	sum := sha256.Sum256([]byte(hash))
	return hex.EncodeToString(sum[:fingerprintBytes])
}

// DeriveOfflineVerifier returns the offline verifier for a username/password pair.
func DeriveOfflineVerifier(username, password string) string {
	sum := sha256.Sum256([]byte(NormalizeUsername(username) + verifierSeparator + password))
	return hex.EncodeToString(sum[:])
}

// TokenFingerprint is the one-way digest under which sessions are stored.
func TokenFingerprint(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// NormalizeUsername lowercases and trims a username for lookups.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// NormalizeEmail lowercases and trims an email address for comparisons.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizePhone keeps only the digits of a phone number.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
