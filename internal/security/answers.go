package security

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// HashAnswer returns the hex SHA-256 of salt followed by the normalized answer.
func HashAnswer(salt, normalized string) string {
	h := sha256.Sum256([]byte(salt + normalized))
	return hex.EncodeToString(h[:])
}

// IsBcrypt reports whether stored is a bcrypt hash ("$2a$", "$2b$", "$2y$").
func IsBcrypt(stored string) bool {
	return strings.HasPrefix(stored, "$2")
}

// AnswerMatches reports whether salt+normalized hashes to stored. SHA-256 hashes are compared in
// constant time; bcrypt hashes are checked with bcrypt.
func AnswerMatches(salt, normalized, stored string) bool {
	if stored == "" {
		return false
	}
	if IsBcrypt(stored) {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(salt+normalized)) == nil
	}
	provided := HashAnswer(salt, normalized)
	return subtle.ConstantTimeCompare([]byte(provided), []byte(strings.ToLower(stored))) == 1
}

// Hasher produces bcrypt answer hashes for enrolment.
type Hasher struct {
	Cost int
}

// NewHasher returns a Hasher with the given bcrypt cost, clamped to bcrypt's bounds.
func NewHasher(cost int) *Hasher {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	return &Hasher{Cost: cost}
}

// Hash returns the bcrypt hash of salt+normalized.
func (h *Hasher) Hash(salt, normalized string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(salt+normalized), h.Cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
