package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// SecretBytes is the entropy of session and device secrets (256 bits).
const SecretBytes = 32

// GenerateSecret returns SecretBytes of crypto/rand output, hex-encoded.
func GenerateSecret() (string, error) {
	b := make([]byte, SecretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// HashSecret returns the hex SHA-256 digest of a session secret, device secret
// or legacy token. Only digests are persisted.
func HashSecret(secret string) string {
	h := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(h[:])
}

// SecretHashEqual reports whether provided hashes to storedHash, comparing in
// constant time.
func SecretHashEqual(provided, storedHash string) bool {
	providedHash := HashSecret(provided)
	return subtle.ConstantTimeCompare([]byte(providedHash), []byte(storedHash)) == 1
}
