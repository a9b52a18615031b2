package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	// bcryptCost is the default cost for bcrypt hashing.
	// Cost of 10 provides a good balance between security and performance.
	bcryptCost = 10
)

// HashServiceKey generates a bcrypt hash of an internal API service key.
// Config files store only the hash.
func HashServiceKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash service key: %w", err)
	}
	return string(hash), nil
}

// MatchServiceKey reports whether the presented key matches any of the
// configured bcrypt hashes.
func MatchServiceKey(hashes []string, key string) bool {
	for _, h := range hashes {
		if bcrypt.CompareHashAndPassword([]byte(h), []byte(key)) == nil {
			return true
		}
	}
	return false
}
