package userdb

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"

	"golang.org/x/crypto/bcrypt"
)

// keyEntropy is the number of random bytes behind a generated API key.
const keyEntropy = 28

// idPrefixLen is how many leading key characters feed the ID derivation.
// It must stay fixed forever: changing it orphans every stored user.
const idPrefixLen = 8

// GenerateKey returns a new URL-safe API key.
func GenerateKey() (string, error) {
	buf := make([]byte, keyEntropy)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// DeriveUserID maps an API key to its user ID: the first ten hex digits
// of the SHA-256 of the key's leading characters, read as an integer.
// The ID can be recomputed from any presented key without a table scan.
func DeriveUserID(key string) int64 {
	prefix := key
	if len(prefix) > idPrefixLen {
		prefix = prefix[:idPrefixLen]
	}
	sum := sha256.Sum256([]byte(prefix))
	id, err := strconv.ParseInt(hex.EncodeToString(sum[:])[:10], 16, 64)
	if err != nil {
		// 10 hex digits always fit in an int64.
		panic(err)
	}
	return id
}

// HashKey returns a bcrypt hash of the API key for storage.
func HashKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash key: %w", err)
	}
	return string(hash), nil
}

// VerifyKey reports whether the API key matches the stored hash.
func VerifyKey(hash, key string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)) == nil
}
