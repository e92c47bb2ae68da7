package userdb

import (
	"context"

	"github.com/modestbitboard/breadbox"
)

// MapDirectory resolves API keys from an in-memory map. Suitable for
// inline configuration and tests; it has no management operations.
type MapDirectory struct {
	users map[string]breadbox.Identity
}

// NewMapDirectory creates a directory from a plaintext key to identity
// mapping.
func NewMapDirectory(users map[string]breadbox.Identity) *MapDirectory {
	return &MapDirectory{users: users}
}

// Lookup retrieves the identity registered for the given API key.
func (d *MapDirectory) Lookup(_ context.Context, apiKey string) (breadbox.Identity, bool, error) {
	identity, found := d.users[apiKey]
	return identity, found, nil
}
