package breadbox

import "context"

// Identity is the result of resolving an API key against a user directory.
type Identity struct {
	Username  string
	AuthLevel int
}

// UserDirectory resolves opaque API keys to identities.
//
// Lookup returns (identity, true, nil) for a valid key and (zero, false, nil)
// for an unknown or non-matching key. A non-nil error indicates a directory
// failure (database down, etc.) rather than a bad key.
//
// Implementations may perform I/O and must respect context cancellation.
type UserDirectory interface {
	Lookup(ctx context.Context, apiKey string) (Identity, bool, error)
}

// DirectoryFunc adapts a plain function to the UserDirectory interface.
type DirectoryFunc func(ctx context.Context, apiKey string) (Identity, bool, error)

// Lookup calls f.
func (f DirectoryFunc) Lookup(ctx context.Context, apiKey string) (Identity, bool, error) {
	return f(ctx, apiKey)
}
