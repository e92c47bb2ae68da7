// Package userdb stores registered users and resolves API keys to
// identities.
//
// A user record holds a numeric ID derived from the key itself, the
// username, an access level, and a bcrypt hash of the key. The plaintext
// key is shown once at creation and never stored, so a lookup first
// derives the candidate ID from the presented key and then verifies the
// key against the stored hash.
//
// Two SQL backends are provided, SQLite and PostgreSQL, selected through
// Config and Open. MapDirectory serves inline configuration and tests.
package userdb
