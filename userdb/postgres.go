package userdb

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/modestbitboard/breadbox"
)

// PostgresStore keeps users in a PostgreSQL table.
type PostgresStore struct {
	pool  *pgxpool.Pool
	table string
}

// NewPostgresStore creates the user table if needed and returns a store
// bound to it.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool, table string) (*PostgresStore, error) {
	if !breadbox.IsValidName(table) {
		return nil, fmt.Errorf("invalid table name: %q", table)
	}

	createSQL := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id BIGINT NOT NULL PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			auth_level INTEGER NOT NULL,
			key_hash TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)
	`, quoteIdentifier(table))

	if _, err := pool.Exec(ctx, createSQL); err != nil {
		return nil, fmt.Errorf("create user table: %w", err)
	}

	return &PostgresStore{pool: pool, table: table}, nil
}

// Lookup resolves an API key to an identity. An unknown or mismatched key
// is not an error, just not found.
func (s *PostgresStore) Lookup(ctx context.Context, apiKey string) (breadbox.Identity, bool, error) {
	query := fmt.Sprintf( //nolint:gosec // G201: table name is validated
		`SELECT username, auth_level, key_hash FROM %s WHERE id = $1`, quoteIdentifier(s.table))

	var identity breadbox.Identity
	var keyHash string

	err := s.pool.QueryRow(ctx, query, DeriveUserID(apiKey)).Scan(
		&identity.Username, &identity.AuthLevel, &keyHash,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return breadbox.Identity{}, false, nil
		}
		return breadbox.Identity{}, false, fmt.Errorf("lookup: %w", err)
	}

	if !VerifyKey(keyHash, apiKey) {
		return breadbox.Identity{}, false, nil
	}

	return identity, true, nil
}

func (s *PostgresStore) Create(ctx context.Context, username string, authLevel int) (User, string, error) {
	table := quoteIdentifier(s.table)

	var taken bool
	checkQuery := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE username = $1)`, table) //nolint:gosec // table name is validated
	if err := s.pool.QueryRow(ctx, checkQuery, username).Scan(&taken); err != nil {
		return User{}, "", fmt.Errorf("create user: check username: %w", err)
	}
	if taken {
		return User{}, "", fmt.Errorf("create user %q: %w", username, ErrUserExists)
	}

	insertQuery := fmt.Sprintf( //nolint:gosec // G201: table name is validated
		`INSERT INTO %s (id, username, auth_level, key_hash, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING`, table)

	for range createAttempts {
		user, key, hash, err := newUser(username, authLevel)
		if err != nil {
			return User{}, "", fmt.Errorf("create user: %w", err)
		}

		tag, err := s.pool.Exec(ctx, insertQuery,
			user.ID, user.Username, user.AuthLevel, hash, user.CreatedAt,
		)
		if err != nil {
			return User{}, "", fmt.Errorf("create user: insert: %w", err)
		}

		// Zero rows means the derived ID collided with an existing user.
		// Mint a new key and try again.
		if tag.RowsAffected() == 0 {
			continue
		}

		return user, key, nil
	}

	return User{}, "", fmt.Errorf("create user %q: could not find a free user id", username)
}

func (s *PostgresStore) Remove(ctx context.Context, username string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE username = $1`, quoteIdentifier(s.table)) //nolint:gosec // table name is validated

	tag, err := s.pool.Exec(ctx, query, username)
	if err != nil {
		return fmt.Errorf("remove user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("remove user %q: %w", username, breadbox.ErrNotFound)
	}

	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]User, error) {
	query := fmt.Sprintf( //nolint:gosec // G201: table name is validated
		`SELECT id, username, auth_level, created_at FROM %s ORDER BY username`, quoteIdentifier(s.table))

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.AuthLevel, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("list users: scan: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list users: rows: %w", err)
	}

	return users, nil
}
