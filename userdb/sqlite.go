package userdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/modestbitboard/breadbox"
)

// SQLiteStore keeps users in a SQLite table.
type SQLiteStore struct {
	db    *sql.DB
	table string
}

// NewSQLiteStore creates the user table if needed and returns a store
// bound to it.
func NewSQLiteStore(ctx context.Context, db *sql.DB, table string) (*SQLiteStore, error) {
	if !breadbox.IsValidName(table) {
		return nil, fmt.Errorf("invalid table name: %q", table)
	}

	createSQL := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id INTEGER NOT NULL PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			auth_level INTEGER NOT NULL,
			key_hash TEXT NOT NULL,
			created_at TEXT NOT NULL
		)
	`, quoteIdentifier(table))

	if _, err := db.ExecContext(ctx, createSQL); err != nil {
		return nil, fmt.Errorf("create user table: %w", err)
	}

	return &SQLiteStore{db: db, table: table}, nil
}

// Lookup resolves an API key to an identity. An unknown or mismatched key
// is not an error, just not found.
func (s *SQLiteStore) Lookup(ctx context.Context, apiKey string) (breadbox.Identity, bool, error) {
	query := fmt.Sprintf( //nolint:gosec // G201: table name is validated
		`SELECT username, auth_level, key_hash FROM %s WHERE id = ?`, quoteIdentifier(s.table))

	var identity breadbox.Identity
	var keyHash string

	err := s.db.QueryRowContext(ctx, query, DeriveUserID(apiKey)).Scan(
		&identity.Username, &identity.AuthLevel, &keyHash,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return breadbox.Identity{}, false, nil
		}
		return breadbox.Identity{}, false, fmt.Errorf("lookup: %w", err)
	}

	if !VerifyKey(keyHash, apiKey) {
		return breadbox.Identity{}, false, nil
	}

	return identity, true, nil
}

func (s *SQLiteStore) Create(ctx context.Context, username string, authLevel int) (User, string, error) {
	table := quoteIdentifier(s.table)

	var taken bool
	checkQuery := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE username = ?)`, table) //nolint:gosec // table name is validated
	if err := s.db.QueryRowContext(ctx, checkQuery, username).Scan(&taken); err != nil {
		return User{}, "", fmt.Errorf("create user: check username: %w", err)
	}
	if taken {
		return User{}, "", fmt.Errorf("create user %q: %w", username, ErrUserExists)
	}

	idQuery := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE id = ?)`, table)         //nolint:gosec // table name is validated
	insertQuery := fmt.Sprintf(                                                            //nolint:gosec // G201: table name is validated
		`INSERT INTO %s (id, username, auth_level, key_hash, created_at)
		VALUES (?, ?, ?, ?, ?)`, table)

	for range createAttempts {
		user, key, hash, err := newUser(username, authLevel)
		if err != nil {
			return User{}, "", fmt.Errorf("create user: %w", err)
		}

		// A fresh key can derive an ID already held by another user. Mint
		// a new key instead of failing the insert.
		var exists bool
		if err := s.db.QueryRowContext(ctx, idQuery, user.ID).Scan(&exists); err != nil {
			return User{}, "", fmt.Errorf("create user: check id: %w", err)
		}
		if exists {
			continue
		}

		_, err = s.db.ExecContext(ctx, insertQuery,
			user.ID, user.Username, user.AuthLevel, hash,
			user.CreatedAt.Format(time.RFC3339Nano),
		)
		if err != nil {
			return User{}, "", fmt.Errorf("create user: insert: %w", err)
		}

		return user, key, nil
	}

	return User{}, "", fmt.Errorf("create user %q: could not find a free user id", username)
}

func (s *SQLiteStore) Remove(ctx context.Context, username string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE username = ?`, quoteIdentifier(s.table)) //nolint:gosec // table name is validated

	result, err := s.db.ExecContext(ctx, query, username)
	if err != nil {
		return fmt.Errorf("remove user: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("remove user: rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("remove user %q: %w", username, breadbox.ErrNotFound)
	}

	return nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]User, error) {
	query := fmt.Sprintf( //nolint:gosec // G201: table name is validated
		`SELECT id, username, auth_level, created_at FROM %s ORDER BY username`, quoteIdentifier(s.table))

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var users []User
	for rows.Next() {
		var u User
		var createdAt string
		if err := rows.Scan(&u.ID, &u.Username, &u.AuthLevel, &createdAt); err != nil {
			return nil, fmt.Errorf("list users: scan: %w", err)
		}
		u.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("list users: parse created_at: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list users: rows: %w", err)
	}

	return users, nil
}

// quoteIdentifier safely quotes a SQL identifier
func quoteIdentifier(name string) string {
	return `"` + name + `"`
}
