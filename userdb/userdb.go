package userdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/modestbitboard/breadbox"

	_ "modernc.org/sqlite" // SQLite driver
)

// ErrUserExists is returned when creating a user whose username is taken.
var ErrUserExists = errors.New("user already exists")

// DefaultTable is the user table name when the config leaves it blank.
const DefaultTable = "users"

// User is a stored user record. The API key itself is never persisted,
// only its bcrypt hash.
type User struct {
	ID        int64
	Username  string
	AuthLevel int
	CreatedAt time.Time
}

// Store is a user directory with management operations on top of lookup.
type Store interface {
	breadbox.UserDirectory

	// Create registers a user and returns the record together with the
	// freshly generated plaintext API key.
	Create(ctx context.Context, username string, authLevel int) (User, string, error)
	// Remove deletes a user by username. Missing user is breadbox.ErrNotFound.
	Remove(ctx context.Context, username string) error
	// List returns all users ordered by username.
	List(ctx context.Context) ([]User, error)
}

// Config holds the configuration for connecting to a user backend.
// An empty Type means no user database is configured.
type Config struct {
	// Type specifies the database type: "sqlite" or "postgres"
	Type string `mapstructure:"type" validate:"omitempty,oneof=sqlite postgres"`
	// DSN is the data source name (connection string)
	DSN string `mapstructure:"dsn" validate:"required_with=Type"`
	// Table is the name of the user table; defaults to DefaultTable
	Table string `mapstructure:"table"`
}

// Open connects to the configured user backend and runs migrations.
// The returned cleanup function should be called to close the connection.
func Open(ctx context.Context, cfg Config) (Store, func(), error) {
	table := cfg.Table
	if table == "" {
		table = DefaultTable
	}

	switch cfg.Type {
	case "sqlite":
		return openSQLite(ctx, cfg.DSN, table)
	case "postgres":
		return openPostgres(ctx, cfg.DSN, table)
	default:
		return nil, nil, fmt.Errorf("unsupported user database type: %s", cfg.Type)
	}
}

func openSQLite(ctx context.Context, dsn, table string) (Store, func(), error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping sqlite: %w", err)
	}

	store, err := NewSQLiteStore(ctx, db, table)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	cleanup := func() {
		_ = db.Close()
	}

	return store, cleanup, nil
}

func openPostgres(ctx context.Context, dsn, table string) (Store, func(), error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping postgres: %w", err)
	}

	store, err := NewPostgresStore(ctx, pool, table)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}

	return store, pool.Close, nil
}

// newUser generates a key and assembles the record to insert. Retried by
// the backends when the derived ID collides with an existing row.
func newUser(username string, authLevel int) (User, string, string, error) {
	key, err := GenerateKey()
	if err != nil {
		return User{}, "", "", err
	}
	hash, err := HashKey(key)
	if err != nil {
		return User{}, "", "", err
	}
	user := User{
		ID:        DeriveUserID(key),
		Username:  username,
		AuthLevel: authLevel,
		CreatedAt: time.Now().UTC(),
	}
	return user, key, hash, nil
}

// createAttempts bounds ID-collision retries during user creation.
const createAttempts = 3
