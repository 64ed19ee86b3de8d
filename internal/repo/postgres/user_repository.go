// Package postgres implements the user repository on PostgreSQL.
//
// Schema:
//
//	CREATE TABLE users (
//	    email         TEXT PRIMARY KEY,
//	    password_hash TEXT NOT NULL,
//	    created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/picvault/picvault/internal/auth"
	"github.com/picvault/picvault/pkg/picvault"
)

// DBTX allows using either a connection pool or a transaction.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// UserRepository implements auth.UserRepository using PostgreSQL.
type UserRepository struct {
	db DBTX
}

// New creates a new PostgreSQL user repository.
func New(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// NewWithPool creates a new PostgreSQL user repository with a connection pool.
func NewWithPool(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: pool}
}

// Create inserts a new user row.
func (r *UserRepository) Create(ctx context.Context, user *picvault.User) error {
	query := `
		INSERT INTO users (email, password_hash, created_at)
		VALUES ($1, $2, $3)`

	_, err := r.db.Exec(ctx, query, user.Email, user.PasswordHash, user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return auth.ErrDuplicateUser
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// Get returns the user row keyed by email.
func (r *UserRepository) Get(ctx context.Context, email string) (*picvault.User, error) {
	query := `
		SELECT email, password_hash, created_at
		FROM users
		WHERE email = $1`

	var user picvault.User
	err := r.db.QueryRow(ctx, query, email).Scan(&user.Email, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: user %s", picvault.ErrNotFound, email)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &user, nil
}
