// Package memory provides an in-memory user repository for tests and
// single-process development.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/picvault/picvault/internal/auth"
	"github.com/picvault/picvault/pkg/picvault"
)

// UserRepository is an in-memory implementation of auth.UserRepository.
type UserRepository struct {
	mu    sync.RWMutex
	users map[string]picvault.User
}

// New creates a new in-memory user repository.
func New() *UserRepository {
	return &UserRepository{users: make(map[string]picvault.User)}
}

// Create stores a new user; a taken email yields ErrDuplicateUser.
func (r *UserRepository) Create(ctx context.Context, user *picvault.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.users[user.Email]; exists {
		return auth.ErrDuplicateUser
	}
	r.users[user.Email] = *user
	return nil
}

// Get returns the user with the given email.
func (r *UserRepository) Get(ctx context.Context, email string) (*picvault.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, exists := r.users[email]
	if !exists {
		return nil, fmt.Errorf("%w: user %s", picvault.ErrNotFound, email)
	}
	return &user, nil
}
