// Package users implements the user service: a PostgreSQL-backed CRUD resource.
package users

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no user has the requested id.
	ErrNotFound = errors.New("user not found")
	// ErrConflict is returned when a username or email is already taken.
	ErrConflict = errors.New("user already exists")
)

// User is a stored user record.
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreateInput carries the fields accepted on creation.
type CreateInput struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// UpdateInput carries a partial update; nil fields are left unchanged.
type UpdateInput struct {
	Username  *string `json:"username"`
	Email     *string `json:"email"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
}

// Store persists users.
type Store interface {
	List(ctx context.Context) ([]User, error)
	Create(ctx context.Context, in CreateInput) (User, error)
	Get(ctx context.Context, id int64) (User, error)
	Update(ctx context.Context, id int64, in UpdateInput) (User, error)
	Delete(ctx context.Context, id int64) error
}
