// Package products implements the product service: a MongoDB-backed catalog
// exposing list, create and get.
package products

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no product has the requested id.
var ErrNotFound = errors.New("product not found")

// Product is a catalog entry. ID is the hex form of the document's ObjectID.
type Product struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       float64   `json:"price"`
	Stock       int       `json:"stock"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CreateInput carries the fields accepted on creation.
type CreateInput struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Price       *float64 `json:"price"`
	Stock       int      `json:"stock"`
}

// Store persists products.
type Store interface {
	List(ctx context.Context) ([]Product, error)
	Create(ctx context.Context, in CreateInput) (Product, error)
	Get(ctx context.Context, id string) (Product, error)
}
