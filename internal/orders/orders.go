// Package orders implements the order service: a PostgreSQL-backed CRUD resource.
package orders

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no order has the requested id.
var ErrNotFound = errors.New("order not found")

const (
	DefaultQuantity = 1
	DefaultStatus   = "pending"
)

// Order is a stored order record.
type Order struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	ProductID   int64     `json:"product_id"`
	Quantity    int       `json:"quantity"`
	TotalAmount float64   `json:"total_amount"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CreateInput carries the fields accepted on creation. Pointers distinguish
// absent fields from zero values.
type CreateInput struct {
	UserID      *int64   `json:"user_id"`
	ProductID   *int64   `json:"product_id"`
	Quantity    *int     `json:"quantity"`
	TotalAmount *float64 `json:"total_amount"`
	Status      *string  `json:"status"`
}

// NewOrder is a validated creation request with defaults applied.
type NewOrder struct {
	UserID      int64
	ProductID   int64
	Quantity    int
	TotalAmount float64
	Status      string
}

// Validate checks required fields and applies defaults. user_id, product_id
// and total_amount must be present and non-zero.
func (in CreateInput) Validate() (NewOrder, bool) {
	if in.UserID == nil || *in.UserID == 0 ||
		in.ProductID == nil || *in.ProductID == 0 ||
		in.TotalAmount == nil || *in.TotalAmount == 0 {
		return NewOrder{}, false
	}
	o := NewOrder{
		UserID:      *in.UserID,
		ProductID:   *in.ProductID,
		Quantity:    DefaultQuantity,
		TotalAmount: *in.TotalAmount,
		Status:      DefaultStatus,
	}
	if in.Quantity != nil {
		o.Quantity = *in.Quantity
	}
	if in.Status != nil && *in.Status != "" {
		o.Status = *in.Status
	}
	return o, true
}

// UpdateInput carries a partial update; nil fields are left unchanged.
type UpdateInput struct {
	UserID      *int64   `json:"user_id"`
	ProductID   *int64   `json:"product_id"`
	Quantity    *int     `json:"quantity"`
	TotalAmount *float64 `json:"total_amount"`
	Status      *string  `json:"status"`
}

// Store persists orders.
type Store interface {
	List(ctx context.Context) ([]Order, error)
	Create(ctx context.Context, o NewOrder) (Order, error)
	Get(ctx context.Context, id int64) (Order, error)
	Update(ctx context.Context, id int64, in UpdateInput) (Order, error)
	Delete(ctx context.Context, id int64) error
}
