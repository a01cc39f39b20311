package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS orders (
	id SERIAL PRIMARY KEY,
	user_id INTEGER NOT NULL,
	product_id INTEGER NOT NULL,
	quantity INTEGER NOT NULL DEFAULT 1,
	total_amount DECIMAL(10, 2) NOT NULL,
	status VARCHAR(50) NOT NULL DEFAULT 'pending',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS orders_created_at_idx ON orders (created_at DESC);
`

// total_amount is cast so the driver scans it as a float.
const columns = `id, user_id, product_id, quantity, total_amount::float8, status, created_at, updated_at`

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repository is the PostgreSQL Store.
type Repository struct {
	db DBTX
}

// NewRepository creates a Repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Migrate creates the orders table if it does not exist.
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate orders: %w", err)
	}
	return nil
}

func (r *Repository) List(ctx context.Context) ([]Order, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+columns+` FROM orders ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	out := []Order{}
	for rows.Next() {
		o, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *Repository) Create(ctx context.Context, n NewOrder) (Order, error) {
	o, err := scan(r.db.QueryRowContext(ctx, `
		INSERT INTO orders (user_id, product_id, quantity, total_amount, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+columns,
		n.UserID, n.ProductID, n.Quantity, n.TotalAmount, n.Status))
	if err != nil {
		return Order{}, fmt.Errorf("create order: %w", err)
	}
	return o, nil
}

func (r *Repository) Get(ctx context.Context, id int64) (Order, error) {
	o, err := scan(r.db.QueryRowContext(ctx, `SELECT `+columns+` FROM orders WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

func (r *Repository) Update(ctx context.Context, id int64, in UpdateInput) (Order, error) {
	o, err := scan(r.db.QueryRowContext(ctx, `
		UPDATE orders SET
			user_id = COALESCE($2, user_id),
			product_id = COALESCE($3, product_id),
			quantity = COALESCE($4, quantity),
			total_amount = COALESCE($5, total_amount),
			status = COALESCE($6, status),
			updated_at = now()
		WHERE id = $1
		RETURNING `+columns,
		id, in.UserID, in.ProductID, in.Quantity, in.TotalAmount, in.Status))
	if errors.Is(err, sql.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, fmt.Errorf("update order: %w", err)
	}
	return o, nil
}

func (r *Repository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(s scanner) (Order, error) {
	var o Order
	err := s.Scan(&o.ID, &o.UserID, &o.ProductID, &o.Quantity, &o.TotalAmount, &o.Status, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}
