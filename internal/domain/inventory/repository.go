package inventory

import (
	"context"
)

type Repository interface {
	Get(ctx context.Context, productID string) (*Product, error)
	// GetMany returns the products that exist among ids; missing ids are skipped.
	GetMany(ctx context.Context, productIDs []string) ([]*Product, error)
	List(ctx context.Context, category string) ([]*Product, error)
	Insert(ctx context.Context, p *Product) error
	Update(ctx context.Context, p *Product) error
	Delete(ctx context.Context, productID string) error
	// DecrementStock atomically subtracts quantity when stock >= quantity and
	// returns the remaining stock.
	DecrementStock(ctx context.Context, productID string, quantity int) (int, error)
}

// ShortfallLog keeps a record of stock decrements that failed after payment.
type ShortfallLog interface {
	Record(ctx context.Context, s Shortfall) error
	List(ctx context.Context) ([]Shortfall, error)
}
