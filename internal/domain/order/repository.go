package order

import "context"

type Repository interface {
	// Insert fails with ErrConflict when an order with the same id exists.
	Insert(ctx context.Context, order *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	// UpdateStatus moves the order forward; sessionID is attached when non-empty.
	UpdateStatus(ctx context.Context, id string, status Status, sessionID string) (*Order, error)
	// Claim is a compare-and-swap on status: it succeeds only while the stored
	// status equals from, and fails with ErrConflict otherwise.
	Claim(ctx context.Context, id string, from, to Status, sessionID string) (*Order, error)
	ListByUser(ctx context.Context, userID string) ([]*Order, error)
	List(ctx context.Context) ([]*Order, error)
}
