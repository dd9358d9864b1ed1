package inventory

import (
	"errors"
	"time"
)

const (
	FailureReasonNotFound          = "not_found"
	FailureReasonInsufficientStock = "insufficient_stock"
	FailureReasonInvalidQuantity   = "invalid_quantity"
	FailureReasonPersistenceError  = "persist_error"
)

// DeductionFailedEvent is emitted when a paid line could not be deducted from stock.
type DeductionFailedEvent struct {
	OrderID    string
	SessionID  string
	ProductID  string
	Quantity   int
	Reason     string
	OccurredAt time.Time
}

func (DeductionFailedEvent) EventName() string { return "inventory.deduction_failed" }

// AggregateID is the order whose line failed.
func (e DeductionFailedEvent) AggregateID() string { return e.OrderID }

func NewDeductionFailedEvent(orderID, sessionID, productID string, quantity int, reason string) DeductionFailedEvent {
	return DeductionFailedEvent{
		OrderID:    orderID,
		SessionID:  sessionID,
		ProductID:  productID,
		Quantity:   quantity,
		Reason:     reason,
		OccurredAt: time.Now().UTC(),
	}
}

// Shortfall is the persisted form of a DeductionFailedEvent.
type Shortfall struct {
	OrderID    string    `json:"order_id,omitempty"`
	SessionID  string    `json:"session_id,omitempty"`
	ProductID  string    `json:"product_id"`
	Quantity   int       `json:"quantity"`
	Reason     string    `json:"reason"`
	OccurredAt time.Time `json:"occurred_at"`
}

func ShortfallFromEvent(e DeductionFailedEvent) Shortfall {
	return Shortfall{
		OrderID:    e.OrderID,
		SessionID:  e.SessionID,
		ProductID:  e.ProductID,
		Quantity:   e.Quantity,
		Reason:     e.Reason,
		OccurredAt: e.OccurredAt,
	}
}

func FailureReasonFromError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return FailureReasonNotFound
	case errors.Is(err, ErrInsufficientStock):
		return FailureReasonInsufficientStock
	case errors.Is(err, ErrInvalidQuantity):
		return FailureReasonInvalidQuantity
	default:
		return FailureReasonPersistenceError
	}
}
