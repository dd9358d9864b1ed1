package order

import (
	"errors"
	"time"

	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/inventory"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound               = errors.New("order: not found")
	ErrConflict               = errors.New("order: conflict")
	ErrInvalidQuantity        = errors.New("order: quantity must be greater than zero")
	ErrInvalidAmount          = errors.New("order: amount must be zero or greater")
	ErrEmpty                  = errors.New("order: at least one line is required")
	ErrInvalidStateTransition = errors.New("order: invalid state transition")
)

// Line is a frozen snapshot of a cart line at checkout time.
type Line struct {
	ProductID string          `json:"id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	ImageURL  string          `json:"image"`
}

func (l Line) Subtotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Tracked reports whether the line deducts stock.
func (l Line) Tracked() bool { return inventory.Tracked(l.ProductID) }

type Order struct {
	ID string
	// UserID is nil for guest checkouts.
	UserID           *string
	Lines            []Line
	Total            decimal.Decimal
	Status           Status
	PaymentSessionID string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func New(id string, userID *string, lines []Line, status Status) (*Order, error) {
	if id == "" {
		return nil, errors.New("order: id is required")
	}
	if len(lines) == 0 {
		return nil, ErrEmpty
	}
	for _, l := range lines {
		if l.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
		if l.Price.IsNegative() {
			return nil, ErrInvalidAmount
		}
	}
	if !status.Valid() {
		return nil, ErrInvalidStateTransition
	}

	now := time.Now().UTC()
	return &Order{
		ID:        id,
		UserID:    userID,
		Lines:     append([]Line(nil), lines...),
		Total:     Total(lines),
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Owner maps an identity string to an owning-user reference; the empty
// string means guest and yields nil.
func Owner(userID string) *string {
	if userID == "" {
		return nil
	}
	return &userID
}

func Total(lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

// OwnedBy reports whether the order belongs to userID.
func (o *Order) OwnedBy(userID string) bool {
	return o.UserID != nil && userID != "" && *o.UserID == userID
}

// Transition advances the status; moving backwards is rejected.
func (o *Order) Transition(to Status, sessionID string) error {
	if !CanTransition(o.Status, to) {
		return ErrInvalidStateTransition
	}
	o.Status = to
	if sessionID != "" {
		o.PaymentSessionID = sessionID
	}
	o.touch()
	return nil
}

func (o *Order) Reconciled() bool { return o.Status.Reconciled() }

func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	clone.Lines = append([]Line(nil), o.Lines...)
	if o.UserID != nil {
		uid := *o.UserID
		clone.UserID = &uid
	}
	return &clone
}

func (o *Order) touch() {
	o.UpdatedAt = time.Now().UTC()
}
