package cart

import (
	"context"
	"errors"
	"time"

	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/inventory"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidLine = errors.New("cart: invalid line")
	ErrOutOfStock  = errors.New("cart: product is out of stock")
	ErrLineMissing = errors.New("cart: line not found")
)

type Line struct {
	ProductID string          `json:"id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	ImageURL  string          `json:"image"`
}

func (l Line) Tracked() bool { return inventory.Tracked(l.ProductID) }

// Cart is the buyer-owned cart value. It is never authoritative for stock or
// price; checkout re-validates every line against the inventory.
type Cart struct {
	ID        string    `json:"id"`
	Lines     []Line    `json:"items"`
	UpdatedAt time.Time `json:"updated_at"`
}

func New(id string) *Cart {
	return &Cart{ID: id, Lines: []Line{}, UpdatedAt: time.Now().UTC()}
}

// Add appends a line or bumps the quantity of an existing one.
func (c *Cart) Add(l Line) error {
	if l.ProductID == "" || l.Quantity <= 0 || l.Price.IsNegative() {
		return ErrInvalidLine
	}
	for i := range c.Lines {
		if c.Lines[i].ProductID == l.ProductID {
			c.Lines[i].Quantity += l.Quantity
			c.touch()
			return nil
		}
	}
	c.Lines = append(c.Lines, l)
	c.touch()
	return nil
}

// UpdateQuantity sets the quantity of a line; zero or less removes it.
func (c *Cart) UpdateQuantity(productID string, quantity int) error {
	if quantity <= 0 {
		return c.Remove(productID)
	}
	for i := range c.Lines {
		if c.Lines[i].ProductID == productID {
			c.Lines[i].Quantity = quantity
			c.touch()
			return nil
		}
	}
	return ErrLineMissing
}

func (c *Cart) Remove(productID string) error {
	for i := range c.Lines {
		if c.Lines[i].ProductID == productID {
			c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
			c.touch()
			return nil
		}
	}
	return ErrLineMissing
}

// RemoveAll drops every line whose product id is listed and returns how many were removed.
func (c *Cart) RemoveAll(productIDs []string) int {
	if len(productIDs) == 0 {
		return 0
	}
	drop := make(map[string]struct{}, len(productIDs))
	for _, id := range productIDs {
		drop[id] = struct{}{}
	}
	kept := c.Lines[:0]
	for _, l := range c.Lines {
		if _, ok := drop[l.ProductID]; ok {
			continue
		}
		kept = append(kept, l)
	}
	removed := len(c.Lines) - len(kept)
	c.Lines = kept
	if removed > 0 {
		c.touch()
	}
	return removed
}

func (c *Cart) Clear() {
	c.Lines = []Line{}
	c.touch()
}

func (c *Cart) TotalItems() int {
	n := 0
	for _, l := range c.Lines {
		n += l.Quantity
	}
	return n
}

func (c *Cart) TotalPrice() decimal.Decimal {
	total := decimal.Zero
	for _, l := range c.Lines {
		total = total.Add(l.Price.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return total
}

func (c *Cart) Clone() *Cart {
	if c == nil {
		return nil
	}
	clone := *c
	clone.Lines = make([]Line, len(c.Lines))
	copy(clone.Lines, c.Lines)
	return &clone
}

func (c *Cart) touch() {
	c.UpdatedAt = time.Now().UTC()
}

// Store persists carts between sessions. Load returns an empty cart for an
// unknown id.
type Store interface {
	Load(ctx context.Context, id string) (*Cart, error)
	Save(ctx context.Context, c *Cart) error
	Delete(ctx context.Context, id string) error
}
