package inventory

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// CustomIDPrefix marks cart and order lines that carry no stock semantics
// (customized garments produced by the design playground).
const CustomIDPrefix = "design-"

// DefaultStock is applied when an admin creates a product without a stock figure.
const DefaultStock = 100

var (
	ErrNotFound          = errors.New("inventory: product not found")
	ErrInvalidQuantity   = errors.New("inventory: quantity must be greater than zero")
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
	ErrInvalidProduct    = errors.New("inventory: invalid product")
	ErrConflict          = errors.New("inventory: product already exists")
)

type Product struct {
	ID          string
	Name        string
	Price       decimal.Decimal
	Category    string
	Description string
	ImageURL    string
	Stock       int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Tracked reports whether a product id refers to an inventoried product.
func Tracked(productID string) bool {
	return productID != "" && !strings.HasPrefix(productID, CustomIDPrefix)
}

func NewProduct(id, name string, price decimal.Decimal, stock int) (*Product, error) {
	if id == "" || strings.TrimSpace(name) == "" {
		return nil, ErrInvalidProduct
	}
	if !Tracked(id) {
		return nil, ErrInvalidProduct
	}
	if price.IsNegative() || stock < 0 {
		return nil, ErrInvalidProduct
	}
	now := time.Now().UTC()
	return &Product{
		ID:        id,
		Name:      strings.TrimSpace(name),
		Price:     price,
		Stock:     stock,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Validate checks the invariants every stored product must hold.
func (p *Product) Validate() error {
	if p == nil || p.ID == "" || strings.TrimSpace(p.Name) == "" {
		return ErrInvalidProduct
	}
	if p.Price.IsNegative() || p.Stock < 0 {
		return ErrInvalidProduct
	}
	return nil
}

// Deduct removes quantity from stock. It never clamps: a deduction that would
// leave the counter negative fails and leaves the product untouched.
func (p *Product) Deduct(quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if quantity > p.Stock {
		return ErrInsufficientStock
	}
	p.Stock -= quantity
	p.touch()
	return nil
}

func (p *Product) Available(quantity int) bool {
	return quantity <= p.Stock
}

func (p *Product) Clone() *Product {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}

func (p *Product) Touch() { p.touch() }

func (p *Product) touch() {
	p.UpdatedAt = time.Now().UTC()
}
