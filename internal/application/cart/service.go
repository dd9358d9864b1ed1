package cart

import (
	"context"
	"fmt"
	"strings"

	"github.com/Zhima-Mochi/minishop-storefront/internal/application"
	domcart "github.com/Zhima-Mochi/minishop-storefront/internal/domain/cart"
	dominv "github.com/Zhima-Mochi/minishop-storefront/internal/domain/inventory"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability/logctx"
	"github.com/shopspring/decimal"
)

type IDGenerator interface {
	NewID() string
}

// Service edits the persisted cart. Prices are snapshotted from the catalog
// when a line is added; checkout re-prices them.
type Service struct {
	store     domcart.Store
	inventory dominv.Repository
	validator application.UseCase[[]domcart.Line, *Validation]
	ids       IDGenerator
	log       observability.Logger
}

func NewService(
	store domcart.Store,
	inv dominv.Repository,
	validator application.UseCase[[]domcart.Line, *Validation],
	ids IDGenerator,
	logger observability.Logger,
) *Service {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Service{
		store:     store,
		inventory: inv,
		validator: validator,
		ids:       ids,
		log:       logger.With(observability.F("component", "cart_service")),
	}
}

func (s *Service) Get(ctx context.Context, cartID string) (*domcart.Cart, error) {
	if cartID == "" {
		return nil, application.NewValidation("cart id is required")
	}
	return s.store.Load(ctx, cartID)
}

// Review validates the cart, drops every flagged line and persists the
// result. Messages are meant for the buyer.
func (s *Service) Review(ctx context.Context, cartID string) (*domcart.Cart, []string, error) {
	c, err := s.Get(ctx, cartID)
	if err != nil {
		return nil, nil, err
	}
	res, err := s.validator.Execute(ctx, c.Lines)
	if err != nil {
		return nil, nil, err
	}
	if res.Valid {
		return c, []string{}, nil
	}

	removed := c.RemoveAll(res.RemoveIDs)
	if err := s.store.Save(ctx, c); err != nil {
		return nil, nil, fmt.Errorf("cart: save: %w", err)
	}
	logctx.FromOr(ctx, s.log).Info("cart_lines_removed",
		observability.F("cart_id", cartID),
		observability.F("removed", removed),
	)
	return c, res.Messages, nil
}

// AddItem snapshots the product into the cart. Sold-out products are refused.
func (s *Service) AddItem(ctx context.Context, cartID, productID string, quantity int) (*domcart.Cart, error) {
	if quantity <= 0 {
		return nil, application.NewValidation("quantity must be greater than zero")
	}
	if !dominv.Tracked(productID) {
		return nil, application.NewValidation("custom items are added through the design flow")
	}
	p, err := s.inventory.Get(ctx, productID)
	if err != nil {
		return nil, err
	}

	c, err := s.Get(ctx, cartID)
	if err != nil {
		return nil, err
	}
	inCart := 0
	for _, l := range c.Lines {
		if l.ProductID == productID {
			inCart = l.Quantity
		}
	}
	if p.Stock == 0 || !p.Available(inCart+quantity) {
		return nil, fmt.Errorf("%w: %s", domcart.ErrOutOfStock, p.Name)
	}

	if err := c.Add(domcart.Line{
		ProductID: p.ID,
		Name:      p.Name,
		Price:     p.Price,
		Quantity:  quantity,
		ImageURL:  p.ImageURL,
	}); err != nil {
		return nil, err
	}
	return c, s.save(ctx, c)
}

type CustomItem struct {
	Name     string
	Price    decimal.Decimal
	Quantity int
	ImageURL string
}

// AddCustomItem adds a non-inventoried design under a fresh custom id.
func (s *Service) AddCustomItem(ctx context.Context, cartID string, item CustomItem) (*domcart.Cart, error) {
	if strings.TrimSpace(item.Name) == "" {
		return nil, application.NewValidation("custom item name is required")
	}
	if item.Quantity <= 0 {
		item.Quantity = 1
	}
	if !item.Price.IsPositive() {
		return nil, application.NewValidation("custom item price must be positive")
	}
	c, err := s.Get(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if err := c.Add(domcart.Line{
		ProductID: dominv.CustomIDPrefix + s.ids.NewID(),
		Name:      strings.TrimSpace(item.Name),
		Price:     item.Price,
		Quantity:  item.Quantity,
		ImageURL:  item.ImageURL,
	}); err != nil {
		return nil, err
	}
	return c, s.save(ctx, c)
}

func (s *Service) UpdateQuantity(ctx context.Context, cartID, productID string, quantity int) (*domcart.Cart, error) {
	c, err := s.Get(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if err := c.UpdateQuantity(productID, quantity); err != nil {
		return nil, err
	}
	return c, s.save(ctx, c)
}

func (s *Service) Remove(ctx context.Context, cartID, productID string) (*domcart.Cart, error) {
	c, err := s.Get(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if err := c.Remove(productID); err != nil {
		return nil, err
	}
	return c, s.save(ctx, c)
}

func (s *Service) Clear(ctx context.Context, cartID string) error {
	if cartID == "" {
		return application.NewValidation("cart id is required")
	}
	return s.store.Delete(ctx, cartID)
}

func (s *Service) save(ctx context.Context, c *domcart.Cart) error {
	if err := s.store.Save(ctx, c); err != nil {
		return fmt.Errorf("cart: save: %w", err)
	}
	return nil
}
