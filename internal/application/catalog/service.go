package catalog

import (
	"context"
	"errors"
	"strings"

	"github.com/Zhima-Mochi/minishop-storefront/internal/application"
	dominv "github.com/Zhima-Mochi/minishop-storefront/internal/domain/inventory"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability/logctx"
	"github.com/shopspring/decimal"
)

type IDGenerator interface {
	NewID() string
}

// Service serves product browsing and the admin product surface.
type Service struct {
	repo       dominv.Repository
	shortfalls dominv.ShortfallLog
	ids        IDGenerator
	log        observability.Logger
}

func NewService(repo dominv.Repository, shortfalls dominv.ShortfallLog, ids IDGenerator, logger observability.Logger) *Service {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Service{
		repo:       repo,
		shortfalls: shortfalls,
		ids:        ids,
		log:        logger.With(observability.F("component", "catalog_service")),
	}
}

func (s *Service) List(ctx context.Context, category string) ([]*dominv.Product, error) {
	return s.repo.List(ctx, strings.TrimSpace(category))
}

func (s *Service) Get(ctx context.Context, id string) (*dominv.Product, error) {
	return s.repo.Get(ctx, id)
}

// ProductInput carries admin edits. A nil Stock means "keep" on update and
// DefaultStock on create.
type ProductInput struct {
	Name        string
	Price       decimal.Decimal
	Category    string
	Description string
	ImageURL    string
	Stock       *int
}

func (s *Service) Create(ctx context.Context, in ProductInput) (*dominv.Product, error) {
	stock := dominv.DefaultStock
	if in.Stock != nil {
		stock = *in.Stock
	}
	p, err := dominv.NewProduct(s.ids.NewID(), in.Name, in.Price, stock)
	if err != nil {
		return nil, application.NewValidation("product needs a name, a non-negative price and stock")
	}
	p.Category, p.Description, p.ImageURL = in.Category, in.Description, in.ImageURL

	if err := s.repo.Insert(ctx, p); err != nil {
		return nil, err
	}
	logctx.FromOr(ctx, s.log).Info("product_created", observability.F("product_id", p.ID))
	return p, nil
}

func (s *Service) Update(ctx context.Context, id string, in ProductInput) (*dominv.Product, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Name = strings.TrimSpace(in.Name)
	p.Price = in.Price
	p.Category, p.Description, p.ImageURL = in.Category, in.Description, in.ImageURL
	if in.Stock != nil {
		p.Stock = *in.Stock
	}
	return s.save(ctx, p)
}

func (s *Service) UpdatePrice(ctx context.Context, id string, price decimal.Decimal) (*dominv.Product, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Price = price
	return s.save(ctx, p)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	logctx.FromOr(ctx, s.log).Info("product_deleted", observability.F("product_id", id))
	return nil
}

func (s *Service) Shortfalls(ctx context.Context) ([]dominv.Shortfall, error) {
	if s.shortfalls == nil {
		return []dominv.Shortfall{}, nil
	}
	return s.shortfalls.List(ctx)
}

func (s *Service) save(ctx context.Context, p *dominv.Product) (*dominv.Product, error) {
	if err := p.Validate(); err != nil {
		return nil, application.NewValidation("product needs a name, a non-negative price and stock")
	}
	p.Touch()
	if err := s.repo.Update(ctx, p); err != nil {
		if errors.Is(err, dominv.ErrInvalidProduct) {
			return nil, application.NewValidation(err.Error())
		}
		return nil, err
	}
	logctx.FromOr(ctx, s.log).Info("product_updated", observability.F("product_id", p.ID))
	return p, nil
}
