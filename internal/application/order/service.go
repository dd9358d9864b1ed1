package order

import (
	"context"
	"fmt"

	domain "github.com/Zhima-Mochi/minishop-storefront/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability/logctx"
)

// Service serves order history and the admin fulfilment step.
type Service struct {
	repo domain.Repository
	log  observability.Logger
}

func NewService(repo domain.Repository, logger observability.Logger) *Service {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Service{
		repo: repo,
		log:  logger.With(observability.F("component", "order_service")),
	}
}

// History lists the orders owned by userID, newest first.
func (s *Service) History(ctx context.Context, userID string) ([]*domain.Order, error) {
	if userID == "" {
		return []*domain.Order{}, nil
	}
	orders, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, wrapRepositoryError(err)
	}
	return orders, nil
}

func (s *Service) List(ctx context.Context) ([]*domain.Order, error) {
	orders, err := s.repo.List(ctx)
	if err != nil {
		return nil, wrapRepositoryError(err)
	}
	return orders, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Order, error) {
	o, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, wrapRepositoryError(err)
	}
	return o, nil
}

// Fulfil marks a reconciled order as shipped. Pending orders cannot skip
// reconciliation.
func (s *Service) Fulfil(ctx context.Context, id string) (*domain.Order, error) {
	logger := logctx.FromOr(ctx, s.log).With(observability.F("order_id", id))

	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, wrapRepositoryError(err)
	}
	if !current.Reconciled() {
		return nil, fmt.Errorf("%w: order %s is %s", domain.ErrInvalidStateTransition, id, current.Status)
	}
	if current.Status == domain.StatusFulfilled {
		return current, nil
	}

	updated, err := s.repo.UpdateStatus(ctx, id, domain.StatusFulfilled, "")
	if err != nil {
		logger.Error("order_fulfil_failed", observability.Err(err))
		return nil, wrapRepositoryError(err)
	}
	logger.Info("order_fulfilled", observability.F("previous_status", string(current.Status)))
	return updated, nil
}
