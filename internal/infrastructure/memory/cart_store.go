package memory

import (
	"context"
	"sync"

	domain "github.com/Zhima-Mochi/minishop-storefront/internal/domain/cart"
)

type CartStore struct {
	mu    sync.RWMutex
	carts map[string]*domain.Cart
}

func NewCartStore() *CartStore {
	return &CartStore{carts: make(map[string]*domain.Cart)}
}

func (s *CartStore) Load(ctx context.Context, id string) (*domain.Cart, error) {
	_ = ctx

	s.mu.RLock()
	defer s.mu.RUnlock()

	if c, ok := s.carts[id]; ok {
		return c.Clone(), nil
	}
	return domain.New(id), nil
}

func (s *CartStore) Save(ctx context.Context, c *domain.Cart) error {
	_ = ctx
	if c == nil || c.ID == "" {
		return domain.ErrInvalidLine
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.carts[c.ID] = c.Clone()
	return nil
}

func (s *CartStore) Delete(ctx context.Context, id string) error {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.carts, id)
	return nil
}
