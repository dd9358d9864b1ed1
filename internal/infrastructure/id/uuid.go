package id

import "github.com/google/uuid"

// UUIDGenerator issues random (v4) identifiers for orders and products.
type UUIDGenerator struct{}

func (UUIDGenerator) NewID() string { return uuid.NewString() }

// Sequence returns ids from a fixed list, then falls back to random ones.
// Tests use it to pin order ids.
type Sequence struct {
	ids []string
}

func NewSequence(ids ...string) *Sequence { return &Sequence{ids: ids} }

func (s *Sequence) NewID() string {
	if len(s.ids) == 0 {
		return uuid.NewString()
	}
	next := s.ids[0]
	s.ids = s.ids[1:]
	return next
}
