package memory

import (
	"context"
	"sync"

	domain "github.com/Zhima-Mochi/minishop-storefront/internal/domain/inventory"
)

const defaultShortfallCapacity = 1000

// ShortfallLog is a bounded in-process record of failed stock decrements.
type ShortfallLog struct {
	mu       sync.RWMutex
	entries  []domain.Shortfall
	capacity int
}

func NewShortfallLog(capacity int) *ShortfallLog {
	if capacity <= 0 {
		capacity = defaultShortfallCapacity
	}
	return &ShortfallLog{capacity: capacity}
}

func (l *ShortfallLog) Record(ctx context.Context, s domain.Shortfall) error {
	_ = ctx

	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, s)
	if over := len(l.entries) - l.capacity; over > 0 {
		l.entries = append([]domain.Shortfall(nil), l.entries[over:]...)
	}
	return nil
}

// List returns the recorded shortfalls, newest first.
func (l *ShortfallLog) List(ctx context.Context) ([]domain.Shortfall, error) {
	_ = ctx

	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]domain.Shortfall, len(l.entries))
	for i, s := range l.entries {
		out[len(l.entries)-1-i] = s
	}
	return out, nil
}
