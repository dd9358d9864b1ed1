package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	domoutbox "github.com/Zhima-Mochi/minishop-storefront/internal/domain/outbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEvent struct{ name, payload string }

func (e testEvent) EventName() string { return e.name }

func stop(t *testing.T, b *Bus) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	b.Stop(ctx)
}

func TestBus_DeliversToEverySubscriber(t *testing.T) {
	b := NewBus(nil, nil, Options{})
	var mu sync.Mutex
	var got []string
	record := func(prefix string) domoutbox.Handler {
		return func(_ context.Context, e domoutbox.Event) error {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, prefix+e.(testEvent).payload)
			return nil
		}
	}
	b.Subscribe("a", record("first:"))
	b.Subscribe("a", record("second:"))
	b.Subscribe("b", record("other:"))
	b.Start(context.Background())

	require.NoError(t, b.Publish(context.Background(), testEvent{"a", "1"}))
	require.NoError(t, b.Publish(context.Background(), testEvent{"unrouted", "x"}))
	stop(t, b)

	assert.ElementsMatch(t, []string{"first:1", "second:1"}, got)
}

func TestBus_SurvivesFailingAndPanickingHandlers(t *testing.T) {
	b := NewBus(nil, nil, Options{Concurrency: 1})
	delivered := make(chan string, 4)
	b.Subscribe("a", func(context.Context, domoutbox.Event) error { panic("boom") })
	b.Subscribe("a", func(context.Context, domoutbox.Event) error { return errors.New("nope") })
	b.Subscribe("a", func(_ context.Context, e domoutbox.Event) error {
		delivered <- e.(testEvent).payload
		return nil
	})
	b.Start(context.Background())

	require.NoError(t, b.Publish(context.Background(), testEvent{"a", "1"}))
	require.NoError(t, b.Publish(context.Background(), testEvent{"a", "2"}))
	stop(t, b)
	close(delivered)

	var got []string
	for p := range delivered {
		got = append(got, p)
	}
	assert.Equal(t, []string{"1", "2"}, got)
}

func TestBus_HandlerTimeout(t *testing.T) {
	b := NewBus(nil, nil, Options{HandlerTimeout: 20 * time.Millisecond})
	errc := make(chan error, 1)
	b.Subscribe("a", func(ctx context.Context, _ domoutbox.Event) error {
		<-ctx.Done()
		errc <- ctx.Err()
		return ctx.Err()
	})
	b.Start(context.Background())
	require.NoError(t, b.Publish(context.Background(), testEvent{"a", "1"}))
	stop(t, b)

	assert.ErrorIs(t, <-errc, context.DeadlineExceeded)
}

func TestBus_PublishAfterStopIsDropped(t *testing.T) {
	b := NewBus(nil, nil, Options{})
	called := false
	b.Subscribe("a", func(context.Context, domoutbox.Event) error {
		called = true
		return nil
	})
	b.Start(context.Background())
	stop(t, b)

	assert.NoError(t, b.Publish(context.Background(), testEvent{"a", "late"}))
	assert.NoError(t, b.Publish(context.Background(), nil))
	assert.False(t, called)
}

func TestBus_PublishHonoursContextWhenFull(t *testing.T) {
	b := NewBus(nil, nil, Options{QueueSize: 1})
	// Not started: the queue fills and the second publish blocks.
	require.NoError(t, b.Publish(context.Background(), testEvent{"a", "1"}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := b.Publish(ctx, testEvent{"a", "2"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
