package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	dominv "github.com/Zhima-Mochi/minishop-storefront/internal/domain/inventory"
	domorder "github.com/Zhima-Mochi/minishop-storefront/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/payment"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInventory_ConcurrentDecrementsNeverOversell(t *testing.T) {
	p, err := dominv.NewProduct("5", "Tee", decimal.NewFromInt(100), 50)
	require.NoError(t, err)
	repo := NewInventoryRepository(p)

	var ok, refused atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 120; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.DecrementStock(context.Background(), "5", 1)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, dominv.ErrInsufficientStock):
				refused.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 50, ok.Load())
	assert.EqualValues(t, 70, refused.Load())
	got, err := repo.Get(context.Background(), "5")
	require.NoError(t, err)
	assert.Zero(t, got.Stock)
}

func TestInventory_DecrementUnknownProduct(t *testing.T) {
	_, err := NewInventoryRepository().DecrementStock(context.Background(), "nope", 1)
	assert.ErrorIs(t, err, dominv.ErrNotFound)
}

func TestInventory_ReturnsCopies(t *testing.T) {
	p, err := dominv.NewProduct("5", "Tee", decimal.NewFromInt(100), 5)
	require.NoError(t, err)
	repo := NewInventoryRepository(p)

	got, err := repo.Get(context.Background(), "5")
	require.NoError(t, err)
	got.Stock = 999

	again, err := repo.Get(context.Background(), "5")
	require.NoError(t, err)
	assert.Equal(t, 5, again.Stock)
	assert.ErrorIs(t, repo.Insert(context.Background(), p), dominv.ErrConflict)
}

func TestOrders_ClaimIsCompareAndSwap(t *testing.T) {
	repo := NewOrderRepository()
	o, err := domorder.New("o-1", nil, []domorder.Line{{ProductID: "5", Name: "Tee", Price: decimal.NewFromInt(1), Quantity: 1}}, domorder.StatusPaymentPending)
	require.NoError(t, err)
	require.NoError(t, repo.Insert(context.Background(), o))

	var won, lost atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			to := domorder.StatusPaymentReceived
			if i%2 == 0 {
				to = domorder.StatusAwaitingPreparation
			}
			_, err := repo.Claim(context.Background(), "o-1", domorder.StatusPaymentPending, to, "cs_1")
			if err == nil {
				won.Add(1)
				return
			}
			assert.ErrorIs(t, err, domorder.ErrConflict)
			lost.Add(1)
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, won.Load())
	assert.EqualValues(t, 19, lost.Load())

	_, err = repo.Claim(context.Background(), "missing", domorder.StatusPaymentPending, domorder.StatusPaymentReceived, "")
	assert.ErrorIs(t, err, domorder.ErrNotFound)
}

func TestOrders_UpdateStatusRejectsBackwardMoves(t *testing.T) {
	repo := NewOrderRepository()
	o, err := domorder.New("o-1", domorder.Owner("u-1"), []domorder.Line{{ProductID: "5", Name: "Tee", Price: decimal.NewFromInt(1), Quantity: 1}}, domorder.StatusPaymentReceived)
	require.NoError(t, err)
	require.NoError(t, repo.Insert(context.Background(), o))

	_, err = repo.UpdateStatus(context.Background(), "o-1", domorder.StatusPaymentPending, "")
	assert.ErrorIs(t, err, domorder.ErrInvalidStateTransition)

	updated, err := repo.UpdateStatus(context.Background(), "o-1", domorder.StatusFulfilled, "")
	require.NoError(t, err)
	assert.Equal(t, domorder.StatusFulfilled, updated.Status)

	mine, err := repo.ListByUser(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Len(t, mine, 1)
	assert.ErrorIs(t, repo.Insert(context.Background(), o), domorder.ErrConflict)
}

func TestGateway_SignedEvents(t *testing.T) {
	gw := NewGateway("http://shop.local/", "whsec_test")
	s, err := gw.CreateSession(context.Background(), payment.CreateSessionInput{
		Metadata: map[string]string{payment.MetaManifest: "5:1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "http://shop.local/pay/"+s.ID, s.URL)
	assert.False(t, s.Paid())

	require.NoError(t, gw.MarkPaid(s.ID))
	body, sig, err := gw.CompletedEvent(s.ID)
	require.NoError(t, err)

	ev, err := gw.ParseEvent(body, sig)
	require.NoError(t, err)
	assert.Equal(t, payment.EventTypeSessionCompleted, ev.Type)
	assert.True(t, ev.Session.Paid())
	assert.Equal(t, "5:1", ev.Session.Metadata[payment.MetaManifest])

	_, err = gw.ParseEvent(body, sig+"00")
	assert.ErrorIs(t, err, payment.ErrInvalidSignature)
	_, err = NewGateway("", "other").ParseEvent(body, sig)
	assert.ErrorIs(t, err, payment.ErrInvalidSignature)
}

func TestGateway_FailCreate(t *testing.T) {
	gw := NewGateway("", "s")
	gw.FailCreate(errors.New("boom"))
	_, err := gw.CreateSession(context.Background(), payment.CreateSessionInput{})
	assert.ErrorIs(t, err, payment.ErrGateway)
	assert.Zero(t, gw.SessionCount())

	_, err = gw.GetSession(context.Background(), "cs_missing")
	assert.ErrorIs(t, err, payment.ErrSessionNotFound)
}

func TestShortfallLog_BoundedNewestFirst(t *testing.T) {
	log := NewShortfallLog(2)
	for _, id := range []string{"1", "2", "3"} {
		require.NoError(t, log.Record(context.Background(), dominv.Shortfall{ProductID: id, Quantity: 1}))
	}
	got, err := log.List(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "3", got[0].ProductID)
	assert.Equal(t, "2", got[1].ProductID)
}
