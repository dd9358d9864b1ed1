package inventory_test

import (
	"context"
	"testing"
	"time"

	appinv "github.com/Zhima-Mochi/minishop-storefront/internal/application/inventory"
	dominv "github.com/Zhima-Mochi/minishop-storefront/internal/domain/inventory"
	"github.com/Zhima-Mochi/minishop-storefront/internal/infrastructure/memory"
	"github.com/Zhima-Mochi/minishop-storefront/internal/infrastructure/outbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorker_RecordsPublishedShortfalls(t *testing.T) {
	shortfalls := memory.NewShortfallLog(0)
	bus := outbox.NewBus(nil, nil, outbox.Options{})
	appinv.NewWorker(bus, appinv.NewRecordShortfallUseCase(shortfalls, nil), nil).Start()

	ctx := context.Background()
	bus.Start(ctx)
	require.NoError(t, bus.Publish(ctx, dominv.NewDeductionFailedEvent("o-1", "cs_1", "5", 2, dominv.FailureReasonInsufficientStock)))

	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	bus.Stop(stopCtx)

	got, err := shortfalls.List(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "o-1", got[0].OrderID)
	assert.Equal(t, "5", got[0].ProductID)
	assert.Equal(t, 2, got[0].Quantity)
	assert.Equal(t, dominv.FailureReasonInsufficientStock, got[0].Reason)
}

func TestRecordShortfall_RequiresProduct(t *testing.T) {
	uc := appinv.NewRecordShortfallUseCase(memory.NewShortfallLog(10), nil)

	_, err := uc.Execute(context.Background(), dominv.DeductionFailedEvent{OrderID: "o-1"})
	require.Error(t, err)
}
