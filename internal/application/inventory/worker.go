package inventory

import (
	"context"
	"fmt"

	"github.com/Zhima-Mochi/minishop-storefront/internal/application"
	dominv "github.com/Zhima-Mochi/minishop-storefront/internal/domain/inventory"
	domoutbox "github.com/Zhima-Mochi/minishop-storefront/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability/logctx"
)

const useCaseWorkerShortfall = "inventory.worker.deduction_failed"

// Middleware decorates bus handlers (request logger, trace ids).
type Middleware func(domoutbox.Handler) domoutbox.Handler

// Worker feeds deduction failures from the bus into the shortfall log.
type Worker struct {
	subscriber domoutbox.Subscriber
	useCase    application.UseCase[dominv.DeductionFailedEvent, *dominv.Shortfall]
	ins        application.Instruments
}

func NewWorker(
	subscriber domoutbox.Subscriber,
	useCase application.UseCase[dominv.DeductionFailedEvent, *dominv.Shortfall],
	tel observability.Observability,
) *Worker {
	return &Worker{
		subscriber: subscriber,
		useCase:    useCase,
		ins:        application.NewInstruments(tel, "inventory_worker"),
	}
}

func (w *Worker) Start(mw ...Middleware) {
	if w.subscriber == nil || w.useCase == nil {
		return
	}
	var h domoutbox.Handler = w.handleDeductionFailed
	for i := len(mw) - 1; i >= 0; i-- {
		h = mw[i](h)
	}
	w.subscriber.Subscribe(dominv.DeductionFailedEvent{}.EventName(), h)
}

func (w *Worker) handleDeductionFailed(ctx context.Context, e domoutbox.Event) error {
	evt, ok := e.(dominv.DeductionFailedEvent)
	if !ok {
		w.ins.Counter(observability.MUsecaseRequests).Add(1,
			observability.L("use_case", useCaseWorkerShortfall),
			observability.L("outcome", "ignored"),
		)
		return nil
	}
	ctx, logger := logctx.WithFields(ctx, w.ins.Log, observability.F("session_id", evt.SessionID))
	if _, err := w.useCase.Execute(ctx, evt); err != nil {
		logger.Error("shortfall_record_failed",
			observability.F("order_id", evt.OrderID),
			observability.F("product_id", evt.ProductID),
			observability.Err(err),
		)
		return fmt.Errorf("worker: record shortfall: %w", err)
	}
	return nil
}
