package order

import (
	"context"
	"errors"
	"time"

	"github.com/Zhima-Mochi/minishop-storefront/internal/application"
	dominv "github.com/Zhima-Mochi/minishop-storefront/internal/domain/inventory"
	domain "github.com/Zhima-Mochi/minishop-storefront/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-storefront/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const useCaseFinalizeOrder = "order.finalize"

// FinalizeOrderUseCase reconciles a paid order whose id is already known:
// it claims the order, decrements stock for every tracked line and leaves
// the order in payment_received.
type FinalizeOrderUseCase struct {
	repo     domain.Repository
	deducter stockDeducter
	ins      application.Instruments
}

var _ application.UseCase[FinalizeOrderInput, *FinalizeResult] = (*FinalizeOrderUseCase)(nil)

func NewFinalizeOrderUseCase(
	repo domain.Repository,
	inv dominv.Repository,
	publisher domoutbox.Publisher,
	tel observability.Observability,
) *FinalizeOrderUseCase {
	ins := application.NewInstruments(tel, orderService)
	return &FinalizeOrderUseCase{
		repo:     repo,
		deducter: newStockDeducter(inv, publisher, ins),
		ins:      ins,
	}
}

type FinalizeOrderInput struct {
	OrderID string
	// SessionID is attached to the order when known (webhook path).
	SessionID string
}

func (uc *FinalizeOrderUseCase) Execute(ctx context.Context, cmd FinalizeOrderInput) (res *FinalizeResult, err error) {
	logger := uc.ins.Logger(ctx, useCaseFinalizeOrder, nil).With(observability.F("order_id", cmd.OrderID))
	res = &FinalizeResult{OrderID: cmd.OrderID}

	ctx, span := uc.ins.Tracer.Start(ctx, application.SpanPrefix+"FinalizeOrder",
		attribute.String("use_case", useCaseFinalizeOrder),
		attribute.String("order.id", cmd.OrderID),
	)
	start := time.Now()
	outcome, statusText := "success", "OK"

	defer func() {
		if err != nil {
			res.fail(err)
		}
		application.EndSpan(span, err, statusText)
		lat := uc.ins.Observe(useCaseFinalizeOrder, outcome, start)

		fields := application.DoneFields(ctx, outcome, statusText, lat, err)
		fields = append(fields,
			observability.F("already_processed", res.AlreadyProcessed),
			observability.F("items", len(res.Items)),
			observability.F("items_failed", res.Failed()),
		)
		logger.Info("use_case_done", fields...)
	}()

	if cmd.OrderID == "" {
		outcome, statusText = "error", "ORDER_ID_REQUIRED"
		return res, application.NewValidation("order id is required")
	}

	existing, err := uc.repo.Get(ctx, cmd.OrderID)
	if err != nil {
		outcome, statusText = "error", "ORDER_LOOKUP_FAILED"
		if errors.Is(err, domain.ErrNotFound) {
			statusText = "ORDER_NOT_FOUND"
		}
		return res, wrapRepositoryError(err)
	}
	span.SetAttributes(attribute.String("order.status", string(existing.Status)))

	if existing.Reconciled() {
		statusText = "ALREADY_PROCESSED"
		res.Success, res.AlreadyProcessed = true, true
		return res, nil
	}

	claimed, err := uc.repo.Claim(ctx, existing.ID, domain.StatusPaymentPending, domain.StatusPaymentReceived, cmd.SessionID)
	if err != nil {
		if errors.Is(err, domain.ErrConflict) || errors.Is(err, domain.ErrInvalidStateTransition) {
			statusText = "CLAIM_LOST"
			res.Success, res.AlreadyProcessed = true, true
			return res, nil
		}
		outcome, statusText = "error", "CLAIM_FAILED"
		return res, wrapRepositoryError(err)
	}

	res.Items = uc.deducter.deduct(ctx, logger, claimed.ID, claimed.PaymentSessionID, trackedEntries(claimed.Lines))
	if res.Failed() > 0 {
		statusText = "PARTIAL_STOCK_FAILURE"
	}
	res.Success = true

	span.AddEvent("order.finalized",
		trace.WithAttributes(
			attribute.String("order.status", string(claimed.Status)),
			attribute.Int("order.items_failed", res.Failed()),
		),
	)
	return res, nil
}
