package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/minishop-storefront/internal/application"
	dominv "github.com/Zhima-Mochi/minishop-storefront/internal/domain/inventory"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const (
	inventoryService       = "inventory-service"
	useCaseRecordShortfall = "inventory.record_shortfall"
)

// RecordShortfallUseCase stores a failed post-payment stock decrement so an
// operator can restock or refund.
type RecordShortfallUseCase struct {
	log dominv.ShortfallLog
	ins application.Instruments
}

var _ application.UseCase[dominv.DeductionFailedEvent, *dominv.Shortfall] = (*RecordShortfallUseCase)(nil)

func NewRecordShortfallUseCase(log dominv.ShortfallLog, tel observability.Observability) *RecordShortfallUseCase {
	return &RecordShortfallUseCase{
		log: log,
		ins: application.NewInstruments(tel, inventoryService),
	}
}

func (uc *RecordShortfallUseCase) Execute(ctx context.Context, evt dominv.DeductionFailedEvent) (_ *dominv.Shortfall, err error) {
	logger := uc.ins.Logger(ctx, useCaseRecordShortfall, nil).With(
		observability.F("order_id", evt.OrderID),
		observability.F("product_id", evt.ProductID),
	)

	ctx, span := uc.ins.Tracer.Start(ctx, application.SpanPrefix+"RecordShortfall",
		attribute.String("use_case", useCaseRecordShortfall),
		attribute.String("inventory.product_id", evt.ProductID),
		attribute.String("inventory.reason", evt.Reason),
	)
	start := time.Now()
	outcome, statusText := "success", "OK"

	defer func() {
		application.EndSpan(span, err, statusText)
		lat := uc.ins.Observe(useCaseRecordShortfall, outcome, start)
		fields := application.DoneFields(ctx, outcome, statusText, lat, err)
		fields = append(fields,
			observability.F("quantity", evt.Quantity),
			observability.F("failure_reason", evt.Reason),
		)
		logger.Info("use_case_done", fields...)
	}()

	if evt.ProductID == "" {
		outcome, statusText = "error", "PRODUCT_ID_REQUIRED"
		return nil, application.NewValidation("shortfall without product id")
	}

	s := dominv.ShortfallFromEvent(evt)
	if s.OccurredAt.IsZero() {
		s.OccurredAt = time.Now().UTC()
	}
	if err := uc.log.Record(ctx, s); err != nil {
		outcome, statusText = "error", "RECORD_FAILED"
		return nil, fmt.Errorf("inventory: record shortfall: %w", err)
	}
	return &s, nil
}
