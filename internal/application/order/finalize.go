package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/minishop-storefront/internal/application"
	dominv "github.com/Zhima-Mochi/minishop-storefront/internal/domain/inventory"
	domain "github.com/Zhima-Mochi/minishop-storefront/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-storefront/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability"
)

const (
	orderService    = "order-service"
	publishPeer     = "outbox"
	publishEndpoint = "inventory.deduction_failed"
	publishTimeout  = 300 * time.Millisecond
)

var (
	ErrConflict            = domain.ErrConflict
	ErrNotFound            = domain.ErrNotFound
	ErrPaymentNotCompleted = errors.New("order: payment not completed")
	ErrMetadataMissing     = errors.New("order: session metadata missing")
	ErrManifestMalformed   = payment.ErrManifestMalformed
	ErrRepository          = errors.New("order: repository failure")
	ErrGateway             = payment.ErrGateway
)

// ItemResult reports the stock decrement of one line.
type ItemResult struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

// FinalizeResult is returned by both finalization triggers, also on failure.
type FinalizeResult struct {
	Success          bool         `json:"success"`
	AlreadyProcessed bool         `json:"already_processed,omitempty"`
	OrderID          string       `json:"order_id,omitempty"`
	Created          bool         `json:"created,omitempty"`
	Error            string       `json:"error,omitempty"`
	Items            []ItemResult `json:"items,omitempty"`
}

// Failed reports the number of lines whose stock could not be decremented.
func (r *FinalizeResult) Failed() int {
	n := 0
	for _, it := range r.Items {
		if !it.Success {
			n++
		}
	}
	return n
}

func (r *FinalizeResult) fail(err error) {
	r.Success = false
	r.Error = err.Error()
}

// stockDeducter decrements stock line by line. A failed line never stops
// its siblings; it is reported in the results and published as a shortfall.
type stockDeducter struct {
	inventory  dominv.Repository
	publisher  domoutbox.Publisher
	ins        application.Instruments
	decrements observability.Counter // stock_decrements_total{outcome}
}

func newStockDeducter(inv dominv.Repository, publisher domoutbox.Publisher, ins application.Instruments) stockDeducter {
	return stockDeducter{
		inventory:  inv,
		publisher:  publisher,
		ins:        ins,
		decrements: ins.Counter(observability.MStockDecrements),
	}
}

// deduct runs detached from ctx cancellation: once the order has been
// claimed every line must be attempted.
func (d stockDeducter) deduct(ctx context.Context, logger observability.Logger, orderID, sessionID string, entries []payment.ManifestEntry) []ItemResult {
	ctx = context.WithoutCancel(ctx)
	results := make([]ItemResult, 0, len(entries))

	for _, e := range entries {
		if !dominv.Tracked(e.ProductID) {
			continue
		}
		item := ItemResult{ProductID: e.ProductID, Quantity: e.Quantity}

		remaining, err := d.inventory.DecrementStock(ctx, e.ProductID, e.Quantity)
		if err != nil {
			reason := dominv.FailureReasonFromError(err)
			item.Error = err.Error()
			d.decrements.Add(1, observability.L("outcome", reason))
			logger.Warn("stock_decrement_failed",
				observability.F("order_id", orderID),
				observability.F("product_id", e.ProductID),
				observability.F("quantity", e.Quantity),
				observability.F("reason", reason),
				observability.Err(err),
			)
			d.publishShortfall(ctx, logger, dominv.NewDeductionFailedEvent(orderID, sessionID, e.ProductID, e.Quantity, reason))
		} else {
			item.Success = true
			d.decrements.Add(1, observability.L("outcome", "success"))
			logger.Debug("stock_decremented",
				observability.F("product_id", e.ProductID),
				observability.F("quantity", e.Quantity),
				observability.F("remaining", remaining),
			)
		}
		results = append(results, item)
	}
	return results
}

func (d stockDeducter) publishShortfall(ctx context.Context, logger observability.Logger, evt dominv.DeductionFailedEvent) {
	if d.publisher == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	start := time.Now()
	outcome := "success"
	err := d.publisher.Publish(pubCtx, evt)
	if err != nil {
		outcome = "error"
	} else if pubCtx.Err() != nil {
		outcome = "canceled"
		err = pubCtx.Err()
	}
	d.ins.ObserveExternal(publishPeer, publishEndpoint, outcome, start)
	if err != nil {
		logger.Warn("event_publish_failed",
			observability.F("event", evt.EventName()),
			observability.F("product_id", evt.ProductID),
			observability.Err(err),
		)
	}
}

// trackedEntries converts the stock-bearing lines of an order.
func trackedEntries(lines []domain.Line) []payment.ManifestEntry {
	out := make([]payment.ManifestEntry, 0, len(lines))
	for _, l := range lines {
		if l.Tracked() {
			out = append(out, payment.ManifestEntry{ProductID: l.ProductID, Quantity: l.Quantity})
		}
	}
	return out
}

func wrapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, domain.ErrConflict):
		return ErrConflict
	case errors.Is(err, domain.ErrInvalidStateTransition):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrRepository, err)
	}
}
