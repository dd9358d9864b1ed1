package cart

import (
	"context"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/minishop-storefront/internal/application"
	domcart "github.com/Zhima-Mochi/minishop-storefront/internal/domain/cart"
	dominv "github.com/Zhima-Mochi/minishop-storefront/internal/domain/inventory"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const (
	cartService         = "cart-service"
	useCaseValidateCart = "cart.validate"

	MessageDiscontinued = "Some products were removed from your cart because they are no longer sold."
	messageOutOfStock   = "%q was removed from your cart because it is out of stock."
)

// Validation lists the lines that can no longer be bought.
type Validation struct {
	Valid     bool
	RemoveIDs []string
	Messages  []string
}

// ValidateCartUseCase re-checks cart lines against live stock. It only
// reports; callers apply the removals.
type ValidateCartUseCase struct {
	inventory dominv.Repository
	ins       application.Instruments
}

var _ application.UseCase[[]domcart.Line, *Validation] = (*ValidateCartUseCase)(nil)

func NewValidateCartUseCase(inv dominv.Repository, tel observability.Observability) *ValidateCartUseCase {
	return &ValidateCartUseCase{
		inventory: inv,
		ins:       application.NewInstruments(tel, cartService),
	}
}

func (uc *ValidateCartUseCase) Execute(ctx context.Context, lines []domcart.Line) (res *Validation, err error) {
	logger := uc.ins.Logger(ctx, useCaseValidateCart, nil)
	res = &Validation{Valid: true}

	ctx, span := uc.ins.Tracer.Start(ctx, application.SpanPrefix+"ValidateCart",
		attribute.String("use_case", useCaseValidateCart),
		attribute.Int("cart.lines", len(lines)),
	)
	start := time.Now()
	outcome, statusText := "success", "OK"

	defer func() {
		application.EndSpan(span, err, statusText)
		lat := uc.ins.Observe(useCaseValidateCart, outcome, start)
		fields := application.DoneFields(ctx, outcome, statusText, lat, err)
		fields = append(fields, observability.F("removed", len(res.RemoveIDs)))
		logger.Info("use_case_done", fields...)
	}()

	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		if l.Tracked() {
			ids = append(ids, l.ProductID)
		}
	}
	if len(ids) == 0 {
		return res, nil
	}

	products, err := uc.inventory.GetMany(ctx, ids)
	if err != nil {
		outcome, statusText = "error", "PRODUCT_LOOKUP_FAILED"
		return res, fmt.Errorf("cart: load products: %w", err)
	}
	byID := make(map[string]*dominv.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	discontinued := false
	for _, l := range lines {
		if !l.Tracked() {
			continue
		}
		p, ok := byID[l.ProductID]
		switch {
		case !ok:
			res.RemoveIDs = append(res.RemoveIDs, l.ProductID)
			if !discontinued {
				res.Messages = append(res.Messages, MessageDiscontinued)
				discontinued = true
			}
		case !p.Available(l.Quantity):
			res.RemoveIDs = append(res.RemoveIDs, l.ProductID)
			res.Messages = append(res.Messages, OutOfStockMessage(p.Name))
		}
	}
	res.Valid = len(res.RemoveIDs) == 0
	if !res.Valid {
		statusText = "LINES_REMOVED"
	}
	return res, nil
}

func OutOfStockMessage(name string) string {
	return fmt.Sprintf(messageOutOfStock, name)
}
