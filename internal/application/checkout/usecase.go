package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Zhima-Mochi/minishop-storefront/internal/application"
	domcart "github.com/Zhima-Mochi/minishop-storefront/internal/domain/cart"
	dominv "github.com/Zhima-Mochi/minishop-storefront/internal/domain/inventory"
	domorder "github.com/Zhima-Mochi/minishop-storefront/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability"
	"github.com/shopspring/decimal"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	checkoutService = "checkout-service"
	useCaseCheckout = "checkout.start"
	gatewayPeer     = "payment_gateway"
	gatewayEndpoint = "create_session"

	// sessionPlaceholder is substituted by the gateway on redirect.
	sessionPlaceholder = "{CHECKOUT_SESSION_ID}"
)

type IDGenerator interface {
	NewID() string
}

type Config struct {
	// PublicURL is the externally reachable base of the storefront.
	PublicURL string
}

// StartCheckoutUseCase validates a cart against live stock, pre-writes a
// pending order and opens a gateway session for it.
type StartCheckoutUseCase struct {
	inventory dominv.Repository
	orders    domorder.Repository
	gateway   payment.Gateway
	ids       IDGenerator
	cfg       Config
	ins       application.Instruments
}

var _ application.UseCase[StartCheckoutInput, *StartCheckoutResult] = (*StartCheckoutUseCase)(nil)

func NewStartCheckoutUseCase(
	inv dominv.Repository,
	orders domorder.Repository,
	gateway payment.Gateway,
	ids IDGenerator,
	cfg Config,
	tel observability.Observability,
) *StartCheckoutUseCase {
	cfg.PublicURL = strings.TrimRight(cfg.PublicURL, "/")
	return &StartCheckoutUseCase{
		inventory: inv,
		orders:    orders,
		gateway:   gateway,
		ids:       ids,
		cfg:       cfg,
		ins:       application.NewInstruments(tel, checkoutService),
	}
}

type StartCheckoutInput struct {
	Lines []domcart.Line
	// UserID and Email are empty for guests.
	UserID string
	Email  string
}

type StartCheckoutResult struct {
	RedirectURL string
	SessionID   string
	// OrderID is empty when the pending order could not be written.
	OrderID  string
	Total    decimal.Decimal
	Manifest string
}

func (uc *StartCheckoutUseCase) Execute(ctx context.Context, cmd StartCheckoutInput) (_ *StartCheckoutResult, err error) {
	logger := uc.ins.Logger(ctx, useCaseCheckout, nil)

	var orderID string
	var prewriteErr error

	ctx, span := uc.ins.Tracer.Start(ctx, application.SpanPrefix+"StartCheckout",
		attribute.String("use_case", useCaseCheckout),
		attribute.Int("checkout.lines", len(cmd.Lines)),
		attribute.Bool("checkout.guest", cmd.UserID == ""),
	)
	start := time.Now()
	outcome, statusText := "success", "OK"

	defer func() {
		application.EndSpan(span, err, statusText)
		lat := uc.ins.Observe(useCaseCheckout, outcome, start)

		fields := application.DoneFields(ctx, outcome, statusText, lat, err)
		fields = append(fields, observability.F("order_id", orderID))
		if prewriteErr != nil {
			fields = append(fields, observability.F("prewrite_error", prewriteErr.Error()))
		}
		logger.Info("use_case_done", fields...)
	}()

	if len(cmd.Lines) == 0 {
		outcome, statusText = "error", "CART_EMPTY"
		return nil, application.NewValidation("cart is empty")
	}
	for _, l := range cmd.Lines {
		if l.ProductID == "" || l.Quantity < 1 {
			outcome, statusText = "error", "LINE_INVALID"
			return nil, application.NewValidation("every line needs a product and a quantity of at least 1")
		}
		if l.Price.IsNegative() {
			outcome, statusText = "error", "LINE_INVALID"
			return nil, application.NewValidation("line price must not be negative")
		}
		// Custom lines are charged at the price they carry.
		if !l.Tracked() && !l.Price.IsPositive() {
			outcome, statusText = "error", "LINE_INVALID"
			return nil, application.NewValidation("custom line price must be positive")
		}
	}

	lines, err := uc.priceLines(ctx, cmd.Lines)
	if err != nil {
		outcome, statusText = "error", "STOCK_CHECK_FAILED"
		var oos *OutOfStockError
		switch {
		case errors.As(err, &oos):
			statusText = "OUT_OF_STOCK"
			span.SetAttributes(attribute.String("checkout.out_of_stock", oos.ProductID))
		case errors.Is(err, ErrProductUnavailable):
			statusText = "PRODUCT_UNAVAILABLE"
		}
		return nil, err
	}
	total := domorder.Total(lines)
	manifest := manifestOf(lines)
	span.SetAttributes(attribute.String("checkout.total", total.String()))

	// Best effort: finalization rebuilds the order from the manifest when
	// this write is missing.
	candidate := uc.ids.NewID()
	pending, prewriteErr := domorder.New(candidate, domorder.Owner(cmd.UserID), lines, domorder.StatusPaymentPending)
	if prewriteErr == nil {
		prewriteErr = uc.orders.Insert(ctx, pending)
	}
	if prewriteErr != nil {
		statusText = "PREWRITE_FAILED"
		logger.Warn("order_prewrite_failed",
			observability.F("order_id", candidate),
			observability.Err(prewriteErr),
		)
	} else {
		orderID = candidate
	}

	metadata := map[string]string{
		payment.MetaUserID:   cmd.UserID,
		payment.MetaManifest: manifest.String(),
	}
	if orderID != "" {
		metadata[payment.MetaOrderID] = orderID
	}

	items := make([]payment.LineItem, 0, len(lines))
	for _, l := range lines {
		items = append(items, payment.LineItem{
			Name:       l.Name,
			ImageURL:   l.ImageURL,
			UnitAmount: payment.MinorUnits(l.Price),
			Quantity:   int64(l.Quantity),
		})
	}

	gwStart := time.Now()
	session, err := uc.gateway.CreateSession(ctx, payment.CreateSessionInput{
		LineItems:     items,
		Metadata:      metadata,
		SuccessURL:    uc.cfg.PublicURL + "/success?session_id=" + sessionPlaceholder,
		CancelURL:     uc.cfg.PublicURL + "/?canceled=true",
		CustomerEmail: cmd.Email,
	})
	if err != nil {
		uc.ins.ObserveExternal(gatewayPeer, gatewayEndpoint, "error", gwStart)
		outcome, statusText = "error", "SESSION_CREATE_FAILED"
		if errors.Is(err, payment.ErrGateway) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", payment.ErrGateway, err)
	}
	uc.ins.ObserveExternal(gatewayPeer, gatewayEndpoint, "success", gwStart)

	span.AddEvent("checkout.session_created",
		trace.WithAttributes(
			attribute.String("payment.session_id", session.ID),
			attribute.String("order.id", orderID),
		),
	)

	return &StartCheckoutResult{
		RedirectURL: session.URL,
		SessionID:   session.ID,
		OrderID:     orderID,
		Total:       total,
		Manifest:    manifest.String(),
	}, nil
}

// priceLines checks every tracked line against live stock and replaces its
// snapshot with the live name, price and image. Custom lines keep theirs.
func (uc *StartCheckoutUseCase) priceLines(ctx context.Context, in []domcart.Line) ([]domorder.Line, error) {
	ids := make([]string, 0, len(in))
	requested := make(map[string]int, len(in))
	for _, l := range in {
		if !l.Tracked() {
			continue
		}
		if _, seen := requested[l.ProductID]; !seen {
			ids = append(ids, l.ProductID)
		}
		requested[l.ProductID] += l.Quantity
	}

	byID := make(map[string]*dominv.Product, len(ids))
	if len(ids) > 0 {
		products, err := uc.inventory.GetMany(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("checkout: load products: %w", err)
		}
		for _, p := range products {
			byID[p.ID] = p
		}
	}

	out := make([]domorder.Line, 0, len(in))
	for _, l := range in {
		line := domorder.Line{
			ProductID: l.ProductID,
			Name:      l.Name,
			Price:     l.Price,
			Quantity:  l.Quantity,
			ImageURL:  l.ImageURL,
		}
		if l.Tracked() {
			p, ok := byID[l.ProductID]
			if !ok {
				return nil, fmt.Errorf("%w: %q", ErrProductUnavailable, l.Name)
			}
			if !p.Available(requested[l.ProductID]) {
				return nil, &OutOfStockError{ProductID: p.ID, Name: p.Name, Remaining: p.Stock}
			}
			line.Name, line.Price, line.ImageURL = p.Name, p.Price, p.ImageURL
		}
		out = append(out, line)
	}
	return out, nil
}

func manifestOf(lines []domorder.Line) payment.Manifest {
	m := make(payment.Manifest, 0, len(lines))
	for _, l := range lines {
		if l.Tracked() {
			m = append(m, payment.ManifestEntry{ProductID: l.ProductID, Quantity: l.Quantity})
		}
	}
	return m
}
