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
	"github.com/shopspring/decimal"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	useCaseFinalizeSession = "order.finalize_session"
	placeholderName        = "Product"
)

// FinalizeSessionUseCase reconciles a payment session when only the session
// is known. It resolves the order from the session metadata, or rebuilds it
// from the item manifest when no order row exists, then deducts stock per
// manifest entry.
type FinalizeSessionUseCase struct {
	repo      domain.Repository
	inventory dominv.Repository
	gateway   payment.Gateway
	deducter  stockDeducter
	ins       application.Instruments
}

var _ application.UseCase[FinalizeSessionInput, *FinalizeResult] = (*FinalizeSessionUseCase)(nil)

func NewFinalizeSessionUseCase(
	repo domain.Repository,
	inv dominv.Repository,
	gateway payment.Gateway,
	publisher domoutbox.Publisher,
	tel observability.Observability,
) *FinalizeSessionUseCase {
	ins := application.NewInstruments(tel, orderService)
	return &FinalizeSessionUseCase{
		repo:      repo,
		inventory: inv,
		gateway:   gateway,
		deducter:  newStockDeducter(inv, publisher, ins),
		ins:       ins,
	}
}

type FinalizeSessionInput struct {
	SessionID string
	// Session skips the gateway lookup when the caller already holds a
	// verified copy (signed webhook payload).
	Session *payment.Session
}

func (uc *FinalizeSessionUseCase) Execute(ctx context.Context, cmd FinalizeSessionInput) (res *FinalizeResult, err error) {
	sessionID := cmd.SessionID
	if sessionID == "" && cmd.Session != nil {
		sessionID = cmd.Session.ID
	}
	logger := uc.ins.Logger(ctx, useCaseFinalizeSession, nil).With(observability.F("session_id", sessionID))
	res = &FinalizeResult{}

	ctx, span := uc.ins.Tracer.Start(ctx, application.SpanPrefix+"FinalizeSession",
		attribute.String("use_case", useCaseFinalizeSession),
		attribute.String("payment.session_id", sessionID),
	)
	start := time.Now()
	outcome, statusText := "success", "OK"

	defer func() {
		if err != nil {
			res.fail(err)
		}
		application.EndSpan(span, err, statusText)
		lat := uc.ins.Observe(useCaseFinalizeSession, outcome, start)

		fields := application.DoneFields(ctx, outcome, statusText, lat, err)
		fields = append(fields,
			observability.F("order_id", res.OrderID),
			observability.F("created", res.Created),
			observability.F("already_processed", res.AlreadyProcessed),
			observability.F("items", len(res.Items)),
			observability.F("items_failed", res.Failed()),
		)
		logger.Info("use_case_done", fields...)
	}()

	if sessionID == "" {
		outcome, statusText = "error", "SESSION_ID_REQUIRED"
		return res, application.NewValidation("session id is required")
	}

	session := cmd.Session
	if session == nil {
		session, err = uc.gateway.GetSession(ctx, sessionID)
		if err != nil {
			outcome, statusText = "error", "SESSION_LOOKUP_FAILED"
			if errors.Is(err, payment.ErrSessionNotFound) || errors.Is(err, payment.ErrGateway) {
				return res, err
			}
			return res, fmt.Errorf("%w: %w", ErrGateway, err)
		}
	}

	if !session.Paid() {
		outcome, statusText = "error", "PAYMENT_NOT_COMPLETED"
		return res, ErrPaymentNotCompleted
	}

	md := payment.MetadataFrom(session.Metadata)
	if !md.HasManifest {
		outcome, statusText = "error", "METADATA_MISSING"
		return res, ErrMetadataMissing
	}
	manifest, err := payment.ParseManifest(md.Manifest)
	if err != nil {
		outcome, statusText = "error", "MANIFEST_MALFORMED"
		return res, err
	}
	span.SetAttributes(attribute.Int("payment.manifest_entries", len(manifest)))

	orderID := md.OrderID
	if orderID != "" {
		existing, getErr := uc.repo.Get(ctx, orderID)
		switch {
		case getErr == nil:
			res.OrderID = existing.ID
			if existing.Reconciled() {
				statusText = "ALREADY_PROCESSED"
				res.Success, res.AlreadyProcessed = true, true
				return res, nil
			}
			if _, claimErr := uc.repo.Claim(ctx, existing.ID, domain.StatusPaymentPending, domain.StatusAwaitingPreparation, session.ID); claimErr != nil {
				if errors.Is(claimErr, domain.ErrConflict) || errors.Is(claimErr, domain.ErrInvalidStateTransition) {
					statusText = "CLAIM_LOST"
					res.Success, res.AlreadyProcessed = true, true
					return res, nil
				}
				outcome, statusText = "error", "CLAIM_FAILED"
				return res, wrapRepositoryError(claimErr)
			}
			res.Items = uc.deducter.deduct(ctx, logger, existing.ID, session.ID, manifest)
			return uc.succeed(span, res, &statusText), nil

		case errors.Is(getErr, domain.ErrNotFound):
			logger.Warn("order_missing_reconstructing", observability.F("order_id", orderID))

		default:
			outcome, statusText = "error", "ORDER_LOOKUP_FAILED"
			return res, wrapRepositoryError(getErr)
		}
	} else {
		orderID = ReconstructedOrderID(session.ID)
	}
	res.OrderID = orderID

	rebuilt, buildErr := uc.reconstruct(ctx, logger, orderID, md.UserID, session.ID, manifest)
	switch {
	case buildErr != nil:
		// Only an empty manifest fails to build; there is nothing to deduct either.
		logger.Warn("order_reconstruct_skipped", observability.Err(buildErr))
	default:
		insertErr := uc.repo.Insert(ctx, rebuilt)
		switch {
		case insertErr == nil:
			res.Created = true
		case errors.Is(insertErr, domain.ErrConflict):
			statusText = "ALREADY_PROCESSED"
			res.Success, res.AlreadyProcessed = true, true
			return res, nil
		default:
			statusText = "RECONSTRUCT_INSERT_FAILED"
			logger.Error("order_reconstruct_insert_failed",
				observability.F("order_id", orderID),
				observability.Err(insertErr),
			)
		}
	}

	res.Items = uc.deducter.deduct(ctx, logger, orderID, session.ID, manifest)
	return uc.succeed(span, res, &statusText), nil
}

func (uc *FinalizeSessionUseCase) succeed(span trace.Span, res *FinalizeResult, statusText *string) *FinalizeResult {
	if res.Failed() > 0 && *statusText == "OK" {
		*statusText = "PARTIAL_STOCK_FAILURE"
	}
	res.Success = true
	span.AddEvent("order.finalized",
		trace.WithAttributes(
			attribute.String("order.id", res.OrderID),
			attribute.Bool("order.created", res.Created),
			attribute.Int("order.items_failed", res.Failed()),
		),
	)
	return res
}

// reconstruct assembles an order from the manifest. Unknown products and a
// failed catalog lookup fall back to a placeholder line at zero price.
func (uc *FinalizeSessionUseCase) reconstruct(ctx context.Context, logger observability.Logger, orderID, userID, sessionID string, manifest payment.Manifest) (*domain.Order, error) {
	byID := make(map[string]*dominv.Product, len(manifest))
	products, err := uc.inventory.GetMany(ctx, manifest.ProductIDs())
	if err != nil {
		logger.Warn("product_lookup_failed", observability.Err(err))
	}
	for _, p := range products {
		byID[p.ID] = p
	}

	lines := make([]domain.Line, 0, len(manifest))
	for _, e := range manifest {
		line := domain.Line{ProductID: e.ProductID, Name: placeholderName, Price: decimal.Zero, Quantity: e.Quantity}
		if p, ok := byID[e.ProductID]; ok {
			line.Name, line.Price, line.ImageURL = p.Name, p.Price, p.ImageURL
		}
		lines = append(lines, line)
	}

	o, err := domain.New(orderID, domain.Owner(userID), lines, domain.StatusAwaitingPreparation)
	if err != nil {
		return nil, err
	}
	o.PaymentSessionID = sessionID
	return o, nil
}
