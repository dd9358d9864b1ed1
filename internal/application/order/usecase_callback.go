package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/minishop-storefront/internal/application"
	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const (
	useCaseFinalizeCallback = "order.finalize_callback"
	gatewayPeer             = "payment_gateway"
	gatewayGetSession       = "get_session"
)

// ErrSessionMismatch is returned when the session presented by a caller was
// opened for a different order.
var ErrSessionMismatch = errors.New("order: session does not belong to order")

// FinalizeCallbackUseCase serves the buyer's post-redirect callback. The
// caller is untrusted, so the session is fetched from the gateway and must be
// paid and bound to the order before the order trigger runs.
type FinalizeCallbackUseCase struct {
	gateway payment.Gateway
	byOrder application.UseCase[FinalizeOrderInput, *FinalizeResult]
	ins     application.Instruments
}

var _ application.UseCase[FinalizeCallbackInput, *FinalizeResult] = (*FinalizeCallbackUseCase)(nil)

func NewFinalizeCallbackUseCase(
	gateway payment.Gateway,
	byOrder application.UseCase[FinalizeOrderInput, *FinalizeResult],
	tel observability.Observability,
) *FinalizeCallbackUseCase {
	return &FinalizeCallbackUseCase{
		gateway: gateway,
		byOrder: byOrder,
		ins:     application.NewInstruments(tel, orderService),
	}
}

type FinalizeCallbackInput struct {
	OrderID   string
	SessionID string
}

func (uc *FinalizeCallbackUseCase) Execute(ctx context.Context, cmd FinalizeCallbackInput) (res *FinalizeResult, err error) {
	logger := uc.ins.Logger(ctx, useCaseFinalizeCallback, nil).With(
		observability.F("order_id", cmd.OrderID),
		observability.F("session_id", cmd.SessionID),
	)
	res = &FinalizeResult{OrderID: cmd.OrderID}

	ctx, span := uc.ins.Tracer.Start(ctx, application.SpanPrefix+"FinalizeCallback",
		attribute.String("use_case", useCaseFinalizeCallback),
		attribute.String("order.id", cmd.OrderID),
		attribute.String("payment.session_id", cmd.SessionID),
	)
	start := time.Now()
	outcome, statusText := "success", "OK"

	defer func() {
		if err != nil {
			res.fail(err)
		}
		application.EndSpan(span, err, statusText)
		lat := uc.ins.Observe(useCaseFinalizeCallback, outcome, start)
		logger.Info("use_case_done", application.DoneFields(ctx, outcome, statusText, lat, err)...)
	}()

	if cmd.OrderID == "" || cmd.SessionID == "" {
		outcome, statusText = "error", "INPUT_INVALID"
		return res, application.NewValidation("order id and session id are required")
	}

	gwStart := time.Now()
	session, err := uc.gateway.GetSession(ctx, cmd.SessionID)
	if err != nil {
		uc.ins.ObserveExternal(gatewayPeer, gatewayGetSession, "error", gwStart)
		outcome, statusText = "error", "SESSION_LOOKUP_FAILED"
		if errors.Is(err, payment.ErrSessionNotFound) || errors.Is(err, payment.ErrGateway) {
			return res, err
		}
		return res, fmt.Errorf("%w: %w", ErrGateway, err)
	}
	uc.ins.ObserveExternal(gatewayPeer, gatewayGetSession, "success", gwStart)

	if !session.Paid() {
		outcome, statusText = "error", "PAYMENT_NOT_COMPLETED"
		return res, ErrPaymentNotCompleted
	}
	if payment.MetadataFrom(session.Metadata).OrderID != cmd.OrderID {
		outcome, statusText = "error", "SESSION_MISMATCH"
		return res, ErrSessionMismatch
	}

	res, err = uc.byOrder.Execute(ctx, FinalizeOrderInput{OrderID: cmd.OrderID, SessionID: session.ID})
	if res == nil {
		res = &FinalizeResult{OrderID: cmd.OrderID}
	}
	if err != nil {
		outcome, statusText = "error", "FINALIZE_FAILED"
		return res, err
	}
	if res.AlreadyProcessed {
		statusText = "ALREADY_PROCESSED"
	}
	return res, nil
}
