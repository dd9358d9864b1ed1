package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/minishop-storefront/internal/application"
	apporder "github.com/Zhima-Mochi/minishop-storefront/internal/application/order"
	domorder "github.com/Zhima-Mochi/minishop-storefront/internal/domain/order"
	dompay "github.com/Zhima-Mochi/minishop-storefront/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	paymentService = "payment-service"
	useCaseWebhook = "payment.webhook"
)

var (
	ErrInvalidSignature = dompay.ErrInvalidSignature
	ErrInvalidPayload   = errors.New("payment: invalid webhook payload")
)

type HandleWebhookInput struct {
	Payload   []byte
	Signature string
}

type HandleWebhookResult struct {
	EventID   string
	EventType string
	// Handled is false for ignored event types and for sessions that can
	// never be finalized (unpaid, missing metadata).
	Handled  bool
	Trigger  string
	Finalize *apporder.FinalizeResult
}

// HandleWebhookUseCase verifies a gateway delivery and routes completed
// sessions to the matching finalization trigger.
type HandleWebhookUseCase struct {
	gateway   dompay.Gateway
	orders    domorder.Repository
	byOrder   application.UseCase[apporder.FinalizeOrderInput, *apporder.FinalizeResult]
	bySession application.UseCase[apporder.FinalizeSessionInput, *apporder.FinalizeResult]
	ins       application.Instruments
}

var _ application.UseCase[HandleWebhookInput, *HandleWebhookResult] = (*HandleWebhookUseCase)(nil)

func NewHandleWebhookUseCase(
	gateway dompay.Gateway,
	orders domorder.Repository,
	byOrder application.UseCase[apporder.FinalizeOrderInput, *apporder.FinalizeResult],
	bySession application.UseCase[apporder.FinalizeSessionInput, *apporder.FinalizeResult],
	tel observability.Observability,
) *HandleWebhookUseCase {
	return &HandleWebhookUseCase{
		gateway:   gateway,
		orders:    orders,
		byOrder:   byOrder,
		bySession: bySession,
		ins:       application.NewInstruments(tel, paymentService),
	}
}

func (uc *HandleWebhookUseCase) Execute(ctx context.Context, cmd HandleWebhookInput) (res *HandleWebhookResult, err error) {
	logger := uc.ins.Logger(ctx, useCaseWebhook, nil)
	res = &HandleWebhookResult{}

	ctx, span := uc.ins.Tracer.Start(ctx, application.SpanPrefix+"HandleWebhook",
		attribute.String("use_case", useCaseWebhook),
	)
	start := time.Now()
	outcome, statusText := "success", "OK"

	defer func() {
		application.EndSpan(span, err, statusText)
		lat := uc.ins.Observe(useCaseWebhook, outcome, start)

		fields := application.DoneFields(ctx, outcome, statusText, lat, err)
		fields = append(fields,
			observability.F("event_id", res.EventID),
			observability.F("event_type", res.EventType),
			observability.F("handled", res.Handled),
			observability.F("trigger", res.Trigger),
		)
		logger.Info("use_case_done", fields...)
	}()

	event, err := uc.gateway.ParseEvent(cmd.Payload, cmd.Signature)
	if err != nil {
		outcome = "error"
		if errors.Is(err, dompay.ErrInvalidSignature) {
			statusText = "SIGNATURE_INVALID"
			return res, err
		}
		statusText = "PAYLOAD_INVALID"
		return res, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	res.EventID, res.EventType = event.ID, event.Type
	span.SetAttributes(
		attribute.String("payment.event_id", event.ID),
		attribute.String("payment.event_type", event.Type),
	)

	if event.Type != dompay.EventTypeSessionCompleted || event.Session == nil {
		statusText = "EVENT_IGNORED"
		return res, nil
	}
	session := event.Session
	md := dompay.MetadataFrom(session.Metadata)

	var finalized *apporder.FinalizeResult
	if !session.Paid() {
		// Async payment methods complete the session before funds settle.
		err = apporder.ErrPaymentNotCompleted
	} else if md.OrderID != "" {
		_, getErr := uc.orders.Get(ctx, md.OrderID)
		switch {
		case getErr == nil:
			res.Trigger = "order"
			finalized, err = uc.byOrder.Execute(ctx, apporder.FinalizeOrderInput{
				OrderID:   md.OrderID,
				SessionID: session.ID,
			})
		case errors.Is(getErr, domorder.ErrNotFound):
		default:
			outcome, statusText = "error", "ORDER_LOOKUP_FAILED"
			return res, fmt.Errorf("%w: %w", apporder.ErrRepository, getErr)
		}
	}
	if res.Trigger == "" && err == nil {
		res.Trigger = "session"
		finalized, err = uc.bySession.Execute(ctx, apporder.FinalizeSessionInput{
			SessionID: session.ID,
			Session:   session,
		})
	}
	res.Finalize = finalized
	span.AddEvent("payment.webhook_routed", trace.WithAttributes(attribute.String("trigger", res.Trigger)))

	switch {
	case err == nil:
		res.Handled = true
		if finalized != nil && finalized.AlreadyProcessed {
			statusText = "ALREADY_PROCESSED"
		}
		return res, nil
	case permanent(err):
		// Redelivery cannot change the outcome; acknowledge and keep the trace.
		logger.Warn("webhook_session_not_finalizable",
			observability.F("session_id", session.ID),
			observability.Err(err),
		)
		statusText = "NOT_FINALIZABLE"
		return res, nil
	default:
		outcome, statusText = "error", "FINALIZE_FAILED"
		return res, err
	}
}

func permanent(err error) bool {
	return errors.Is(err, apporder.ErrPaymentNotCompleted) ||
		errors.Is(err, apporder.ErrMetadataMissing) ||
		errors.Is(err, apporder.ErrManifestMalformed)
}
