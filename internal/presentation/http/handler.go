package httppresentation

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/Zhima-Mochi/minishop-storefront/internal/application"
	appcart "github.com/Zhima-Mochi/minishop-storefront/internal/application/cart"
	"github.com/Zhima-Mochi/minishop-storefront/internal/application/catalog"
	"github.com/Zhima-Mochi/minishop-storefront/internal/application/checkout"
	apporder "github.com/Zhima-Mochi/minishop-storefront/internal/application/order"
	apppay "github.com/Zhima-Mochi/minishop-storefront/internal/application/payment"
	domcart "github.com/Zhima-Mochi/minishop-storefront/internal/domain/cart"
	dominv "github.com/Zhima-Mochi/minishop-storefront/internal/domain/inventory"
	domorder "github.com/Zhima-Mochi/minishop-storefront/internal/domain/order"
	dompay "github.com/Zhima-Mochi/minishop-storefront/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability/logctx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	componentHTTPHandler = "http_server"
	headerRequestID      = "X-Request-ID"
	headerUserID         = "X-User-ID"
	headerUserEmail      = "X-User-Email"
	headerCartID         = "X-Cart-ID"
	headerAdminPassword  = "X-Admin-Password"
	headerStripeSig      = "Stripe-Signature"

	maxBodyBytes    = 1 << 20
	maxWebhookBytes = 1 << 20
)

// Deps lists what the HTTP surface calls into.
type Deps struct {
	Catalog         *catalog.Service
	Cart            *appcart.Service
	Orders          *apporder.Service
	Checkout        application.UseCase[checkout.StartCheckoutInput, *checkout.StartCheckoutResult]
	FinalizeOrder   application.UseCase[apporder.FinalizeCallbackInput, *apporder.FinalizeResult]
	FinalizeSession application.UseCase[apporder.FinalizeSessionInput, *apporder.FinalizeResult]
	Webhook         application.UseCase[apppay.HandleWebhookInput, *apppay.HandleWebhookResult]
	AdminPassword   string
	MetricsHandler  http.Handler

	// LocalPayments enables the /pay/{id} page of the in-memory gateway.
	LocalPayments LocalPayments
}

// LocalPayments settles in-memory checkout sessions.
type LocalPayments interface {
	MarkPaid(sessionID string) error
}

type Handler struct {
	deps Deps
	log  observability.Logger
	tel  observability.Observability

	httpRequests observability.Counter   // http_requests_total{method,route,status}
	httpDuration observability.Histogram // http_request_duration_seconds{method,route,status}
}

func NewHandler(deps Deps, logger observability.Logger, tel observability.Observability) *Handler {
	if tel == nil {
		tel = observability.Nop()
	}
	baseLogger := logger
	if baseLogger == nil {
		baseLogger = tel.Logger()
	}
	return &Handler{
		deps:         deps,
		log:          baseLogger.With(observability.F("component", componentHTTPHandler)),
		tel:          tel,
		httpRequests: tel.Metrics().Counter(observability.MHTTPRequests),
		httpDuration: tel.Metrics().Histogram(observability.MHTTPRequestDuration),
	}
}

func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()

	// Trace → request logger → HTTP metrics → access log → handler
	h.muxHandle(mux, http.MethodGet, "/health", h.handleHealth)

	h.muxHandle(mux, http.MethodGet, "/products", h.handleListProducts)
	h.muxHandle(mux, http.MethodGet, "/products/{id}", h.handleGetProduct)

	h.muxHandle(mux, http.MethodGet, "/cart", h.handleGetCart)
	h.muxHandle(mux, http.MethodPost, "/cart/items", h.handleAddCartItem)
	h.muxHandle(mux, http.MethodPost, "/cart/custom-items", h.handleAddCustomItem)
	h.muxHandle(mux, http.MethodPatch, "/cart/items/{id}", h.handleUpdateCartItem)
	h.muxHandle(mux, http.MethodDelete, "/cart/items/{id}", h.handleRemoveCartItem)
	h.muxHandle(mux, http.MethodDelete, "/cart", h.handleClearCart)

	h.muxHandle(mux, http.MethodPost, "/checkout", h.handleCheckout)
	h.muxHandle(mux, http.MethodGet, "/success", h.handleSuccess)
	h.muxHandle(mux, http.MethodPost, "/orders/{id}/finalize", h.handleFinalizeOrder)
	h.muxHandle(mux, http.MethodGet, "/orders", h.handleOrderHistory)
	h.muxHandle(mux, http.MethodPost, "/webhooks/stripe", h.handleStripeWebhook)

	h.muxHandle(mux, http.MethodGet, "/admin/products", h.requireAdmin(h.handleAdminListProducts))
	h.muxHandle(mux, http.MethodPost, "/admin/products", h.requireAdmin(h.handleAdminCreateProduct))
	h.muxHandle(mux, http.MethodPut, "/admin/products/{id}", h.requireAdmin(h.handleAdminUpdateProduct))
	h.muxHandle(mux, http.MethodPatch, "/admin/products/{id}/price", h.requireAdmin(h.handleAdminUpdatePrice))
	h.muxHandle(mux, http.MethodDelete, "/admin/products/{id}", h.requireAdmin(h.handleAdminDeleteProduct))
	h.muxHandle(mux, http.MethodGet, "/admin/orders", h.requireAdmin(h.handleAdminListOrders))
	h.muxHandle(mux, http.MethodPost, "/admin/orders/{id}/fulfil", h.requireAdmin(h.handleAdminFulfilOrder))
	h.muxHandle(mux, http.MethodGet, "/admin/stock-shortfalls", h.requireAdmin(h.handleAdminShortfalls))

	if h.deps.LocalPayments != nil {
		h.muxHandle(mux, http.MethodGet, "/pay/{id}", h.handleLocalPay)
	}
	if h.deps.MetricsHandler != nil {
		mux.Handle("GET /metrics", h.deps.MetricsHandler)
	}
	return mux
}

func (h *Handler) muxHandle(mux *http.ServeMux, method, route string, handler http.HandlerFunc) {
	pattern := method + " " + route
	wrapped := h.withTrace(
		ObservabilityMiddleware(
			h.log,
			func(r *http.Request) string { return r.Header.Get(headerRequestID) },
			func(r *http.Request) string { return r.Header.Get(headerUserID) },
			h.tel,
		)(
			h.withHTTPMetrics(
				h.withAccessLog(handler),
			),
		),
	)
	mux.Handle(pattern, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Store stable route template for low-cardinality labels
		wrapped.ServeHTTP(w, r.WithContext(contextWithRoute(r.Context(), pattern)))
	}))
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// requireAdmin compares the admin header in constant time.
func (h *Handler) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		got := []byte(r.Header.Get(headerAdminPassword))
		want := []byte(h.deps.AdminPassword)
		if len(want) == 0 || subtle.ConstantTimeCompare(got, want) != 1 {
			logctx.FromOr(r.Context(), h.log).Warn("admin_auth_failed",
				observability.F("route", routeFromContext(r.Context())),
			)
			writeError(w, http.StatusUnauthorized, errors.New("admin password required"))
			return
		}
		next(w, r)
	}
}

// withAccessLog writes a single access log after the handler completes.
// It relies on the request-scoped logger already injected by ObservabilityMiddleware.
func (h *Handler) withAccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(lrw, r)

		logctx.FromOr(r.Context(), h.log).Info("http_access",
			observability.F("method", r.Method),
			observability.F("route", routeFromContext(r.Context())),
			observability.F("path", r.URL.Path),
			observability.F("status", lrw.status),
			observability.F("latency_ms", time.Since(start).Milliseconds()),
		)
	})
}

// withTrace creates a server span for the request using OTel and W3C propagation.
func (h *Handler) withTrace(next http.Handler) http.Handler {
	tracer := otel.Tracer("storefront.http")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parentCtx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

		route := routeFromContext(parentCtx)
		ctxWithSpan, span := tracer.Start(parentCtx,
			route,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.route", route),
				attribute.String("http.target", r.URL.Path),
				attribute.String("http.user_agent", r.UserAgent()),
			),
		)
		defer span.End()

		next.ServeHTTP(w, r.WithContext(ctxWithSpan))
	})
}

// withHTTPMetrics records RED-ish HTTP metrics using injected vectors.
func (h *Handler) withHTTPMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(lrw, r)

		labels := []observability.Label{
			observability.L("method", r.Method),
			observability.L("route", routeFromContext(r.Context())),
			observability.L("status", strconv.Itoa(lrw.status)),
		}
		h.httpRequests.Add(1, labels...)
		h.httpDuration.Observe(time.Since(start).Seconds(), labels...)
	})
}

// decodeJSON decodes a JSON body. An empty body leaves dst untouched and
// reports false.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) (bool, error) {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		return false, application.NewValidation("malformed request body: " + err.Error())
	}
	return true, nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeDomainError(w http.ResponseWriter, err error) {
	var oos *checkout.OutOfStockError
	switch {
	case errors.As(err, &oos):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":      err.Error(),
			"product_id": oos.ProductID,
			"name":       oos.Name,
			"remaining":  oos.Remaining,
		})
	case errors.Is(err, application.ErrValidation),
		errors.Is(err, dominv.ErrInvalidProduct),
		errors.Is(err, dominv.ErrInvalidQuantity),
		errors.Is(err, domcart.ErrInvalidLine),
		errors.Is(err, domorder.ErrInvalidQuantity),
		errors.Is(err, domorder.ErrInvalidAmount),
		errors.Is(err, dompay.ErrInvalidSignature),
		errors.Is(err, dompay.ErrManifestMalformed),
		errors.Is(err, apporder.ErrMetadataMissing),
		errors.Is(err, apporder.ErrSessionMismatch),
		errors.Is(err, apppay.ErrInvalidPayload):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, domorder.ErrNotFound),
		errors.Is(err, dominv.ErrNotFound),
		errors.Is(err, domcart.ErrLineMissing),
		errors.Is(err, dompay.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, checkout.ErrOutOfStock),
		errors.Is(err, checkout.ErrProductUnavailable),
		errors.Is(err, domcart.ErrOutOfStock),
		errors.Is(err, dominv.ErrConflict),
		errors.Is(err, domorder.ErrConflict),
		errors.Is(err, domorder.ErrInvalidStateTransition),
		errors.Is(err, apporder.ErrPaymentNotCompleted):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, dompay.ErrGateway):
		writeError(w, http.StatusBadGateway, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

type routeKey struct{}

// contextWithRoute stores the stable route template in the context so downstream
// metrics/logging can rely on low-cardinality values.
func contextWithRoute(ctx context.Context, route string) context.Context {
	if route == "" {
		return ctx
	}
	return context.WithValue(ctx, routeKey{}, route)
}

func routeFromContext(ctx context.Context) string {
	if ctx == nil {
		return "unknown"
	}
	if route, ok := ctx.Value(routeKey{}).(string); ok && route != "" {
		return route
	}
	return "unknown"
}
