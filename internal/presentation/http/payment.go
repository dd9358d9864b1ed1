package httppresentation

import (
	"errors"
	"io"
	"net/http"
	"net/url"

	apporder "github.com/Zhima-Mochi/minishop-storefront/internal/application/order"
	apppay "github.com/Zhima-Mochi/minishop-storefront/internal/application/payment"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability/logctx"
)

const thankYouMessage = "Thank you for your order!"

var errSignInRequired = errors.New("sign in required")

type successResponse struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
	OrderID   string `json:"order_id,omitempty"`
}

// handleSuccess is the gateway's redirect target. The buyer has paid by the
// time they land here, so the page always thanks them; reconciliation
// problems are logged and left to the webhook.
func (h *Handler) handleSuccess(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := r.URL.Query().Get("session_id")
	resp := successResponse{Message: thankYouMessage, SessionID: sessionID}

	if sessionID != "" {
		res, err := h.deps.FinalizeSession.Execute(ctx, apporder.FinalizeSessionInput{SessionID: sessionID})
		if err != nil {
			logctx.FromOr(ctx, h.log).Warn("success_page_finalize_failed",
				observability.F("session_id", sessionID),
				observability.Err(err),
			)
		} else if res != nil {
			resp.OrderID = res.OrderID
		}
	}

	if id := r.Header.Get(headerCartID); id != "" {
		if err := h.deps.Cart.Clear(ctx, id); err != nil {
			logctx.FromOr(ctx, h.log).Warn("success_page_cart_clear_failed",
				observability.F("cart_id", id),
				observability.Err(err),
			)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleLocalPay stands in for the hosted payment page when no real gateway
// is configured: the session is settled and the buyer sent to the success page.
func (h *Handler) handleLocalPay(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if err := h.deps.LocalPayments.MarkPaid(sessionID); err != nil {
		writeDomainError(w, err)
		return
	}
	http.Redirect(w, r, "/success?session_id="+url.QueryEscape(sessionID), http.StatusSeeOther)
}

type finalizeRequest struct {
	SessionID string `json:"session_id"`
}

// handleFinalizeOrder is the browser callback after the gateway redirect.
// The session id comes from the redirect (body or query) and is checked
// against the gateway before anything is written.
func (h *Handler) handleFinalizeOrder(w http.ResponseWriter, r *http.Request) {
	var req finalizeRequest
	if _, err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	if req.SessionID == "" {
		req.SessionID = r.URL.Query().Get("session_id")
	}
	res, err := h.deps.FinalizeOrder.Execute(r.Context(), apporder.FinalizeCallbackInput{
		OrderID:   r.PathValue("id"),
		SessionID: req.SessionID,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type webhookResponse struct {
	Received bool   `json:"received"`
	Handled  bool   `json:"handled"`
	Trigger  string `json:"trigger,omitempty"`
}

// handleStripeWebhook needs the raw body: the signature covers the exact bytes.
func (h *Handler) handleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	res, err := h.deps.Webhook.Execute(r.Context(), apppay.HandleWebhookInput{
		Payload:   payload,
		Signature: r.Header.Get(headerStripeSig),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, webhookResponse{Received: true, Handled: res.Handled, Trigger: res.Trigger})
}
