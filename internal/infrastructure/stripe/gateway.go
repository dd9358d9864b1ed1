package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability"
	stripego "github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
	"github.com/stripe/stripe-go/v81/webhook"
)

const (
	peer            = "stripe"
	endpointCreate  = "checkout.sessions.create"
	endpointGet     = "checkout.sessions.retrieve"
	defaultCurrency = "try"
)

type Config struct {
	SecretKey     string
	WebhookSecret string
	Currency      string
}

// Gateway implements payment.Gateway on top of Stripe Checkout.
type Gateway struct {
	api           *client.API
	webhookSecret string
	currency      string

	extCounter   observability.Counter
	extHistogram observability.Histogram
}

func New(cfg Config, tel observability.Observability) (*Gateway, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("stripe: secret key is required")
	}
	currency := strings.ToLower(cfg.Currency)
	if currency == "" {
		currency = defaultCurrency
	}
	if tel == nil {
		tel = observability.Nop()
	}

	api := &client.API{}
	api.Init(cfg.SecretKey, nil)

	return &Gateway{
		api:           api,
		webhookSecret: cfg.WebhookSecret,
		currency:      currency,
		extCounter:    tel.Metrics().Counter(observability.MExternalRequests),
		extHistogram:  tel.Metrics().Histogram(observability.MExternalRequestDuration),
	}, nil
}

func (g *Gateway) CreateSession(ctx context.Context, in payment.CreateSessionInput) (_ *payment.Session, err error) {
	defer g.observe(endpointCreate, time.Now(), &err)

	params := &stripego.CheckoutSessionParams{
		Mode:       stripego.String(string(stripego.CheckoutSessionModePayment)),
		SuccessURL: stripego.String(in.SuccessURL),
		CancelURL:  stripego.String(in.CancelURL),
		Metadata:   maps.Clone(in.Metadata),
	}
	params.Context = ctx
	if in.CustomerEmail != "" {
		params.CustomerEmail = stripego.String(in.CustomerEmail)
	}
	for _, li := range in.LineItems {
		product := &stripego.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripego.String(li.Name),
		}
		if li.ImageURL != "" {
			product.Images = stripego.StringSlice([]string{li.ImageURL})
		}
		params.LineItems = append(params.LineItems, &stripego.CheckoutSessionLineItemParams{
			PriceData: &stripego.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripego.String(g.currency),
				ProductData: product,
				UnitAmount:  stripego.Int64(li.UnitAmount),
			},
			Quantity: stripego.Int64(li.Quantity),
		})
	}

	s, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("%w: create session: %w", payment.ErrGateway, err)
	}
	return toSession(s), nil
}

func (g *Gateway) GetSession(ctx context.Context, sessionID string) (_ *payment.Session, err error) {
	defer g.observe(endpointGet, time.Now(), &err)

	params := &stripego.CheckoutSessionParams{}
	params.Context = ctx
	s, err := g.api.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		var serr *stripego.Error
		if errors.As(err, &serr) && serr.HTTPStatusCode == 404 {
			return nil, payment.ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: retrieve session: %w", payment.ErrGateway, err)
	}
	return toSession(s), nil
}

func (g *Gateway) ParseEvent(payload []byte, signature string) (*payment.Event, error) {
	if g.webhookSecret == "" || signature == "" {
		return nil, payment.ErrInvalidSignature
	}
	ev, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", payment.ErrInvalidSignature, err)
	}

	out := &payment.Event{ID: ev.ID, Type: string(ev.Type)}
	if out.Type != payment.EventTypeSessionCompleted || ev.Data == nil {
		return out, nil
	}
	var s stripego.CheckoutSession
	if err := json.Unmarshal(ev.Data.Raw, &s); err != nil {
		return nil, fmt.Errorf("payment: decode session: %w", err)
	}
	out.Session = toSession(&s)
	return out, nil
}

func (g *Gateway) observe(endpoint string, start time.Time, errp *error) {
	outcome := "success"
	if errp != nil && *errp != nil {
		outcome = "error"
	}
	g.extCounter.Add(1,
		observability.L("peer", peer),
		observability.L("endpoint", endpoint),
		observability.L("outcome", outcome),
	)
	g.extHistogram.Observe(time.Since(start).Seconds(),
		observability.L("peer", peer),
		observability.L("endpoint", endpoint),
	)
}

func toSession(s *stripego.CheckoutSession) *payment.Session {
	out := &payment.Session{
		ID:            s.ID,
		URL:           s.URL,
		PaymentStatus: payment.Status(s.PaymentStatus),
		Metadata:      s.Metadata,
	}
	if s.CustomerDetails != nil && s.CustomerDetails.Email != "" {
		out.CustomerEmail = s.CustomerDetails.Email
	} else {
		out.CustomerEmail = s.CustomerEmail
	}
	if out.Metadata == nil {
		out.Metadata = map[string]string{}
	}
	return out
}
