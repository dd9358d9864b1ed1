package memory

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"maps"
	"strings"
	"sync"

	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/payment"
	"github.com/google/uuid"
)

// Gateway is a local stand-in for the payment processor. Sessions start
// unpaid and are completed with MarkPaid; webhook payloads are signed with
// a hex HMAC-SHA256 of the body.
type Gateway struct {
	mu        sync.RWMutex
	sessions  map[string]*payment.Session
	inputs    map[string]payment.CreateSessionInput
	checkout  string
	secret    []byte
	createErr error
}

func NewGateway(checkoutBaseURL, webhookSecret string) *Gateway {
	return &Gateway{
		sessions: make(map[string]*payment.Session),
		inputs:   make(map[string]payment.CreateSessionInput),
		checkout: strings.TrimRight(checkoutBaseURL, "/"),
		secret:   []byte(webhookSecret),
	}
}

func (g *Gateway) CreateSession(ctx context.Context, in payment.CreateSessionInput) (*payment.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.createErr != nil {
		return nil, fmt.Errorf("%w: %w", payment.ErrGateway, g.createErr)
	}

	id := "cs_local_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	s := &payment.Session{
		ID:            id,
		URL:           g.checkout + "/pay/" + id,
		PaymentStatus: payment.StatusUnpaid,
		Metadata:      maps.Clone(in.Metadata),
		CustomerEmail: in.CustomerEmail,
	}
	g.sessions[id] = s
	g.inputs[id] = in
	return cloneSession(s), nil
}

func (g *Gateway) GetSession(ctx context.Context, sessionID string) (*payment.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	s, ok := g.sessions[sessionID]
	if !ok {
		return nil, payment.ErrSessionNotFound
	}
	return cloneSession(s), nil
}

// PutSession stores s as is, replacing any session with the same id.
func (g *Gateway) PutSession(s *payment.Session) {
	g.mu.Lock()
	g.sessions[s.ID] = cloneSession(s)
	g.mu.Unlock()
}

// MarkPaid completes a session as the buyer paying would.
func (g *Gateway) MarkPaid(sessionID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, ok := g.sessions[sessionID]
	if !ok {
		return payment.ErrSessionNotFound
	}
	s.PaymentStatus = payment.StatusPaid
	return nil
}

// Input returns what CreateSession was called with for sessionID.
func (g *Gateway) Input(sessionID string) (payment.CreateSessionInput, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	in, ok := g.inputs[sessionID]
	return in, ok
}

func (g *Gateway) SessionCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.sessions)
}

// FailCreate makes subsequent CreateSession calls fail with err; nil resets.
func (g *Gateway) FailCreate(err error) {
	g.mu.Lock()
	g.createErr = err
	g.mu.Unlock()
}

type eventPayload struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object sessionPayload `json:"object"`
	} `json:"data"`
}

type sessionPayload struct {
	ID            string            `json:"id"`
	PaymentStatus string            `json:"payment_status"`
	Metadata      map[string]string `json:"metadata"`
	CustomerEmail string            `json:"customer_email,omitempty"`
}

func (g *Gateway) ParseEvent(payload []byte, signature string) (*payment.Event, error) {
	if !hmac.Equal([]byte(g.Sign(payload)), []byte(strings.TrimSpace(signature))) {
		return nil, payment.ErrInvalidSignature
	}

	var ev eventPayload
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("payment: decode event: %w", err)
	}
	return &payment.Event{
		ID:   ev.ID,
		Type: ev.Type,
		Session: &payment.Session{
			ID:            ev.Data.Object.ID,
			PaymentStatus: payment.Status(ev.Data.Object.PaymentStatus),
			Metadata:      ev.Data.Object.Metadata,
			CustomerEmail: ev.Data.Object.CustomerEmail,
		},
	}, nil
}

func (g *Gateway) Sign(payload []byte) string {
	mac := hmac.New(sha256.New, g.secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// CompletedEvent renders and signs a checkout.session.completed delivery for
// the current state of sessionID.
func (g *Gateway) CompletedEvent(sessionID string) ([]byte, string, error) {
	s, err := g.GetSession(context.Background(), sessionID)
	if err != nil {
		return nil, "", err
	}
	var ev eventPayload
	ev.ID = "evt_local_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	ev.Type = payment.EventTypeSessionCompleted
	ev.Data.Object = sessionPayload{
		ID:            s.ID,
		PaymentStatus: string(s.PaymentStatus),
		Metadata:      s.Metadata,
		CustomerEmail: s.CustomerEmail,
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return nil, "", err
	}
	return body, g.Sign(body), nil
}

func cloneSession(s *payment.Session) *payment.Session {
	clone := *s
	clone.Metadata = maps.Clone(s.Metadata)
	return &clone
}
