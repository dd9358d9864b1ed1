package payment

import "context"

// Gateway is the outbound port to the payment processor.
type Gateway interface {
	CreateSession(ctx context.Context, in CreateSessionInput) (*Session, error)
	GetSession(ctx context.Context, sessionID string) (*Session, error)
	// ParseEvent verifies signature against the shared webhook secret and
	// decodes the payload. A bad signature yields ErrInvalidSignature.
	ParseEvent(payload []byte, signature string) (*Event, error)
}
