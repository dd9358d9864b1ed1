package payment

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidSignature = errors.New("payment: invalid event signature")
	ErrSessionNotFound  = errors.New("payment: session not found")
	ErrGateway          = errors.New("payment: gateway failure")
)

type Status string

const (
	StatusPaid              Status = "paid"
	StatusUnpaid            Status = "unpaid"
	StatusNoPaymentRequired Status = "no_payment_required"
)

const EventTypeSessionCompleted = "checkout.session.completed"

type Session struct {
	ID            string
	URL           string
	PaymentStatus Status
	Metadata      map[string]string
	CustomerEmail string
}

func (s *Session) Paid() bool {
	return s != nil && s.PaymentStatus == StatusPaid
}

// LineItem is one gateway line; UnitAmount is in currency minor units.
type LineItem struct {
	Name       string
	ImageURL   string
	UnitAmount int64
	Quantity   int64
}

type CreateSessionInput struct {
	LineItems     []LineItem
	Metadata      map[string]string
	SuccessURL    string
	CancelURL     string
	CustomerEmail string
}

// Event is a verified asynchronous notification from the gateway.
type Event struct {
	ID      string
	Type    string
	Session *Session
}

// MinorUnits converts a decimal amount to currency minor units (cents),
// rounding half away from zero.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
