package order

type Status string

const (
	StatusPaymentPending      Status = "payment_pending"
	StatusAwaitingPreparation Status = "awaiting_preparation"
	StatusPaymentReceived     Status = "payment_received"
	StatusFulfilled           Status = "fulfilled"
)

// rank orders the lifecycle; a status only ever moves to a higher rank.
var rank = map[Status]int{
	StatusPaymentPending:      0,
	StatusAwaitingPreparation: 1,
	StatusPaymentReceived:     2,
	StatusFulfilled:           3,
}

func (s Status) Valid() bool {
	_, ok := rank[s]
	return ok
}

// Reconciled reports whether payment for the order has already been
// reconciled against stock (awaiting preparation or beyond).
func (s Status) Reconciled() bool {
	return s.Valid() && rank[s] >= rank[StatusAwaitingPreparation]
}

// CanTransition allows forward moves and the idempotent self-transition of
// reconciled states.
func CanTransition(from, to Status) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if from == to {
		return from.Reconciled()
	}
	return rank[to] > rank[from]
}
