package order

import (
	"github.com/google/uuid"
)

type IDGenerator interface {
	NewID() string
}

// reconstructionNamespace scopes ids derived from payment sessions.
var reconstructionNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:minishop-storefront:checkout-session"))

// ReconstructedOrderID derives the id of an order rebuilt from a payment
// session. It is stable per session, so two reconstructions of the same
// session collide on insert.
func ReconstructedOrderID(sessionID string) string {
	return uuid.NewSHA1(reconstructionNamespace, []byte(sessionID)).String()
}
