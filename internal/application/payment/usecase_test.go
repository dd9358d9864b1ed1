package payment_test

import (
	"context"
	"testing"

	apporder "github.com/Zhima-Mochi/minishop-storefront/internal/application/order"
	apppay "github.com/Zhima-Mochi/minishop-storefront/internal/application/payment"
	dominv "github.com/Zhima-Mochi/minishop-storefront/internal/domain/inventory"
	domorder "github.com/Zhima-Mochi/minishop-storefront/internal/domain/order"
	dompay "github.com/Zhima-Mochi/minishop-storefront/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-storefront/internal/infrastructure/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type env struct {
	inventory *memory.InventoryRepository
	orders    *memory.OrderRepository
	gateway   *memory.Gateway
	uc        *apppay.HandleWebhookUseCase
}

func newEnv(t *testing.T) *env {
	t.Helper()
	p, err := dominv.NewProduct("5", "Tee", decimal.NewFromInt(100), 10)
	require.NoError(t, err)

	e := &env{
		inventory: memory.NewInventoryRepository(p),
		orders:    memory.NewOrderRepository(),
		gateway:   memory.NewGateway("http://pay.local", "whsec_test"),
	}
	byOrder := apporder.NewFinalizeOrderUseCase(e.orders, e.inventory, nil, nil)
	bySession := apporder.NewFinalizeSessionUseCase(e.orders, e.inventory, e.gateway, nil, nil)
	e.uc = apppay.NewHandleWebhookUseCase(e.gateway, e.orders, byOrder, bySession, nil)
	return e
}

func (e *env) stock(t *testing.T) int {
	t.Helper()
	p, err := e.inventory.Get(context.Background(), "5")
	require.NoError(t, err)
	return p.Stock
}

func (e *env) deliver(t *testing.T, sessionID string) (*apppay.HandleWebhookResult, error) {
	t.Helper()
	body, sig, err := e.gateway.CompletedEvent(sessionID)
	require.NoError(t, err)
	return e.uc.Execute(context.Background(), apppay.HandleWebhookInput{Payload: body, Signature: sig})
}

func TestWebhook_InvalidSignatureTakesNoAction(t *testing.T) {
	e := newEnv(t)
	e.gateway.PutSession(&dompay.Session{ID: "cs_1", PaymentStatus: dompay.StatusPaid,
		Metadata: map[string]string{dompay.MetaManifest: "5:1"}})
	body, _, err := e.gateway.CompletedEvent("cs_1")
	require.NoError(t, err)

	_, err = e.uc.Execute(context.Background(), apppay.HandleWebhookInput{Payload: body, Signature: "deadbeef"})
	require.ErrorIs(t, err, apppay.ErrInvalidSignature)

	assert.Equal(t, 10, e.stock(t))
	orders, err := e.orders.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestWebhook_KnownOrderUsesOrderTrigger(t *testing.T) {
	e := newEnv(t)
	o, err := domorder.New("o-1", nil, []domorder.Line{{ProductID: "5", Name: "Tee", Price: decimal.NewFromInt(100), Quantity: 2}}, domorder.StatusPaymentPending)
	require.NoError(t, err)
	require.NoError(t, e.orders.Insert(context.Background(), o))
	e.gateway.PutSession(&dompay.Session{ID: "cs_1", PaymentStatus: dompay.StatusPaid,
		Metadata: map[string]string{dompay.MetaOrderID: "o-1", dompay.MetaManifest: "5:2"}})

	res, err := e.deliver(t, "cs_1")
	require.NoError(t, err)
	assert.True(t, res.Handled)
	assert.Equal(t, "order", res.Trigger)
	assert.Equal(t, 8, e.stock(t))

	stored, err := e.orders.Get(context.Background(), "o-1")
	require.NoError(t, err)
	assert.Equal(t, domorder.StatusPaymentReceived, stored.Status)
	assert.Equal(t, "cs_1", stored.PaymentSessionID)

	res, err = e.deliver(t, "cs_1")
	require.NoError(t, err)
	assert.True(t, res.Finalize.AlreadyProcessed)
	assert.Equal(t, 8, e.stock(t))
}

func TestWebhook_MissingOrderFallsBackToSession(t *testing.T) {
	e := newEnv(t)
	e.gateway.PutSession(&dompay.Session{ID: "cs_1", PaymentStatus: dompay.StatusPaid,
		Metadata: map[string]string{dompay.MetaUserID: "user-1", dompay.MetaManifest: "5:3"}})

	res, err := e.deliver(t, "cs_1")
	require.NoError(t, err)
	assert.Equal(t, "session", res.Trigger)
	require.NotNil(t, res.Finalize)
	assert.True(t, res.Finalize.Created)
	assert.Equal(t, 7, e.stock(t))
}

func TestWebhook_UnfinalizableSessionIsAcknowledged(t *testing.T) {
	e := newEnv(t)
	e.gateway.PutSession(&dompay.Session{ID: "cs_1", PaymentStatus: dompay.StatusUnpaid,
		Metadata: map[string]string{dompay.MetaManifest: "5:1"}})

	res, err := e.deliver(t, "cs_1")
	require.NoError(t, err)
	assert.False(t, res.Handled)
	assert.Equal(t, 10, e.stock(t))
}

func TestWebhook_UnpaidSessionLeavesKnownOrderPending(t *testing.T) {
	e := newEnv(t)
	o, err := domorder.New("o-1", nil, []domorder.Line{{ProductID: "5", Name: "Tee", Price: decimal.NewFromInt(100), Quantity: 2}}, domorder.StatusPaymentPending)
	require.NoError(t, err)
	require.NoError(t, e.orders.Insert(context.Background(), o))
	e.gateway.PutSession(&dompay.Session{ID: "cs_1", PaymentStatus: dompay.StatusUnpaid,
		Metadata: map[string]string{dompay.MetaOrderID: "o-1", dompay.MetaManifest: "5:2"}})

	res, err := e.deliver(t, "cs_1")
	require.NoError(t, err)
	assert.False(t, res.Handled)
	assert.Empty(t, res.Trigger)
	assert.Equal(t, 10, e.stock(t))

	stored, err := e.orders.Get(context.Background(), "o-1")
	require.NoError(t, err)
	assert.Equal(t, domorder.StatusPaymentPending, stored.Status)
}

func TestWebhook_IgnoresOtherEvents(t *testing.T) {
	e := newEnv(t)
	body := []byte(`{"id":"evt_1","type":"payment_intent.created","data":{"object":{"id":"pi_1"}}}`)

	res, err := e.uc.Execute(context.Background(), apppay.HandleWebhookInput{Payload: body, Signature: e.gateway.Sign(body)})
	require.NoError(t, err)
	assert.False(t, res.Handled)
	assert.Equal(t, "payment_intent.created", res.EventType)
}

func TestWebhook_GarbagePayload(t *testing.T) {
	e := newEnv(t)
	body := []byte(`not json`)

	_, err := e.uc.Execute(context.Background(), apppay.HandleWebhookInput{Payload: body, Signature: e.gateway.Sign(body)})
	require.ErrorIs(t, err, apppay.ErrInvalidPayload)
}
