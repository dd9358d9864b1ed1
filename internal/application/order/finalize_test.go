package order_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/Zhima-Mochi/minishop-storefront/internal/application"
	apporder "github.com/Zhima-Mochi/minishop-storefront/internal/application/order"
	dominv "github.com/Zhima-Mochi/minishop-storefront/internal/domain/inventory"
	domain "github.com/Zhima-Mochi/minishop-storefront/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-storefront/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-storefront/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-storefront/internal/infrastructure/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []domoutbox.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e domoutbox.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) shortfalls() []dominv.DeductionFailedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []dominv.DeductionFailedEvent
	for _, e := range p.events {
		if evt, ok := e.(dominv.DeductionFailedEvent); ok {
			out = append(out, evt)
		}
	}
	return out
}

// countingOrders records writes so tests can assert none happened.
type countingOrders struct {
	*memory.OrderRepository
	mu        sync.Mutex
	writes    int
	insertErr error
}

func (r *countingOrders) Insert(ctx context.Context, o *domain.Order) error {
	r.mu.Lock()
	r.writes++
	injected := r.insertErr
	r.mu.Unlock()
	if injected != nil {
		return injected
	}
	return r.OrderRepository.Insert(ctx, o)
}

func (r *countingOrders) Claim(ctx context.Context, id string, from, to domain.Status, sessionID string) (*domain.Order, error) {
	r.mu.Lock()
	r.writes++
	r.mu.Unlock()
	return r.OrderRepository.Claim(ctx, id, from, to, sessionID)
}

func (r *countingOrders) UpdateStatus(ctx context.Context, id string, status domain.Status, sessionID string) (*domain.Order, error) {
	r.mu.Lock()
	r.writes++
	r.mu.Unlock()
	return r.OrderRepository.UpdateStatus(ctx, id, status, sessionID)
}

func (r *countingOrders) Writes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writes
}

type fixture struct {
	inventory *memory.InventoryRepository
	orders    *countingOrders
	gateway   *memory.Gateway
	publisher *recordingPublisher
	byOrder   *apporder.FinalizeOrderUseCase
	bySession *apporder.FinalizeSessionUseCase
	callback  *apporder.FinalizeCallbackUseCase
}

func newFixture(t *testing.T, products ...*dominv.Product) *fixture {
	t.Helper()
	f := &fixture{
		inventory: memory.NewInventoryRepository(products...),
		orders:    &countingOrders{OrderRepository: memory.NewOrderRepository()},
		gateway:   memory.NewGateway("http://localhost:8080", "whsec_test"),
		publisher: &recordingPublisher{},
	}
	f.byOrder = apporder.NewFinalizeOrderUseCase(f.orders, f.inventory, f.publisher, nil)
	f.bySession = apporder.NewFinalizeSessionUseCase(f.orders, f.inventory, f.gateway, f.publisher, nil)
	f.callback = apporder.NewFinalizeCallbackUseCase(f.gateway, f.byOrder, nil)
	return f
}

func product(t *testing.T, id, name, price string, stock int) *dominv.Product {
	t.Helper()
	p, err := dominv.NewProduct(id, name, decimal.RequireFromString(price), stock)
	require.NoError(t, err)
	return p
}

func (f *fixture) stock(t *testing.T, id string) int {
	t.Helper()
	p, err := f.inventory.Get(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

func (f *fixture) pendingOrder(t *testing.T, id string, lines ...domain.Line) *domain.Order {
	t.Helper()
	o, err := domain.New(id, domain.Owner("user-1"), lines, domain.StatusPaymentPending)
	require.NoError(t, err)
	require.NoError(t, f.orders.OrderRepository.Insert(context.Background(), o))
	return o
}

func (f *fixture) paidSession(id string, metadata map[string]string) {
	f.gateway.PutSession(&payment.Session{ID: id, PaymentStatus: payment.StatusPaid, Metadata: metadata})
}

func line(id, price string, qty int) domain.Line {
	return domain.Line{ProductID: id, Name: "item " + id, Price: decimal.RequireFromString(price), Quantity: qty}
}

func TestFinalizeOrder_DeductsAndAdvances(t *testing.T) {
	f := newFixture(t, product(t, "5", "Tee", "100", 10), product(t, "7", "Cap", "50", 10))
	f.pendingOrder(t, "o-1", line("5", "100", 2), line("7", "50", 1))

	res, err := f.byOrder.Execute(context.Background(), apporder.FinalizeOrderInput{OrderID: "o-1"})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.True(t, res.Success)
	assert.False(t, res.AlreadyProcessed)
	assert.Len(t, res.Items, 2)
	assert.Zero(t, res.Failed())

	assert.Equal(t, 8, f.stock(t, "5"))
	assert.Equal(t, 9, f.stock(t, "7"))

	stored, err := f.orders.Get(context.Background(), "o-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaymentReceived, stored.Status)
}

func TestFinalizeOrder_SecondCallIsAlreadyProcessed(t *testing.T) {
	f := newFixture(t, product(t, "5", "Tee", "100", 10))
	f.pendingOrder(t, "o-1", line("5", "100", 2))

	_, err := f.byOrder.Execute(context.Background(), apporder.FinalizeOrderInput{OrderID: "o-1"})
	require.NoError(t, err)

	res, err := f.byOrder.Execute(context.Background(), apporder.FinalizeOrderInput{OrderID: "o-1"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.AlreadyProcessed)
	assert.Empty(t, res.Items)
	assert.Equal(t, 8, f.stock(t, "5"))
}

func TestFinalizeOrder_NotFound(t *testing.T) {
	f := newFixture(t)

	res, err := f.byOrder.Execute(context.Background(), apporder.FinalizeOrderInput{OrderID: "missing"})
	require.ErrorIs(t, err, apporder.ErrNotFound)
	require.NotNil(t, res)
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Error)
}

func TestFinalizeOrder_InsufficientStockDoesNotAbortSiblings(t *testing.T) {
	f := newFixture(t, product(t, "1", "Scarce", "10", 1), product(t, "2", "Plenty", "10", 5))
	f.pendingOrder(t, "o-1", line("1", "10", 3), line("2", "10", 2))

	res, err := f.byOrder.Execute(context.Background(), apporder.FinalizeOrderInput{OrderID: "o-1"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	require.Len(t, res.Items, 2)
	assert.False(t, res.Items[0].Success)
	assert.NotEmpty(t, res.Items[0].Error)
	assert.True(t, res.Items[1].Success)

	assert.Equal(t, 1, f.stock(t, "1"))
	assert.Equal(t, 3, f.stock(t, "2"))

	shortfalls := f.publisher.shortfalls()
	require.Len(t, shortfalls, 1)
	assert.Equal(t, "1", shortfalls[0].ProductID)
	assert.Equal(t, dominv.FailureReasonInsufficientStock, shortfalls[0].Reason)
	assert.Equal(t, "o-1", shortfalls[0].OrderID)

	stored, err := f.orders.Get(context.Background(), "o-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaymentReceived, stored.Status)
}

func TestFinalizeOrder_SkipsCustomLines(t *testing.T) {
	f := newFixture(t, product(t, "5", "Tee", "100", 10))
	f.pendingOrder(t, "o-1", line("5", "100", 1), line(dominv.CustomIDPrefix+"abc", "35", 1))

	res, err := f.byOrder.Execute(context.Background(), apporder.FinalizeOrderInput{OrderID: "o-1"})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "5", res.Items[0].ProductID)
	assert.Equal(t, 9, f.stock(t, "5"))
}

func TestFinalizeSession_UnpaidMakesNoWrites(t *testing.T) {
	f := newFixture(t, product(t, "5", "Tee", "100", 10))
	f.gateway.PutSession(&payment.Session{
		ID:            "cs_unpaid",
		PaymentStatus: payment.StatusUnpaid,
		Metadata:      map[string]string{payment.MetaManifest: "5:2"},
	})

	res, err := f.bySession.Execute(context.Background(), apporder.FinalizeSessionInput{SessionID: "cs_unpaid"})
	require.ErrorIs(t, err, apporder.ErrPaymentNotCompleted)
	assert.False(t, res.Success)
	assert.Zero(t, f.orders.Writes())
	assert.Equal(t, 10, f.stock(t, "5"))
}

func TestFinalizeSession_MetadataMissingMakesNoWrites(t *testing.T) {
	f := newFixture(t, product(t, "5", "Tee", "100", 10))
	f.paidSession("cs_nometa", map[string]string{payment.MetaUserID: "user-1"})

	res, err := f.bySession.Execute(context.Background(), apporder.FinalizeSessionInput{SessionID: "cs_nometa"})
	require.ErrorIs(t, err, apporder.ErrMetadataMissing)
	assert.False(t, res.Success)
	assert.Equal(t, apporder.ErrMetadataMissing.Error(), res.Error)
	assert.Zero(t, f.orders.Writes())
	assert.Equal(t, 10, f.stock(t, "5"))
}

func TestFinalizeSession_MalformedManifestMakesNoWrites(t *testing.T) {
	f := newFixture(t, product(t, "5", "Tee", "100", 10))
	f.paidSession("cs_bad", map[string]string{payment.MetaManifest: "5:two"})

	_, err := f.bySession.Execute(context.Background(), apporder.FinalizeSessionInput{SessionID: "cs_bad"})
	require.ErrorIs(t, err, apporder.ErrManifestMalformed)
	assert.Zero(t, f.orders.Writes())
	assert.Equal(t, 10, f.stock(t, "5"))
}

func TestFinalizeSession_ReconstructsMissingOrder(t *testing.T) {
	f := newFixture(t, product(t, "5", "Tee", "100", 10), product(t, "7", "Cap", "50", 10))
	f.paidSession("cs_1", map[string]string{
		payment.MetaOrderID:  "",
		payment.MetaUserID:   "",
		payment.MetaManifest: "5:2,7:1",
	})

	res, err := f.bySession.Execute(context.Background(), apporder.FinalizeSessionInput{SessionID: "cs_1"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.Created)
	assert.Equal(t, apporder.ReconstructedOrderID("cs_1"), res.OrderID)

	stored, err := f.orders.Get(context.Background(), res.OrderID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(250).Equal(stored.Total), "total %s", stored.Total)
	assert.Equal(t, domain.StatusAwaitingPreparation, stored.Status)
	assert.Nil(t, stored.UserID)
	assert.Equal(t, "cs_1", stored.PaymentSessionID)
	assert.Len(t, stored.Lines, 2)

	assert.Equal(t, 8, f.stock(t, "5"))
	assert.Equal(t, 9, f.stock(t, "7"))
}

func TestFinalizeSession_UnknownProductGetsPlaceholder(t *testing.T) {
	f := newFixture(t, product(t, "5", "Tee", "100", 10))
	f.paidSession("cs_1", map[string]string{payment.MetaUserID: "user-9", payment.MetaManifest: "5:1,404:2"})

	res, err := f.bySession.Execute(context.Background(), apporder.FinalizeSessionInput{SessionID: "cs_1"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.Failed())

	stored, err := f.orders.Get(context.Background(), res.OrderID)
	require.NoError(t, err)
	require.Len(t, stored.Lines, 2)
	assert.Equal(t, "Product", stored.Lines[1].Name)
	assert.True(t, stored.Lines[1].Price.IsZero())
	assert.True(t, decimal.NewFromInt(100).Equal(stored.Total))
	require.NotNil(t, stored.UserID)
	assert.Equal(t, "user-9", *stored.UserID)
}

func TestFinalizeSession_InsertFailureStillDeducts(t *testing.T) {
	f := newFixture(t, product(t, "5", "Tee", "100", 10))
	f.orders.insertErr = errors.New("connection reset")
	f.paidSession("cs_1", map[string]string{payment.MetaManifest: "5:3"})

	res, err := f.bySession.Execute(context.Background(), apporder.FinalizeSessionInput{SessionID: "cs_1"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.False(t, res.Created)
	assert.Equal(t, 7, f.stock(t, "5"))
}

func TestFinalizeSession_RepeatedReconstructionDeductsOnce(t *testing.T) {
	f := newFixture(t, product(t, "5", "Tee", "100", 10))
	f.paidSession("cs_1", map[string]string{payment.MetaManifest: "5:2"})

	first, err := f.bySession.Execute(context.Background(), apporder.FinalizeSessionInput{SessionID: "cs_1"})
	require.NoError(t, err)
	second, err := f.bySession.Execute(context.Background(), apporder.FinalizeSessionInput{SessionID: "cs_1"})
	require.NoError(t, err)

	assert.True(t, first.Created)
	assert.True(t, second.AlreadyProcessed)
	assert.Equal(t, first.OrderID, second.OrderID)
	assert.Equal(t, 8, f.stock(t, "5"))
}

func TestFinalizeSession_ExistingPendingOrder(t *testing.T) {
	f := newFixture(t, product(t, "5", "Tee", "100", 10))
	f.pendingOrder(t, "o-1", line("5", "100", 2))
	f.paidSession("cs_1", map[string]string{payment.MetaOrderID: "o-1", payment.MetaManifest: "5:2"})

	res, err := f.bySession.Execute(context.Background(), apporder.FinalizeSessionInput{SessionID: "cs_1"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.False(t, res.Created)
	assert.Equal(t, "o-1", res.OrderID)

	stored, err := f.orders.Get(context.Background(), "o-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAwaitingPreparation, stored.Status)
	assert.Equal(t, "cs_1", stored.PaymentSessionID)
	assert.Equal(t, 8, f.stock(t, "5"))
}

func TestFinalizeSession_UsesSuppliedSession(t *testing.T) {
	f := newFixture(t, product(t, "5", "Tee", "100", 10))
	session := &payment.Session{
		ID:            "cs_signed",
		PaymentStatus: payment.StatusPaid,
		Metadata:      map[string]string{payment.MetaManifest: "5:1"},
	}

	res, err := f.bySession.Execute(context.Background(), apporder.FinalizeSessionInput{Session: session})
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, 9, f.stock(t, "5"))
}

func TestFinalizeSession_UnknownSession(t *testing.T) {
	f := newFixture(t)

	_, err := f.bySession.Execute(context.Background(), apporder.FinalizeSessionInput{SessionID: "cs_nope"})
	require.ErrorIs(t, err, payment.ErrSessionNotFound)
}

func TestTriggersCompose(t *testing.T) {
	cases := map[string]func(f *fixture) error{
		"order then session": func(f *fixture) error {
			if _, err := f.byOrder.Execute(context.Background(), apporder.FinalizeOrderInput{OrderID: "o-1"}); err != nil {
				return err
			}
			_, err := f.bySession.Execute(context.Background(), apporder.FinalizeSessionInput{SessionID: "cs_1"})
			return err
		},
		"session then order": func(f *fixture) error {
			if _, err := f.bySession.Execute(context.Background(), apporder.FinalizeSessionInput{SessionID: "cs_1"}); err != nil {
				return err
			}
			_, err := f.byOrder.Execute(context.Background(), apporder.FinalizeOrderInput{OrderID: "o-1"})
			return err
		},
		"concurrent": func(f *fixture) error {
			var wg sync.WaitGroup
			errs := make(chan error, 20)
			for i := 0; i < 10; i++ {
				wg.Add(2)
				go func() {
					defer wg.Done()
					_, err := f.byOrder.Execute(context.Background(), apporder.FinalizeOrderInput{OrderID: "o-1"})
					errs <- err
				}()
				go func() {
					defer wg.Done()
					_, err := f.bySession.Execute(context.Background(), apporder.FinalizeSessionInput{SessionID: "cs_1"})
					errs <- err
				}()
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				if err != nil {
					return err
				}
			}
			return nil
		},
	}

	for name, run := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, product(t, "5", "Tee", "100", 10), product(t, "7", "Cap", "50", 10))
			f.pendingOrder(t, "o-1", line("5", "100", 2), line("7", "50", 1))
			f.paidSession("cs_1", map[string]string{payment.MetaOrderID: "o-1", payment.MetaManifest: "5:2,7:1"})

			require.NoError(t, run(f))

			assert.Equal(t, 8, f.stock(t, "5"))
			assert.Equal(t, 9, f.stock(t, "7"))
			stored, err := f.orders.Get(context.Background(), "o-1")
			require.NoError(t, err)
			assert.True(t, stored.Reconciled())
		})
	}
}

func TestFinalizeSession_ConcurrentReconstructionDeductsOnce(t *testing.T) {
	f := newFixture(t, product(t, "5", "Tee", "100", 10), product(t, "7", "Cap", "50", 10))
	f.paidSession("cs_1", map[string]string{payment.MetaManifest: "5:2,7:1"})

	const callers = 16
	results := make(chan *apporder.FinalizeResult, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.bySession.Execute(context.Background(), apporder.FinalizeSessionInput{SessionID: "cs_1"})
			assert.NoError(t, err)
			results <- res
		}()
	}
	wg.Wait()
	close(results)

	created := 0
	for res := range results {
		require.NotNil(t, res)
		assert.True(t, res.Success)
		assert.Equal(t, apporder.ReconstructedOrderID("cs_1"), res.OrderID)
		if res.Created {
			created++
		} else {
			assert.True(t, res.AlreadyProcessed)
		}
	}
	assert.Equal(t, 1, created)
	assert.Equal(t, 8, f.stock(t, "5"))
	assert.Equal(t, 9, f.stock(t, "7"))
}

func TestFinalizeCallback_UnpaidSessionMakesNoWrites(t *testing.T) {
	f := newFixture(t, product(t, "5", "Tee", "100", 10))
	f.pendingOrder(t, "o-1", line("5", "100", 3))
	f.gateway.PutSession(&payment.Session{
		ID:            "cs_1",
		PaymentStatus: payment.StatusUnpaid,
		Metadata:      map[string]string{payment.MetaOrderID: "o-1", payment.MetaManifest: "5:3"},
	})

	res, err := f.callback.Execute(context.Background(), apporder.FinalizeCallbackInput{OrderID: "o-1", SessionID: "cs_1"})
	require.ErrorIs(t, err, apporder.ErrPaymentNotCompleted)
	assert.False(t, res.Success)
	assert.Zero(t, f.orders.Writes())
	assert.Equal(t, 10, f.stock(t, "5"))

	stored, err := f.orders.Get(context.Background(), "o-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaymentPending, stored.Status)
}

func TestFinalizeCallback_Checks(t *testing.T) {
	f := newFixture(t, product(t, "5", "Tee", "100", 10))
	f.pendingOrder(t, "o-1", line("5", "100", 3))
	f.paidSession("cs_other", map[string]string{payment.MetaOrderID: "o-2", payment.MetaManifest: "5:3"})

	cases := map[string]struct {
		in   apporder.FinalizeCallbackInput
		want error
	}{
		"missing session id": {apporder.FinalizeCallbackInput{OrderID: "o-1"}, application.ErrValidation},
		"unknown session":    {apporder.FinalizeCallbackInput{OrderID: "o-1", SessionID: "cs_nope"}, payment.ErrSessionNotFound},
		"foreign session":    {apporder.FinalizeCallbackInput{OrderID: "o-1", SessionID: "cs_other"}, apporder.ErrSessionMismatch},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.callback.Execute(context.Background(), tc.in)
			require.ErrorIs(t, err, tc.want)
		})
	}
	assert.Zero(t, f.orders.Writes())
	assert.Equal(t, 10, f.stock(t, "5"))
}

func TestFinalizeCallback_PaidSessionFinalizesOnce(t *testing.T) {
	f := newFixture(t, product(t, "5", "Tee", "100", 10))
	f.pendingOrder(t, "o-1", line("5", "100", 3))
	f.paidSession("cs_1", map[string]string{payment.MetaOrderID: "o-1", payment.MetaManifest: "5:3"})

	first, err := f.callback.Execute(context.Background(), apporder.FinalizeCallbackInput{OrderID: "o-1", SessionID: "cs_1"})
	require.NoError(t, err)
	assert.True(t, first.Success)
	second, err := f.callback.Execute(context.Background(), apporder.FinalizeCallbackInput{OrderID: "o-1", SessionID: "cs_1"})
	require.NoError(t, err)
	assert.True(t, second.AlreadyProcessed)

	stored, err := f.orders.Get(context.Background(), "o-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaymentReceived, stored.Status)
	assert.Equal(t, "cs_1", stored.PaymentSessionID)
	assert.Equal(t, 7, f.stock(t, "5"))
}
