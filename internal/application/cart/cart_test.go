package cart_test

import (
	"context"
	"strings"
	"testing"

	"github.com/Zhima-Mochi/minishop-storefront/internal/application"
	appcart "github.com/Zhima-Mochi/minishop-storefront/internal/application/cart"
	domcart "github.com/Zhima-Mochi/minishop-storefront/internal/domain/cart"
	dominv "github.com/Zhima-Mochi/minishop-storefront/internal/domain/inventory"
	"github.com/Zhima-Mochi/minishop-storefront/internal/infrastructure/id"
	"github.com/Zhima-Mochi/minishop-storefront/internal/infrastructure/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func product(t *testing.T, id, name, price string, stock int) *dominv.Product {
	t.Helper()
	p, err := dominv.NewProduct(id, name, decimal.RequireFromString(price), stock)
	require.NoError(t, err)
	return p
}

func newService(t *testing.T, products ...*dominv.Product) (*appcart.Service, *memory.CartStore) {
	t.Helper()
	inv := memory.NewInventoryRepository(products...)
	store := memory.NewCartStore()
	svc := appcart.NewService(store, inv, appcart.NewValidateCartUseCase(inv, nil), id.UUIDGenerator{}, nil)
	return svc, store
}

func TestValidateCart(t *testing.T) {
	inv := memory.NewInventoryRepository(
		product(t, "1", "Tee", "10", 5),
		product(t, "2", "Cap", "10", 1),
	)
	uc := appcart.NewValidateCartUseCase(inv, nil)

	res, err := uc.Execute(context.Background(), []domcart.Line{
		{ProductID: "1", Name: "Tee", Quantity: 2},
		{ProductID: "2", Name: "Cap", Quantity: 3},
		{ProductID: "9", Name: "Old", Quantity: 1},
		{ProductID: "10", Name: "Older", Quantity: 1},
		{ProductID: dominv.CustomIDPrefix + "x", Name: "Design", Quantity: 50},
	})
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.ElementsMatch(t, []string{"2", "9", "10"}, res.RemoveIDs)
	assert.Contains(t, res.Messages, appcart.MessageDiscontinued)
	assert.Contains(t, res.Messages, `"Cap" was removed from your cart because it is out of stock.`)
	assert.Len(t, res.Messages, 2)
}

func TestValidateCart_AllGood(t *testing.T) {
	inv := memory.NewInventoryRepository(product(t, "1", "Tee", "10", 5))
	uc := appcart.NewValidateCartUseCase(inv, nil)

	res, err := uc.Execute(context.Background(), []domcart.Line{{ProductID: "1", Quantity: 5}})
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Empty(t, res.RemoveIDs)
	assert.Empty(t, res.Messages)
}

func TestService_ReviewDropsFlaggedLines(t *testing.T) {
	svc, store := newService(t, product(t, "1", "Tee", "10", 5), product(t, "2", "Cap", "10", 2))
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "c1", "1", 1)
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, "c1", "2", 2)
	require.NoError(t, err)

	c, err := store.Load(ctx, "c1")
	require.NoError(t, err)
	require.NoError(t, c.UpdateQuantity("2", 5))
	require.NoError(t, store.Save(ctx, c))

	reviewed, messages, err := svc.Review(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, reviewed.Lines, 1)
	assert.Equal(t, "1", reviewed.Lines[0].ProductID)
	require.Len(t, messages, 1)
	assert.Equal(t, appcart.OutOfStockMessage("Cap"), messages[0])

	persisted, err := store.Load(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, persisted.Lines, 1)
}

func TestService_AddItem(t *testing.T) {
	svc, _ := newService(t, product(t, "1", "Tee", "12.50", 2), product(t, "0", "Sold out", "5", 0))
	ctx := context.Background()

	c, err := svc.AddItem(ctx, "c1", "1", 1)
	require.NoError(t, err)
	require.Len(t, c.Lines, 1)
	assert.Equal(t, "Tee", c.Lines[0].Name)
	assert.True(t, decimal.RequireFromString("12.50").Equal(c.Lines[0].Price))

	c, err = svc.AddItem(ctx, "c1", "1", 1)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Lines[0].Quantity)

	_, err = svc.AddItem(ctx, "c1", "1", 1)
	require.ErrorIs(t, err, domcart.ErrOutOfStock)

	_, err = svc.AddItem(ctx, "c1", "0", 1)
	require.ErrorIs(t, err, domcart.ErrOutOfStock)

	_, err = svc.AddItem(ctx, "c1", "missing", 1)
	require.ErrorIs(t, err, dominv.ErrNotFound)

	_, err = svc.AddItem(ctx, "c1", "1", 0)
	require.ErrorIs(t, err, application.ErrValidation)
}

func TestService_CustomItemsAndEdits(t *testing.T) {
	svc, _ := newService(t, product(t, "1", "Tee", "10", 5))
	ctx := context.Background()

	c, err := svc.AddCustomItem(ctx, "c1", appcart.CustomItem{Name: "My hoodie", Price: decimal.RequireFromString("45")})
	require.NoError(t, err)
	require.Len(t, c.Lines, 1)
	assert.True(t, strings.HasPrefix(c.Lines[0].ProductID, dominv.CustomIDPrefix))
	assert.Equal(t, 1, c.Lines[0].Quantity)
	customID := c.Lines[0].ProductID

	_, err = svc.AddItem(ctx, "c1", "1", 2)
	require.NoError(t, err)

	c, err = svc.UpdateQuantity(ctx, "c1", "1", 4)
	require.NoError(t, err)
	assert.Equal(t, 5, c.TotalItems())

	c, err = svc.UpdateQuantity(ctx, "c1", "1", 0)
	require.NoError(t, err)
	assert.Len(t, c.Lines, 1)

	c, err = svc.Remove(ctx, "c1", customID)
	require.NoError(t, err)
	assert.Empty(t, c.Lines)

	_, err = svc.Remove(ctx, "c1", customID)
	require.ErrorIs(t, err, domcart.ErrLineMissing)

	require.NoError(t, svc.Clear(ctx, "c1"))
	c, err = svc.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, c.Lines)

	_, err = svc.Get(ctx, "")
	require.ErrorIs(t, err, application.ErrValidation)
}
