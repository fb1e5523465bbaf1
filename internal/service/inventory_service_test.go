package service

import (
	"context"
	"testing"

	"go-pos-sync/internal/model"
	"go-pos-sync/internal/ws"
	apperrors "go-pos-sync/pkg/errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProductCRUDPublishesChanges(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, defaultSalesConfig(), nil)

	bakery, err := env.inventory.CreateCategory(ctx, &CategoryRequest{Name: "Bakery"}, "admin")
	require.NoError(t, err)

	bread, err := env.inventory.CreateProduct(ctx, &ProductRequest{
		Name: "Bread", Price: decimal.RequireFromString("2.40"), Stock: 8, CategoryID: &bakery.ID,
	}, "admin")
	require.NoError(t, err)
	require.NotNil(t, bread.CategoryName)
	assert.Equal(t, "Bakery", *bread.CategoryName)

	updated, err := env.inventory.UpdateProduct(ctx, bread.ID, &ProductRequest{
		Name: "Sourdough", Price: decimal.RequireFromString("3.10"), Stock: 6,
	}, "admin")
	require.NoError(t, err)
	assert.Equal(t, "Sourdough", updated.Name)
	assert.Nil(t, updated.CategoryID)

	assert.Equal(t, 8, updated.Stock, "stock is untouched without expected_stock")

	restocked, err := env.inventory.Restock(ctx, bread.ID, 4, "admin")
	require.NoError(t, err)
	assert.Equal(t, 12, restocked.Stock)

	require.NoError(t, env.inventory.DeleteProduct(ctx, bread.ID))
	assert.True(t, apperrors.HasCode(env.inventory.DeleteProduct(ctx, bread.ID), apperrors.CodeNotFound))

	assert.Len(t, env.pub.changes(ws.TableCategories, ws.ActionInsert), 1)
	assert.Len(t, env.pub.changes(ws.TableProducts, ws.ActionInsert), 1)
	assert.Len(t, env.pub.changes(ws.TableProducts, ws.ActionUpdate), 2)
	assert.Len(t, env.pub.changes(ws.TableProducts, ws.ActionDelete), 1)
}

func TestStockEditDoesNotOverwriteCheckouts(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, defaultSalesConfig(), nil)
	cookie := env.product(t, "Cookie", "1.50", 8)

	// The editor read stock 8; a checkout takes 3 before the edit lands.
	seen := 8
	_, err := env.sales.CreateSale(ctx, saleRequest(model.PaymentCash, catalogLine(cookie, 3)), "user")
	require.NoError(t, err)

	_, err = env.inventory.UpdateProduct(ctx, cookie.ID, &ProductRequest{
		Name: "Cookie", Price: cookie.Price, Stock: 20, ExpectedStock: &seen,
	}, "admin")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))
	assert.Equal(t, 5, env.stockOf(t, cookie.ID))

	seen = 5
	updated, err := env.inventory.UpdateProduct(ctx, cookie.ID, &ProductRequest{
		Name: "Cookie", Price: cookie.Price, Stock: 20, ExpectedStock: &seen,
	}, "admin")
	require.NoError(t, err)
	assert.Equal(t, 20, updated.Stock)

	renamed, err := env.inventory.UpdateProduct(ctx, cookie.ID, &ProductRequest{
		Name: "Choc Cookie", Price: cookie.Price,
	}, "admin")
	require.NoError(t, err)
	assert.Equal(t, "Choc Cookie", renamed.Name)
	assert.Equal(t, 20, renamed.Stock)
}

func TestProductValidation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, defaultSalesConfig(), nil)

	_, err := env.inventory.CreateProduct(ctx, &ProductRequest{Name: "", Price: decimal.NewFromInt(1)}, "admin")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	_, err = env.inventory.CreateProduct(ctx, &ProductRequest{Name: "Gum", Price: decimal.RequireFromString("0.333")}, "admin")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	_, err = env.inventory.CreateProduct(ctx, &ProductRequest{Name: "Gum", Price: decimal.NewFromInt(1), Stock: -1}, "admin")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	missing := uuid.New()
	_, err = env.inventory.CreateProduct(ctx, &ProductRequest{Name: "Gum", Price: decimal.NewFromInt(1), CategoryID: &missing}, "admin")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	_, err = env.inventory.UpdateProduct(ctx, uuid.New(), &ProductRequest{Name: "Gum", Price: decimal.NewFromInt(1)}, "admin")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))

	_, err = env.inventory.Restock(ctx, uuid.New(), 0, "admin")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
}

func TestDeleteCategoryKeepsProducts(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, defaultSalesConfig(), nil)

	drinks, err := env.inventory.CreateCategory(ctx, &CategoryRequest{Name: "Drinks"}, "admin")
	require.NoError(t, err)
	for _, name := range []string{"Cola", "Juice", "Water"} {
		_, err := env.inventory.CreateProduct(ctx, &ProductRequest{Name: name, Price: decimal.NewFromInt(1), CategoryID: &drinks.ID}, "admin")
		require.NoError(t, err)
	}

	detached, err := env.inventory.DeleteCategory(ctx, drinks.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, detached)

	products, err := env.inventory.GetAllProducts(ctx)
	require.NoError(t, err)
	require.Len(t, products, 3)
	for _, p := range products {
		assert.Nil(t, p.CategoryID)
		assert.Nil(t, p.CategoryName)
	}
	categories, err := env.inventory.GetAllCategories(ctx)
	require.NoError(t, err)
	assert.Empty(t, categories)
	assert.Len(t, env.pub.changes(ws.TableCategories, ws.ActionDelete), 1)

	_, err = env.inventory.DeleteCategory(ctx, drinks.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))

	_, err = env.inventory.CreateCategory(ctx, &CategoryRequest{Name: "Snacks"}, "admin")
	require.NoError(t, err)
	_, err = env.inventory.CreateCategory(ctx, &CategoryRequest{Name: "Snacks"}, "admin")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))
}

func TestSnapshotExcludesDrafts(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, defaultSalesConfig(), nil)
	auth, _, _, _ := newAuthEnv(t)
	syncSvc := NewSyncService(env.inventory, env.sales, auth)

	env.product(t, "Cookie", "1.50", 5)
	_, err := env.sales.ReserveDraft(ctx, "user")
	require.NoError(t, err)
	sale, err := env.sales.CreateSale(ctx, saleRequest(model.PaymentCash, manualLine("Bag", "0.10")), "user")
	require.NoError(t, err)

	snap, err := syncSvc.Snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.Products, 1)
	assert.NotNil(t, snap.Categories)
	require.Len(t, snap.Sales, 1)
	assert.Equal(t, sale.ID, snap.Sales[0].ID)
	assert.Equal(t, 2, snap.Sales[0].OrderNumber)
	assert.True(t, snap.LogoutMarker.At.IsZero())
}
