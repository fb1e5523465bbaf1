package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"go-pos-sync/internal/model"
	"go-pos-sync/internal/testutil"
	"go-pos-sync/pkg/database"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func seedProduct(t *testing.T, repo ProductRepository, name string, stock int, categoryID *uuid.UUID) *model.Product {
	t.Helper()
	p := &model.Product{Name: name, Price: decimal.RequireFromString("1.50"), Stock: stock, CategoryID: categoryID}
	require.NoError(t, repo.Create(context.Background(), p))
	return p
}

func seedSale(t *testing.T, repo SaleRepository, number int, status model.SaleStatus, createdAt time.Time) *model.Sale {
	t.Helper()
	s := &model.Sale{
		Total:         decimal.RequireFromString("6.00"),
		PaymentMethod: model.PaymentCash,
		OrderNumber:   number,
		Status:        status,
	}
	s.CreatedAt = createdAt
	require.NoError(t, repo.Create(context.Background(), nil, s))
	return s
}

func TestDecrementStock(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	repo := NewProductRepo(db)
	p := seedProduct(t, repo, "Cookie", 5, nil)

	after, err := repo.DecrementStock(ctx, nil, p.ID, 3, "user")
	require.NoError(t, err)
	assert.Equal(t, 2, after)

	_, err = repo.DecrementStock(ctx, nil, p.ID, 3, "user")
	assert.ErrorIs(t, err, ErrInsufficientStock)

	reloaded, err := repo.FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, reloaded.Stock, "a rejected decrement leaves stock untouched")

	_, err = repo.DecrementStock(ctx, nil, uuid.New(), 1, "user")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	after, err = repo.IncrementStock(ctx, p.ID, 10, "admin")
	require.NoError(t, err)
	assert.Equal(t, 12, after)
}

func TestDecrementStockRollsBackWithTransaction(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	repo := NewProductRepo(db)
	p := seedProduct(t, repo, "Tea", 4, nil)

	err := db.Transaction(func(tx *gorm.DB) error {
		if _, err := repo.DecrementStock(ctx, tx, p.ID, 4, "user"); err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.Error(t, err)

	reloaded, err := repo.FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, reloaded.Stock)
}

func TestProductsJoinCategoryName(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	products := NewProductRepo(db)
	categories := NewCategoryRepo(db)

	snacks := &model.Category{Name: "Snacks"}
	require.NoError(t, categories.Create(ctx, snacks))
	seedProduct(t, products, "Biscuit", 3, &snacks.ID)
	seedProduct(t, products, "Apple", 3, nil)

	all, err := products.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Apple", all[0].Name)
	assert.Nil(t, all[0].CategoryName)
	require.NotNil(t, all[1].CategoryName)
	assert.Equal(t, "Snacks", *all[1].CategoryName)

	low, err := products.CountAtOrBelow(ctx, 3)
	require.NoError(t, err)
	assert.EqualValues(t, 2, low)
}

func TestDeleteCategoryDetachesProducts(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	products := NewProductRepo(db)
	categories := NewCategoryRepo(db)

	drinks := &model.Category{Name: "Drinks"}
	require.NoError(t, categories.Create(ctx, drinks))
	for _, name := range []string{"Cola", "Lemonade", "Water"} {
		seedProduct(t, products, name, 1, &drinks.ID)
	}

	detached, err := categories.Delete(ctx, drinks.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, detached)

	all, err := products.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	for _, p := range all {
		assert.Nil(t, p.CategoryID)
	}

	_, err = categories.Delete(ctx, drinks.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestDuplicateCategoryNameIsUniqueViolation(t *testing.T) {
	ctx := context.Background()
	categories := NewCategoryRepo(testutil.NewDB(t))
	require.NoError(t, categories.Create(ctx, &model.Category{Name: "Bakery"}))
	err := categories.Create(ctx, &model.Category{Name: "Bakery"})
	require.Error(t, err)
	assert.True(t, database.IsUniqueViolation(err, ""))
}

func TestOrderNumberUniqueIndex(t *testing.T) {
	ctx := context.Background()
	repo := NewSaleRepo(testutil.NewDB(t))
	seedSale(t, repo, 1, model.SalePending, time.Now())

	dup := &model.Sale{Total: decimal.Zero, OrderNumber: 1, Status: model.SalePending}
	err := repo.Create(ctx, nil, dup)
	require.Error(t, err)
	assert.True(t, database.IsUniqueViolation(err, "idx_sales_order_number"))

	highest, err := repo.MaxOrderNumber(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, highest)
}

func TestVisibleListsHideDrafts(t *testing.T) {
	ctx := context.Background()
	repo := NewSaleRepo(testutil.NewDB(t))
	base := time.Now().Add(-time.Hour)

	seedSale(t, repo, 1, model.SaleCompleted, base)
	draft := seedSale(t, repo, 2, model.SaleDraft, base.Add(time.Minute))
	newer := seedSale(t, repo, 3, model.SalePending, base.Add(2*time.Minute))
	first := seedSale(t, repo, 4, model.SalePending, base.Add(3*time.Minute))

	require.NoError(t, repo.CreateItems(ctx, nil, []model.SaleItem{
		{SaleID: newer.ID, Kind: model.ItemManual, Name: "Gift wrap", Price: decimal.RequireFromString("2.00"), Quantity: 1, Position: 1},
		{SaleID: newer.ID, Kind: model.ItemManual, Name: "Card", Price: decimal.RequireFromString("4.00"), Quantity: 1, Position: 0},
	}))

	history, err := repo.FindVisible(ctx)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, []int{4, 3, 1}, []int{history[0].OrderNumber, history[1].OrderNumber, history[2].OrderNumber})
	for _, s := range history {
		assert.NotEqual(t, draft.ID, s.ID)
		assert.NotNil(t, s.Items)
	}
	require.Len(t, history[1].Items, 2)
	assert.Equal(t, "Card", history[1].Items[0].Name)

	pending, err := repo.FindPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, newer.ID, pending[0].ID)
	assert.Equal(t, first.ID, pending[1].ID)

	highest, err := repo.MaxOrderNumber(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, highest, "drafts hold their number")
}

func TestPromoteDraftAndTransitions(t *testing.T) {
	ctx := context.Background()
	repo := NewSaleRepo(testutil.NewDB(t))
	draft := seedSale(t, repo, 1, model.SaleDraft, time.Now())

	promoted := &model.Sale{Total: decimal.RequireFromString("3.00"), PaymentMethod: model.PaymentUPI, Status: model.SalePending}
	promoted.ID = draft.ID
	ok, err := repo.PromoteDraft(ctx, nil, promoted)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.PromoteDraft(ctx, nil, promoted)
	require.NoError(t, err)
	assert.False(t, ok, "a promoted draft cannot be promoted again")

	changed, err := repo.TransitionStatus(ctx, draft.ID, model.SalePending, model.SaleCompleted, "user")
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = repo.TransitionStatus(ctx, draft.ID, model.SalePending, model.SaleCompleted, "user")
	require.NoError(t, err)
	assert.False(t, changed)

	note := "paid by card machine"
	require.NoError(t, repo.UpdateAdminNote(ctx, draft.ID, &note, "admin"))
	sale, err := repo.FindByID(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SaleCompleted, sale.Status)
	assert.Equal(t, 1, sale.OrderNumber)
	require.NotNil(t, sale.AdminNotes)
	assert.Equal(t, note, *sale.AdminNotes)

	assert.ErrorIs(t, repo.UpdateAdminNote(ctx, uuid.New(), &note, "admin"), gorm.ErrRecordNotFound)
}

func TestDeleteAllClearsHistory(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	repo := NewSaleRepo(db)
	sale := seedSale(t, repo, 7, model.SalePending, time.Now())
	require.NoError(t, repo.CreateItems(ctx, nil, nil))
	item := model.ManualItem("Service", decimal.RequireFromString("6.00"))
	item.SaleID = sale.ID
	require.NoError(t, repo.CreateItems(ctx, nil, []model.SaleItem{item}))

	removed, err := repo.DeleteAll(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)

	var items int64
	require.NoError(t, db.Model(&model.SaleItem{}).Count(&items).Error)
	assert.Zero(t, items)

	highest, err := repo.MaxOrderNumber(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, highest)
}

func TestSalesSummary(t *testing.T) {
	ctx := context.Background()
	repo := NewSaleRepo(testutil.NewDB(t))
	now := time.Now()
	seedSale(t, repo, 1, model.SalePending, now)
	seedSale(t, repo, 2, model.SaleCompleted, now)
	seedSale(t, repo, 3, model.SaleDraft, now)

	summary, err := repo.GetSalesSummary(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, summary.PendingCount)
	assert.EqualValues(t, 1, summary.CompletedCount)
	assert.True(t, summary.Revenue.Equal(decimal.RequireFromString("12.00")), summary.Revenue.String())
	assert.True(t, summary.RevenueByMethod[model.PaymentCash].Equal(decimal.RequireFromString("12.00")))
}

func TestConfigRepositoryUpsert(t *testing.T) {
	ctx := context.Background()
	repo := NewConfigRepo(testutil.NewDB(t))

	_, ok, err := repo.Get(ctx, model.ConfigLastGlobalLogoutAt)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.Set(ctx, model.ConfigLastGlobalLogoutAt, "1000"))
	require.NoError(t, repo.Set(ctx, model.ConfigLastGlobalLogoutAt, "2000"))
	value, ok, err := repo.Get(ctx, model.ConfigLastGlobalLogoutAt)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2000", value)
}
