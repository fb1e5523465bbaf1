package service

import (
	"context"
	"sync"
	"testing"

	"go-pos-sync/internal/model"
	"go-pos-sync/internal/repository"
	"go-pos-sync/internal/testutil"
	"go-pos-sync/internal/ws"
	"go-pos-sync/pkg/config"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []ws.Event
}

func (p *recordingPublisher) Publish(_ context.Context, evt ws.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
}

func (p *recordingPublisher) matching(typ, table, action string) []ws.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []ws.Event
	for _, evt := range p.events {
		if evt.Type == typ && evt.Table == table && evt.Action == action {
			out = append(out, evt)
		}
	}
	return out
}

func (p *recordingPublisher) changes(table, action string) []ws.Event {
	return p.matching(ws.TypeChange, table, action)
}

type testEnv struct {
	db         *gorm.DB
	products   repository.ProductRepository
	categories repository.CategoryRepository
	salesRepo  repository.SaleRepository
	configs    repository.ConfigRepository
	pub        *recordingPublisher
	stock      StockService
	sales      SaleService
	inventory  InventoryService
}

func defaultSalesConfig() config.SalesConfig {
	return config.SalesConfig{OrderNumberMaxRetries: 3, AtomicCreate: true, LowStockThreshold: 10}
}

func newTestEnv(t *testing.T, cfg config.SalesConfig, allocator OrderNumberAllocator) *testEnv {
	t.Helper()
	db := testutil.NewDB(t)
	env := &testEnv{
		db:         db,
		products:   repository.NewProductRepo(db),
		categories: repository.NewCategoryRepo(db),
		salesRepo:  repository.NewSaleRepo(db),
		configs:    repository.NewConfigRepo(db),
		pub:        &recordingPublisher{},
	}
	env.stock = NewStockService(env.products, env.pub, cfg.LowStockThreshold, nil, nil)
	env.sales = NewSaleService(SaleServiceParams{
		DB:        db,
		Sales:     env.salesRepo,
		Products:  env.products,
		Allocator: allocator,
		Stock:     env.stock,
		Publisher: env.pub,
		Config:    cfg,
	})
	env.inventory = NewInventoryService(env.products, env.categories, env.stock, env.pub, nil)
	return env
}

func (e *testEnv) product(t *testing.T, name, price string, stock int) *model.Product {
	t.Helper()
	p := &model.Product{Name: name, Price: decimal.RequireFromString(price), Stock: stock}
	require.NoError(t, e.products.Create(context.Background(), p))
	return p
}

func (e *testEnv) stockOf(t *testing.T, id uuid.UUID) int {
	t.Helper()
	p, err := e.products.FindByID(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

func (e *testEnv) saleCount(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(&model.Sale{}).Count(&n).Error)
	return n
}

func catalogLine(p *model.Product, qty int) SaleItemRequest {
	id := p.ID
	return SaleItemRequest{ProductID: &id, Name: p.Name, Price: p.Price, Quantity: qty}
}

func manualLine(desc, amount string) SaleItemRequest {
	return SaleItemRequest{Kind: model.ItemManual, Name: desc, Price: decimal.RequireFromString(amount), Quantity: 1}
}

func saleRequest(method model.PaymentMethod, lines ...SaleItemRequest) *CreateSaleRequest {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Price.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return &CreateSaleRequest{Items: lines, Total: total, PaymentMethod: method}
}

// staleAllocator proposes a fixed number for the first stale calls, then defers
// to the real allocator. It simulates losing a race to another terminal.
type staleAllocator struct {
	mu     sync.Mutex
	stale  int
	number int
	next   OrderNumberAllocator
}

func (a *staleAllocator) Next(ctx context.Context, tx *gorm.DB) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stale > 0 {
		a.stale--
		return a.number, nil
	}
	return a.next.Next(ctx, tx)
}
