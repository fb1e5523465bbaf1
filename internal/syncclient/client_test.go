package syncclient

import (
	"context"
	"net"
	"testing"
	"time"

	"go-pos-sync/internal/handler"
	"go-pos-sync/internal/model"
	"go-pos-sync/internal/repository"
	"go-pos-sync/internal/service"
	"go-pos-sync/internal/testutil"
	"go-pos-sync/internal/ws"
	"go-pos-sync/pkg/config"
	apperrors "go-pos-sync/pkg/errors"
	"go-pos-sync/pkg/jwt"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type liveAPI struct {
	baseURL   string
	hub       *ws.Hub
	inventory service.InventoryService
}

// startAPI serves the full router on a loopback port backed by in-memory SQLite.
func startAPI(t *testing.T) *liveAPI {
	t.Helper()
	db := testutil.NewDB(t)
	products := repository.NewProductRepo(db)
	categories := repository.NewCategoryRepo(db)
	sales := repository.NewSaleRepo(db)
	configs := repository.NewConfigRepo(db)

	ctx, cancel := context.WithCancel(context.Background())
	hub := ws.NewHub(nil, nil)
	go hub.Run(ctx)

	salesCfg := config.SalesConfig{OrderNumberMaxRetries: 3, AtomicCreate: true, LowStockThreshold: 5}
	stock := service.NewStockService(products, hub, salesCfg.LowStockThreshold, nil, nil)
	auth := service.NewAuthService(configs, jwt.NewManager("client-secret", "go-pos-sync", time.Hour), hub, nil)
	require.NoError(t, auth.SeedPasswords(ctx, map[model.Role]string{
		model.RoleUser:  "1111",
		model.RoleAdmin: "2222",
	}))
	inventory := service.NewInventoryService(products, categories, stock, hub, nil)
	saleSvc := service.NewSaleService(service.SaleServiceParams{
		DB: db, Sales: sales, Products: products, Stock: stock, Publisher: hub, Config: salesCfg,
	})

	app := handler.NewApp(handler.RouterConfig{AppName: "sync-test", Hub: hub}, handler.Services{
		Auth:      auth,
		Inventory: inventory,
		Sales:     saleSvc,
		Dashboard: service.NewDashboardService(sales, products, salesCfg.LowStockThreshold),
		Sync:      service.NewSyncService(inventory, saleSvc, auth),
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() {
		_ = app.Shutdown()
		cancel()
	})

	return &liveAPI{baseURL: "http://" + ln.Addr().String(), hub: hub, inventory: inventory}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	api := startAPI(t)
	_, err := Login(context.Background(), api.baseURL, &service.LoginRequest{Role: model.RoleUser, Password: "nope"})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorized))
}

func TestHTTPSourceReadsAPI(t *testing.T) {
	api := startAPI(t)
	ctx := context.Background()

	product, err := api.inventory.CreateProduct(ctx, &service.ProductRequest{
		Name: "Cookie", Price: decimal.RequireFromString("1.50"), Stock: 20,
	}, "admin")
	require.NoError(t, err)

	session, err := Login(ctx, api.baseURL, &service.LoginRequest{Role: model.RoleUser, Password: "1111", DeviceID: "till-1"})
	require.NoError(t, err)
	src := NewHTTPSource(api.baseURL, session.Token)

	snap, err := src.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Products, 1)
	assert.Equal(t, "Cookie", snap.Products[0].Name)
	assert.Empty(t, snap.Sales)

	pid := product.ID
	sale, err := src.CreateSale(ctx, &service.CreateSaleRequest{
		Items:         []service.SaleItemRequest{{ProductID: &pid, Price: decimal.RequireFromString("1.50"), Quantity: 4}},
		Total:         decimal.RequireFromString("6.00"),
		PaymentMethod: model.PaymentCash,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, sale.OrderNumber)
	assert.Equal(t, model.SalePending, sale.Status)

	fetched, err := src.Sale(ctx, sale.ID)
	require.NoError(t, err)
	require.Len(t, fetched.Items, 1)
	assert.True(t, fetched.Total.Equal(decimal.RequireFromString("6.00")))

	products, err := src.Products(ctx)
	require.NoError(t, err)
	assert.Equal(t, 16, products[0].Stock)

	unauth := NewHTTPSource(api.baseURL, "")
	_, err = unauth.Products(ctx)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorized))
}

func TestEngineFollowsLiveAPI(t *testing.T) {
	api := startAPI(t)
	ctx := context.Background()

	session, err := Login(ctx, api.baseURL, &service.LoginRequest{Role: model.RoleUser, Password: "1111", DeviceID: "board"})
	require.NoError(t, err)

	engine := NewEngine(
		NewHTTPSource(api.baseURL, session.Token),
		NewWSFeed(api.baseURL, session.Token, nil),
		Options{PollInterval: 20 * time.Millisecond, IssuedAt: session.IssuedAt},
	)
	created := make(chan model.Sale, 1)
	engine.Subscribe(Handlers{SaleCreated: func(s model.Sale) { created <- s }})
	_, done := startEngine(t, engine)

	require.Eventually(t, func() bool { return api.hub.ClientCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	src := NewHTTPSource(api.baseURL, session.Token)
	sale, err := src.CreateSale(ctx, &service.CreateSaleRequest{
		Items: []service.SaleItemRequest{{
			Kind: model.ItemManual, Name: "gift wrap", Price: decimal.RequireFromString("2.00"), Quantity: 1,
		}},
		Total:         decimal.RequireFromString("2.00"),
		PaymentMethod: model.PaymentUPI,
	})
	require.NoError(t, err)

	select {
	case got := <-created:
		assert.Equal(t, sale.ID, got.ID)
		assert.Equal(t, model.SaleCompleted, got.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("sale did not reach the engine")
	}

	time.Sleep(5 * time.Millisecond)
	admin, err := Login(ctx, api.baseURL, &service.LoginRequest{Role: model.RoleAdmin, Password: "2222"})
	require.NoError(t, err)
	status, _, errs := fiber.Post(api.baseURL+"/api/v1/auth/logout-all").
		Set(fiber.HeaderAuthorization, "Bearer "+admin.Token).
		Timeout(2 * time.Second).
		Bytes()
	require.Empty(t, errs)
	require.Equal(t, fiber.StatusOK, status)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrLoggedOut)
	case <-time.After(2 * time.Second):
		t.Fatal("engine survived a global logout")
	}

	_, err = src.Products(ctx)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeSessionRevoked))
}

func TestFeedRequiresLiveSession(t *testing.T) {
	api := startAPI(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := NewWSFeed(api.baseURL, "", nil).Connect(ctx)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorized))
	_, err = NewWSFeed(api.baseURL, "not-a-token", nil).Connect(ctx)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorized))
	assert.Equal(t, 0, api.hub.ClientCount())

	session, err := Login(ctx, api.baseURL, &service.LoginRequest{Role: model.RoleUser, Password: "1111"})
	require.NoError(t, err)
	events, err := NewWSFeed(api.baseURL, session.Token, nil).Connect(ctx)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return api.hub.ClientCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	time.Sleep(5 * time.Millisecond)
	admin, err := Login(ctx, api.baseURL, &service.LoginRequest{Role: model.RoleAdmin, Password: "2222"})
	require.NoError(t, err)
	status, _, errs := fiber.Post(api.baseURL+"/api/v1/auth/logout-all").
		Set(fiber.HeaderAuthorization, "Bearer "+admin.Token).
		Timeout(2 * time.Second).
		Bytes()
	require.Empty(t, errs)
	require.Equal(t, fiber.StatusOK, status)

	var last ws.Event
	deadline := time.After(2 * time.Second)
	for open := true; open; {
		select {
		case evt, ok := <-events:
			if ok {
				last = evt
			}
			open = ok
		case <-deadline:
			t.Fatal("revoked session kept its feed open")
		}
	}
	assert.Equal(t, ws.TableAppConfig, last.Table)
	assert.Equal(t, model.ConfigLastGlobalLogoutAt, last.RecordID)
	assert.Equal(t, 0, api.hub.ClientCount())

	_, err = NewWSFeed(api.baseURL, session.Token, nil).Connect(ctx)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorized))
}
