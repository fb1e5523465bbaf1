package handler

import (
	"go-pos-sync/internal/middleware"
	"go-pos-sync/internal/model"
	"go-pos-sync/internal/service"
	"go-pos-sync/internal/ws"
	"go-pos-sync/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Services struct {
	Auth      service.AuthService
	Inventory service.InventoryService
	Sales     service.SaleService
	Dashboard service.DashboardService
	Sync      service.SyncService
}

type RouterConfig struct {
	AppName   string
	AccessLog bool
	Hub       *ws.Hub
	Gatherer  prometheus.Gatherer
	Logger    *logger.Logger
}

// NewApp builds the fiber app with every route mounted.
func NewApp(cfg RouterConfig, svcs Services) *fiber.App {
	logg := cfg.Logger
	if logg == nil {
		logg = logger.Nop()
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ErrorHandler: ErrorHandler(logg),
	})

	if cfg.AccessLog {
		app.Use(fiberlogger.New())
	}
	app.Use(recover.New())
	app.Use(cors.New())
	app.Use(requestid.New())
	app.Use(middleware.RequestContext(logg))

	authHandler := NewAuthHandler(svcs.Auth)
	invHandler := NewInventoryHandler(svcs.Inventory)
	saleHandler := NewSaleHandler(svcs.Sales)
	dashHandler := NewDashboardHandler(svcs.Dashboard)
	syncHandler := NewSyncHandler(svcs.Sync)

	requireAuth := middleware.RequireAuth(svcs.Auth, logg)
	adminOnly := middleware.RequireRole(model.RoleAdmin)

	api := app.Group("/api/v1")

	// ============ PUBLIC ROUTES ============
	auth := api.Group("/auth")
	auth.Post("/login", authHandler.Login)
	auth.Get("/logout-marker", authHandler.LogoutMarker)
	auth.Get("/session", requireAuth, authHandler.Session)
	auth.Post("/logout-all", requireAuth, adminOnly, authHandler.LogoutAll)

	// ============ PROTECTED ROUTES ============
	protected := api.Group("", requireAuth)

	protected.Get("/sync/snapshot", syncHandler.Snapshot)

	protected.Get("/products", invHandler.GetProducts)
	protected.Get("/products/:id", invHandler.GetProduct)
	protected.Post("/products", adminOnly, invHandler.CreateProduct)
	protected.Put("/products/:id", adminOnly, invHandler.UpdateProduct)
	protected.Delete("/products/:id", adminOnly, invHandler.DeleteProduct)
	protected.Post("/products/:id/restock", adminOnly, invHandler.Restock)

	protected.Get("/categories", invHandler.GetCategories)
	protected.Post("/categories", adminOnly, invHandler.CreateCategory)
	protected.Delete("/categories/:id", adminOnly, invHandler.DeleteCategory)

	protected.Get("/sales", saleHandler.GetHistory)
	protected.Get("/sales/pending", saleHandler.GetPending)
	protected.Post("/sales", saleHandler.CreateSale)
	protected.Post("/sales/drafts", saleHandler.ReserveDraft)
	protected.Delete("/sales", adminOnly, saleHandler.ResetHistory)
	protected.Get("/sales/:id", saleHandler.GetSale)
	protected.Post("/sales/:id/complete", saleHandler.CompleteSale)
	protected.Put("/sales/:id/admin-note", adminOnly, saleHandler.SetAdminNote)

	protected.Get("/dashboard/stats", adminOnly, dashHandler.GetDashboardStats)

	if cfg.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	// WebSocket Route
	if cfg.Hub != nil {
		app.Use("/ws", UpgradeFeed)
		app.Get("/ws", requireAuth, Feed(cfg.Hub))
	}

	return app
}
