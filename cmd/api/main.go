package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go-pos-sync/internal/handler"
	"go-pos-sync/internal/model"
	"go-pos-sync/internal/repository"
	"go-pos-sync/internal/service"
	"go-pos-sync/internal/ws"
	"go-pos-sync/pkg/config"
	"go-pos-sync/pkg/database"
	"go-pos-sync/pkg/jwt"
	"go-pos-sync/pkg/logger"
	"go-pos-sync/pkg/metrics"
	"go-pos-sync/pkg/redis"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"
	"gorm.io/gorm"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "pos-api"})

	// 1. Load Env
	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	logg = logger.New(logger.Options{
		ServiceName: "pos-api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Console:     cfg.App.IsDev(),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. Setup Database
	db, err := database.Connect(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	if cfg.App.AutoMigrate {
		if err := repository.AutoMigrate(db); err != nil {
			logg.Error(ctx, "failed to migrate schema", err)
			os.Exit(1)
		}
	}

	// 3. Metrics and change feed
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	salesMetrics := metrics.NewSalesMetrics(reg)

	hub := ws.NewHub(logg, salesMetrics)
	go hub.Run(ctx)

	var publisher ws.Publisher = hub
	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			logg.Error(ctx, "failed to bootstrap redis", err)
			os.Exit(1)
		}
		bridge := ws.NewRedisBridge(redisClient, cfg.Redis.Channel, hub, logg)
		go func() {
			if err := bridge.Run(ctx); err != nil {
				logg.Error(ctx, "change feed relay stopped", err)
			}
		}()
		publisher = bridge
	}

	// 4. Dependency Injection (Wiring Layers)
	svcs, err := wire(ctx, cfg, db, publisher, logg, salesMetrics)
	if err != nil {
		logg.Error(ctx, "failed to wire services", err)
		os.Exit(1)
	}

	app := handler.NewApp(handler.RouterConfig{
		AppName:   cfg.App.Name,
		AccessLog: cfg.App.AccessLog,
		Hub:       hub,
		Gatherer:  reg,
		Logger:    logg,
	}, svcs)

	// 5. Graceful Shutdown
	addr := ":" + cfg.App.Port
	go func() {
		logg.Info(logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "addr": addr}), "starting api server")
		if err := app.Listen(addr); err != nil {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			stop()
		}
	}()

	<-ctx.Done()
	logg.Info(context.Background(), "shutting down server")

	err = multierr.Combine(
		app.Shutdown(),
		redisClient.Close(),
		database.Close(db),
	)
	if err != nil {
		logg.Error(context.Background(), "unclean shutdown", err)
		os.Exit(1)
	}
	logg.Info(context.Background(), "server exited")
}

func wire(ctx context.Context, cfg *config.Config, db *gorm.DB, publisher ws.Publisher, logg *logger.Logger, m *metrics.SalesMetrics) (handler.Services, error) {
	productRepo := repository.NewProductRepo(db)
	categoryRepo := repository.NewCategoryRepo(db)
	saleRepo := repository.NewSaleRepo(db)
	configRepo := repository.NewConfigRepo(db)

	tokens := jwt.NewManager(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.TTL())
	authService := service.NewAuthService(configRepo, tokens, publisher, logg)
	if err := authService.SeedPasswords(ctx, map[model.Role]string{
		model.RoleUser:  cfg.App.SeedUserPassword,
		model.RoleAdmin: cfg.App.SeedAdminPassword,
	}); err != nil {
		return handler.Services{}, err
	}

	stockService := service.NewStockService(productRepo, publisher, cfg.Sales.LowStockThreshold, logg, m)
	invService := service.NewInventoryService(productRepo, categoryRepo, stockService, publisher, logg)
	saleService := service.NewSaleService(service.SaleServiceParams{
		DB:        db,
		Sales:     saleRepo,
		Products:  productRepo,
		Stock:     stockService,
		Publisher: publisher,
		Config:    cfg.Sales,
		Logger:    logg,
		Metrics:   m,
	})

	return handler.Services{
		Auth:      authService,
		Inventory: invService,
		Sales:     saleService,
		Dashboard: service.NewDashboardService(saleRepo, productRepo, cfg.Sales.LowStockThreshold),
		Sync:      service.NewSyncService(invService, saleService, authService),
	}, nil
}
