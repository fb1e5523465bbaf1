package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"go-pos-sync/internal/model"
	"go-pos-sync/internal/service"
	"go-pos-sync/internal/syncclient"
	"go-pos-sync/pkg/config"
	"go-pos-sync/pkg/logger"

	"github.com/joho/godotenv"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "orders-board", Console: true})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.LoadSync()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	session, err := syncclient.Login(ctx, cfg.BaseURL, &service.LoginRequest{
		Role:     model.Role(cfg.Role),
		Password: cfg.Password,
		DeviceID: cfg.DeviceID,
	})
	if err != nil {
		logg.Error(ctx, "login failed", err)
		os.Exit(1)
	}
	ctx = logg.WithFields(ctx, map[string]any{"device_id": cfg.DeviceID, "role": session.Role})

	engine := syncclient.NewEngine(
		syncclient.NewHTTPSource(cfg.BaseURL, session.Token),
		syncclient.NewWSFeed(cfg.BaseURL, session.Token, logg),
		syncclient.Options{
			PollInterval: cfg.PollInterval,
			ResyncEvery:  cfg.ResyncEvery,
			IssuedAt:     session.IssuedAt,
			Logger:       logg,
		},
	)

	printQueue := func() { logQueue(ctx, logg, engine.State().Pending()) }
	engine.Subscribe(syncclient.Handlers{
		Synced:      func(*syncclient.State) { printQueue() },
		SaleCreated: func(model.Sale) { printQueue() },
		SaleUpdated: func(model.Sale) { printQueue() },
		SalesReset:  printQueue,
		StockAlert: func(alert service.StockAlert) {
			logg.Warn(logg.WithFields(ctx, map[string]any{
				"product": alert.Name,
				"stock":   alert.Stock,
				"level":   alert.Level,
			}), "stock alert")
		},
		ForcedLogout: func(marker model.LogoutMarker) {
			logg.Warn(logg.WithField(ctx, "marker", marker.At), "signed out by administrator")
		},
	})

	err = engine.Run(ctx)
	switch {
	case errors.Is(err, syncclient.ErrLoggedOut):
		os.Exit(3)
	case err != nil && !errors.Is(err, context.Canceled):
		logg.Error(ctx, "sync engine stopped", err)
		os.Exit(1)
	}
}

func logQueue(ctx context.Context, logg *logger.Logger, pending []model.Sale) {
	numbers := make([]int, 0, len(pending))
	for _, sale := range pending {
		numbers = append(numbers, sale.OrderNumber)
	}
	logg.Info(logg.WithFields(ctx, map[string]any{
		"pending": len(pending),
		"orders":  numbers,
	}), "orders board updated")
}
