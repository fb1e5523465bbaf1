package service

import (
	"context"
	"time"

	"go-pos-sync/internal/model"
)

// Snapshot is everything a client needs to rebuild its local mirror.
type Snapshot struct {
	Products     []model.Product    `json:"products"`
	Categories   []model.Category   `json:"categories"`
	Sales        []model.Sale       `json:"sales"`
	LogoutMarker model.LogoutMarker `json:"logout_marker"`
	TakenAt      time.Time          `json:"taken_at"`
}

type SyncService interface {
	Snapshot(ctx context.Context) (*Snapshot, error)
}

type syncService struct {
	inventory InventoryService
	sales     SaleService
	auth      AuthService
}

func NewSyncService(inventory InventoryService, sales SaleService, auth AuthService) SyncService {
	return &syncService{inventory: inventory, sales: sales, auth: auth}
}

func (s *syncService) Snapshot(ctx context.Context) (*Snapshot, error) {
	takenAt := time.Now()
	products, err := s.inventory.GetAllProducts(ctx)
	if err != nil {
		return nil, err
	}
	categories, err := s.inventory.GetAllCategories(ctx)
	if err != nil {
		return nil, err
	}
	sales, err := s.sales.History(ctx)
	if err != nil {
		return nil, err
	}
	marker, err := s.auth.LogoutMarker(ctx)
	if err != nil {
		return nil, err
	}
	if products == nil {
		products = []model.Product{}
	}
	if categories == nil {
		categories = []model.Category{}
	}
	if sales == nil {
		sales = []model.Sale{}
	}
	return &Snapshot{
		Products:     products,
		Categories:   categories,
		Sales:        sales,
		LogoutMarker: marker,
		TakenAt:      takenAt,
	}, nil
}
