package service

import (
	"context"
	"time"

	"go-pos-sync/internal/repository"
)

type DashboardStats struct {
	Since             time.Time                `json:"since"`
	Sales             *repository.SalesSummary `json:"sales"`
	ProductCount      int                      `json:"product_count"`
	LowStockCount     int64                    `json:"low_stock_count"`
	LowStockThreshold int                      `json:"low_stock_threshold"`
}

type DashboardService interface {
	GetDashboardStats(ctx context.Context, since time.Time) (*DashboardStats, error)
}

type dashboardService struct {
	saleRepo          repository.SaleRepository
	productRepo       repository.ProductRepository
	lowStockThreshold int
}

func NewDashboardService(saleRepo repository.SaleRepository, productRepo repository.ProductRepository, lowStockThreshold int) DashboardService {
	return &dashboardService{
		saleRepo:          saleRepo,
		productRepo:       productRepo,
		lowStockThreshold: lowStockThreshold,
	}
}

func (s *dashboardService) GetDashboardStats(ctx context.Context, since time.Time) (*DashboardStats, error) {
	summary, err := s.saleRepo.GetSalesSummary(ctx, since)
	if err != nil {
		return nil, storeError(err, "sales not found", "failed to load sales summary")
	}
	products, err := s.productRepo.FindAll(ctx)
	if err != nil {
		return nil, storeError(err, "product not found", "failed to load products")
	}
	low, err := s.productRepo.CountAtOrBelow(ctx, s.lowStockThreshold)
	if err != nil {
		return nil, storeError(err, "product not found", "failed to count low stock")
	}
	return &DashboardStats{
		Since:             since,
		Sales:             summary,
		ProductCount:      len(products),
		LowStockCount:     low,
		LowStockThreshold: s.lowStockThreshold,
	}, nil
}
