package service

import (
	"context"
	"errors"

	"go-pos-sync/internal/model"
	"go-pos-sync/internal/repository"
	"go-pos-sync/internal/ws"
	"go-pos-sync/pkg/database"
	apperrors "go-pos-sync/pkg/errors"
	"go-pos-sync/pkg/logger"
	"go-pos-sync/pkg/metrics"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	AlertLowStock   = "low_stock"
	AlertOutOfStock = "out_of_stock"
)

// StockChange is the before/after of one product touched by a sale.
type StockChange struct {
	ProductID uuid.UUID `json:"product_id"`
	Name      string    `json:"name"`
	Before    int       `json:"before"`
	After     int       `json:"after"`
}

// StockAlert is published when a product crosses a stock threshold.
type StockAlert struct {
	ProductID uuid.UUID `json:"product_id"`
	Name      string    `json:"name"`
	Stock     int       `json:"stock"`
	Threshold int       `json:"threshold"`
	Level     string    `json:"level"`
}

type StockService interface {
	// Reconcile decrements stock for every catalog item. Manual items are skipped.
	Reconcile(ctx context.Context, tx *gorm.DB, items []model.SaleItem, actor string) ([]StockChange, error)
	// Announce publishes product updates and threshold alerts. Call it after commit.
	Announce(ctx context.Context, changes []StockChange)
	Restock(ctx context.Context, productID uuid.UUID, qty int, actor string) (*model.Product, error)
}

type stockService struct {
	products  repository.ProductRepository
	publisher ws.Publisher
	threshold int
	logg      *logger.Logger
	metrics   *metrics.SalesMetrics
}

func NewStockService(products repository.ProductRepository, publisher ws.Publisher, lowStockThreshold int, logg *logger.Logger, m *metrics.SalesMetrics) StockService {
	if publisher == nil {
		publisher = ws.Discard{}
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &stockService{
		products:  products,
		publisher: publisher,
		threshold: lowStockThreshold,
		logg:      logg,
		metrics:   m,
	}
}

func (s *stockService) Reconcile(ctx context.Context, tx *gorm.DB, items []model.SaleItem, actor string) ([]StockChange, error) {
	type demand struct {
		name string
		qty  int
	}
	var order []uuid.UUID
	wanted := map[uuid.UUID]*demand{}
	for _, item := range items {
		if item.IsManual() || item.ProductID == nil {
			continue
		}
		d, ok := wanted[*item.ProductID]
		if !ok {
			d = &demand{name: item.Name}
			wanted[*item.ProductID] = d
			order = append(order, *item.ProductID)
		}
		d.qty += item.Quantity
	}

	changes := make([]StockChange, 0, len(order))
	for _, id := range order {
		d := wanted[id]
		after, err := s.products.DecrementStock(ctx, tx, id, d.qty, actor)
		switch {
		case errors.Is(err, repository.ErrInsufficientStock):
			return changes, apperrors.Newf(apperrors.CodeInsufficientStock, "not enough stock for %s", d.name).
				WithDetails(map[string]any{"product_id": id, "requested": d.qty})
		case database.IsNotFound(err):
			return changes, apperrors.Newf(apperrors.CodeNotFound, "product %s not found", id)
		case err != nil:
			return changes, apperrors.Wrap(apperrors.CodeInternal, err, "failed to update stock")
		}
		changes = append(changes, StockChange{ProductID: id, Name: d.name, Before: after + d.qty, After: after})
	}
	return changes, nil
}

func (s *stockService) Announce(ctx context.Context, changes []StockChange) {
	for _, ch := range changes {
		s.publisher.Publish(ctx, ws.NewChange(ws.TableProducts, ws.ActionUpdate, ch.ProductID.String(), ch))
		if alert, ok := alertFor(ch, s.threshold); ok {
			s.metrics.IncStockAlert(alert.Level)
			s.logg.Info(s.logg.WithFields(ctx, map[string]any{
				"product_id": ch.ProductID.String(),
				"stock":      ch.After,
				"level":      alert.Level,
			}), "stock threshold crossed")
			s.publisher.Publish(ctx, ws.NewStockAlert(ch.ProductID.String(), alert))
		}
	}
}

// alertFor reports the alert, if any, for a stock change. Only a crossing counts:
// a product already at or below a threshold does not alert again.
func alertFor(ch StockChange, threshold int) (StockAlert, bool) {
	alert := StockAlert{ProductID: ch.ProductID, Name: ch.Name, Stock: ch.After, Threshold: threshold}
	switch {
	case ch.Before > 0 && ch.After <= 0:
		alert.Level = AlertOutOfStock
		return alert, true
	case ch.Before > threshold && ch.After <= threshold:
		alert.Level = AlertLowStock
		return alert, true
	}
	return StockAlert{}, false
}

func (s *stockService) Restock(ctx context.Context, productID uuid.UUID, qty int, actor string) (*model.Product, error) {
	if qty <= 0 {
		return nil, apperrors.New(apperrors.CodeValidation, "quantity must be positive")
	}
	if _, err := s.products.IncrementStock(ctx, productID, qty, actor); err != nil {
		return nil, storeError(err, "product not found", "failed to restock product")
	}
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return nil, storeError(err, "product not found", "failed to load product")
	}
	s.publisher.Publish(ctx, ws.NewChange(ws.TableProducts, ws.ActionUpdate, product.ID.String(), product))
	return product, nil
}
