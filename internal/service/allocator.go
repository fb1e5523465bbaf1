package service

import (
	"context"

	"go-pos-sync/internal/repository"

	"gorm.io/gorm"
)

// OrderNumberAllocator hands out the next human-facing order number. The value is
// only a proposal: the unique index on sales.order_number decides the winner.
type OrderNumberAllocator interface {
	Next(ctx context.Context, tx *gorm.DB) (int, error)
}

type maxPlusOneAllocator struct {
	sales repository.SaleRepository
}

// NewOrderNumberAllocator derives the next number from the current maximum, so an
// empty table (after a history reset) starts again at 1.
func NewOrderNumberAllocator(sales repository.SaleRepository) OrderNumberAllocator {
	return &maxPlusOneAllocator{sales: sales}
}

func (a *maxPlusOneAllocator) Next(ctx context.Context, tx *gorm.DB) (int, error) {
	highest, err := a.sales.MaxOrderNumber(ctx, tx)
	if err != nil {
		return 0, err
	}
	return highest + 1, nil
}
