package repository

import (
	"context"
	"errors"
	"time"

	"go-pos-sync/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrStockChanged      = errors.New("stock changed since it was read")
)

type ProductRepository interface {
	Create(ctx context.Context, product *model.Product) error
	FindAll(ctx context.Context) ([]model.Product, error)
	FindByID(ctx context.Context, id uuid.UUID) (*model.Product, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]model.Product, error)
	Update(ctx context.Context, product *model.Product, expectedStock *int) error
	Delete(ctx context.Context, id uuid.UUID) error
	DecrementStock(ctx context.Context, tx *gorm.DB, id uuid.UUID, qty int, updatedBy string) (int, error)
	IncrementStock(ctx context.Context, id uuid.UUID, qty int, updatedBy string) (int, error)
	CountAtOrBelow(ctx context.Context, threshold int) (int64, error)
}

type productRepo struct {
	db *gorm.DB
}

func NewProductRepo(db *gorm.DB) ProductRepository {
	return &productRepo{db}
}

func (r *productRepo) Create(ctx context.Context, product *model.Product) error {
	return r.db.WithContext(ctx).Omit("Category").Create(product).Error
}

// FindAll returns products joined with their category name, sorted by name.
func (r *productRepo) FindAll(ctx context.Context) ([]model.Product, error) {
	var products []model.Product
	err := r.joined(ctx).Order("products.name ASC").Find(&products).Error
	return products, err
}

func (r *productRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	var product model.Product
	if err := r.joined(ctx).First(&product, "products.id = ?", id).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *productRepo) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]model.Product, error) {
	out := make(map[uuid.UUID]model.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var products []model.Product
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&products).Error; err != nil {
		return nil, err
	}
	for _, p := range products {
		out[p.ID] = p
	}
	return out, nil
}

// Update writes the editable fields. Stock is written only when expectedStock is
// given, and only while the row still holds that value; otherwise
// ErrStockChanged is returned and nothing changes.
func (r *productRepo) Update(ctx context.Context, product *model.Product, expectedStock *int) error {
	fields := map[string]interface{}{
		"name":        product.Name,
		"price":       product.Price,
		"category_id": product.CategoryID,
		"updated_by":  product.UpdatedBy,
		"updated_at":  time.Now(),
	}
	q := r.db.WithContext(ctx).Model(&model.Product{}).Where("id = ?", product.ID)
	if expectedStock != nil {
		fields["stock"] = product.Stock
		q = q.Where("stock = ?", *expectedStock)
	}
	res := q.Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.Product{}).Where("id = ?", product.ID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return gorm.ErrRecordNotFound
	}
	if expectedStock != nil {
		return ErrStockChanged
	}
	return nil
}

func (r *productRepo) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Delete(&model.Product{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DecrementStock subtracts qty in a single conditional statement and returns the
// resulting stock. It never lets stock go below zero: when the row holds less than
// qty nothing changes and ErrInsufficientStock is returned.
func (r *productRepo) DecrementStock(ctx context.Context, tx *gorm.DB, id uuid.UUID, qty int, updatedBy string) (int, error) {
	if tx == nil {
		tx = r.db
	}
	var row struct{ Stock int }
	res := tx.WithContext(ctx).Raw(`
		UPDATE products
		SET stock = stock - ?, updated_at = ?, updated_by = ?
		WHERE id = ? AND stock >= ?
		RETURNING stock
	`, qty, time.Now(), updatedBy, id, qty).Scan(&row)
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := tx.WithContext(ctx).Model(&model.Product{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return 0, err
		}
		if count == 0 {
			return 0, gorm.ErrRecordNotFound
		}
		return 0, ErrInsufficientStock
	}
	return row.Stock, nil
}

// IncrementStock adds qty atomically and returns the resulting stock.
func (r *productRepo) IncrementStock(ctx context.Context, id uuid.UUID, qty int, updatedBy string) (int, error) {
	var row struct{ Stock int }
	res := r.db.WithContext(ctx).Raw(`
		UPDATE products
		SET stock = stock + ?, updated_at = ?, updated_by = ?
		WHERE id = ?
		RETURNING stock
	`, qty, time.Now(), updatedBy, id).Scan(&row)
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, gorm.ErrRecordNotFound
	}
	return row.Stock, nil
}

func (r *productRepo) CountAtOrBelow(ctx context.Context, threshold int) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Product{}).Where("stock <= ?", threshold).Count(&count).Error
	return count, err
}

func (r *productRepo) joined(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&model.Product{}).
		Select("products.*, categories.name AS category_name").
		Joins("LEFT JOIN categories ON categories.id = products.category_id")
}
