package repository

import (
	"context"
	"time"

	"go-pos-sync/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var visibleStatuses = []model.SaleStatus{model.SalePending, model.SaleCompleted}

type SaleRepository interface {
	MaxOrderNumber(ctx context.Context, tx *gorm.DB) (int, error)
	Create(ctx context.Context, tx *gorm.DB, sale *model.Sale) error
	CreateItems(ctx context.Context, tx *gorm.DB, items []model.SaleItem) error
	PromoteDraft(ctx context.Context, tx *gorm.DB, sale *model.Sale) (bool, error)
	Exists(ctx context.Context, tx *gorm.DB, id uuid.UUID) (bool, error)
	FindByID(ctx context.Context, id uuid.UUID) (*model.Sale, error)
	FindVisible(ctx context.Context) ([]model.Sale, error)
	FindPending(ctx context.Context) ([]model.Sale, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to model.SaleStatus, updatedBy string) (bool, error)
	UpdateAdminNote(ctx context.Context, id uuid.UUID, note *string, updatedBy string) error
	DeleteAll(ctx context.Context) (int64, error)
	GetSalesSummary(ctx context.Context, since time.Time) (*SalesSummary, error)
}

// SalesSummary backs the dashboard.
type SalesSummary struct {
	PendingCount    int64                                   `json:"pending_count"`
	CompletedCount  int64                                   `json:"completed_count"`
	Revenue         decimal.Decimal                         `json:"revenue"`
	RevenueByMethod map[model.PaymentMethod]decimal.Decimal `json:"revenue_by_method"`
}

type saleRepo struct {
	db *gorm.DB
}

func NewSaleRepo(db *gorm.DB) SaleRepository {
	return &saleRepo{db}
}

func (r *saleRepo) conn(ctx context.Context, tx *gorm.DB) *gorm.DB {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx)
}

// MaxOrderNumber returns the highest order number in the table, or 0 when empty.
// Drafts count: they hold a reserved number.
func (r *saleRepo) MaxOrderNumber(ctx context.Context, tx *gorm.DB) (int, error) {
	var highest int
	err := r.conn(ctx, tx).Model(&model.Sale{}).
		Select("COALESCE(MAX(order_number), 0)").
		Scan(&highest).Error
	return highest, err
}

// Create inserts the sale row only; items are inserted separately.
func (r *saleRepo) Create(ctx context.Context, tx *gorm.DB, sale *model.Sale) error {
	return r.conn(ctx, tx).Omit("Items").Create(sale).Error
}

func (r *saleRepo) CreateItems(ctx context.Context, tx *gorm.DB, items []model.SaleItem) error {
	if len(items) == 0 {
		return nil
	}
	return r.conn(ctx, tx).Create(&items).Error
}

// PromoteDraft fills a Draft row with its committed fields. It reports false when
// the row is missing or no longer a Draft.
func (r *saleRepo) PromoteDraft(ctx context.Context, tx *gorm.DB, sale *model.Sale) (bool, error) {
	res := r.conn(ctx, tx).Model(&model.Sale{}).
		Where("id = ? AND status = ?", sale.ID, model.SaleDraft).
		Updates(map[string]interface{}{
			"total":          sale.Total,
			"payment_method": sale.PaymentMethod,
			"status":         sale.Status,
			"admin_notes":    sale.AdminNotes,
			"user_notes":     sale.UserNotes,
			"updated_by":     sale.UpdatedBy,
			"updated_at":     time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *saleRepo) Exists(ctx context.Context, tx *gorm.DB, id uuid.UUID) (bool, error) {
	var n int64
	err := r.conn(ctx, tx).Model(&model.Sale{}).Where("id = ?", id).Count(&n).Error
	return n > 0, err
}

func (r *saleRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Sale, error) {
	var sale model.Sale
	if err := r.db.WithContext(ctx).First(&sale, "id = ?", id).Error; err != nil {
		return nil, err
	}
	sales := []model.Sale{sale}
	if err := r.attachItems(ctx, sales); err != nil {
		return nil, err
	}
	return &sales[0], nil
}

// FindVisible returns Pending and Completed sales, newest first.
func (r *saleRepo) FindVisible(ctx context.Context) ([]model.Sale, error) {
	var sales []model.Sale
	err := r.db.WithContext(ctx).
		Where("status IN ?", visibleStatuses).
		Order("created_at DESC").
		Order("order_number DESC").
		Find(&sales).Error
	if err != nil {
		return nil, err
	}
	return sales, r.attachItems(ctx, sales)
}

// FindPending returns the orders board queue, lowest order number first.
func (r *saleRepo) FindPending(ctx context.Context) ([]model.Sale, error) {
	var sales []model.Sale
	err := r.db.WithContext(ctx).
		Where("status = ?", model.SalePending).
		Order("order_number ASC").
		Find(&sales).Error
	if err != nil {
		return nil, err
	}
	return sales, r.attachItems(ctx, sales)
}

// attachItems loads every item for the given sales in one query and groups them by sale id.
func (r *saleRepo) attachItems(ctx context.Context, sales []model.Sale) error {
	if len(sales) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(sales))
	for i := range sales {
		ids[i] = sales[i].ID
	}

	var items []model.SaleItem
	if err := r.db.WithContext(ctx).
		Where("sale_id IN ?", ids).
		Order("position ASC").
		Find(&items).Error; err != nil {
		return err
	}

	grouped := make(map[uuid.UUID][]model.SaleItem, len(sales))
	for _, item := range items {
		grouped[item.SaleID] = append(grouped[item.SaleID], item)
	}
	for i := range sales {
		sales[i].Items = grouped[sales[i].ID]
		if sales[i].Items == nil {
			sales[i].Items = []model.SaleItem{}
		}
	}
	return nil
}

// TransitionStatus moves a sale from one status to another in a single
// conditional update. It reports whether a row changed.
func (r *saleRepo) TransitionStatus(ctx context.Context, id uuid.UUID, from, to model.SaleStatus, updatedBy string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Sale{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{
			"status":     to,
			"updated_by": updatedBy,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *saleRepo) UpdateAdminNote(ctx context.Context, id uuid.UUID, note *string, updatedBy string) error {
	res := r.db.WithContext(ctx).Model(&model.Sale{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"admin_notes": note,
			"updated_by":  updatedBy,
			"updated_at":  time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteAll wipes sale history, items first. It returns the number of sales removed.
func (r *saleRepo) DeleteAll(ctx context.Context) (int64, error) {
	var removed int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM sale_items").Error; err != nil {
			return err
		}
		res := tx.Exec("DELETE FROM sales")
		if res.Error != nil {
			return res.Error
		}
		removed = res.RowsAffected
		return nil
	})
	return removed, err
}

func (r *saleRepo) GetSalesSummary(ctx context.Context, since time.Time) (*SalesSummary, error) {
	summary := &SalesSummary{
		Revenue:         decimal.Zero,
		RevenueByMethod: map[model.PaymentMethod]decimal.Decimal{},
	}

	db := r.db.WithContext(ctx)
	if err := db.Model(&model.Sale{}).
		Where("status = ? AND created_at >= ?", model.SalePending, since).
		Count(&summary.PendingCount).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&model.Sale{}).
		Where("status = ? AND created_at >= ?", model.SaleCompleted, since).
		Count(&summary.CompletedCount).Error; err != nil {
		return nil, err
	}

	var rows []struct {
		PaymentMethod model.PaymentMethod
		Revenue       decimal.Decimal
	}
	if err := db.Model(&model.Sale{}).
		Select("payment_method, COALESCE(SUM(total), 0) AS revenue").
		Where("status IN ? AND created_at >= ?", visibleStatuses, since).
		Group("payment_method").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		summary.RevenueByMethod[row.PaymentMethod] = row.Revenue
		summary.Revenue = summary.Revenue.Add(row.Revenue)
	}
	return summary, nil
}
