package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go-pos-sync/internal/model"
	"go-pos-sync/internal/service"
	apperrors "go-pos-sync/pkg/errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Line is one staged cart entry on a device.
type Line struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	DeviceID  string          `gorm:"type:varchar(100);not null;index" json:"device_id"`
	Kind      model.ItemKind  `gorm:"type:varchar(10);not null" json:"kind"`
	ProductID *uuid.UUID      `gorm:"type:uuid" json:"product_id,omitempty"`
	Name      string          `gorm:"type:varchar(255);not null" json:"name"`
	Price     decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"price"`
	Quantity  int             `gorm:"not null" json:"quantity"`
	Position  int             `gorm:"not null" json:"position"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (Line) TableName() string {
	return "cart_lines"
}

func (l *Line) BeforeCreate(tx *gorm.DB) (err error) {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return
}

func (l Line) LineTotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Draft remembers the order number reserved for the cart in progress.
type Draft struct {
	DeviceID    string    `gorm:"type:varchar(100);primaryKey" json:"device_id"`
	SaleID      uuid.UUID `gorm:"type:uuid;not null" json:"sale_id"`
	OrderNumber int       `gorm:"not null" json:"order_number"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Draft) TableName() string {
	return "cart_drafts"
}

// Store keeps a device's cart on local disk so it survives restarts.
type Store struct {
	db     *gorm.DB
	device string
}

// Open creates or reuses a SQLite cart file.
func Open(path, deviceID string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open("file:"+path+"?_foreign_keys=on"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening cart store: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql db handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	return NewStore(db, deviceID)
}

// NewStore migrates the cart tables on db.
func NewStore(db *gorm.DB, deviceID string) (*Store, error) {
	if strings.TrimSpace(deviceID) == "" {
		return nil, errors.New("device id is required")
	}
	if err := db.AutoMigrate(&Line{}, &Draft{}); err != nil {
		return nil, fmt.Errorf("migrating cart store: %w", err)
	}
	return &Store{db: db, device: deviceID}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// AddProduct stages qty of a catalog product at its current price. Adding a
// product already in the cart raises that line's quantity.
func (s *Store) AddProduct(ctx context.Context, product model.Product, qty int) (*Line, error) {
	if qty <= 0 {
		return nil, apperrors.New(apperrors.CodeValidation, "quantity must be positive")
	}
	var line Line
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("device_id = ? AND product_id = ?", s.device, product.ID).First(&line).Error
		switch {
		case err == nil:
			line.Quantity += qty
			line.Price = product.Price
			line.Name = product.Name
			return tx.Save(&line).Error
		case errors.Is(err, gorm.ErrRecordNotFound):
			pid := product.ID
			line = Line{
				DeviceID:  s.device,
				Kind:      model.ItemCatalog,
				ProductID: &pid,
				Name:      product.Name,
				Price:     product.Price,
				Quantity:  qty,
			}
			return s.insert(ctx, tx, &line)
		default:
			return err
		}
	})
	if err != nil {
		return nil, err
	}
	return &line, nil
}

// AddManual stages a lump-sum line with no catalog backing.
func (s *Store) AddManual(ctx context.Context, description string, amount decimal.Decimal) (*Line, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, apperrors.New(apperrors.CodeValidation, "description is required")
	}
	if !amount.IsPositive() || !amount.Equal(amount.Round(2)) {
		return nil, apperrors.New(apperrors.CodeValidation, "amount must be positive with at most two decimals")
	}
	line := Line{
		DeviceID: s.device,
		Kind:     model.ItemManual,
		Name:     description,
		Price:    amount,
		Quantity: 1,
	}
	if err := s.insert(ctx, s.db, &line); err != nil {
		return nil, err
	}
	return &line, nil
}

func (s *Store) insert(ctx context.Context, tx *gorm.DB, line *Line) error {
	var last int
	if err := tx.WithContext(ctx).Model(&Line{}).
		Where("device_id = ?", s.device).
		Select("COALESCE(MAX(position), 0)").
		Scan(&last).Error; err != nil {
		return err
	}
	line.Position = last + 1
	return tx.WithContext(ctx).Create(line).Error
}

// SetQuantity changes a line's quantity. Zero removes the line.
func (s *Store) SetQuantity(ctx context.Context, lineID uuid.UUID, qty int) error {
	if qty < 0 {
		return apperrors.New(apperrors.CodeValidation, "quantity cannot be negative")
	}
	if qty == 0 {
		return s.Remove(ctx, lineID)
	}
	res := s.db.WithContext(ctx).Model(&Line{}).
		Where("id = ? AND device_id = ?", lineID, s.device).
		Updates(map[string]interface{}{"quantity": qty, "updated_at": time.Now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperrors.New(apperrors.CodeNotFound, "cart line not found")
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, lineID uuid.UUID) error {
	res := s.db.WithContext(ctx).Where("id = ? AND device_id = ?", lineID, s.device).Delete(&Line{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperrors.New(apperrors.CodeNotFound, "cart line not found")
	}
	return nil
}

// Lines returns the cart in the order items were added.
func (s *Store) Lines(ctx context.Context) ([]Line, error) {
	var lines []Line
	err := s.db.WithContext(ctx).
		Where("device_id = ?", s.device).
		Order("position ASC").
		Find(&lines).Error
	return lines, err
}

func (s *Store) Total(ctx context.Context) (decimal.Decimal, error) {
	lines, err := s.Lines(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.LineTotal())
	}
	return total.Round(2), nil
}

// Clear empties the cart and forgets any reserved draft.
func (s *Store) Clear(ctx context.Context) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("device_id = ?", s.device).Delete(&Line{}).Error; err != nil {
			return err
		}
		return tx.Where("device_id = ?", s.device).Delete(&Draft{}).Error
	})
}

// SetDraft records a reserved draft sale for this device, replacing any previous one.
func (s *Store) SetDraft(ctx context.Context, sale *model.Sale) error {
	if sale.Status != model.SaleDraft {
		return apperrors.New(apperrors.CodeValidation, "sale is not a draft")
	}
	draft := Draft{DeviceID: s.device, SaleID: sale.ID, OrderNumber: sale.OrderNumber}
	return s.db.WithContext(ctx).Save(&draft).Error
}

// Draft returns the reserved draft, if any.
func (s *Store) Draft(ctx context.Context) (*Draft, bool, error) {
	var draft Draft
	err := s.db.WithContext(ctx).First(&draft, "device_id = ?", s.device).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &draft, true, nil
}

// Checkout turns the cart into a create-sale request. The cart is left intact
// until the caller clears it after the sale is accepted.
func (s *Store) Checkout(ctx context.Context, method model.PaymentMethod, userNotes *string) (*service.CreateSaleRequest, error) {
	lines, err := s.Lines(ctx)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, apperrors.New(apperrors.CodeValidation, "cart is empty")
	}

	req := &service.CreateSaleRequest{
		Items:         make([]service.SaleItemRequest, 0, len(lines)),
		PaymentMethod: method,
		UserNotes:     userNotes,
	}
	total := decimal.Zero
	for _, l := range lines {
		req.Items = append(req.Items, service.SaleItemRequest{
			Kind:      l.Kind,
			ProductID: l.ProductID,
			Name:      l.Name,
			Price:     l.Price,
			Quantity:  l.Quantity,
		})
		total = total.Add(l.LineTotal())
	}
	req.Total = total.Round(2)

	draft, ok, err := s.Draft(ctx)
	if err != nil {
		return nil, err
	}
	if ok {
		id := draft.SaleID
		req.DraftID = &id
	}
	return req, nil
}
