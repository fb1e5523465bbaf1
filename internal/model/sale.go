package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type SaleStatus string

const (
	SaleDraft     SaleStatus = "Draft"
	SalePending   SaleStatus = "Pending"
	SaleCompleted SaleStatus = "Completed"
)

// CanTransitionTo encodes the lifecycle: Draft -> Pending|Completed, Pending -> Completed.
func (s SaleStatus) CanTransitionTo(next SaleStatus) bool {
	switch s {
	case SaleDraft:
		return next == SalePending || next == SaleCompleted
	case SalePending:
		return next == SaleCompleted
	default:
		return false
	}
}

// Visible reports whether clients may see a sale in this status.
func (s SaleStatus) Visible() bool {
	return s == SalePending || s == SaleCompleted
}

type PaymentMethod string

const (
	PaymentCash PaymentMethod = "Cash"
	PaymentUPI  PaymentMethod = "UPI"
)

type ItemKind string

const (
	ItemCatalog ItemKind = "catalog"
	ItemManual  ItemKind = "manual"
)

type Sale struct {
	BaseModel
	Total         decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"total"`
	PaymentMethod PaymentMethod   `gorm:"type:varchar(10)" json:"payment_method,omitempty"`
	OrderNumber   int             `gorm:"not null;uniqueIndex:idx_sales_order_number" json:"order_number"`
	Status        SaleStatus      `gorm:"type:varchar(20);not null;index" json:"status"`
	AdminNotes    *string         `gorm:"type:text" json:"admin_notes"`
	UserNotes     *string         `gorm:"type:text" json:"user_notes"`

	Items []SaleItem `gorm:"foreignKey:SaleID;constraint:OnDelete:CASCADE" json:"items"`
}

// SaleItem is a snapshot of what was sold. Kind tags the variant: catalog items
// reference a product, manual items only carry a description in Name.
type SaleItem struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	SaleID    uuid.UUID       `gorm:"type:uuid;not null;index" json:"sale_id"`
	Kind      ItemKind        `gorm:"type:varchar(10);not null" json:"kind"`
	ProductID *uuid.UUID      `gorm:"type:uuid;index" json:"product_id,omitempty"`
	Name      string          `gorm:"type:varchar(255);not null" json:"name"`
	Price     decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"price"`
	Quantity  int             `gorm:"not null" json:"quantity"`
	Position  int             `gorm:"not null;default:0" json:"position"`
	CreatedAt time.Time       `json:"created_at"`
}

func (i *SaleItem) BeforeCreate(tx *gorm.DB) (err error) {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return
}

// CatalogItem builds a catalog line from a product snapshot.
func CatalogItem(productID uuid.UUID, name string, price decimal.Decimal, qty int) SaleItem {
	id := productID
	return SaleItem{Kind: ItemCatalog, ProductID: &id, Name: name, Price: price, Quantity: qty}
}

// ManualItem builds a lump-sum line with no catalog backing.
func ManualItem(description string, amount decimal.Decimal) SaleItem {
	return SaleItem{Kind: ItemManual, Name: description, Price: amount, Quantity: 1}
}

func (i SaleItem) IsManual() bool {
	return i.Kind == ItemManual
}

// LineTotal is price x quantity.
func (i SaleItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// SumItems returns the sale total implied by its items.
func SumItems(items []SaleItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.LineTotal())
	}
	return total
}

// AllManual reports whether no item needs fulfillment or stock tracking.
func AllManual(items []SaleItem) bool {
	if len(items) == 0 {
		return false
	}
	for _, item := range items {
		if !item.IsManual() {
			return false
		}
	}
	return true
}
