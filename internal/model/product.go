package model

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Product struct {
	BaseModel
	Name       string          `gorm:"type:varchar(255);not null" json:"name" validate:"required,max=255"`
	Price      decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"price" validate:"money"`
	Stock      int             `gorm:"not null;default:0" json:"stock" validate:"gte=0"`
	CategoryID *uuid.UUID      `gorm:"type:uuid;index" json:"category_id"`
	Category   *Category       `gorm:"foreignKey:CategoryID;constraint:OnDelete:SET NULL" json:"-"`

	// Filled by joined reads only
	CategoryName *string `gorm:"->;-:migration" json:"category_name,omitempty"`
}
