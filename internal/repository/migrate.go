package repository

import (
	"go-pos-sync/internal/model"

	"gorm.io/gorm"
)

// AutoMigrate creates or updates the schema. Production deployments may prefer
// running it once from a release job rather than on every boot.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.Category{},
		&model.Product{},
		&model.Sale{},
		&model.SaleItem{},
		&model.AppConfig{},
	)
}
