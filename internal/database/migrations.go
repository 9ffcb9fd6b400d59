package database

import (
	"gorm.io/gorm"

	"github.com/AniJ15/timbr/internal/models"
)

func (d *Database) RunMigrations() error {
	return MigrateSchema(d.gorm)
}

// MigrateSchema creates or updates the cache, metadata and usage tables
func MigrateSchema(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.Property{}, &models.CacheMeta{}, &models.UsageCounter{}); err != nil {
		return err
	}

	// Index on coordinates for map views
	return db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_properties_coordinates
		ON properties(latitude, longitude);
	`).Error
}
