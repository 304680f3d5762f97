package database

import (
	"errors"

	"gorm.io/gorm"

	"github.com/oitdesk/oitdesk/internal/models"
	"github.com/oitdesk/oitdesk/pkg/crypto"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Session{},
		&models.ActivityLog{},
		&models.SystemSetting{},
		&models.Ticket{},
		&models.TicketComment{},
		&models.ChangeRequest{},
		&models.Article{},
		&models.Notification{},
		&models.CacheEntry{},
	)
}

// SeedData provisions the bootstrap administrator when the user table is empty.
// The directory login flow creates all other accounts lazily.
func SeedData(db *gorm.DB) error {
	if db == nil {
		return errors.New("nil database handle")
	}

	var count int64
	if err := db.Model(&models.User{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hashed, err := crypto.HashPassword("admin")
	if err != nil {
		return err
	}

	admin := models.User{
		Username: "admin",
		Email:    "admin@localhost",
		Password: hashed,
		Role:     models.RoleAdmin,
		IsActive: true,
	}

	return db.Create(&admin).Error
}
