// Package storage persists users, reports and partner organisations in a
// local SQLite database.
package storage

import (
	"os"
	"path/filepath"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"coastwatch-server-go/internal/platform/errors"
	"coastwatch-server-go/internal/platform/logging"
)

// Open creates the database file if needed, runs migrations and seeds the
// initial records.
func Open(dsn string, logger *logging.Logger) (*gorm.DB, error) {
	const op = "storage.Open"

	if dir := filepath.Dir(dsn); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(errors.KindStorage, op, "create database directory", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(errors.KindStorage, op, "open sqlite database", err)
	}

	if err := db.AutoMigrate(&User{}, &NGO{}, &Report{}); err != nil {
		return nil, errors.Wrap(errors.KindStorage, op, "run migrations", err)
	}

	if err := seed(db); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.InfoTag("STORAGE", "database ready at %s", dsn)
	}
	return db, nil
}

// seed creates the admin account and the partner organisations on first
// run. Existing rows are left untouched.
func seed(db *gorm.DB) error {
	const op = "storage.seed"

	var count int64
	if err := db.Model(&User{}).Where("email = ?", "admin@coastal.com").Count(&count).Error; err != nil {
		return errors.Wrap(errors.KindStorage, op, "check admin user", err)
	}
	if count == 0 {
		hash, err := bcrypt.GenerateFromPassword([]byte("admin123"), bcrypt.DefaultCost)
		if err != nil {
			return errors.Wrap(errors.KindStorage, op, "hash admin password", err)
		}
		admin := &User{
			FullName:     "System Admin",
			Email:        "admin@coastal.com",
			PasswordHash: string(hash),
			Role:         "admin",
		}
		if err := db.Create(admin).Error; err != nil {
			return errors.Wrap(errors.KindStorage, op, "seed admin user", err)
		}
	}

	if err := db.Model(&NGO{}).Count(&count).Error; err != nil {
		return errors.Wrap(errors.KindStorage, op, "check ngos", err)
	}
	if count == 0 {
		ngos := []NGO{
			{Name: "Ocean Cleanup Collective", Email: "contact@oceancleanup.example", Specialization: "plastic"},
			{Name: "Coastal Guardians", Email: "hello@coastalguardians.example", Specialization: "oil_spill"},
			{Name: "Blue Shore Initiative", Email: "team@blueshore.example", Specialization: "marine_trash"},
		}
		if err := db.Create(&ngos).Error; err != nil {
			return errors.Wrap(errors.KindStorage, op, "seed ngos", err)
		}
	}
	return nil
}
