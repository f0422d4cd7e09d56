package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Udjin79/atlassian-marketplace-scraper/pkg/scraper/models"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Connect opens the metadata store and brings its schema up to date. The
// DSN selects the backend: postgres:// URLs use postgres, anything else is
// treated as a sqlite file path (the historical default).
func Connect(dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		dialector = postgres.Open(dsn)
	} else {
		if dsn != ":memory:" {
			if dir := filepath.Dir(dsn); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return nil, fmt.Errorf("create metadata dir: %w", err)
				}
			}
		}
		dialector = sqlite.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := MigrateCompatibilityColumn(db); err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&models.App{}, &models.Version{}); err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return db, nil
}

// MigrateCompatibilityColumn adds the compatibility column to version
// tables created before it existed. Stores managed from scratch get the
// column through AutoMigrate; this keeps old databases loadable.
func MigrateCompatibilityColumn(db *gorm.DB) error {
	m := db.Migrator()
	if !m.HasTable(&models.Version{}) {
		return nil
	}
	if m.HasColumn(&models.Version{}, "compatibility") {
		return nil
	}
	if err := m.AddColumn(&models.Version{}, "Compatibility"); err != nil {
		return fmt.Errorf("add compatibility column: %w", err)
	}
	return nil
}
