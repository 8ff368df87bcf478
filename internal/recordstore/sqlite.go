package recordstore

import (
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/chronostore/chronostore/internal/conf"
	"github.com/chronostore/chronostore/internal/errors"
)

// openSQLite opens (creating if necessary) the SQLite database file named in
// the settings and returns a relational backend over it.
func openSQLite(settings *conf.Settings) (*relationalBackend, error) {
	path := settings.Store.SQLite.Path
	if path == "" {
		path = "chronostore.db"
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(".", path)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.New(fmt.Errorf("failed to create database directory: %w", err)).
				Component("recordstore").
				Category(errors.CategoryFileIO).
				Context("path", dir).
				Build()
		}
	}

	// WAL keeps readers unblocked while a writer holds the lock, and the
	// busy timeout queues concurrent writers instead of surfacing
	// SQLITE_BUSY. Both go in the DSN so every pooled connection gets them.
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: newGormLogger()})
	if err != nil {
		return nil, errors.New(fmt.Errorf("failed to open SQLite database: %w", err)).
			Component("recordstore").
			Category(errors.CategoryDatabase).
			Context("path", path).
			Build()
	}

	getLogger().Info("SQLite database opened", "path", path)
	return &relationalBackend{db: db, dialect: "sqlite"}, nil
}
