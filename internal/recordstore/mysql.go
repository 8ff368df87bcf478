package recordstore

import (
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/chronostore/chronostore/internal/conf"
	"github.com/chronostore/chronostore/internal/errors"
)

// openMySQL connects to the MySQL server named in the settings and returns a
// relational backend over it. parseTime is required so DATETIME columns scan
// into time.Time instead of []byte.
func openMySQL(settings *conf.Settings) (*relationalBackend, error) {
	cfg := settings.Store.MySQL
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{Logger: newGormLogger()})
	if err != nil {
		return nil, errors.New(fmt.Errorf("failed to open MySQL database: %w", err)).
			Component("recordstore").
			Category(errors.CategoryDatabase).
			Context("host", cfg.Host).
			Context("database", cfg.Database).
			Build()
	}

	getLogger().Info("MySQL database opened", "host", cfg.Host, "database", cfg.Database)
	return &relationalBackend{db: db, dialect: "mysql"}, nil
}
