// Package repository journals confirmed checkouts with gorm, on MySQL when a
// DSN is configured and on a local SQLite file otherwise.
package repository

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Config struct {
	MySQLDSN   string
	SQLitePath string
	// Tracing installs the otelgorm plugin.
	Tracing bool
}

// Open connects and migrates the receipt tables.
func Open(cfg Config, log logrus.FieldLogger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch {
	case cfg.MySQLDSN != "":
		log.Info("journaling receipts to mysql")
		dialector = mysql.Open(cfg.MySQLDSN)
	case cfg.SQLitePath != "":
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
			return nil, errors.Wrap(err, "create receipts dir")
		}
		log.Infof("journaling receipts to %s", cfg.SQLitePath)
		dialector = sqlite.Open(cfg.SQLitePath)
	default:
		return nil, errors.New("no receipt database configured")
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, errors.Wrap(err, "failed to open receipt database")
	}
	if cfg.Tracing {
		if err := db.Use(otelgorm.NewPlugin()); err != nil {
			return nil, errors.Wrap(err, "failed to initialize otelgorm plugin")
		}
	}
	if err := db.AutoMigrate(&Receipt{}, &ReceiptLine{}); err != nil {
		return nil, errors.Wrap(err, "migrate receipt tables")
	}
	return db, nil
}
