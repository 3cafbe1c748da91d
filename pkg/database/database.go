package database

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"DaryoAI/models"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Config struct {
	Driver  string // sqlite | mysql | postgres
	DSN     string
	Verbose bool
}

// Connect opens the database and optionally runs auto-migration.
func Connect(cfg Config, autoMigrate bool) (*gorm.DB, error) {
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.New(log.New(os.Stdout, "\r\n", log.LstdFlags), logConfig(cfg.Verbose)),
	})
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	if isSQLite(cfg.Driver) {
		// single writer; also keeps ":memory:" databases on one connection
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("resolve sql db: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
	}

	if autoMigrate {
		if err := Migrate(db); err != nil {
			return nil, fmt.Errorf("migration failed: %w", err)
		}
	}
	return db, nil
}

// logConfig keeps gorm's default output but drops the "record not found"
// warning, which lookups that treat a miss as a normal outcome would trigger.
func logConfig(verbose bool) logger.Config {
	level := logger.Warn
	if verbose {
		level = logger.Info
	}
	return logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  level,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	}
}

func dialectorFor(cfg Config) (gorm.Dialector, error) {
	switch {
	case isSQLite(cfg.Driver):
		return sqlite.Open(cfg.DSN), nil
	case cfg.Driver == "mysql":
		return mysql.New(mysql.Config{DSN: cfg.DSN, DefaultStringSize: 191}), nil
	case cfg.Driver == "postgres" || cfg.Driver == "postgresql":
		return postgres.Open(cfg.DSN), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func isSQLite(driver string) bool {
	d := strings.ToLower(strings.TrimSpace(driver))
	return d == "" || d == "sqlite" || d == "sqlite3"
}

// Migrate runs GORM auto-migration for all models.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Admin{},
		&models.APIKey{},
		&models.Client{},
		&models.Conversation{},
		&models.Message{},
		&models.UsageLimit{},
		&models.Category{},
		&models.AiData{},
	)
}

// SeedUsageLimits makes sure both client classes have a quota row. Existing
// rows are left untouched.
func SeedUsageLimits(ctx context.Context, db *gorm.DB, defaultLimit, muhbirLimit int) error {
	for _, row := range []models.UsageLimit{
		{IsMuhbir: false, DailyLimit: defaultLimit},
		{IsMuhbir: true, DailyLimit: muhbirLimit},
	} {
		ul := row
		if err := db.WithContext(ctx).Where("is_muhbir = ?", row.IsMuhbir).FirstOrCreate(&ul).Error; err != nil {
			return fmt.Errorf("seed usage limit (muhbir=%v): %w", row.IsMuhbir, err)
		}
	}
	return nil
}
