package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/breathe-dev/breathe/internal/models"
	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Store owns the database handle. It is created once at startup, passed to
// everything that needs persistence, and closed on shutdown.
type Store struct {
	DB *gorm.DB
}

func Connect(driver, dsn string) (*Store, error) {
	dialector, err := dialectorFor(driver, dsn)

	if err != nil {
		return nil, err
	}

	gdb, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})

	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", driver, err)
	}

	if driver == "sqlite" {
		// sqlite serialises writers; a single connection avoids "database is locked".
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.SetMaxOpenConns(1)
		}
	}

	return &Store{DB: gdb}, nil
}

// New wraps an existing gorm handle.
func New(gdb *gorm.DB) *Store {
	return &Store{DB: gdb}
}

func dialectorFor(driver, dsn string) (gorm.Dialector, error) {
	if dsn == "" {
		return nil, errors.New("empty database DSN")
	}

	switch driver {
	case "postgres", "":
		return postgres.Open(dsn), nil
	case "mysql":
		cfg, err := mysqldriver.ParseDSN(dsn)

		if err != nil {
			return nil, fmt.Errorf("parsing mysql DSN: %w", err)
		}

		cfg.ParseTime = true
		cfg.Loc = time.UTC

		return mysql.Open(cfg.FormatDSN()), nil
	case "sqlite":
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

func (s *Store) Migrate() error {
	tables := []any{
		&models.User{},
		&models.Room{},
		&models.Sensor{},
		&models.SensorHistory{},
		&models.Subscription{},
		&models.Alert{},
	}

	for _, table := range tables {
		if err := s.DB.AutoMigrate(table); err != nil {
			return fmt.Errorf("migrating %T: %w", table, err)
		}
	}

	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.DB.DB()

	if err != nil {
		return err
	}

	return sqlDB.PingContext(ctx)
}

func (s *Store) Close() error {
	sqlDB, err := s.DB.DB()

	if err != nil {
		return err
	}

	return sqlDB.Close()
}
