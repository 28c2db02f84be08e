package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/breathe-dev/breathe/internal/auth"
	"github.com/breathe-dev/breathe/internal/models"
	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newSQLiteStore(t *testing.T) *Store {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", strings.ReplaceAll(t.Name(), "/", "_"))
	store, err := Connect("sqlite", dsn)
	require.NoError(t, err)
	require.NoError(t, store.Migrate())
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func TestConnect_UnsupportedDriver(t *testing.T) {
	_, err := Connect("oracle", "whatever")
	assert.ErrorContains(t, err, "unsupported database driver")

	_, err = Connect("sqlite", "")
	assert.ErrorContains(t, err, "empty database DSN")
}

func TestDialectorFor_MySQLForcesParseTime(t *testing.T) {
	dialector, err := dialectorFor("mysql", "user:pass@tcp(localhost:3306)/breathe")
	require.NoError(t, err)
	assert.Equal(t, "mysql", dialector.Name())

	_, err = dialectorFor("mysql", "::not a dsn::")
	assert.Error(t, err)
}

func TestStore_MigrateCreatesTables(t *testing.T) {
	store := newSQLiteStore(t)
	migrator := store.DB.Migrator()

	for _, table := range []any{&models.User{}, &models.Room{}, &models.Sensor{}, &models.SensorHistory{}, &models.Subscription{}, &models.Alert{}} {
		assert.True(t, migrator.HasTable(table), "%T", table)
	}

	assert.True(t, migrator.HasTable("sensor_histories"))
}

func TestStore_PingAndClose(t *testing.T) {
	sqlDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	mock.ExpectPing()
	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)

	store := New(gdb)

	mock.ExpectPing()
	require.NoError(t, store.Ping(context.Background()))

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	assert.Error(t, store.Ping(context.Background()))

	mock.ExpectClose()
	require.NoError(t, store.Close())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Seed(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	_, err := store.Seed(ctx, "")
	require.Error(t, err)

	created, err := store.Seed(ctx, "s3cret-admin")
	require.NoError(t, err)
	assert.Equal(t, int64(4), created)

	var admin models.User
	require.NoError(t, store.DB.Where("email = ?", "admin@admin.com").First(&admin).Error)
	assert.Equal(t, auth.RoleSuperAdmin, admin.Role)

	ok, err := auth.VerifyPassword("s3cret-admin", admin.Password)
	require.NoError(t, err)
	assert.True(t, ok)

	created, err = store.Seed(ctx, "s3cret-admin")
	require.NoError(t, err)
	assert.Equal(t, int64(0), created)

	var count int64
	require.NoError(t, store.DB.Model(&models.User{}).Count(&count).Error)
	assert.Equal(t, int64(4), count)
}

func TestIsUniqueViolation(t *testing.T) {
	store := newSQLiteStore(t)

	require.NoError(t, store.DB.Create(&models.Room{Name: "A101", Volume: 120}).Error)
	err := store.DB.Create(&models.Room{Name: "A101", Volume: 80}).Error
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))

	assert.True(t, IsUniqueViolation(fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: "23505"})))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.True(t, IsUniqueViolation(&mysqldriver.MySQLError{Number: 1062}))
	assert.False(t, IsUniqueViolation(&mysqldriver.MySQLError{Number: 1452}))
	assert.False(t, IsUniqueViolation(errors.New("boom")))
	assert.False(t, IsUniqueViolation(nil))

	assert.True(t, IsNotFound(store.DB.First(&models.Room{}, 999).Error))
}
