// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/breathe-dev/breathe/db"
	"github.com/breathe-dev/breathe/internal/auth"
	"github.com/breathe-dev/breathe/internal/models"
	"github.com/stretchr/testify/require"
)

var (
	storeSeq atomic.Int64

	demoDigest = sync.OnceValues(func() (string, error) {
		return auth.HashPassword(db.DemoPassword)
	})
)

// NewStore returns a migrated in-memory sqlite store private to the test.
func NewStore(t testing.TB) *db.Store {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared&_foreign_keys=on", name, storeSeq.Add(1))

	store, err := db.Connect("sqlite", dsn)
	require.NoError(t, err)
	require.NoError(t, store.Migrate())

	t.Cleanup(func() { _ = store.Close() })

	return store
}

// CreateUser stores a user whose password is "password123".
func CreateUser(t testing.TB, store *db.Store, username string, role auth.Role) models.User {
	t.Helper()

	digest, err := demoDigest()
	require.NoError(t, err)

	user := models.User{
		Email:     username + "@example.com",
		Username:  username,
		Password:  digest,
		FirstName: strings.ToUpper(username[:1]) + username[1:],
		LastName:  "Tester",
		Role:      role,
	}
	require.NoError(t, store.DB.Create(&user).Error)

	return user
}

func CreateRoom(t testing.TB, store *db.Store, name string, volume int) models.Room {
	t.Helper()

	room := models.Room{Name: name, Volume: volume}
	require.NoError(t, store.DB.Create(&room).Error)

	return room
}

// CreateSensor stores a ppm sensor; roomID may be nil.
func CreateSensor(t testing.TB, store *db.Store, friendlyName string, roomID *uint) models.Sensor {
	t.Helper()

	sensor := models.Sensor{FriendlyName: friendlyName, UnitOfMeasurement: "ppm", RoomID: roomID}
	require.NoError(t, store.DB.Create(&sensor).Error)

	return sensor
}

func Subscribe(t testing.TB, store *db.Store, userID, roomID uint) {
	t.Helper()

	require.NoError(t, store.DB.Create(&models.Subscription{UserID: userID, RoomID: roomID}).Error)
}
