package testutils

import (
	"testing"

	"backend_shchitok/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupTestDB(t *testing.T) {
	db, err := SetupTestDB()
	require.NoError(t, err, "Should setup test database without error")
	require.NotNil(t, db, "Database should not be nil")

	// Проверяем, что таблицы созданы
	var tableCount int64
	err = db.Raw("SELECT COUNT(*) FROM sqlite_master WHERE type='table'").Scan(&tableCount).Error
	require.NoError(t, err, "Should be able to query sqlite_master")
	assert.Greater(t, tableCount, int64(0), "Should have created some tables")

	CleanupTestDB(db)
}

func TestCreateTestPanel(t *testing.T) {
	db, err := SetupTestDB()
	require.NoError(t, err)
	defer CleanupTestDB(db)

	panel := CreateTestPanel(db, "Главный щит", 30)
	require.NotNil(t, panel, "Should create test panel")
	assert.Equal(t, "Главный щит", panel.Name)
	assert.Equal(t, 30, panel.Size)
	assert.NotZero(t, panel.ID)
}

func TestCreateTestBreakerWithCircuit(t *testing.T) {
	db, err := SetupTestDB()
	require.NoError(t, err)
	defer CleanupTestDB(db)

	panel := CreateTestPanel(db, "Щит", 24)
	require.NotNil(t, panel)

	breaker := CreateTestBreaker(db, panel.ID, 7, models.BreakerTypeTandem, models.SlotPositionA)
	require.NotNil(t, breaker, "Should create test breaker")
	assert.Equal(t, "7A", breaker.SlotLabel())

	room := CreateTestRoom(db, "Кухня", models.RoomLevelMain)
	require.NotNil(t, room)

	circuit := CreateTestCircuit(db, breaker.ID, &room.ID, models.CircuitTypeOutlet)
	require.NotNil(t, circuit, "Should create test circuit")
	assert.Equal(t, breaker.ID, circuit.BreakerID)
	require.NotNil(t, circuit.RoomID)
	assert.Equal(t, room.ID, *circuit.RoomID)
}

func TestCreateTestUser(t *testing.T) {
	db, err := SetupTestDB()
	require.NoError(t, err)
	defer CleanupTestDB(db)

	user := CreateTestUser(db, "testuser", "hash", models.UserRoleAdmin)
	require.NotNil(t, user, "Should create test user")
	assert.Equal(t, "testuser", user.Username)
	assert.Equal(t, models.UserRoleAdmin, user.Role)
	assert.True(t, user.IsActive)
}
