package services

import (
	"testing"

	"backend_shchitok/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupRepositoryTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(&models.Panel{}, &models.Breaker{}, &models.Circuit{}, &models.Room{})
	require.NoError(t, err)

	return db
}

func TestPanelRepository_GetSnapshotOrders(t *testing.T) {
	db := setupRepositoryTestDB(t)
	repo := NewPanelRepository(db)

	panel := models.Panel{Name: "Щит гаража", Size: 12}
	require.NoError(t, db.Create(&panel).Error)

	breakers := []models.Breaker{
		{PanelID: panel.ID, Position: 3, SlotPosition: models.SlotPositionB, BreakerType: models.BreakerTypeTandem, Amperage: 10},
		{PanelID: panel.ID, Position: 1, SlotPosition: models.SlotPositionSingle, BreakerType: models.BreakerTypeSingle, Amperage: 16},
		{PanelID: panel.ID, Position: 3, SlotPosition: models.SlotPositionA, BreakerType: models.BreakerTypeTandem, Amperage: 10},
	}
	for i := range breakers {
		require.NoError(t, db.Create(&breakers[i]).Error)
	}

	snapshot, err := repo.GetSnapshot(panel.ID)
	require.NoError(t, err)
	require.Len(t, snapshot.Breakers, 3)

	// Повторный снимок по тем же данным обязан быть упорядочен одинаково
	assert.Equal(t, "1", snapshot.Breakers[0].SlotLabel())
	assert.Equal(t, "3A", snapshot.Breakers[1].SlotLabel())
	assert.Equal(t, "3B", snapshot.Breakers[2].SlotLabel())
}

func TestPanelRepository_GetCriticalBreakers(t *testing.T) {
	db := setupRepositoryTestDB(t)
	repo := NewPanelRepository(db)

	room := models.Room{Name: "Кухня", Level: models.RoomLevelMain}
	require.NoError(t, db.Create(&room).Error)

	panel := models.Panel{Name: "Щит гаража", Size: 12}
	require.NoError(t, db.Create(&panel).Error)

	critical := models.Breaker{PanelID: panel.ID, Position: 5, SlotPosition: models.SlotPositionSingle, BreakerType: models.BreakerTypeSingle, Amperage: 16, Label: "Сигнализация", Critical: true}
	require.NoError(t, db.Create(&critical).Error)
	ordinary := models.Breaker{PanelID: panel.ID, Position: 7, SlotPosition: models.SlotPositionSingle, BreakerType: models.BreakerTypeSingle, Amperage: 16, Label: "Розетки"}
	require.NoError(t, db.Create(&ordinary).Error)

	circuits := []models.Circuit{
		{BreakerID: critical.ID, RoomID: &room.ID, Type: models.CircuitTypeOutlet},
		{BreakerID: critical.ID, Type: models.CircuitTypeAppliance},
	}
	for i := range circuits {
		require.NoError(t, db.Create(&circuits[i]).Error)
	}

	infos, err := repo.GetCriticalBreakers(panel.ID)
	require.NoError(t, err)
	require.Len(t, infos, 1)

	assert.Equal(t, critical.ID, infos[0].ID)
	assert.Equal(t, 2, infos[0].CircuitCount)
	assert.Equal(t, "Кухня: Розетки; Прибор", infos[0].CircuitDescriptions)
}
