package testutils

import (
	"log"

	"backend_shchitok/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SetupTestDB создает и настраивает тестовую базу данных в памяти
// Эта функция должна использоваться во всех тестах для обеспечения консистентности
func SetupTestDB() (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	// Выполняем миграции в правильном порядке
	err = db.AutoMigrate(
		&models.User{},
		&models.Panel{},
		&models.Breaker{},
		&models.Room{},
		&models.Circuit{},
		&models.AuditFinding{},
		&models.Report{},
	)
	if err != nil {
		return nil, err
	}

	return db, nil
}

// CleanupTestDB очищает тестовую базу данных
func CleanupTestDB(db *gorm.DB) {
	if db != nil {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			sqlDB.Close()
		}
	}
}

// CreateTestPanel создает тестовый щит
func CreateTestPanel(db *gorm.DB, name string, size int) *models.Panel {
	panel := &models.Panel{
		Name:     name,
		Size:     size,
		Location: "Гараж",
	}

	if err := db.Create(panel).Error; err != nil {
		log.Printf("Failed to create test panel: %v", err)
		return nil
	}

	return panel
}

// CreateTestBreaker создает тестовый автомат в указанной позиции
func CreateTestBreaker(db *gorm.DB, panelID uint, position int, breakerType models.BreakerType, slot models.SlotPosition) *models.Breaker {
	breaker := &models.Breaker{
		PanelID:      panelID,
		Position:     position,
		SlotPosition: slot,
		BreakerType:  breakerType,
		Amperage:     16,
		Label:        "Тестовый автомат",
	}

	if err := db.Create(breaker).Error; err != nil {
		log.Printf("Failed to create test breaker: %v", err)
		return nil
	}

	return breaker
}

// CreateTestRoom создает тестовое помещение
func CreateTestRoom(db *gorm.DB, name string, level models.RoomLevel) *models.Room {
	room := &models.Room{
		Name:  name,
		Level: level,
	}

	if err := db.Create(room).Error; err != nil {
		log.Printf("Failed to create test room: %v", err)
		return nil
	}

	return room
}

// CreateTestCircuit создает тестовую цепь для автомата
func CreateTestCircuit(db *gorm.DB, breakerID uint, roomID *uint, circuitType models.CircuitType) *models.Circuit {
	circuit := &models.Circuit{
		BreakerID: breakerID,
		RoomID:    roomID,
		Type:      circuitType,
	}

	if err := db.Create(circuit).Error; err != nil {
		log.Printf("Failed to create test circuit: %v", err)
		return nil
	}

	return circuit
}

// CreateTestUser создает тестового пользователя
func CreateTestUser(db *gorm.DB, username, passwordHash, role string) *models.User {
	user := &models.User{
		Username: username,
		Email:    username + "@example.com",
		Password: passwordHash,
		Role:     role,
		IsActive: true,
	}

	if err := db.Create(user).Error; err != nil {
		log.Printf("Failed to create test user: %v", err)
		return nil
	}

	return user
}
