package models

import (
	"time"

	"gorm.io/gorm"
)

// RoomLevel представляет этаж/уровень помещения
type RoomLevel string

const (
	RoomLevelBasement RoomLevel = "basement" // Подвал
	RoomLevelMain     RoomLevel = "main"     // Основной этаж
	RoomLevelUpper    RoomLevel = "upper"    // Верхний этаж
	RoomLevelOutside  RoomLevel = "outside"  // Улица
)

// Room представляет помещение, к которому привязываются цепи
type Room struct {
	ID        uint           `json:"id" gorm:"primarykey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at" gorm:"index"`

	// Основные поля помещения
	Name  string    `json:"name" gorm:"not null;uniqueIndex;type:varchar(100)"`
	Level RoomLevel `json:"level" gorm:"not null;default:'main';type:varchar(20)"`

	// Цепи в помещении
	Circuits []Circuit `json:"circuits,omitempty" gorm:"foreignKey:RoomID"`
}

// TableName задает имя таблицы для модели Room
func (Room) TableName() string {
	return "rooms"
}

// GetLevelDisplayName возвращает русское название уровня помещения
func (r *Room) GetLevelDisplayName() string {
	names := map[RoomLevel]string{
		RoomLevelBasement: "Подвал",
		RoomLevelMain:     "Основной этаж",
		RoomLevelUpper:    "Верхний этаж",
		RoomLevelOutside:  "Улица",
	}
	if name, ok := names[r.Level]; ok {
		return name
	}
	return string(r.Level)
}

// IsValidRoomLevel проверяет допустимость значения уровня помещения
func IsValidRoomLevel(l RoomLevel) bool {
	switch l {
	case RoomLevelBasement, RoomLevelMain, RoomLevelUpper, RoomLevelOutside:
		return true
	}
	return false
}
