package models

import (
	"time"

	"gorm.io/gorm"
)

// CircuitType представляет тип цепи (назначение нагрузки)
type CircuitType string

const (
	CircuitTypeOutlet    CircuitType = "outlet"    // Розеточная группа
	CircuitTypeLighting  CircuitType = "lighting"  // Освещение
	CircuitTypeHeating   CircuitType = "heating"   // Отопление/теплый пол
	CircuitTypeAppliance CircuitType = "appliance" // Выделенная линия под прибор
	CircuitTypeSubpanel  CircuitType = "subpanel"  // Питание другого щита
)

// Circuit представляет цепь, запитанную от автомата
type Circuit struct {
	ID        uint           `json:"id" gorm:"primarykey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at" gorm:"index"`

	// Принадлежность автомату: цепи переезжают вместе с автоматом
	BreakerID uint     `json:"breaker_id" gorm:"not null;index"`
	Breaker   *Breaker `json:"breaker,omitempty" gorm:"foreignKey:BreakerID"`

	// Помещение (необязательное; при удалении помещения ссылка обнуляется)
	RoomID *uint `json:"room_id" gorm:"index"`
	Room   *Room `json:"room,omitempty" gorm:"foreignKey:RoomID"`

	// Характеристики цепи
	Type  CircuitType `json:"type" gorm:"not null;default:'outlet';type:varchar(20)"`
	Notes string      `json:"notes" gorm:"type:text"`

	// Для цепей типа subpanel: какой щит запитан от этой цепи
	SubpanelID *uint  `json:"subpanel_id"`
	Subpanel   *Panel `json:"subpanel,omitempty" gorm:"foreignKey:SubpanelID"`
}

// TableName задает имя таблицы для модели Circuit
func (Circuit) TableName() string {
	return "circuits"
}

// GetTypeDisplayName возвращает русское название типа цепи
func (c *Circuit) GetTypeDisplayName() string {
	names := map[CircuitType]string{
		CircuitTypeOutlet:    "Розетки",
		CircuitTypeLighting:  "Освещение",
		CircuitTypeHeating:   "Отопление",
		CircuitTypeAppliance: "Прибор",
		CircuitTypeSubpanel:  "Подщит",
	}
	if name, ok := names[c.Type]; ok {
		return name
	}
	return string(c.Type)
}

// IsSubpanelFeed проверяет, что цепь питает другой щит
func (c *Circuit) IsSubpanelFeed() bool {
	return c.Type == CircuitTypeSubpanel && c.SubpanelID != nil
}

// IsValidCircuitType проверяет допустимость значения типа цепи
func IsValidCircuitType(t CircuitType) bool {
	switch t {
	case CircuitTypeOutlet, CircuitTypeLighting, CircuitTypeHeating, CircuitTypeAppliance, CircuitTypeSubpanel:
		return true
	}
	return false
}
