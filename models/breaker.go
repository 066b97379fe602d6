package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// BreakerType представляет тип автоматического выключателя
type BreakerType string

const (
	BreakerTypeSingle     BreakerType = "single"      // Обычный однополюсный автомат, одна позиция
	BreakerTypeDoublePole BreakerType = "double_pole" // Двухполюсный автомат, занимает позиции p и p+2
	BreakerTypeTandem     BreakerType = "tandem"      // Спаренный автомат, два автомата в одном слоте (A/B)
)

// SlotPosition представляет положение автомата внутри физического слота
type SlotPosition string

const (
	SlotPositionSingle SlotPosition = "single" // Единственный занимающий слот
	SlotPositionA      SlotPosition = "A"      // Верхняя половина спаренного слота
	SlotPositionB      SlotPosition = "B"      // Нижняя половина спаренного слота
)

// Breaker представляет автоматический выключатель в щите
type Breaker struct {
	ID        uint           `json:"id" gorm:"primarykey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at" gorm:"index"`

	// Размещение в щите: не более одного автомата на (panel_id, position, slot_position)
	PanelID      uint         `json:"panel_id" gorm:"not null;index"`
	Panel        *Panel       `json:"panel,omitempty" gorm:"foreignKey:PanelID"`
	Position     int          `json:"position" gorm:"not null"` // Номер позиции, > 0
	SlotPosition SlotPosition `json:"slot_position" gorm:"not null;default:'single';type:varchar(10)"`

	// Характеристики автомата
	BreakerType BreakerType `json:"breaker_type" gorm:"not null;default:'single';type:varchar(20)"`
	Amperage    int         `json:"amperage" gorm:"not null"` // Номинал в амперах
	Label       string      `json:"label" gorm:"type:varchar(200)"`

	// Флаги учета
	Critical  bool `json:"critical" gorm:"default:false;index"` // Критическая нагрузка (цель консолидации)
	Monitor   bool `json:"monitor" gorm:"default:false"`        // Под наблюдением (мониторинг потребления)
	Confirmed bool `json:"confirmed" gorm:"default:false"`      // Маркировка проверена натурным отключением

	// Цепи, запитанные от автомата
	Circuits []Circuit `json:"circuits,omitempty" gorm:"foreignKey:BreakerID"`
}

// TableName задает имя таблицы для модели Breaker
func (Breaker) TableName() string {
	return "breakers"
}

// IsTandem проверяет, что автомат спаренного типа
func (b *Breaker) IsTandem() bool {
	return b.BreakerType == BreakerTypeTandem
}

// IsDoublePole проверяет, что автомат двухполюсный
func (b *Breaker) IsDoublePole() bool {
	return b.BreakerType == BreakerTypeDoublePole
}

// OccupiedPositions возвращает позиции, физически занятые автоматом.
// Для двухполюсного автомата вторая строка (position+2) не хранится в БД
// и всегда вычисляется здесь.
func (b *Breaker) OccupiedPositions() []int {
	if b.IsDoublePole() {
		return []int{b.Position, b.Position + 2}
	}
	return []int{b.Position}
}

// SlotLabel возвращает человекочитаемое обозначение слота, например "7A" или "12"
func (b *Breaker) SlotLabel() string {
	if b.SlotPosition == SlotPositionSingle {
		return fmt.Sprintf("%d", b.Position)
	}
	return fmt.Sprintf("%d%s", b.Position, b.SlotPosition)
}

// GetTypeDisplayName возвращает русское название типа автомата
func (b *Breaker) GetTypeDisplayName() string {
	names := map[BreakerType]string{
		BreakerTypeSingle:     "Однополюсный",
		BreakerTypeDoublePole: "Двухполюсный",
		BreakerTypeTandem:     "Спаренный",
	}
	if name, ok := names[b.BreakerType]; ok {
		return name
	}
	return string(b.BreakerType)
}

// IsValidBreakerType проверяет допустимость значения типа автомата
func IsValidBreakerType(t BreakerType) bool {
	switch t {
	case BreakerTypeSingle, BreakerTypeDoublePole, BreakerTypeTandem:
		return true
	}
	return false
}

// IsValidSlotPosition проверяет допустимость значения положения в слоте
func IsValidSlotPosition(s SlotPosition) bool {
	switch s {
	case SlotPositionSingle, SlotPositionA, SlotPositionB:
		return true
	}
	return false
}
