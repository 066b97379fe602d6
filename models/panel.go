package models

import (
	"time"

	"gorm.io/gorm"
)

// Границы допустимого размера щита (количество физических позиций)
const (
	PanelMinSize = 12
	PanelMaxSize = 42
)

// Panel представляет электрический щит (щиток) в системе
type Panel struct {
	ID        uint           `json:"id" gorm:"primarykey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at" gorm:"index"`

	// Основные поля щита
	Name string `json:"name" gorm:"not null;uniqueIndex;type:varchar(100)"`
	Size int    `json:"size" gorm:"not null"` // Количество физических позиций (12..42)

	// Расположение и заметки
	Location string `json:"location" gorm:"type:varchar(200)"` // Гараж, подвал, коридор и т.д.
	Notes    string `json:"notes" gorm:"type:text"`

	// Признак целевого щита для консолидации критических автоматов
	IsCriticalTarget bool `json:"is_critical_target" gorm:"default:false"`

	// Автоматы, установленные в щите
	Breakers []Breaker `json:"breakers,omitempty" gorm:"foreignKey:PanelID"`
}

// TableName задает имя таблицы для модели Panel
func (Panel) TableName() string {
	return "panels"
}

// IsValidSize проверяет, что размер щита находится в допустимых границах
func (p *Panel) IsValidSize() bool {
	return p.Size >= PanelMinSize && p.Size <= PanelMaxSize
}

// ContainsPosition проверяет, что позиция существует в щите
func (p *Panel) ContainsPosition(position int) bool {
	return position >= 1 && position <= p.Size
}
