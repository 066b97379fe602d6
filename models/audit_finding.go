package models

import (
	"time"

	"gorm.io/gorm"
)

// AuditFindingKind представляет вид несоответствия, найденного проверкой щитов
type AuditFindingKind string

const (
	AuditFindingPositionOverflow   AuditFindingKind = "position_overflow"    // Позиция автомата больше размера щита
	AuditFindingDoublePoleOverhang AuditFindingKind = "double_pole_overhang" // Вторая строка двухполюсного выходит за размер
	AuditFindingDuplicateSlot      AuditFindingKind = "duplicate_slot"       // Два автомата в одном (щит, позиция, слот)
	AuditFindingLonelyTandem       AuditFindingKind = "lonely_tandem"        // Спаренный слот с единственным занимающим
	AuditFindingTypeSlotMismatch   AuditFindingKind = "type_slot_mismatch"   // Тип автомата не согласован с положением в слоте
	AuditFindingMixedTandem        AuditFindingKind = "mixed_tandem"         // Критический и некритический в одном спаренном слоте
	AuditFindingDanglingSubpanel   AuditFindingKind = "dangling_subpanel"    // Цепь ссылается на несуществующий щит
)

// AuditSeverity представляет серьезность несоответствия
type AuditSeverity string

const (
	AuditSeverityInfo     AuditSeverity = "info"
	AuditSeverityWarning  AuditSeverity = "warning"
	AuditSeverityCritical AuditSeverity = "critical"
)

// AuditFindingStatus представляет статус обработки несоответствия
type AuditFindingStatus string

const (
	AuditFindingStatusOpen         AuditFindingStatus = "open"
	AuditFindingStatusAcknowledged AuditFindingStatus = "acknowledged"
	AuditFindingStatusResolved     AuditFindingStatus = "resolved"
)

// AuditFinding представляет несоответствие, найденное проверкой согласованности щитов.
// Проверка только фиксирует проблемы и никогда не исправляет данные сама.
type AuditFinding struct {
	ID        uint           `json:"id" gorm:"primarykey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at" gorm:"index"`

	// Где найдено
	PanelID   uint     `json:"panel_id" gorm:"not null;index"`
	Panel     *Panel   `json:"panel,omitempty" gorm:"foreignKey:PanelID"`
	BreakerID *uint    `json:"breaker_id" gorm:"index"`
	Breaker   *Breaker `json:"breaker,omitempty" gorm:"foreignKey:BreakerID"`
	Position  int      `json:"position"`

	// Что найдено
	Kind     AuditFindingKind `json:"kind" gorm:"not null;type:varchar(40);index"`
	Severity AuditSeverity    `json:"severity" gorm:"not null;default:'warning';type:varchar(20)"`
	Message  string           `json:"message" gorm:"type:text"` // Русское описание для человека

	// Обработка
	Status     AuditFindingStatus `json:"status" gorm:"not null;default:'open';type:varchar(20);index"`
	ResolvedAt *time.Time         `json:"resolved_at"`
}

// TableName задает имя таблицы для модели AuditFinding
func (AuditFinding) TableName() string {
	return "audit_findings"
}

// IsOpen проверяет, что несоответствие еще не обработано
func (f *AuditFinding) IsOpen() bool {
	return f.Status == AuditFindingStatusOpen
}

// GetSeverityDisplayName возвращает русское название серьезности
func (f *AuditFinding) GetSeverityDisplayName() string {
	names := map[AuditSeverity]string{
		AuditSeverityInfo:     "Информация",
		AuditSeverityWarning:  "Предупреждение",
		AuditSeverityCritical: "Критично",
	}
	if name, ok := names[f.Severity]; ok {
		return name
	}
	return string(f.Severity)
}
