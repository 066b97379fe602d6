package models

import (
	"time"

	"gorm.io/gorm"
)

// ReportType представляет тип отчета
type ReportType string

const (
	ReportTypePanelSchedule  ReportType = "panel_schedule"  // Паспорт щита (таблица автоматов и цепей)
	ReportTypeRelocationPlan ReportType = "relocation_plan" // Наряд на перенос критических автоматов
	ReportTypeAuditSummary   ReportType = "audit_summary"   // Сводка по найденным несоответствиям
)

// ReportFormat представляет формат экспорта отчета
type ReportFormat string

const (
	ReportFormatPDF   ReportFormat = "pdf"
	ReportFormatExcel ReportFormat = "xlsx"
	ReportFormatCSV   ReportFormat = "csv"
	ReportFormatJSON  ReportFormat = "json"
)

// ReportStatus представляет статус генерации отчета
type ReportStatus string

const (
	ReportStatusPending    ReportStatus = "pending"
	ReportStatusProcessing ReportStatus = "processing"
	ReportStatusCompleted  ReportStatus = "completed"
	ReportStatusFailed     ReportStatus = "failed"
)

// Report представляет модель отчета
type Report struct {
	ID        uint           `json:"id" gorm:"primarykey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at" gorm:"index"`

	// Основные поля отчета
	Name        string     `json:"name" gorm:"not null;type:varchar(200)"`
	Description string     `json:"description" gorm:"type:text"`
	Type        ReportType `json:"type" gorm:"not null;type:varchar(50)"`

	// Параметры отчета (panel_id, план переноса и т.д.)
	Parameters string `json:"parameters" gorm:"type:jsonb"` // JSON с параметрами отчета

	// Статус и результат
	Status      ReportStatus `json:"status" gorm:"default:pending;type:varchar(20)"`
	ErrorMsg    string       `json:"error_msg" gorm:"type:text"`
	FilePath    string       `json:"file_path" gorm:"type:varchar(500)"` // Путь к сгенерированному файлу
	FileSize    int64        `json:"file_size"`                          // Размер файла в байтах
	RecordCount int          `json:"record_count"`                       // Количество записей в отчете

	// Формат экспорта
	Format ReportFormat `json:"format" gorm:"not null;type:varchar(20)"`

	// Пользователь, создавший отчет
	CreatedByID uint  `json:"created_by_id" gorm:"index"`
	CreatedBy   *User `json:"created_by,omitempty" gorm:"foreignKey:CreatedByID"`

	// Время выполнения
	StartedAt   *time.Time `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`
	Duration    int        `json:"duration"` // Время выполнения в секундах
}

// TableName задает имя таблицы для модели Report
func (Report) TableName() string {
	return "reports"
}

// IsCompleted проверяет, что отчет успешно сгенерирован
func (r *Report) IsCompleted() bool {
	return r.Status == ReportStatusCompleted
}

// GetTypeDisplayName возвращает русское название типа отчета
func (r *Report) GetTypeDisplayName() string {
	names := map[ReportType]string{
		ReportTypePanelSchedule:  "Паспорт щита",
		ReportTypeRelocationPlan: "Наряд на перенос",
		ReportTypeAuditSummary:   "Сводка несоответствий",
	}
	if name, ok := names[r.Type]; ok {
		return name
	}
	return string(r.Type)
}

// IsValidReportFormat проверяет допустимость формата экспорта
func IsValidReportFormat(f ReportFormat) bool {
	switch f {
	case ReportFormatPDF, ReportFormatExcel, ReportFormatCSV, ReportFormatJSON:
		return true
	}
	return false
}

// IsValidReportType проверяет допустимость типа отчета
func IsValidReportType(t ReportType) bool {
	switch t {
	case ReportTypePanelSchedule, ReportTypeRelocationPlan, ReportTypeAuditSummary:
		return true
	}
	return false
}
