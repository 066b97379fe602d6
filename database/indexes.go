package database

import (
	"fmt"
	"log"

	"gorm.io/gorm"
)

// DatabaseIndex представляет индекс базы данных
type DatabaseIndex struct {
	Name    string
	Table   string
	Columns []string
	Unique  bool
	Type    string // btree, gin
	Where   string // Частичный индекс (WHERE ...)
}

// PerformanceIndexes индексы для оптимизации производительности
var PerformanceIndexes = []DatabaseIndex{
	// Индексы для таблицы breakers.
	// Уникальность слота: не более одного автомата на (щит, позиция, положение в слоте).
	// Частичный индекс, чтобы мягко удаленные записи не блокировали слот.
	{
		Name:    "uq_breakers_panel_position_slot",
		Table:   "breakers",
		Columns: []string{"panel_id", "position", "slot_position"},
		Unique:  true,
		Type:    "btree",
		Where:   "deleted_at IS NULL",
	},
	{
		Name:    "idx_breakers_panel_critical",
		Table:   "breakers",
		Columns: []string{"panel_id", "critical"},
		Type:    "btree",
	},
	{
		Name:    "idx_breakers_panel_type",
		Table:   "breakers",
		Columns: []string{"panel_id", "breaker_type"},
		Type:    "btree",
	},
	{
		Name:    "idx_breakers_panel_position",
		Table:   "breakers",
		Columns: []string{"panel_id", "position"},
		Type:    "btree",
	},

	// Индексы для таблицы circuits
	{
		Name:    "idx_circuits_breaker",
		Table:   "circuits",
		Columns: []string{"breaker_id"},
		Type:    "btree",
	},
	{
		Name:    "idx_circuits_room",
		Table:   "circuits",
		Columns: []string{"room_id"},
		Type:    "btree",
	},
	{
		Name:    "idx_circuits_subpanel",
		Table:   "circuits",
		Columns: []string{"subpanel_id"},
		Type:    "btree",
	},
	{
		Name:    "idx_circuits_type",
		Table:   "circuits",
		Columns: []string{"type"},
		Type:    "btree",
	},

	// Индексы для таблицы panels
	{
		Name:    "idx_panels_critical_target",
		Table:   "panels",
		Columns: []string{"is_critical_target"},
		Type:    "btree",
	},

	// Индексы для таблицы audit_findings
	{
		Name:    "idx_audit_findings_panel_status",
		Table:   "audit_findings",
		Columns: []string{"panel_id", "status"},
		Type:    "btree",
	},
	{
		Name:    "idx_audit_findings_kind_status",
		Table:   "audit_findings",
		Columns: []string{"kind", "status"},
		Type:    "btree",
	},

	// Индексы для таблицы reports
	{
		Name:    "idx_reports_status",
		Table:   "reports",
		Columns: []string{"status"},
		Type:    "btree",
	},
	{
		Name:    "idx_reports_type_created",
		Table:   "reports",
		Columns: []string{"type", "created_at"},
		Type:    "btree",
	},

	// Индексы для полнотекстового поиска (GIN)
	{
		Name:    "idx_breakers_fulltext",
		Table:   "breakers",
		Columns: []string{"label"},
		Type:    "gin",
	},
	{
		Name:    "idx_circuits_fulltext",
		Table:   "circuits",
		Columns: []string{"notes"},
		Type:    "gin",
	},
}

// CreatePerformanceIndexes создает индексы для оптимизации производительности
func CreatePerformanceIndexes(db *gorm.DB) error {
	log.Printf("Creating performance indexes...")

	for _, index := range PerformanceIndexes {
		if err := CreateIndex(db, index); err != nil {
			log.Printf("Failed to create index %s: %v", index.Name, err)
			// Продолжаем создание других индексов даже если один упал
			continue
		}
		log.Printf("Created index: %s", index.Name)
	}

	log.Printf("Performance indexes creation completed")
	return nil
}

// CreateIndex создает отдельный индекс
func CreateIndex(db *gorm.DB, index DatabaseIndex) error {
	var sql string

	switch index.Type {
	case "gin":
		// Для полнотекстового поиска
		if len(index.Columns) == 2 {
			sql = fmt.Sprintf(
				"CREATE INDEX IF NOT EXISTS %s ON %s USING GIN (to_tsvector('russian', COALESCE(%s, '') || ' ' || COALESCE(%s, '')))",
				index.Name, index.Table, index.Columns[0], index.Columns[1],
			)
		} else {
			sql = fmt.Sprintf(
				"CREATE INDEX IF NOT EXISTS %s ON %s USING GIN (to_tsvector('russian', %s))",
				index.Name, index.Table, index.Columns[0],
			)
		}
	default:
		// Обычные B-tree индексы
		uniqueStr := ""
		if index.Unique {
			uniqueStr = "UNIQUE "
		}

		columns := ""
		for i, col := range index.Columns {
			if i > 0 {
				columns += ", "
			}
			columns += col
		}

		sql = fmt.Sprintf(
			"CREATE %sINDEX IF NOT EXISTS %s ON %s (%s)",
			uniqueStr, index.Name, index.Table, columns,
		)

		if index.Where != "" {
			sql += fmt.Sprintf(" WHERE %s", index.Where)
		}
	}

	return db.Exec(sql).Error
}

// DropIndex удаляет индекс
func DropIndex(db *gorm.DB, indexName string) error {
	sql := fmt.Sprintf("DROP INDEX IF EXISTS %s", indexName)
	return db.Exec(sql).Error
}
