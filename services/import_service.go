package services

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"strconv"
	"strings"

	"backend_shchitok/models"

	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

// ImportService загружает описание щитов из унаследованных таблиц (CSV/XLSX).
// Импорт построчный: валидные строки сохраняются, ошибки собираются по
// строкам, повторная загрузка того же файла не создает дубликатов.
// Геометрию данных импорт не проверяет - этим занимается проверка
// согласованности, которой и положено находить проблемы унаследованных данных.
type ImportService struct {
	db *gorm.DB
}

// NewImportService создает новый сервис импорта
func NewImportService(db *gorm.DB) *ImportService {
	return &ImportService{db: db}
}

// Колонки импортируемой таблицы (регистр не важен)
const (
	importColPanel        = "panel"
	importColPanelSize    = "panelsize"
	importColPosition     = "position"
	importColSlot         = "slot"
	importColType         = "type"
	importColAmperage     = "amperage"
	importColCritical     = "critical"
	importColMonitor      = "monitor"
	importColConfirmed    = "confirmed"
	importColLabel        = "label"
	importColRoom         = "room"
	importColRoomLevel    = "roomlevel"
	importColCircuitType  = "circuittype"
	importColCircuitNotes = "circuitnotes"
)

// ImportRowError - ошибка обработки одной строки файла
type ImportRowError struct {
	Row     int    `json:"row"` // Номер строки файла, заголовок - строка 1
	Message string `json:"message"`
}

// ImportResult - итог импорта таблицы
type ImportResult struct {
	TotalRows       int              `json:"total_rows"`
	PanelsCreated   int              `json:"panels_created"`
	RoomsCreated    int              `json:"rooms_created"`
	BreakersCreated int              `json:"breakers_created"`
	CircuitsCreated int              `json:"circuits_created"`
	SkippedRows     int              `json:"skipped_rows"` // Уже существующие слоты
	Errors          []ImportRowError `json:"errors,omitempty"`

	// Затронутые щиты - для сброса кэшей после импорта
	PanelIDs []uint `json:"panel_ids,omitempty"`
}

// ImportCSV импортирует таблицу из CSV: первая строка - заголовок
func (s *ImportService) ImportCSV(reader io.Reader) (*ImportResult, error) {
	r := csv.NewReader(reader)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	rows := make([][]string, 0)
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("не удалось разобрать CSV: %w", err)
		}
		rows = append(rows, record)
	}

	return s.importRows(rows)
}

// ImportXLSX импортирует таблицу из первого листа XLSX файла
func (s *ImportService) ImportXLSX(reader io.Reader) (*ImportResult, error) {
	f, err := excelize.OpenReader(reader)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть XLSX: %w", err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			log.Printf("Failed to close Excel file: %v", err)
		}
	}()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, fmt.Errorf("в XLSX файле нет листов")
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("не удалось прочитать лист «%s»: %w", sheet, err)
	}

	return s.importRows(rows)
}

// importRows обрабатывает строки таблицы: первая строка - заголовок,
// щиты и помещения создаются по имени по мере необходимости
func (s *ImportService) importRows(rows [][]string) (*ImportResult, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("файл пуст")
	}

	columns, err := parseImportHeader(rows[0])
	if err != nil {
		return nil, err
	}

	result := &ImportResult{TotalRows: len(rows) - 1}

	panelsByName := make(map[string]*models.Panel)
	roomsByName := make(map[string]*models.Room)
	touchedPanels := make(map[uint]bool)

	for i, row := range rows[1:] {
		rowNumber := i + 2 // Строка файла: заголовок - 1, данные - со 2-й

		cell := func(column string) string {
			idx, ok := columns[column]
			if !ok || idx >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[idx])
		}

		rowError := func(format string, args ...interface{}) {
			result.Errors = append(result.Errors, ImportRowError{
				Row:     rowNumber,
				Message: fmt.Sprintf(format, args...),
			})
		}

		// Пустые строки пропускаем молча
		if isEmptyImportRow(row) {
			result.TotalRows--
			continue
		}

		panelName := cell(importColPanel)
		if panelName == "" {
			rowError("не указан щит")
			continue
		}

		position, err := strconv.Atoi(cell(importColPosition))
		if err != nil || position < 1 {
			rowError("недопустимая позиция «%s»", cell(importColPosition))
			continue
		}

		slot, err := parseImportSlot(cell(importColSlot))
		if err != nil {
			rowError("%v", err)
			continue
		}

		breakerType, err := parseImportBreakerType(cell(importColType))
		if err != nil {
			rowError("%v", err)
			continue
		}

		amperage, err := strconv.Atoi(cell(importColAmperage))
		if err != nil || amperage < 1 {
			rowError("недопустимый номинал «%s»", cell(importColAmperage))
			continue
		}

		critical, err := parseImportBool(cell(importColCritical))
		if err != nil {
			rowError("колонка Critical: %v", err)
			continue
		}
		monitor, err := parseImportBool(cell(importColMonitor))
		if err != nil {
			rowError("колонка Monitor: %v", err)
			continue
		}
		confirmed, err := parseImportBool(cell(importColConfirmed))
		if err != nil {
			rowError("колонка Confirmed: %v", err)
			continue
		}

		panel, created, err := s.ensurePanel(panelsByName, panelName, cell(importColPanelSize))
		if err != nil {
			rowError("%v", err)
			continue
		}
		if created {
			result.PanelsCreated++
		}
		touchedPanels[panel.ID] = true

		// Натуральный ключ (щит, позиция, слот): повторная загрузка не дублирует
		var existing int64
		err = s.db.Model(&models.Breaker{}).
			Where("panel_id = ? AND position = ? AND slot_position = ?", panel.ID, position, slot).
			Count(&existing).Error
		if err != nil {
			return nil, fmt.Errorf("не удалось проверить слот %d%s щита «%s»: %w", position, slot, panelName, err)
		}
		if existing > 0 {
			result.SkippedRows++
			continue
		}

		breaker := models.Breaker{
			PanelID:      panel.ID,
			Position:     position,
			SlotPosition: slot,
			BreakerType:  breakerType,
			Amperage:     amperage,
			Label:        cell(importColLabel),
			Critical:     critical,
			Monitor:      monitor,
			Confirmed:    confirmed,
		}
		if err := s.db.Create(&breaker).Error; err != nil {
			rowError("не удалось сохранить автомат: %v", err)
			continue
		}
		result.BreakersCreated++

		// Цепь создается, если строка описывает помещение или назначение
		roomName := cell(importColRoom)
		circuitTypeRaw := cell(importColCircuitType)
		circuitNotes := cell(importColCircuitNotes)
		if roomName == "" && circuitTypeRaw == "" && circuitNotes == "" {
			continue
		}

		circuit := models.Circuit{
			BreakerID: breaker.ID,
			Type:      models.CircuitTypeOutlet,
			Notes:     circuitNotes,
		}

		if circuitTypeRaw != "" {
			circuitType := models.CircuitType(strings.ToLower(circuitTypeRaw))
			if !models.IsValidCircuitType(circuitType) {
				rowError("неизвестный тип цепи «%s»", circuitTypeRaw)
				continue
			}
			circuit.Type = circuitType
		}

		if roomName != "" {
			room, created, err := s.ensureRoom(roomsByName, roomName, cell(importColRoomLevel))
			if err != nil {
				rowError("%v", err)
				continue
			}
			if created {
				result.RoomsCreated++
			}
			circuit.RoomID = &room.ID
		}

		if err := s.db.Create(&circuit).Error; err != nil {
			rowError("не удалось сохранить цепь: %v", err)
			continue
		}
		result.CircuitsCreated++
	}

	for panelID := range touchedPanels {
		result.PanelIDs = append(result.PanelIDs, panelID)
	}
	sort.Slice(result.PanelIDs, func(i, j int) bool { return result.PanelIDs[i] < result.PanelIDs[j] })

	log.Printf("✅ Импорт завершен: щитов %d, автоматов %d, цепей %d, пропущено %d, ошибок %d",
		result.PanelsCreated, result.BreakersCreated, result.CircuitsCreated, result.SkippedRows, len(result.Errors))

	return result, nil
}

// ensurePanel находит щит по имени или создает его; размер нужен только при создании
func (s *ImportService) ensurePanel(cache map[string]*models.Panel, name, sizeRaw string) (*models.Panel, bool, error) {
	if panel, ok := cache[name]; ok {
		return panel, false, nil
	}

	var panel models.Panel
	err := s.db.Where("name = ?", name).First(&panel).Error
	if err == nil {
		cache[name] = &panel
		return &panel, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, fmt.Errorf("не удалось найти щит «%s»: %v", name, err)
	}

	size, convErr := strconv.Atoi(sizeRaw)
	if convErr != nil {
		return nil, false, fmt.Errorf("щит «%s» не существует, а размер «%s» не указан или не число", name, sizeRaw)
	}

	panel = models.Panel{Name: name, Size: size}
	if !panel.IsValidSize() {
		return nil, false, fmt.Errorf("недопустимый размер щита «%s»: %d (допустимо %d..%d)",
			name, size, models.PanelMinSize, models.PanelMaxSize)
	}
	if err := s.db.Create(&panel).Error; err != nil {
		return nil, false, fmt.Errorf("не удалось создать щит «%s»: %v", name, err)
	}

	cache[name] = &panel
	return &panel, true, nil
}

// ensureRoom находит помещение по имени или создает его
func (s *ImportService) ensureRoom(cache map[string]*models.Room, name, levelRaw string) (*models.Room, bool, error) {
	if room, ok := cache[name]; ok {
		return room, false, nil
	}

	var room models.Room
	err := s.db.Where("name = ?", name).First(&room).Error
	if err == nil {
		cache[name] = &room
		return &room, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, fmt.Errorf("не удалось найти помещение «%s»: %v", name, err)
	}

	level := models.RoomLevelMain
	if levelRaw != "" {
		level = models.RoomLevel(strings.ToLower(levelRaw))
		if !models.IsValidRoomLevel(level) {
			return nil, false, fmt.Errorf("неизвестный уровень помещения «%s»", levelRaw)
		}
	}

	room = models.Room{Name: name, Level: level}
	if err := s.db.Create(&room).Error; err != nil {
		return nil, false, fmt.Errorf("не удалось создать помещение «%s»: %v", name, err)
	}

	cache[name] = &room
	return &room, true, nil
}

// parseImportHeader строит соответствие колонок их индексам.
// Колонки Panel и Position обязательны, остальные - по наличию.
func parseImportHeader(header []string) (map[string]int, error) {
	columns := make(map[string]int, len(header))
	for i, name := range header {
		if i == 0 {
			// Excel добавляет BOM в начало CSV файла
			name = strings.TrimPrefix(name, "\uFEFF")
		}
		normalized := strings.ToLower(strings.TrimSpace(name))
		if normalized != "" {
			columns[normalized] = i
		}
	}

	for _, required := range []string{importColPanel, importColPosition} {
		if _, ok := columns[required]; !ok {
			return nil, fmt.Errorf("в заголовке нет обязательной колонки «%s»", required)
		}
	}

	return columns, nil
}

// parseImportSlot разбирает колонку Slot: пусто или single - вся позиция
func parseImportSlot(raw string) (models.SlotPosition, error) {
	switch strings.ToLower(raw) {
	case "", "single", "-":
		return models.SlotPositionSingle, nil
	case "a":
		return models.SlotPositionA, nil
	case "b":
		return models.SlotPositionB, nil
	default:
		return "", fmt.Errorf("неизвестный слот «%s» (допустимо A, B или пусто)", raw)
	}
}

// parseImportBreakerType разбирает колонку Type: пусто - однополюсный
func parseImportBreakerType(raw string) (models.BreakerType, error) {
	normalized := strings.ToLower(strings.ReplaceAll(raw, "-", "_"))
	if normalized == "" {
		return models.BreakerTypeSingle, nil
	}

	breakerType := models.BreakerType(normalized)
	if !models.IsValidBreakerType(breakerType) {
		return "", fmt.Errorf("неизвестный тип автомата «%s»", raw)
	}
	return breakerType, nil
}

// parseImportBool разбирает флаговую колонку; пустое значение - false
func parseImportBool(raw string) (bool, error) {
	switch strings.ToLower(raw) {
	case "", "0", "false", "no", "нет", "-":
		return false, nil
	case "1", "true", "yes", "да", "+", "x":
		return true, nil
	default:
		return false, fmt.Errorf("непонятное значение флага «%s»", raw)
	}
}

// isEmptyImportRow проверяет, что в строке нет ни одного значения
func isEmptyImportRow(row []string) bool {
	for _, value := range row {
		if strings.TrimSpace(value) != "" {
			return false
		}
	}
	return true
}
