package services

import (
	"backend_shchitok/models"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

// ReportService предоставляет функциональность для работы с отчетами
type ReportService struct {
	db        *gorm.DB
	outputDir string
}

// NewReportService создает новый экземпляр ReportService.
// Файлы отчетов сохраняются в каталог outputDir (создается при первой генерации).
func NewReportService(db *gorm.DB, outputDir string) *ReportService {
	if outputDir == "" {
		outputDir = "reports"
	}
	return &ReportService{db: db, outputDir: outputDir}
}

// ReportData представляет данные для отчета
type ReportData struct {
	Headers []string                 `json:"headers"`
	Rows    []map[string]interface{} `json:"rows"`
	Summary map[string]interface{}   `json:"summary,omitempty"`
}

// ReportParams представляет параметры для генерации отчета
type ReportParams struct {
	Type     models.ReportType   `json:"type"`
	Format   models.ReportFormat `json:"format"`
	PanelID  *uint               `json:"panel_id,omitempty"`  // Для паспорта щита и фильтра сводки
	Severity string              `json:"severity,omitempty"`  // Фильтр сводки несоответствий
	Plan     *RelocationPlan     `json:"plan,omitempty"`      // Для наряда на перенос
}

// GenerateReport генерирует отчет по заданным параметрам
func (rs *ReportService) GenerateReport(params ReportParams, report *models.Report) error {
	// Обновляем статус на "обрабатывается"
	now := time.Now()
	report.Status = models.ReportStatusProcessing
	report.StartedAt = &now
	if err := rs.db.Save(report).Error; err != nil {
		return fmt.Errorf("failed to update report status: %w", err)
	}

	// Получаем данные для отчета
	data, err := rs.getReportData(params)
	if err != nil {
		rs.updateReportError(report, fmt.Sprintf("failed to get report data: %v", err))
		return err
	}

	// Генерируем файл отчета
	filePath, err := rs.generateReportFile(data, params, report)
	if err != nil {
		rs.updateReportError(report, fmt.Sprintf("failed to generate report file: %v", err))
		return err
	}

	// Получаем информацию о файле
	fileInfo, err := os.Stat(filePath)
	if err != nil {
		rs.updateReportError(report, fmt.Sprintf("failed to get file info: %v", err))
		return err
	}

	// Обновляем отчет с результатами
	completedAt := time.Now()
	duration := int(completedAt.Sub(*report.StartedAt).Seconds())

	report.Status = models.ReportStatusCompleted
	report.CompletedAt = &completedAt
	report.Duration = duration
	report.FilePath = filePath
	report.FileSize = fileInfo.Size()
	report.RecordCount = len(data.Rows)
	report.ErrorMsg = ""

	return rs.db.Save(report).Error
}

// getReportData получает данные для отчета в зависимости от типа
func (rs *ReportService) getReportData(params ReportParams) (*ReportData, error) {
	switch params.Type {
	case models.ReportTypePanelSchedule:
		return rs.getPanelScheduleData(params)
	case models.ReportTypeRelocationPlan:
		return rs.getRelocationPlanData(params)
	case models.ReportTypeAuditSummary:
		return rs.getAuditSummaryData(params)
	default:
		return nil, fmt.Errorf("unsupported report type: %s", params.Type)
	}
}

// getPanelScheduleData получает данные паспорта щита: таблицу автоматов с цепями
func (rs *ReportService) getPanelScheduleData(params ReportParams) (*ReportData, error) {
	if params.PanelID == nil {
		return nil, fmt.Errorf("для паспорта щита требуется panel_id")
	}

	var panel models.Panel
	if err := rs.db.First(&panel, *params.PanelID).Error; err != nil {
		return nil, fmt.Errorf("щит %d не найден: %w", *params.PanelID, err)
	}

	var breakers []models.Breaker
	if err := rs.db.Where("panel_id = ?", panel.ID).
		Preload("Circuits").Preload("Circuits.Room").
		Order("position ASC, slot_position ASC").
		Find(&breakers).Error; err != nil {
		return nil, err
	}

	headers := []string{"Позиция", "Слот", "Сторона", "Тип", "Номинал (А)", "Метка", "Критический", "Мониторинг", "Подтвержден", "Цепи"}
	rows := make([]map[string]interface{}, len(breakers))

	criticalCount := 0
	for i := range breakers {
		b := &breakers[i]
		if b.Critical {
			criticalCount++
		}
		rows[i] = map[string]interface{}{
			"Позиция":     b.Position,
			"Слот":        b.SlotLabel(),
			"Сторона":     sideDisplayName(SideOfPosition(b.Position)),
			"Тип":         b.GetTypeDisplayName(),
			"Номинал (А)": b.Amperage,
			"Метка":       b.Label,
			"Критический": b.Critical,
			"Мониторинг":  b.Monitor,
			"Подтвержден": b.Confirmed,
			"Цепи":        describeCircuitsForReport(b.Circuits),
		}
	}

	// Свободные позиции считаем без FreePositions: паспорт должен
	// печататься и для щита с несогласованными данными (их ловит проверка)
	occupied := OccupiedPositions(breakers)
	freeCount := 0
	for position := 1; position <= panel.Size; position++ {
		if !occupied[position] {
			freeCount++
		}
	}

	summary := map[string]interface{}{
		"panel_name":        panel.Name,
		"panel_location":    panel.Location,
		"panel_size":        panel.Size,
		"total_breakers":    len(breakers),
		"critical_breakers": criticalCount,
		"free_positions":    freeCount,
	}

	return &ReportData{
		Headers: headers,
		Rows:    rows,
		Summary: summary,
	}, nil
}

// getRelocationPlanData получает данные наряда на перенос: ходы плана по партиям
func (rs *ReportService) getRelocationPlanData(params ReportParams) (*ReportData, error) {
	plan := params.Plan
	if plan == nil {
		return nil, fmt.Errorf("для наряда на перенос требуется построенный план")
	}

	headers := []string{"Партия", "Шаг", "Содержание партии", "Автомат", "Метка", "Откуда", "Куда", "Вид работ", "Временное отключение", "Смена стороны"}
	rows := make([]map[string]interface{}, 0, plan.Summary.TotalMoves)

	for _, batch := range plan.ProgressiveBatches {
		for step, move := range batch.Moves {
			rows = append(rows, map[string]interface{}{
				"Партия":               batch.Number,
				"Шаг":                  step + 1,
				"Содержание партии":    batch.Description,
				"Автомат":              move.BreakerID,
				"Метка":                move.BreakerLabel,
				"Откуда":               move.From.String(),
				"Куда":                 move.To.String(),
				"Вид работ":            moveKindDisplayName(move.Kind),
				"Временное отключение": move.TemporaryDisconnect,
				"Смена стороны":        move.SideChange,
			})
		}
	}

	summary := map[string]interface{}{
		"plan_id":              plan.ID.String(),
		"source_panel_id":      plan.SourcePanelID,
		"target_panel_id":      plan.TargetPanelID,
		"total_moves":          plan.Summary.TotalMoves,
		"reorganization_moves": plan.Summary.ReorganizationMoves,
		"critical_moves":       plan.Summary.CriticalMoves,
		"swaps_performed":      plan.Summary.SwapsPerformed,
		"total_batches":        plan.Summary.TotalBatches,
		"estimated_cost":       plan.Summary.EstimatedCost.StringFixed(2),
		"warnings":             plan.Warnings,
	}

	return &ReportData{
		Headers: headers,
		Rows:    rows,
		Summary: summary,
	}, nil
}

// getAuditSummaryData получает сводку нерешенных несоответствий по щитам
func (rs *ReportService) getAuditSummaryData(params ReportParams) (*ReportData, error) {
	query := rs.db.Model(&models.AuditFinding{}).
		Where("status <> ?", models.AuditFindingStatusResolved)
	if params.PanelID != nil {
		query = query.Where("panel_id = ?", *params.PanelID)
	}
	if params.Severity != "" {
		query = query.Where("severity = ?", params.Severity)
	}

	var findings []models.AuditFinding
	if err := query.Preload("Panel").
		Order("panel_id ASC, position ASC, id ASC").
		Find(&findings).Error; err != nil {
		return nil, err
	}

	headers := []string{"Щит", "Позиция", "Вид", "Серьезность", "Статус", "Описание", "Обнаружено"}
	rows := make([]map[string]interface{}, len(findings))

	bySeverity := make(map[models.AuditSeverity]int)
	for i := range findings {
		f := &findings[i]
		bySeverity[f.Severity]++

		panelName := fmt.Sprintf("щит %d", f.PanelID)
		if f.Panel != nil {
			panelName = f.Panel.Name
		}

		rows[i] = map[string]interface{}{
			"Щит":         panelName,
			"Позиция":     f.Position,
			"Вид":         string(f.Kind),
			"Серьезность": f.GetSeverityDisplayName(),
			"Статус":      string(f.Status),
			"Описание":    f.Message,
			"Обнаружено":  f.CreatedAt.Format("02.01.2006 15:04"),
		}
	}

	summary := map[string]interface{}{
		"total_findings": len(findings),
		"critical":       bySeverity[models.AuditSeverityCritical],
		"warning":        bySeverity[models.AuditSeverityWarning],
		"info":           bySeverity[models.AuditSeverityInfo],
	}

	return &ReportData{
		Headers: headers,
		Rows:    rows,
		Summary: summary,
	}, nil
}

// describeCircuitsForReport собирает цепи автомата в одну строку для табличного отчета
func describeCircuitsForReport(circuits []models.Circuit) string {
	if len(circuits) == 0 {
		return ""
	}
	parts := make([]string, 0, len(circuits))
	for i := range circuits {
		c := &circuits[i]
		part := c.GetTypeDisplayName()
		if c.Room != nil {
			part = fmt.Sprintf("%s (%s)", part, c.Room.Name)
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, "; ")
}

// moveKindDisplayName возвращает русское название вида хода для наряда
func moveKindDisplayName(kind MoveKind) string {
	switch kind {
	case MoveKindReorganization:
		return "Реорганизация"
	case MoveKindCritical:
		return "Перенос критического"
	case MoveKindMerge:
		return "Слияние"
	default:
		return string(kind)
	}
}

// sideDisplayName возвращает русское название стороны щита
func sideDisplayName(side BusSide) string {
	if side == BusSideLeft {
		return "Левая"
	}
	return "Правая"
}

// generateReportFile генерирует файл отчета в указанном формате
func (rs *ReportService) generateReportFile(data *ReportData, params ReportParams, report *models.Report) (string, error) {
	// Создаем директорию для отчетов если не существует
	if err := os.MkdirAll(rs.outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create reports directory: %w", err)
	}

	// Генерируем имя файла
	timestamp := time.Now().Format("20060102_150405")
	fileName := fmt.Sprintf("report_%d_%s_%s", report.ID, params.Type, timestamp)

	switch params.Format {
	case models.ReportFormatCSV:
		return rs.generateCSVReport(data, filepath.Join(rs.outputDir, fileName+".csv"))
	case models.ReportFormatExcel:
		return rs.generateExcelReport(data, filepath.Join(rs.outputDir, fileName+".xlsx"))
	case models.ReportFormatPDF:
		return rs.generatePDFReport(data, report, filepath.Join(rs.outputDir, fileName+".pdf"))
	case models.ReportFormatJSON:
		return rs.generateJSONReport(data, filepath.Join(rs.outputDir, fileName+".json"))
	default:
		return "", fmt.Errorf("unsupported format: %s", params.Format)
	}
}

// generateCSVReport генерирует CSV файл отчета
func (rs *ReportService) generateCSVReport(data *ReportData, filePath string) (string, error) {
	file, err := os.Create(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Записываем заголовки
	if err := writer.Write(data.Headers); err != nil {
		return "", err
	}

	// Записываем данные
	for _, row := range data.Rows {
		record := make([]string, len(data.Headers))
		for i, header := range data.Headers {
			if value, ok := row[header]; ok {
				record[i] = fmt.Sprintf("%v", value)
			}
		}
		if err := writer.Write(record); err != nil {
			return "", err
		}
	}

	return filePath, nil
}

// generateExcelReport генерирует Excel файл отчета
func (rs *ReportService) generateExcelReport(data *ReportData, filePath string) (string, error) {
	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			log.Printf("Failed to close Excel file: %v", err)
		}
	}()

	sheetName := "Отчет"
	f.SetSheetName("Sheet1", sheetName)

	// Записываем заголовки
	for i, header := range data.Headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheetName, cell, header)
	}

	// Записываем данные
	for rowIdx, row := range data.Rows {
		for colIdx, header := range data.Headers {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			if value, ok := row[header]; ok {
				f.SetCellValue(sheetName, cell, value)
			}
		}
	}

	// Добавляем автофильтр
	endCell, _ := excelize.CoordinatesToCellName(len(data.Headers), len(data.Rows)+1)
	f.AutoFilter(sheetName, "A1:"+endCell, []excelize.AutoFilterOptions{})

	// Сохраняем файл
	if err := f.SaveAs(filePath); err != nil {
		return "", err
	}

	return filePath, nil
}

// generatePDFReport генерирует PDF файл отчета
func (rs *ReportService) generatePDFReport(data *ReportData, report *models.Report, filePath string) (string, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.AddPage()

	// Заголовок отчета
	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(80, 10, report.GetTypeDisplayName())
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(60, 10, time.Now().Format("02.01.2006 15:04"))
	pdf.Ln(15)

	// Таблица с данными (упрощенная версия)
	pdf.SetFont("Arial", "", 8)

	// Заголовки
	for _, header := range data.Headers {
		pdf.Cell(26, 8, header)
	}
	pdf.Ln(8)

	// Данные (ограничиваем количество строк для PDF)
	maxRows := 50
	for i, row := range data.Rows {
		if i >= maxRows {
			pdf.Cell(26, 8, fmt.Sprintf("... и еще %d записей", len(data.Rows)-maxRows))
			break
		}

		for _, header := range data.Headers {
			value := ""
			if val, ok := row[header]; ok {
				value = fmt.Sprintf("%.18s", fmt.Sprintf("%v", val))
			}
			pdf.Cell(26, 8, value)
		}
		pdf.Ln(6)
	}

	return filePath, pdf.OutputFileAndClose(filePath)
}

// generateJSONReport генерирует JSON файл отчета
func (rs *ReportService) generateJSONReport(data *ReportData, filePath string) (string, error) {
	file, err := os.Create(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")

	reportData := map[string]interface{}{
		"headers":      data.Headers,
		"data":         data.Rows,
		"summary":      data.Summary,
		"generated_at": time.Now(),
	}

	return filePath, encoder.Encode(reportData)
}

// updateReportError обновляет отчет с информацией об ошибке
func (rs *ReportService) updateReportError(report *models.Report, errorMsg string) {
	now := time.Now()
	report.Status = models.ReportStatusFailed
	report.ErrorMsg = errorMsg
	report.CompletedAt = &now
	if report.StartedAt != nil {
		report.Duration = int(now.Sub(*report.StartedAt).Seconds())
	}
	rs.db.Save(report)
}
