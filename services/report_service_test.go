package services

import (
	"backend_shchitok/models"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupReportTestDB создает тестовую базу данных в памяти
func setupReportTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&models.Panel{},
		&models.Breaker{},
		&models.Circuit{},
		&models.Room{},
		&models.AuditFinding{},
		&models.Report{},
		&models.User{},
	)
	require.NoError(t, err)

	return db
}

// createReportTestData создает щит с автоматами, цепями и несоответствиями
func createReportTestData(t *testing.T, db *gorm.DB) *models.Panel {
	room := models.Room{Name: "Кухня", Level: models.RoomLevelMain}
	require.NoError(t, db.Create(&room).Error)

	panel := models.Panel{Name: "Щит гаража", Size: 12, Location: "Гараж"}
	require.NoError(t, db.Create(&panel).Error)

	breakers := []models.Breaker{
		{PanelID: panel.ID, Position: 1, SlotPosition: models.SlotPositionSingle, BreakerType: models.BreakerTypeSingle, Amperage: 16, Label: "Сигнализация", Critical: true, Confirmed: true},
		{PanelID: panel.ID, Position: 2, SlotPosition: models.SlotPositionA, BreakerType: models.BreakerTypeTandem, Amperage: 10, Label: "Свет кухни"},
		{PanelID: panel.ID, Position: 2, SlotPosition: models.SlotPositionB, BreakerType: models.BreakerTypeTandem, Amperage: 16, Label: "Розетки кухни", Monitor: true},
		{PanelID: panel.ID, Position: 5, SlotPosition: models.SlotPositionSingle, BreakerType: models.BreakerTypeDoublePole, Amperage: 32, Label: "Варочная панель", Critical: true},
	}
	for i := range breakers {
		require.NoError(t, db.Create(&breakers[i]).Error)
	}

	circuits := []models.Circuit{
		{BreakerID: breakers[2].ID, RoomID: &room.ID, Type: models.CircuitTypeOutlet},
		{BreakerID: breakers[2].ID, RoomID: &room.ID, Type: models.CircuitTypeAppliance, Notes: "Холодильник"},
		{BreakerID: breakers[0].ID, Type: models.CircuitTypeAppliance},
	}
	for i := range circuits {
		require.NoError(t, db.Create(&circuits[i]).Error)
	}

	findings := []models.AuditFinding{
		{PanelID: panel.ID, Position: 4, Kind: models.AuditFindingDuplicateSlot, Severity: models.AuditSeverityCritical, Status: models.AuditFindingStatusOpen, Message: "Два автомата в одном слоте"},
		{PanelID: panel.ID, Position: 2, Kind: models.AuditFindingMixedTandem, Severity: models.AuditSeverityInfo, Status: models.AuditFindingStatusAcknowledged, Message: "Смешанный спаренный слот"},
		{PanelID: panel.ID, Position: 7, Kind: models.AuditFindingLonelyTandem, Severity: models.AuditSeverityWarning, Status: models.AuditFindingStatusResolved, Message: "Уже исправлено"},
	}
	for i := range findings {
		require.NoError(t, db.Create(&findings[i]).Error)
	}

	return &panel
}

// reportTestPlan строит небольшой план переноса: смешанный спаренный слот
// плюс донорский одиночный, итого одна партия свопов и одна партия переноса
func reportTestPlan(t *testing.T) *RelocationPlan {
	source := PanelSnapshot{
		Panel: plannerPanel(1, "Основной щит", 24),
		Breakers: []models.Breaker{
			tandemHalf(1, 1, 5, models.SlotPositionA, true, "Сигнализация"),
			tandemHalf(2, 1, 5, models.SlotPositionB, false, "Свет коридора"),
			singleBreaker(3, 1, 10, true, "Розетки спальни"),
		},
	}
	target := PanelSnapshot{Panel: plannerPanel(2, "Критический щит", 12)}

	plan, err := BuildRelocationPlan(source, target)
	require.NoError(t, err)
	return plan
}

func TestReportService_GenerateReport(t *testing.T) {
	db := setupReportTestDB(t)
	panel := createReportTestData(t, db)

	service := NewReportService(db, t.TempDir())

	missingPanelID := uint(999)
	tests := []struct {
		name      string
		params    ReportParams
		expectErr bool
	}{
		{
			name:   "Паспорт щита CSV",
			params: ReportParams{Type: models.ReportTypePanelSchedule, Format: models.ReportFormatCSV, PanelID: &panel.ID},
		},
		{
			name:   "Паспорт щита Excel",
			params: ReportParams{Type: models.ReportTypePanelSchedule, Format: models.ReportFormatExcel, PanelID: &panel.ID},
		},
		{
			name:   "Сводка несоответствий JSON",
			params: ReportParams{Type: models.ReportTypeAuditSummary, Format: models.ReportFormatJSON},
		},
		{
			name:   "Наряд на перенос PDF",
			params: ReportParams{Type: models.ReportTypeRelocationPlan, Format: models.ReportFormatPDF, Plan: reportTestPlan(t)},
		},
		{
			name:      "Паспорт несуществующего щита",
			params:    ReportParams{Type: models.ReportTypePanelSchedule, Format: models.ReportFormatCSV, PanelID: &missingPanelID},
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := models.Report{
				Name:   tt.name,
				Type:   tt.params.Type,
				Format: tt.params.Format,
				Status: models.ReportStatusPending,
			}
			require.NoError(t, db.Create(&report).Error)

			err := service.GenerateReport(tt.params, &report)

			if tt.expectErr {
				assert.Error(t, err)
				assert.Equal(t, models.ReportStatusFailed, report.Status)
				assert.NotEmpty(t, report.ErrorMsg)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, models.ReportStatusCompleted, report.Status)
			assert.NotEmpty(t, report.FilePath)
			assert.Greater(t, report.FileSize, int64(0))
			assert.Greater(t, report.RecordCount, 0)
			assert.NotNil(t, report.CompletedAt)
			assert.GreaterOrEqual(t, report.Duration, 0)
			assert.Empty(t, report.ErrorMsg)

			// Проверяем, что файл существует
			_, err = os.Stat(report.FilePath)
			assert.NoError(t, err)
		})
	}
}

func TestReportService_GetPanelScheduleData(t *testing.T) {
	db := setupReportTestDB(t)
	panel := createReportTestData(t, db)

	service := NewReportService(db, t.TempDir())

	data, err := service.getPanelScheduleData(ReportParams{PanelID: &panel.ID})
	require.NoError(t, err)

	// Четыре автомата по возрастанию позиции и слота
	require.Len(t, data.Rows, 4)
	assert.Equal(t, 1, data.Rows[0]["Позиция"])
	assert.Equal(t, "1", data.Rows[0]["Слот"])
	assert.Equal(t, "2A", data.Rows[1]["Слот"])
	assert.Equal(t, "2B", data.Rows[2]["Слот"])
	assert.Equal(t, "5", data.Rows[3]["Слот"])

	// Цепи собираются в одну строку с помещением
	assert.Equal(t, "Розетки (Кухня); Прибор (Кухня)", data.Rows[2]["Цепи"])
	assert.Equal(t, "Прибор", data.Rows[0]["Цепи"])

	assert.Equal(t, "Двухполюсный", data.Rows[3]["Тип"])
	assert.Equal(t, true, data.Rows[0]["Критический"])
	assert.Equal(t, "Левая", data.Rows[0]["Сторона"])
	assert.Equal(t, "Правая", data.Rows[1]["Сторона"])

	// Сводка: занято 1, 2 и 5+7 (вторая строка двухполюсного), свободно 8
	assert.Equal(t, "Щит гаража", data.Summary["panel_name"])
	assert.Equal(t, 12, data.Summary["panel_size"])
	assert.Equal(t, 4, data.Summary["total_breakers"])
	assert.Equal(t, 2, data.Summary["critical_breakers"])
	assert.Equal(t, 8, data.Summary["free_positions"])
}

func TestReportService_GetPanelScheduleDataRequiresPanel(t *testing.T) {
	db := setupReportTestDB(t)
	service := NewReportService(db, t.TempDir())

	_, err := service.getPanelScheduleData(ReportParams{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panel_id")
}

func TestReportService_GetRelocationPlanData(t *testing.T) {
	db := setupReportTestDB(t)
	service := NewReportService(db, t.TempDir())

	plan := reportTestPlan(t)
	data, err := service.getRelocationPlanData(ReportParams{Plan: plan})
	require.NoError(t, err)

	// Своп донора (2 хода) и перенос пары (2 хода)
	require.Len(t, data.Rows, 4)

	assert.Equal(t, 1, data.Rows[0]["Партия"])
	assert.Equal(t, 1, data.Rows[0]["Шаг"])
	assert.Equal(t, uint(2), data.Rows[0]["Автомат"])
	assert.Equal(t, "щит 1, поз. 5B", data.Rows[0]["Откуда"])
	assert.Equal(t, "щит 1, поз. 10", data.Rows[0]["Куда"])
	assert.Equal(t, "Реорганизация", data.Rows[0]["Вид работ"])
	assert.Equal(t, true, data.Rows[0]["Временное отключение"])

	assert.Equal(t, 2, data.Rows[2]["Партия"])
	assert.Equal(t, "Перенос критического", data.Rows[2]["Вид работ"])
	assert.Equal(t, "щит 2, поз. 1A", data.Rows[2]["Куда"])

	assert.Equal(t, plan.ID.String(), data.Summary["plan_id"])
	assert.Equal(t, 4, data.Summary["total_moves"])
	assert.Equal(t, 2, data.Summary["total_batches"])
	assert.Equal(t, plan.Summary.EstimatedCost.StringFixed(2), data.Summary["estimated_cost"])
}

func TestReportService_GetRelocationPlanDataRequiresPlan(t *testing.T) {
	db := setupReportTestDB(t)
	service := NewReportService(db, t.TempDir())

	_, err := service.getRelocationPlanData(ReportParams{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "план")
}

func TestReportService_GetAuditSummaryData(t *testing.T) {
	db := setupReportTestDB(t)
	panel := createReportTestData(t, db)

	service := NewReportService(db, t.TempDir())

	// Решенные несоответствия в сводку не попадают
	data, err := service.getAuditSummaryData(ReportParams{})
	require.NoError(t, err)
	require.Len(t, data.Rows, 2)

	assert.Equal(t, "Щит гаража", data.Rows[0]["Щит"])
	assert.Equal(t, 2, data.Rows[0]["Позиция"])
	assert.Equal(t, string(models.AuditFindingMixedTandem), data.Rows[0]["Вид"])
	assert.Equal(t, "Критично", data.Rows[1]["Серьезность"])

	assert.Equal(t, 2, data.Summary["total_findings"])
	assert.Equal(t, 1, data.Summary["critical"])
	assert.Equal(t, 0, data.Summary["warning"])
	assert.Equal(t, 1, data.Summary["info"])

	// Фильтр по серьезности
	data, err = service.getAuditSummaryData(ReportParams{Severity: string(models.AuditSeverityCritical)})
	require.NoError(t, err)
	require.Len(t, data.Rows, 1)
	assert.Equal(t, 4, data.Rows[0]["Позиция"])

	// Фильтр по щиту без несоответствий
	otherPanelID := panel.ID + 100
	data, err = service.getAuditSummaryData(ReportParams{PanelID: &otherPanelID})
	require.NoError(t, err)
	assert.Empty(t, data.Rows)
}

func TestReportService_GenerateCSVReport(t *testing.T) {
	db := setupReportTestDB(t)
	service := NewReportService(db, t.TempDir())

	filePath := filepath.Join(t.TempDir(), "test_report.csv")

	data := &ReportData{
		Headers: []string{"Позиция", "Метка", "Критический"},
		Rows: []map[string]interface{}{
			{"Позиция": 1, "Метка": "Сигнализация", "Критический": true},
			{"Позиция": 2, "Метка": "Свет кухни", "Критический": false},
		},
	}

	resultPath, err := service.generateCSVReport(data, filePath)
	require.NoError(t, err)
	assert.Equal(t, filePath, resultPath)

	content, err := os.ReadFile(filePath)
	require.NoError(t, err)

	expectedContent := "Позиция,Метка,Критический\n1,Сигнализация,true\n2,Свет кухни,false\n"
	assert.Equal(t, expectedContent, string(content))
}

func TestReportService_GenerateJSONReport(t *testing.T) {
	db := setupReportTestDB(t)
	service := NewReportService(db, t.TempDir())

	filePath := filepath.Join(t.TempDir(), "test_report.json")

	data := &ReportData{
		Headers: []string{"Позиция", "Метка"},
		Rows: []map[string]interface{}{
			{"Позиция": 1, "Метка": "Сигнализация"},
		},
		Summary: map[string]interface{}{
			"total_breakers": 1,
		},
	}

	resultPath, err := service.generateJSONReport(data, filePath)
	require.NoError(t, err)
	assert.Equal(t, filePath, resultPath)

	content, err := os.ReadFile(filePath)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(content, &decoded))
	assert.Equal(t, []interface{}{"Позиция", "Метка"}, decoded["headers"])
	assert.NotNil(t, decoded["generated_at"])
}

func TestReportService_GenerateExcelReport(t *testing.T) {
	db := setupReportTestDB(t)
	service := NewReportService(db, t.TempDir())

	filePath := filepath.Join(t.TempDir(), "test_report.xlsx")

	data := &ReportData{
		Headers: []string{"Позиция", "Метка"},
		Rows: []map[string]interface{}{
			{"Позиция": 1, "Метка": "Сигнализация"},
			{"Позиция": 2, "Метка": "Свет кухни"},
		},
	}

	resultPath, err := service.generateExcelReport(data, filePath)
	require.NoError(t, err)
	assert.Equal(t, filePath, resultPath)

	info, err := os.Stat(filePath)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestReportService_GeneratePDFReport(t *testing.T) {
	db := setupReportTestDB(t)
	service := NewReportService(db, t.TempDir())

	filePath := filepath.Join(t.TempDir(), "test_report.pdf")

	data := &ReportData{
		Headers: []string{"Позиция", "Метка"},
		Rows: []map[string]interface{}{
			{"Позиция": 1, "Метка": "Сигнализация"},
		},
	}

	report := &models.Report{Type: models.ReportTypePanelSchedule}
	resultPath, err := service.generatePDFReport(data, report, filePath)
	require.NoError(t, err)
	assert.Equal(t, filePath, resultPath)

	info, err := os.Stat(filePath)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestReportService_UnsupportedReportType(t *testing.T) {
	db := setupReportTestDB(t)
	service := NewReportService(db, t.TempDir())

	_, err := service.getReportData(ReportParams{Type: "unknown"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported report type")
}
