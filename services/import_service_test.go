package services

import (
	"strings"
	"testing"

	"backend_shchitok/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupImportTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(&models.Panel{}, &models.Breaker{}, &models.Circuit{}, &models.Room{})
	require.NoError(t, err)

	return db
}

func TestImportCSVCreatesPanelsBreakersAndCircuits(t *testing.T) {
	db := setupImportTestDB(t)
	service := NewImportService(db)

	csvData := `Panel,PanelSize,Position,Slot,Type,Amperage,Critical,Monitor,Confirmed,Label,Room,RoomLevel,CircuitType,CircuitNotes
Щит гаража,12,1,,single,16,да,,,Сигнализация,Прихожая,main,appliance,
Щит гаража,12,2,A,tandem,10,,,да,Свет кухни,Кухня,main,lighting,Основной свет
Щит гаража,12,2,B,tandem,16,1,x,,Розетки кухни,Кухня,,outlet,
Щит гаража,12,5,,double_pole,32,,,,Варочная панель,,,,
`

	result, err := service.ImportCSV(strings.NewReader(csvData))
	require.NoError(t, err)

	assert.Equal(t, 4, result.TotalRows)
	assert.Equal(t, 1, result.PanelsCreated)
	assert.Equal(t, 2, result.RoomsCreated)
	assert.Equal(t, 4, result.BreakersCreated)
	assert.Equal(t, 3, result.CircuitsCreated)
	assert.Equal(t, 0, result.SkippedRows)
	assert.Empty(t, result.Errors)
	assert.Len(t, result.PanelIDs, 1)

	var panel models.Panel
	require.NoError(t, db.Where("name = ?", "Щит гаража").First(&panel).Error)
	assert.Equal(t, 12, panel.Size)

	var breakers []models.Breaker
	require.NoError(t, db.Where("panel_id = ?", panel.ID).Order("position ASC, slot_position ASC").Find(&breakers).Error)
	require.Len(t, breakers, 4)

	assert.True(t, breakers[0].Critical)
	assert.Equal(t, models.SlotPositionSingle, breakers[0].SlotPosition)

	assert.Equal(t, models.BreakerTypeTandem, breakers[1].BreakerType)
	assert.Equal(t, models.SlotPositionA, breakers[1].SlotPosition)
	assert.True(t, breakers[1].Confirmed)

	assert.True(t, breakers[2].Critical)
	assert.True(t, breakers[2].Monitor)

	assert.Equal(t, models.BreakerTypeDoublePole, breakers[3].BreakerType)
	assert.Equal(t, 32, breakers[3].Amperage)

	// Помещение «Кухня» создано один раз и привязано к двум цепям
	var kitchen models.Room
	require.NoError(t, db.Where("name = ?", "Кухня").First(&kitchen).Error)
	var kitchenCircuits int64
	require.NoError(t, db.Model(&models.Circuit{}).Where("room_id = ?", kitchen.ID).Count(&kitchenCircuits).Error)
	assert.Equal(t, int64(2), kitchenCircuits)

	var lighting models.Circuit
	require.NoError(t, db.Where("type = ?", models.CircuitTypeLighting).First(&lighting).Error)
	assert.Equal(t, breakers[1].ID, lighting.BreakerID)
	assert.Equal(t, "Основной свет", lighting.Notes)
}

func TestImportCSVSkipsExistingSlots(t *testing.T) {
	db := setupImportTestDB(t)
	service := NewImportService(db)

	csvData := `Panel,PanelSize,Position,Slot,Type,Amperage
Щит,24,1,,single,16
Щит,24,1,,single,20
Щит,24,2,A,tandem,10
`

	// Дубликат внутри файла пропускается
	result, err := service.ImportCSV(strings.NewReader(csvData))
	require.NoError(t, err)
	assert.Equal(t, 2, result.BreakersCreated)
	assert.Equal(t, 1, result.SkippedRows)
	assert.Empty(t, result.Errors)

	// Повторная загрузка того же файла ничего не создает
	result, err = service.ImportCSV(strings.NewReader(csvData))
	require.NoError(t, err)
	assert.Equal(t, 0, result.PanelsCreated)
	assert.Equal(t, 0, result.BreakersCreated)
	assert.Equal(t, 3, result.SkippedRows)
	assert.Len(t, result.PanelIDs, 1)

	var count int64
	require.NoError(t, db.Model(&models.Breaker{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)

	// Номинал первого автомата не перезаписан дубликатом
	var first models.Breaker
	require.NoError(t, db.Where("position = ? AND slot_position = ?", 1, models.SlotPositionSingle).First(&first).Error)
	assert.Equal(t, 16, first.Amperage)
}

func TestImportCSVCollectsRowErrors(t *testing.T) {
	db := setupImportTestDB(t)
	service := NewImportService(db)

	csvData := `Panel,PanelSize,Position,Slot,Type,Amperage,Critical,Label,Room,CircuitType
,12,1,,single,16,,Без щита,,
Щит А,,1,,single,16,,Размер не указан,,
Щит Б,24,abc,,single,16,,Позиция не число,,
Щит Б,24,2,C,single,16,,Неизвестный слот,,
Щит Б,24,3,,quad,16,,Неизвестный тип,,
Щит Б,24,4,,single,,,Номинал пуст,,
Щит Б,24,5,,single,16,maybe,Непонятный флаг,,
Щит Б,24,6,,single,16,,Хорошая строка,,
Щит Б,24,7,,single,16,,Плохая цепь,Кухня,unknown_type
`

	result, err := service.ImportCSV(strings.NewReader(csvData))
	require.NoError(t, err)

	assert.Equal(t, 9, result.TotalRows)
	assert.Equal(t, 1, result.PanelsCreated)
	assert.Equal(t, 2, result.BreakersCreated) // Строки 9 и 10: у последней не удалась только цепь
	assert.Equal(t, 0, result.CircuitsCreated)
	assert.Equal(t, 0, result.RoomsCreated)

	require.Len(t, result.Errors, 8)
	errorRows := make([]int, 0, len(result.Errors))
	for _, rowErr := range result.Errors {
		errorRows = append(errorRows, rowErr.Row)
	}
	assert.Equal(t, []int{2, 3, 4, 5, 6, 7, 8, 10}, errorRows)

	assert.Contains(t, result.Errors[0].Message, "не указан щит")
	assert.Contains(t, result.Errors[1].Message, "размер")
	assert.Contains(t, result.Errors[2].Message, "позиция")
	assert.Contains(t, result.Errors[3].Message, "слот")
	assert.Contains(t, result.Errors[4].Message, "тип автомата")
	assert.Contains(t, result.Errors[5].Message, "номинал")
	assert.Contains(t, result.Errors[6].Message, "флага")
	assert.Contains(t, result.Errors[7].Message, "тип цепи")
}

func TestImportCSVRequiresMandatoryColumns(t *testing.T) {
	db := setupImportTestDB(t)
	service := NewImportService(db)

	_, err := service.ImportCSV(strings.NewReader("Panel,Slot,Amperage\nЩит,A,16\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "position")

	_, err = service.ImportCSV(strings.NewReader(""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "пуст")
}

func TestImportCSVHandlesBOMAndBlankRows(t *testing.T) {
	db := setupImportTestDB(t)
	service := NewImportService(db)

	csvData := "\uFEFFPanel,PanelSize,Position,Amperage\nЩит,24,1,16\n,,,\n"

	result, err := service.ImportCSV(strings.NewReader(csvData))
	require.NoError(t, err)
	assert.Equal(t, 1, result.TotalRows)
	assert.Equal(t, 1, result.BreakersCreated)
	assert.Empty(t, result.Errors)
}

func TestImportXLSX(t *testing.T) {
	db := setupImportTestDB(t)
	service := NewImportService(db)

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)

	headers := []string{"Panel", "PanelSize", "Position", "Slot", "Type", "Amperage", "Critical", "Label"}
	for i, header := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		require.NoError(t, err)
		require.NoError(t, f.SetCellValue(sheet, cell, header))
	}

	rows := [][]interface{}{
		{"Щит подвала", 24, 1, "", "single", 16, "да", "Насос"},
		{"Щит подвала", 24, 3, "A", "tandem", 10, "", "Свет"},
	}
	for r, row := range rows {
		for c, value := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			require.NoError(t, err)
			require.NoError(t, f.SetCellValue(sheet, cell, value))
		}
	}

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	result, err := service.ImportXLSX(buf)
	require.NoError(t, err)

	assert.Equal(t, 2, result.TotalRows)
	assert.Equal(t, 1, result.PanelsCreated)
	assert.Equal(t, 2, result.BreakersCreated)
	assert.Empty(t, result.Errors)

	var pump models.Breaker
	require.NoError(t, db.Where("label = ?", "Насос").First(&pump).Error)
	assert.True(t, pump.Critical)
}

func TestImportXLSXRejectsGarbage(t *testing.T) {
	db := setupImportTestDB(t)
	service := NewImportService(db)

	_, err := service.ImportXLSX(strings.NewReader("это не xlsx"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "XLSX")
}
