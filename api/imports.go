package api

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"backend_shchitok/services"
)

// ImportAPI представляет API импорта унаследованных таблиц
type ImportAPI struct {
	DB      *gorm.DB
	Cache   *services.CacheService
	Service *services.ImportService
}

// NewImportAPI создает новый экземпляр ImportAPI
func NewImportAPI(db *gorm.DB, cache *services.CacheService) *ImportAPI {
	return &ImportAPI{
		DB:      db,
		Cache:   cache,
		Service: services.NewImportService(db),
	}
}

// ImportCSV принимает CSV-файл с описанием щитов и автоматов
func (api *ImportAPI) ImportCSV(c *gin.Context) {
	api.importFile(c, "csv")
}

// ImportXLSX принимает XLSX-файл с описанием щитов и автоматов
func (api *ImportAPI) ImportXLSX(c *gin.Context) {
	api.importFile(c, "xlsx")
}

// importFile разбирает multipart-файл и передает его сервису импорта.
// Импорт не проверяет геометрию: грязные унаследованные данные должны
// попасть в БД, чтобы проверка согласованности их нашла.
func (api *ImportAPI) importFile(c *gin.Context, format string) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "Файл обязателен (поле file)"})
		return
	}

	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	if format == "csv" && ext != ".csv" {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "Ожидается файл с расширением .csv"})
		return
	}
	if format == "xlsx" && ext != ".xlsx" {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "Ожидается файл с расширением .xlsx"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "Не удалось открыть файл"})
		return
	}
	defer file.Close()

	var result *services.ImportResult
	if format == "csv" {
		result, err = api.Service.ImportCSV(file)
	} else {
		result, err = api.Service.ImportXLSX(file)
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "Ошибка импорта: " + err.Error()})
		return
	}

	api.Cache.InvalidatePanelCaches(result.PanelIDs...)

	status := http.StatusOK
	if len(result.Errors) > 0 && result.BreakersCreated == 0 && result.SkippedRows == 0 {
		// Ни одна строка не принята
		status = http.StatusUnprocessableEntity
	}

	c.JSON(status, gin.H{
		"status": "success",
		"data":   result,
	})
}
