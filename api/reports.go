package api

import (
	"log"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"backend_shchitok/middleware"
	"backend_shchitok/models"
	"backend_shchitok/services"
)

// ReportsAPI представляет API для работы с отчетами
type ReportsAPI struct {
	DB      *gorm.DB
	Service *services.ReportService
	Cache   *services.CacheService
}

// NewReportsAPI создает новый экземпляр ReportsAPI
func NewReportsAPI(db *gorm.DB, service *services.ReportService, cache *services.CacheService) *ReportsAPI {
	return &ReportsAPI{DB: db, Service: service, Cache: cache}
}

// CreateReportRequest - запрос создания отчета
type CreateReportRequest struct {
	Name     string              `json:"name" binding:"required"`
	Type     models.ReportType   `json:"type" binding:"required"`
	Format   models.ReportFormat `json:"format" binding:"required"`
	PanelID  *uint               `json:"panel_id"`
	Severity string              `json:"severity"`
	PlanID   string              `json:"plan_id"` // Для наряда на перенос: план из кэша
}

// CreateReport создает запись отчета и запускает генерацию файла в фоне
func (ra *ReportsAPI) CreateReport(c *gin.Context) {
	var req CreateReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "Некорректные данные: " + err.Error()})
		return
	}

	if !models.IsValidReportType(req.Type) {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "Недопустимый тип отчета"})
		return
	}
	if !models.IsValidReportFormat(req.Format) {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "Недопустимый формат отчета"})
		return
	}

	params := services.ReportParams{
		Type:     req.Type,
		Format:   req.Format,
		PanelID:  req.PanelID,
		Severity: req.Severity,
	}

	switch req.Type {
	case models.ReportTypePanelSchedule:
		if req.PanelID == nil {
			c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "Для паспорта щита укажите panel_id"})
			return
		}
		var panel models.Panel
		if err := ra.DB.First(&panel, *req.PanelID).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"status": "error", "error": "Щит не найден"})
			return
		}
	case models.ReportTypeRelocationPlan:
		if req.PlanID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "Для наряда на перенос укажите plan_id"})
			return
		}
		plan, err := ra.Cache.GetCachedPlan(req.PlanID)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"status": "error", "error": "План не найден или устарел; постройте план заново"})
			return
		}
		params.Plan = plan
	}

	report := models.Report{
		Name:        req.Name,
		Type:        req.Type,
		Format:      req.Format,
		Status:      models.ReportStatusPending,
		CreatedByID: middleware.GetCurrentUserID(c),
	}
	if err := ra.DB.Create(&report).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "Ошибка при создании отчета: " + err.Error()})
		return
	}

	// Генерация файла идет в фоне; статус отслеживается по записи отчета
	go func(params services.ReportParams, report models.Report) {
		if err := ra.Service.GenerateReport(params, &report); err != nil {
			log.Printf("❌ Ошибка генерации отчета %d: %v", report.ID, err)
		}
	}(params, report)

	c.JSON(http.StatusCreated, gin.H{
		"status":  "success",
		"message": "Отчет поставлен в очередь генерации",
		"data":    report,
	})
}

// GetReports возвращает список отчетов
func (ra *ReportsAPI) GetReports(c *gin.Context) {
	var reports []models.Report
	query := ra.DB.Model(&models.Report{})

	if reportType := c.Query("type"); reportType != "" {
		query = query.Where("type = ?", reportType)
	}
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	page, limit, offset := parsePagination(c)

	var total int64
	query.Count(&total)

	if err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&reports).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "Ошибка при получении списка отчетов"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "success",
		"data":       reports,
		"pagination": paginationEnvelope(page, limit, total),
	})
}

// GetReport возвращает отчет по идентификатору
func (ra *ReportsAPI) GetReport(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "Некорректный идентификатор отчета"})
		return
	}

	var report models.Report
	if err := ra.DB.First(&report, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{"status": "error", "error": "Отчет не найден"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "Ошибка при получении отчета"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "data": report})
}

// DownloadReport отдает сгенерированный файл отчета
func (ra *ReportsAPI) DownloadReport(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "Некорректный идентификатор отчета"})
		return
	}

	var report models.Report
	if err := ra.DB.First(&report, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{"status": "error", "error": "Отчет не найден"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "Ошибка при получении отчета"})
		}
		return
	}

	if !report.IsCompleted() || report.FilePath == "" {
		c.JSON(http.StatusConflict, gin.H{
			"status": "error",
			"error":  "Отчет еще не сгенерирован",
			"state":  report.Status,
		})
		return
	}

	if _, err := os.Stat(report.FilePath); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "error": "Файл отчета не найден на диске"})
		return
	}

	c.FileAttachment(report.FilePath, filepath.Base(report.FilePath))
}

// DeleteReport удаляет отчет вместе с файлом
func (ra *ReportsAPI) DeleteReport(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "Некорректный идентификатор отчета"})
		return
	}

	var report models.Report
	if err := ra.DB.First(&report, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{"status": "error", "error": "Отчет не найден"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "Ошибка при получении отчета"})
		}
		return
	}

	if report.FilePath != "" {
		os.Remove(report.FilePath)
	}

	if err := ra.DB.Delete(&report).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "Ошибка при удалении отчета"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Отчет удален"})
}
