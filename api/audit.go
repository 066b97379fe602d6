package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"backend_shchitok/models"
	"backend_shchitok/services"
)

// AuditAPI представляет API проверки согласованности щитов
type AuditAPI struct {
	Service   *services.ConsistencyAuditService
	Scheduler *services.AuditScheduler
}

// NewAuditAPI создает новый экземпляр AuditAPI
func NewAuditAPI(service *services.ConsistencyAuditService, scheduler *services.AuditScheduler) *AuditAPI {
	return &AuditAPI{Service: service, Scheduler: scheduler}
}

// GetFindings возвращает находки проверки с фильтрацией
func (api *AuditAPI) GetFindings(c *gin.Context) {
	filters := services.AuditFindingFilters{
		Kind:     models.AuditFindingKind(c.Query("kind")),
		Severity: models.AuditSeverity(c.Query("severity")),
		Status:   models.AuditFindingStatus(c.Query("status")),
	}

	if panelID := c.Query("panel_id"); panelID != "" {
		id, err := strconv.ParseUint(panelID, 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "Некорректный идентификатор щита"})
			return
		}
		pid := uint(id)
		filters.PanelID = &pid
	}

	page, limit, offset := parsePagination(c)
	filters.Limit = limit
	filters.Offset = offset

	findings, total, err := api.Service.GetFindings(filters)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "Ошибка при получении находок"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "success",
		"data":       findings,
		"pagination": paginationEnvelope(page, limit, total),
	})
}

// RunAudit запускает проверку согласованности всех щитов вручную
func (api *AuditAPI) RunAudit(c *gin.Context) {
	summary, err := api.Service.RunFullAudit()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "Ошибка при выполнении проверки: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": "Проверка согласованности выполнена",
		"data":    summary,
	})
}

// RunPanelAudit запускает проверку одного щита
func (api *AuditAPI) RunPanelAudit(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "Некорректный идентификатор щита"})
		return
	}

	findings, err := api.Service.RunPanelAudit(id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{"status": "error", "error": "Щит не найден"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "Ошибка при проверке щита: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   findings,
	})
}

// AcknowledgeFinding помечает находку как принятую к сведению
func (api *AuditAPI) AcknowledgeFinding(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "Некорректный идентификатор находки"})
		return
	}

	finding, err := api.Service.AcknowledgeFinding(id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{"status": "error", "error": "Находка не найдена"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "Ошибка при обновлении находки"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": "Находка принята к сведению",
		"data":    finding,
	})
}

// GetStats возвращает статистику находок по видам и серьезности
func (api *AuditAPI) GetStats(c *gin.Context) {
	stats, err := api.Service.GetAuditStats()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "Ошибка при получении статистики"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "data": stats})
}

// GetSchedulerStatus возвращает состояние планировщика ночных проверок
func (api *AuditAPI) GetSchedulerStatus(c *gin.Context) {
	if api.Scheduler == nil {
		c.JSON(http.StatusOK, gin.H{
			"status": "success",
			"data":   gin.H{"enabled": false},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "data": api.Scheduler.Status()})
}
