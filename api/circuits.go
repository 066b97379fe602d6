package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"backend_shchitok/models"
	"backend_shchitok/services"
)

// CircuitAPI представляет API для работы с цепями
type CircuitAPI struct {
	DB    *gorm.DB
	Cache *services.CacheService
}

// NewCircuitAPI создает новый экземпляр CircuitAPI
func NewCircuitAPI(db *gorm.DB, cache *services.CacheService) *CircuitAPI {
	return &CircuitAPI{DB: db, Cache: cache}
}

// CreateCircuit создает новую цепь
func (api *CircuitAPI) CreateCircuit(c *gin.Context) {
	var circuit models.Circuit
	if err := c.ShouldBindJSON(&circuit); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "Некорректные данные: " + err.Error()})
		return
	}

	if circuit.Type == "" {
		circuit.Type = models.CircuitTypeOutlet
	}

	if status, msg := api.validateCircuit(&circuit); msg != "" {
		c.JSON(status, gin.H{"status": "error", "error": msg})
		return
	}

	if err := api.DB.Create(&circuit).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "Ошибка при создании цепи: " + err.Error()})
		return
	}

	api.Cache.InvalidateDashboard()

	c.JSON(http.StatusCreated, gin.H{
		"status":  "success",
		"message": "Цепь успешно создана",
		"data":    circuit,
	})
}

// GetCircuits возвращает список цепей с фильтрацией
func (api *CircuitAPI) GetCircuits(c *gin.Context) {
	var circuits []models.Circuit
	query := api.DB.Model(&models.Circuit{}).Preload("Breaker").Preload("Room")

	if breakerID := c.Query("breaker_id"); breakerID != "" {
		query = query.Where("breaker_id = ?", breakerID)
	}
	if roomID := c.Query("room_id"); roomID != "" {
		query = query.Where("room_id = ?", roomID)
	}
	if circuitType := c.Query("type"); circuitType != "" {
		query = query.Where("type = ?", circuitType)
	}

	page, limit, offset := parsePagination(c)

	var total int64
	query.Count(&total)

	if err := query.Order("id ASC").Limit(limit).Offset(offset).Find(&circuits).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "Ошибка при получении списка цепей"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "success",
		"data":       circuits,
		"pagination": paginationEnvelope(page, limit, total),
	})
}

// GetCircuit возвращает цепь по идентификатору
func (api *CircuitAPI) GetCircuit(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "Некорректный идентификатор цепи"})
		return
	}

	var circuit models.Circuit
	err := api.DB.Preload("Breaker").Preload("Room").Preload("Subpanel").First(&circuit, id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{"status": "error", "error": "Цепь не найдена"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "Ошибка при получении цепи"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "data": circuit})
}

// UpdateCircuit обновляет цепь
func (api *CircuitAPI) UpdateCircuit(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "Некорректный идентификатор цепи"})
		return
	}

	var circuit models.Circuit
	if err := api.DB.First(&circuit, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{"status": "error", "error": "Цепь не найдена"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "Ошибка при поиске цепи"})
		}
		return
	}

	var updateData struct {
		BreakerID  *uint               `json:"breaker_id"`
		RoomID     *uint               `json:"room_id"`
		Type       *models.CircuitType `json:"type"`
		Notes      *string             `json:"notes"`
		SubpanelID *uint               `json:"subpanel_id"`
	}
	if err := c.ShouldBindJSON(&updateData); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "Некорректные данные: " + err.Error()})
		return
	}

	if updateData.BreakerID != nil {
		circuit.BreakerID = *updateData.BreakerID
	}
	if updateData.RoomID != nil {
		circuit.RoomID = updateData.RoomID
	}
	if updateData.Type != nil {
		circuit.Type = *updateData.Type
	}
	if updateData.Notes != nil {
		circuit.Notes = *updateData.Notes
	}
	if updateData.SubpanelID != nil {
		circuit.SubpanelID = updateData.SubpanelID
	}

	if status, msg := api.validateCircuit(&circuit); msg != "" {
		c.JSON(status, gin.H{"status": "error", "error": msg})
		return
	}

	if err := api.DB.Save(&circuit).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "Ошибка при обновлении цепи"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": "Цепь успешно обновлена",
		"data":    circuit,
	})
}

// DeleteCircuit удаляет цепь
func (api *CircuitAPI) DeleteCircuit(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "Некорректный идентификатор цепи"})
		return
	}

	var circuit models.Circuit
	if err := api.DB.First(&circuit, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{"status": "error", "error": "Цепь не найдена"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "Ошибка при поиске цепи"})
		}
		return
	}

	if err := api.DB.Delete(&circuit).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "Ошибка при удалении цепи"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Цепь удалена"})
}

// validateCircuit проверяет поля цепи и ссылки на автомат, помещение и щит
func (api *CircuitAPI) validateCircuit(circuit *models.Circuit) (int, string) {
	if circuit.BreakerID == 0 {
		return http.StatusBadRequest, "Автомат обязателен"
	}
	if !models.IsValidCircuitType(circuit.Type) {
		return http.StatusBadRequest, "Недопустимый тип цепи"
	}

	var breaker models.Breaker
	if err := api.DB.First(&breaker, circuit.BreakerID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return http.StatusNotFound, "Автомат не найден"
		}
		return http.StatusInternalServerError, "Ошибка при поиске автомата"
	}

	if circuit.RoomID != nil {
		var room models.Room
		if err := api.DB.First(&room, *circuit.RoomID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return http.StatusNotFound, "Помещение не найдено"
			}
			return http.StatusInternalServerError, "Ошибка при поиске помещения"
		}
	}

	// Ссылка на подщит имеет смысл только для цепей питания щитов
	if circuit.Type != models.CircuitTypeSubpanel && circuit.SubpanelID != nil {
		return http.StatusBadRequest, "Ссылка на щит допустима только для цепей типа subpanel"
	}
	if circuit.SubpanelID != nil {
		if *circuit.SubpanelID == breaker.PanelID {
			return http.StatusBadRequest, "Щит не может питать сам себя"
		}
		var subpanel models.Panel
		if err := api.DB.First(&subpanel, *circuit.SubpanelID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return http.StatusNotFound, "Питаемый щит не найден"
			}
			return http.StatusInternalServerError, "Ошибка при поиске питаемого щита"
		}
	}

	return 0, ""
}
