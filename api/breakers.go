package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"backend_shchitok/models"
	"backend_shchitok/services"
)

// BreakerAPI представляет API для работы с автоматами
type BreakerAPI struct {
	DB       *gorm.DB
	Cache    *services.CacheService
	Executor *services.MoveExecutor
}

// NewBreakerAPI создает новый экземпляр BreakerAPI
func NewBreakerAPI(db *gorm.DB, cache *services.CacheService) *BreakerAPI {
	return &BreakerAPI{
		DB:       db,
		Cache:    cache,
		Executor: services.NewMoveExecutor(db),
	}
}

// CreateBreaker создает новый автомат
func (api *BreakerAPI) CreateBreaker(c *gin.Context) {
	var breaker models.Breaker
	if err := c.ShouldBindJSON(&breaker); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "Некорректные данные: " + err.Error()})
		return
	}

	if breaker.SlotPosition == "" {
		breaker.SlotPosition = models.SlotPositionSingle
	}
	if breaker.BreakerType == "" {
		breaker.BreakerType = models.BreakerTypeSingle
	}

	if status, msg := api.validatePlacement(&breaker, 0); msg != "" {
		c.JSON(status, gin.H{"status": "error", "error": msg})
		return
	}

	if err := api.DB.Create(&breaker).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "Ошибка при создании автомата: " + err.Error()})
		return
	}

	api.Cache.InvalidatePanelCaches(breaker.PanelID)

	c.JSON(http.StatusCreated, gin.H{
		"status":  "success",
		"message": "Автомат успешно создан",
		"data":    breaker,
	})
}

// GetBreakers возвращает список автоматов с фильтрацией
func (api *BreakerAPI) GetBreakers(c *gin.Context) {
	var breakers []models.Breaker
	query := api.DB.Model(&models.Breaker{}).Preload("Circuits").Preload("Circuits.Room")

	if panelID := c.Query("panel_id"); panelID != "" {
		query = query.Where("panel_id = ?", panelID)
	}
	if critical := c.Query("critical"); critical == "true" {
		query = query.Where("critical = ?", true)
	} else if critical == "false" {
		query = query.Where("critical = ?", false)
	}
	if monitor := c.Query("monitor"); monitor == "true" {
		query = query.Where("monitor = ?", true)
	}
	if confirmed := c.Query("confirmed"); confirmed == "true" {
		query = query.Where("confirmed = ?", true)
	} else if confirmed == "false" {
		query = query.Where("confirmed = ?", false)
	}
	if breakerType := c.Query("type"); breakerType != "" {
		query = query.Where("breaker_type = ?", breakerType)
	}

	page, limit, offset := parsePagination(c)

	var total int64
	query.Count(&total)

	err := query.Order("panel_id ASC, position ASC, slot_position ASC").
		Limit(limit).Offset(offset).Find(&breakers).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "Ошибка при получении списка автоматов"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "success",
		"data":       breakers,
		"pagination": paginationEnvelope(page, limit, total),
	})
}

// GetBreaker возвращает автомат с его цепями
func (api *BreakerAPI) GetBreaker(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "Некорректный идентификатор автомата"})
		return
	}

	var breaker models.Breaker
	err := api.DB.Preload("Panel").Preload("Circuits").Preload("Circuits.Room").First(&breaker, id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{"status": "error", "error": "Автомат не найден"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "Ошибка при получении автомата"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "data": breaker})
}

// UpdateBreaker обновляет автомат. Изменение размещения проходит ту же
// геометрическую проверку, что и создание.
func (api *BreakerAPI) UpdateBreaker(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "Некорректный идентификатор автомата"})
		return
	}

	var breaker models.Breaker
	if err := api.DB.First(&breaker, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{"status": "error", "error": "Автомат не найден"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "Ошибка при поиске автомата"})
		}
		return
	}

	oldPanelID := breaker.PanelID

	var updateData struct {
		PanelID      *uint                `json:"panel_id"`
		Position     *int                 `json:"position"`
		SlotPosition *models.SlotPosition `json:"slot_position"`
		BreakerType  *models.BreakerType  `json:"breaker_type"`
		Amperage     *int                 `json:"amperage"`
		Label        *string              `json:"label"`
		Critical     *bool                `json:"critical"`
		Monitor      *bool                `json:"monitor"`
		Confirmed    *bool                `json:"confirmed"`
	}
	if err := c.ShouldBindJSON(&updateData); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "Некорректные данные: " + err.Error()})
		return
	}

	if updateData.PanelID != nil {
		breaker.PanelID = *updateData.PanelID
	}
	if updateData.Position != nil {
		breaker.Position = *updateData.Position
	}
	if updateData.SlotPosition != nil {
		breaker.SlotPosition = *updateData.SlotPosition
	}
	if updateData.BreakerType != nil {
		breaker.BreakerType = *updateData.BreakerType
	}
	if updateData.Amperage != nil {
		breaker.Amperage = *updateData.Amperage
	}
	if updateData.Label != nil {
		breaker.Label = *updateData.Label
	}
	if updateData.Critical != nil {
		breaker.Critical = *updateData.Critical
	}
	if updateData.Monitor != nil {
		breaker.Monitor = *updateData.Monitor
	}
	if updateData.Confirmed != nil {
		breaker.Confirmed = *updateData.Confirmed
	}

	if status, msg := api.validatePlacement(&breaker, breaker.ID); msg != "" {
		c.JSON(status, gin.H{"status": "error", "error": msg})
		return
	}

	if err := api.DB.Save(&breaker).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "Ошибка при обновлении автомата"})
		return
	}

	api.Cache.InvalidatePanelCaches(oldPanelID, breaker.PanelID)

	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": "Автомат успешно обновлен",
		"data":    breaker,
	})
}

// DeleteBreaker удаляет автомат вместе с его цепями
func (api *BreakerAPI) DeleteBreaker(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "Некорректный идентификатор автомата"})
		return
	}

	var breaker models.Breaker
	if err := api.DB.First(&breaker, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{"status": "error", "error": "Автомат не найден"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "Ошибка при поиске автомата"})
		}
		return
	}

	tx := api.DB.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	if err := tx.Where("breaker_id = ?", breaker.ID).Delete(&models.Circuit{}).Error; err != nil {
		tx.Rollback()
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "Ошибка при удалении цепей автомата"})
		return
	}
	if err := tx.Delete(&breaker).Error; err != nil {
		tx.Rollback()
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "Ошибка при удалении автомата"})
		return
	}
	if err := tx.Commit().Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "Ошибка при удалении автомата"})
		return
	}

	api.Cache.InvalidatePanelCaches(breaker.PanelID)

	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": "Автомат и его цепи удалены",
	})
}

// MergeBreakers сливает два автомата: цепи источника переходят приемнику,
// пустая запись источника удаляется. Используется при консолидации,
// когда оба автомата должны сосуществовать на одной позиции назначения.
func (api *BreakerAPI) MergeBreakers(c *gin.Context) {
	sourceID, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "Некорректный идентификатор автомата"})
		return
	}
	targetID, ok := parseIDParam(c, "target_id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "Некорректный идентификатор приемника"})
		return
	}
	if sourceID == targetID {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "Нельзя слить автомат с самим собой"})
		return
	}

	var source, target models.Breaker
	if err := api.DB.First(&source, sourceID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "error": "Автомат-источник не найден"})
		return
	}
	if err := api.DB.First(&target, targetID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "error": "Автомат-приемник не найден"})
		return
	}

	moved, err := api.Executor.MergeBreakers(sourceID, targetID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "Ошибка при слиянии автоматов: " + err.Error()})
		return
	}

	api.Cache.InvalidatePanelCaches(source.PanelID, target.PanelID)

	c.JSON(http.StatusOK, gin.H{
		"status":         "success",
		"message":        fmt.Sprintf("Автомат %d слит в автомат %d", sourceID, targetID),
		"circuits_moved": moved,
	})
}

// validatePlacement проверяет поля автомата и геометрическую
// реализуемость его размещения. Возвращает HTTP-статус и текст ошибки
// (пустой текст - проверка пройдена). excludeID исключает сам автомат
// из проверки занятости при обновлении.
func (api *BreakerAPI) validatePlacement(breaker *models.Breaker, excludeID uint) (int, string) {
	if breaker.PanelID == 0 {
		return http.StatusBadRequest, "Щит обязателен"
	}
	if breaker.Position < 1 {
		return http.StatusBadRequest, "Позиция должна быть положительной"
	}
	if breaker.Amperage <= 0 {
		return http.StatusBadRequest, "Номинал автомата должен быть положительным"
	}
	if !models.IsValidBreakerType(breaker.BreakerType) {
		return http.StatusBadRequest, "Недопустимый тип автомата"
	}
	if !models.IsValidSlotPosition(breaker.SlotPosition) {
		return http.StatusBadRequest, "Недопустимое положение в слоте"
	}

	// Согласованность типа и положения в слоте
	if breaker.BreakerType == models.BreakerTypeTandem && breaker.SlotPosition == models.SlotPositionSingle {
		return http.StatusBadRequest, "Спаренный автомат занимает половину слота A или B"
	}
	if breaker.BreakerType != models.BreakerTypeTandem && breaker.SlotPosition != models.SlotPositionSingle {
		return http.StatusBadRequest, "Половины слота A/B доступны только спаренным автоматам"
	}

	var panel models.Panel
	if err := api.DB.First(&panel, breaker.PanelID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return http.StatusNotFound, "Щит не найден"
		}
		return http.StatusInternalServerError, "Ошибка при поиске щита"
	}

	if breaker.Position > panel.Size {
		return http.StatusBadRequest, fmt.Sprintf("Позиция %d выходит за размер щита (%d позиций)", breaker.Position, panel.Size)
	}
	if breaker.IsDoublePole() && breaker.Position+2 > panel.Size {
		return http.StatusBadRequest, fmt.Sprintf("Двухполюсный автомат на позиции %d не помещается: строка %d выходит за размер щита",
			breaker.Position, breaker.Position+2)
	}

	// Занятость позиций с учетом вторых строк двухполюсных
	var neighbors []models.Breaker
	query := api.DB.Where("panel_id = ?", breaker.PanelID)
	if excludeID != 0 {
		query = query.Where("id != ?", excludeID)
	}
	if err := query.Find(&neighbors).Error; err != nil {
		return http.StatusInternalServerError, "Ошибка при проверке занятости позиций"
	}

	occupied := services.OccupiedPositions(neighbors)
	samePosition := make([]models.Breaker, 0, 2)
	for i := range neighbors {
		if neighbors[i].Position == breaker.Position {
			samePosition = append(samePosition, neighbors[i])
		}
	}

	if breaker.BreakerType == models.BreakerTypeTandem {
		// Спаренный слот вмещает ровно две половины A и B
		for _, occupant := range samePosition {
			if !occupant.IsTandem() {
				return http.StatusConflict, fmt.Sprintf("Позиция %d занята автоматом другого типа", breaker.Position)
			}
			if occupant.SlotPosition == breaker.SlotPosition {
				return http.StatusConflict, fmt.Sprintf("Половина слота %d%s уже занята", breaker.Position, breaker.SlotPosition)
			}
		}
		// Позиция может быть занята тенью двухполюсного автомата
		if len(samePosition) == 0 && occupied[breaker.Position] {
			return http.StatusConflict, fmt.Sprintf("Позиция %d зарезервирована двухполюсным автоматом", breaker.Position)
		}
	} else {
		if occupied[breaker.Position] {
			return http.StatusConflict, fmt.Sprintf("Позиция %d уже занята", breaker.Position)
		}
		if breaker.IsDoublePole() && occupied[breaker.Position+2] {
			return http.StatusConflict, fmt.Sprintf("Позиция %d для второй строки двухполюсного уже занята", breaker.Position+2)
		}
	}

	return 0, ""
}
