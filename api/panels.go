package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"backend_shchitok/models"
	"backend_shchitok/services"
)

// PanelAPI представляет API для работы со щитами
type PanelAPI struct {
	DB    *gorm.DB
	Cache *services.CacheService
}

// NewPanelAPI создает новый экземпляр PanelAPI
func NewPanelAPI(db *gorm.DB, cache *services.CacheService) *PanelAPI {
	return &PanelAPI{DB: db, Cache: cache}
}

// GridPosition - одна физическая позиция щита в ответе сетки.
// Вторая строка двухполюсного автомата не существует в БД и помечается
// здесь как зарезервированная.
type GridPosition struct {
	Position int              `json:"position"`
	Side     services.BusSide `json:"side"`
	Breakers []models.Breaker `json:"breakers"`

	// Идентификатор двухполюсного автомата, резервирующего эту позицию
	// своей второй строкой (p-2), если есть
	ReservedBy *uint `json:"reserved_by,omitempty"`
}

// CreatePanel создает новый щит
func (api *PanelAPI) CreatePanel(c *gin.Context) {
	var panel models.Panel
	if err := c.ShouldBindJSON(&panel); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "Некорректные данные: " + err.Error()})
		return
	}

	if panel.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "Название щита обязательно"})
		return
	}
	if !panel.IsValidSize() {
		c.JSON(http.StatusBadRequest, gin.H{
			"status": "error",
			"error":  "Размер щита должен быть от 12 до 42 позиций",
		})
		return
	}

	var existing models.Panel
	if err := api.DB.Where("name = ?", panel.Name).First(&existing).Error; err == nil {
		c.JSON(http.StatusConflict, gin.H{"status": "error", "error": "Щит с таким названием уже существует"})
		return
	}

	if err := api.DB.Create(&panel).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "Ошибка при создании щита: " + err.Error()})
		return
	}

	api.Cache.InvalidateDashboard()

	c.JSON(http.StatusCreated, gin.H{
		"status":  "success",
		"message": "Щит успешно создан",
		"data":    panel,
	})
}

// GetPanels возвращает список щитов с пагинацией
func (api *PanelAPI) GetPanels(c *gin.Context) {
	var panels []models.Panel
	query := api.DB.Model(&models.Panel{})

	if target := c.Query("is_critical_target"); target == "true" {
		query = query.Where("is_critical_target = ?", true)
	} else if target == "false" {
		query = query.Where("is_critical_target = ?", false)
	}
	if search := c.Query("search"); search != "" {
		query = query.Where("name ILIKE ? OR location ILIKE ?", "%"+search+"%", "%"+search+"%")
	}

	page, limit, offset := parsePagination(c)

	var total int64
	query.Count(&total)

	if err := query.Order("name ASC").Limit(limit).Offset(offset).Find(&panels).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "Ошибка при получении списка щитов"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "success",
		"data":       panels,
		"pagination": paginationEnvelope(page, limit, total),
	})
}

// GetPanel возвращает щит вместе с автоматами и их цепями
func (api *PanelAPI) GetPanel(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "Некорректный идентификатор щита"})
		return
	}

	var panel models.Panel
	err := api.DB.Preload("Breakers", func(db *gorm.DB) *gorm.DB {
		return db.Order("breakers.position ASC, breakers.slot_position ASC")
	}).Preload("Breakers.Circuits").Preload("Breakers.Circuits.Room").First(&panel, id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{"status": "error", "error": "Щит не найден"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "Ошибка при получении щита"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "data": panel})
}

// UpdatePanel обновляет данные щита
func (api *PanelAPI) UpdatePanel(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "Некорректный идентификатор щита"})
		return
	}

	var panel models.Panel
	if err := api.DB.First(&panel, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{"status": "error", "error": "Щит не найден"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "Ошибка при поиске щита"})
		}
		return
	}

	var updateData struct {
		Name             *string `json:"name"`
		Size             *int    `json:"size"`
		Location         *string `json:"location"`
		Notes            *string `json:"notes"`
		IsCriticalTarget *bool   `json:"is_critical_target"`
	}
	if err := c.ShouldBindJSON(&updateData); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "Некорректные данные: " + err.Error()})
		return
	}

	if updateData.Name != nil && *updateData.Name != panel.Name {
		var existing models.Panel
		if err := api.DB.Where("name = ? AND id != ?", *updateData.Name, panel.ID).First(&existing).Error; err == nil {
			c.JSON(http.StatusConflict, gin.H{"status": "error", "error": "Щит с таким названием уже существует"})
			return
		}
		panel.Name = *updateData.Name
	}

	if updateData.Size != nil && *updateData.Size != panel.Size {
		newSize := *updateData.Size
		if newSize < models.PanelMinSize || newSize > models.PanelMaxSize {
			c.JSON(http.StatusBadRequest, gin.H{
				"status": "error",
				"error":  "Размер щита должен быть от 12 до 42 позиций",
			})
			return
		}

		// Уменьшение размера не должно отрезать занятые позиции,
		// включая вторые строки двухполюсных автоматов
		var breakers []models.Breaker
		if err := api.DB.Where("panel_id = ?", panel.ID).Find(&breakers).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "Ошибка при проверке занятых позиций"})
			return
		}
		for position := range services.OccupiedPositions(breakers) {
			if position > newSize {
				c.JSON(http.StatusConflict, gin.H{
					"status": "error",
					"error":  "Нельзя уменьшить щит: заняты позиции за пределами нового размера",
				})
				return
			}
		}
		panel.Size = newSize
	}

	if updateData.Location != nil {
		panel.Location = *updateData.Location
	}
	if updateData.Notes != nil {
		panel.Notes = *updateData.Notes
	}
	if updateData.IsCriticalTarget != nil {
		panel.IsCriticalTarget = *updateData.IsCriticalTarget
	}

	if err := api.DB.Save(&panel).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "Ошибка при обновлении щита"})
		return
	}

	api.Cache.InvalidatePanelCaches(panel.ID)

	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": "Щит успешно обновлен",
		"data":    panel,
	})
}

// DeletePanel удаляет щит каскадно вместе с автоматами и их цепями
func (api *PanelAPI) DeletePanel(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "Некорректный идентификатор щита"})
		return
	}

	var panel models.Panel
	if err := api.DB.First(&panel, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{"status": "error", "error": "Щит не найден"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "Ошибка при поиске щита"})
		}
		return
	}

	tx := api.DB.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	var breakerIDs []uint
	if err := tx.Model(&models.Breaker{}).Where("panel_id = ?", panel.ID).Pluck("id", &breakerIDs).Error; err != nil {
		tx.Rollback()
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "Ошибка при удалении щита"})
		return
	}

	if len(breakerIDs) > 0 {
		if err := tx.Where("breaker_id IN ?", breakerIDs).Delete(&models.Circuit{}).Error; err != nil {
			tx.Rollback()
			c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "Ошибка при удалении цепей щита"})
			return
		}
		if err := tx.Where("panel_id = ?", panel.ID).Delete(&models.Breaker{}).Error; err != nil {
			tx.Rollback()
			c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "Ошибка при удалении автоматов щита"})
			return
		}
	}

	if err := tx.Delete(&panel).Error; err != nil {
		tx.Rollback()
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "Ошибка при удалении щита"})
		return
	}

	if err := tx.Commit().Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "Ошибка при удалении щита"})
		return
	}

	api.Cache.InvalidatePanelCaches(panel.ID)

	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": "Щит и его автоматы удалены",
	})
}

// GetPanelGrid возвращает сетку щита: все позиции с занимающими,
// включая зарезервированные вторые строки двухполюсных автоматов
func (api *PanelAPI) GetPanelGrid(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "Некорректный идентификатор щита"})
		return
	}

	var cached []GridPosition
	if err := api.Cache.GetCachedPanelGrid(id, &cached); err == nil && len(cached) > 0 {
		c.JSON(http.StatusOK, gin.H{"status": "success", "data": cached, "cached": true})
		return
	}

	var panel models.Panel
	if err := api.DB.First(&panel, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{"status": "error", "error": "Щит не найден"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "Ошибка при получении щита"})
		}
		return
	}

	var breakers []models.Breaker
	err := api.DB.Preload("Circuits").Preload("Circuits.Room").
		Where("panel_id = ?", panel.ID).
		Order("position ASC, slot_position ASC").
		Find(&breakers).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "Ошибка при получении автоматов щита"})
		return
	}

	grid := buildPanelGrid(&panel, breakers)

	api.Cache.CachePanelGrid(panel.ID, grid)

	c.JSON(http.StatusOK, gin.H{"status": "success", "data": grid})
}

// buildPanelGrid раскладывает автоматы по позициям щита
func buildPanelGrid(panel *models.Panel, breakers []models.Breaker) []GridPosition {
	byPosition := make(map[int][]models.Breaker, len(breakers))
	reserved := make(map[int]uint)
	for i := range breakers {
		b := breakers[i]
		byPosition[b.Position] = append(byPosition[b.Position], b)
		if b.IsDoublePole() {
			reserved[b.Position+2] = b.ID
		}
	}

	grid := make([]GridPosition, 0, panel.Size)
	for position := 1; position <= panel.Size; position++ {
		entry := GridPosition{
			Position: position,
			Side:     services.SideOfPosition(position),
			Breakers: byPosition[position],
		}
		if entry.Breakers == nil {
			entry.Breakers = []models.Breaker{}
		}
		if reservedBy, ok := reserved[position]; ok {
			id := reservedBy
			entry.ReservedBy = &id
		}
		grid = append(grid, entry)
	}
	return grid
}

// GetPanelFreePositions возвращает свободные позиции щита по возрастанию
func (api *PanelAPI) GetPanelFreePositions(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "Некорректный идентификатор щита"})
		return
	}

	if slots, err := api.Cache.GetCachedFreePositions(id); err == nil && slots != nil {
		c.JSON(http.StatusOK, gin.H{"status": "success", "data": slots, "cached": true})
		return
	}

	var panel models.Panel
	if err := api.DB.First(&panel, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{"status": "error", "error": "Щит не найден"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "Ошибка при получении щита"})
		}
		return
	}

	var breakers []models.Breaker
	if err := api.DB.Where("panel_id = ?", panel.ID).Find(&breakers).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "Ошибка при получении автоматов щита"})
		return
	}

	slots := services.FreePositions(&panel, breakers)

	api.Cache.CacheFreePositions(panel.ID, slots)

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   slots,
		"free":   len(slots),
		"size":   panel.Size,
	})
}
