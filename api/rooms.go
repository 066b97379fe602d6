package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"backend_shchitok/models"
)

// RoomAPI представляет API для работы с помещениями
type RoomAPI struct {
	DB *gorm.DB
}

// NewRoomAPI создает новый экземпляр RoomAPI
func NewRoomAPI(db *gorm.DB) *RoomAPI {
	return &RoomAPI{DB: db}
}

// CreateRoom создает новое помещение
func (api *RoomAPI) CreateRoom(c *gin.Context) {
	var room models.Room
	if err := c.ShouldBindJSON(&room); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "Некорректные данные: " + err.Error()})
		return
	}

	if room.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "Название помещения обязательно"})
		return
	}
	if room.Level == "" {
		room.Level = models.RoomLevelMain
	}
	if !models.IsValidRoomLevel(room.Level) {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "Недопустимый уровень помещения"})
		return
	}

	var existing models.Room
	if err := api.DB.Where("name = ?", room.Name).First(&existing).Error; err == nil {
		c.JSON(http.StatusConflict, gin.H{"status": "error", "error": "Помещение с таким названием уже существует"})
		return
	}

	if err := api.DB.Create(&room).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "Ошибка при создании помещения: " + err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"status":  "success",
		"message": "Помещение успешно создано",
		"data":    room,
	})
}

// GetRooms возвращает список помещений
func (api *RoomAPI) GetRooms(c *gin.Context) {
	var rooms []models.Room
	query := api.DB.Model(&models.Room{})

	if level := c.Query("level"); level != "" {
		query = query.Where("level = ?", level)
	}

	if err := query.Order("name ASC").Find(&rooms).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "Ошибка при получении списка помещений"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "data": rooms})
}

// GetRoom возвращает помещение с его цепями
func (api *RoomAPI) GetRoom(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "Некорректный идентификатор помещения"})
		return
	}

	var room models.Room
	err := api.DB.Preload("Circuits").Preload("Circuits.Breaker").First(&room, id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{"status": "error", "error": "Помещение не найдено"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "Ошибка при получении помещения"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "data": room})
}

// UpdateRoom обновляет помещение
func (api *RoomAPI) UpdateRoom(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "Некорректный идентификатор помещения"})
		return
	}

	var room models.Room
	if err := api.DB.First(&room, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{"status": "error", "error": "Помещение не найдено"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "Ошибка при поиске помещения"})
		}
		return
	}

	var updateData struct {
		Name  *string           `json:"name"`
		Level *models.RoomLevel `json:"level"`
	}
	if err := c.ShouldBindJSON(&updateData); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "Некорректные данные: " + err.Error()})
		return
	}

	if updateData.Name != nil && *updateData.Name != room.Name {
		var existing models.Room
		if err := api.DB.Where("name = ? AND id != ?", *updateData.Name, room.ID).First(&existing).Error; err == nil {
			c.JSON(http.StatusConflict, gin.H{"status": "error", "error": "Помещение с таким названием уже существует"})
			return
		}
		room.Name = *updateData.Name
	}
	if updateData.Level != nil {
		if !models.IsValidRoomLevel(*updateData.Level) {
			c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "Недопустимый уровень помещения"})
			return
		}
		room.Level = *updateData.Level
	}

	if err := api.DB.Save(&room).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "Ошибка при обновлении помещения"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": "Помещение успешно обновлено",
		"data":    room,
	})
}

// DeleteRoom удаляет помещение. Цепи помещения не удаляются:
// их ссылка на помещение обнуляется.
func (api *RoomAPI) DeleteRoom(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "Некорректный идентификатор помещения"})
		return
	}

	var room models.Room
	if err := api.DB.First(&room, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{"status": "error", "error": "Помещение не найдено"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "Ошибка при поиске помещения"})
		}
		return
	}

	tx := api.DB.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	if err := tx.Model(&models.Circuit{}).Where("room_id = ?", room.ID).
		Update("room_id", nil).Error; err != nil {
		tx.Rollback()
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "Ошибка при отвязке цепей помещения"})
		return
	}
	if err := tx.Delete(&room).Error; err != nil {
		tx.Rollback()
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "Ошибка при удалении помещения"})
		return
	}
	if err := tx.Commit().Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "Ошибка при удалении помещения"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Помещение удалено, цепи отвязаны"})
}
